package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"referral-ledger/config"
	"referral-ledger/internal/adapter/custody"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminEmail    = "ops@example.com"
	adminPassword = "operator-password-1"
	payoutAddress = "TJRabPrwbZy45sbavfcjinPJC18kjpRTv8"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeCustody serves deposit addresses and accepts every payout.
type fakeCustody struct {
	addresses atomic.Int32
	payouts   atomic.Int32
	unsigned  atomic.Int32
}

func (f *fakeCustody) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(custody.HeaderSignature) == "" {
		f.unsigned.Add(1)
	}
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/v1/addresses":
		n := f.addresses.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"address":     "T" + strings.Repeat("b", 32) + strconv.Itoa(int(n)),
			"private_key": "key-" + strconv.Itoa(int(n)),
		})
	case "/v1/payouts":
		f.payouts.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "tx_hash": "payout-hash-1"})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func testConfig(custodyURL string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Mode:            "test",
			VerifyURL:       "http://localhost/verify?token=",
			MaxBodyBytes:    1 << 20,
			ShutdownTimeout: time.Second,
		},
		Database: config.DatabaseConfig{Driver: "memory"},
		JWT:      config.JWTConfig{Secret: "test-secret", Expiry: time.Hour, Issuer: "referral-ledger"},
		AES:      config.AESConfig{Key: strings.Repeat("ab", 32)},
		Ledger: config.LedgerConfig{
			MinWithdrawal:   "10",
			WithdrawalFee:   "1",
			CommissionRates: []string{"0.05", "0.02", "0.01"},
		},
		Chain:  config.ChainConfig{BaseURL: "http://127.0.0.1:1", USDTContract: "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", Timeout: time.Second},
		Payout: config.PayoutConfig{BaseURL: custodyURL, APIKey: "key", Secret: "secret", Timeout: 5 * time.Second},
		Kafka:  config.KafkaConfig{Topic: "ledger-events"},
		CORS:   config.CORSConfig{AllowedOrigins: []string{"*"}},
		Admin:  config.AdminConfig{Email: adminEmail, Password: adminPassword},
	}
}

type client struct {
	t *testing.T
	a *App
}

func (c client) do(method, path, token string, body any) (int, map[string]any) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	c.a.Router.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(c.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func (c client) data(method, path, token string, body any, wantStatus int) map[string]any {
	c.t.Helper()
	status, out := c.do(method, path, token, body)
	require.Equal(c.t, wantStatus, status, "%s %s: %v", method, path, out)
	data, _ := out["data"].(map[string]any)
	return data
}

// signUp registers, verifies and logs in a user, returning the token, id and referral code.
func (c client) signUp(email, referralCode string) (token, id, code string) {
	c.t.Helper()
	body := map[string]string{"email": email, "password": "correct-horse-battery", "full_name": email}
	if referralCode != "" {
		body["referral_code"] = referralCode
	}
	account := c.data(http.MethodPost, "/api/v1/auth/register", "", body, http.StatusCreated)
	id = account["id"].(string)

	stored, err := c.a.Repos.Accounts.GetByEmail(context.Background(), email)
	require.NoError(c.t, err)
	require.NotNil(c.t, stored.VerificationToken)

	verified := c.data(http.MethodPost, "/api/v1/auth/verify-email", "", map[string]string{"token": *stored.VerificationToken}, http.StatusOK)
	code = verified["referral_code"].(string)

	login := c.data(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": email, "password": "correct-horse-battery"}, http.StatusOK)
	return login["token"].(string), id, code
}

func (c client) balance(token string) (available, pending decimal.Decimal) {
	c.t.Helper()
	w := c.data(http.MethodGet, "/api/v1/wallet", token, nil, http.StatusOK)
	return decimal.RequireFromString(w["available"].(string)), decimal.RequireFromString(w["pending"].(string))
}

func newTestApp(t *testing.T) (client, *fakeCustody) {
	t.Helper()
	fc := &fakeCustody{}
	srv := httptest.NewServer(fc)
	t.Cleanup(srv.Close)

	a, err := New(context.Background(), testConfig(srv.URL), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return client{t: t, a: a}, fc
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestApp_DepositCascadeAndWithdrawal(t *testing.T) {
	c, fc := newTestApp(t)

	tokenA, _, codeA := c.signUp("a@example.com", "")
	tokenB, _, codeB := c.signUp("b@example.com", codeA)
	tokenC, _, codeC := c.signUp("c@example.com", codeB)
	tokenD, idD, _ := c.signUp("d@example.com", codeC)
	assert.EqualValues(t, 4, fc.addresses.Load())

	admin := c.data(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": adminEmail, "password": adminPassword}, http.StatusOK)
	adminToken := admin["token"].(string)

	deposit := c.data(http.MethodPost, "/api/v1/admin/deposits", adminToken,
		map[string]string{"userId": idD, "amount": "100", "notes": "bank transfer"}, http.StatusCreated)
	assert.Equal(t, "DEPOSIT", deposit["type"])
	assert.Equal(t, "COMPLETED", deposit["status"])
	c.a.WaitEvents()

	avail, _ := c.balance(tokenD)
	assertDecimal(t, "100", avail)
	avail, _ = c.balance(tokenC)
	assertDecimal(t, "5", avail)
	avail, _ = c.balance(tokenB)
	assertDecimal(t, "2", avail)
	avail, _ = c.balance(tokenA)
	assertDecimal(t, "1", avail)

	stats := c.data(http.MethodGet, "/api/v1/referrals/stats", tokenC, nil, http.StatusOK)
	assert.EqualValues(t, 1, stats["direct_referrals"])
	assertDecimal(t, "5", decimal.RequireFromString(stats["total_earned"].(string)))

	status, out := c.do(http.MethodPost, "/api/v1/withdraw", tokenD,
		map[string]string{"amount": "5", "walletAddress": payoutAddress, "network": "TRC20"})
	assert.Equal(t, http.StatusBadRequest, status, out)

	withdrawal := c.data(http.MethodPost, "/api/v1/withdraw", tokenD,
		map[string]string{"amount": "20", "walletAddress": payoutAddress, "network": "TRC20"}, http.StatusCreated)
	assert.Equal(t, "PENDING", withdrawal["status"])

	avail, pending := c.balance(tokenD)
	assertDecimal(t, "79", avail)
	assertDecimal(t, "21", pending)

	processed := c.data(http.MethodPost, "/api/v1/admin/withdrawals/"+withdrawal["id"].(string)+"/process", adminToken,
		map[string]string{"action": "approve"}, http.StatusOK)
	assert.Equal(t, "COMPLETED", processed["status"])
	assert.Equal(t, "payout-hash-1", processed["tx_hash"])
	assert.EqualValues(t, 1, fc.payouts.Load())
	assert.Zero(t, fc.unsigned.Load())

	avail, pending = c.balance(tokenD)
	assertDecimal(t, "79", avail)
	assertDecimal(t, "0", pending)

	status, out = c.do(http.MethodPost, "/api/v1/admin/withdrawals/"+withdrawal["id"].(string)+"/process", adminToken,
		map[string]string{"action": "reject"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "PAY_005", out["error_code"])
}

func TestApp_RejectedWithdrawalRefundsHold(t *testing.T) {
	c, fc := newTestApp(t)

	token, id, _ := c.signUp("solo@example.com", "")
	admin := c.data(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": adminEmail, "password": adminPassword}, http.StatusOK)
	adminToken := admin["token"].(string)

	c.data(http.MethodPost, "/api/v1/admin/deposits", adminToken, map[string]string{"userId": id, "amount": "50"}, http.StatusCreated)
	c.a.WaitEvents()

	withdrawal := c.data(http.MethodPost, "/api/v1/withdraw", token,
		map[string]string{"amount": "30", "walletAddress": payoutAddress, "network": "TRC20"}, http.StatusCreated)
	avail, pending := c.balance(token)
	assertDecimal(t, "19", avail)
	assertDecimal(t, "31", pending)

	rejected := c.data(http.MethodPost, "/api/v1/admin/withdrawals/"+withdrawal["id"].(string)+"/process", adminToken,
		map[string]string{"action": "reject", "notes": "address on deny list"}, http.StatusOK)
	assert.Equal(t, "REJECTED", rejected["status"])
	assert.Zero(t, fc.payouts.Load())

	avail, pending = c.balance(token)
	assertDecimal(t, "50", avail)
	assertDecimal(t, "0", pending)
}

func TestApp_AdminRoutesAreForbiddenToUsers(t *testing.T) {
	c, _ := newTestApp(t)
	token, id, _ := c.signUp("user@example.com", "")

	status, out := c.do(http.MethodPost, "/api/v1/admin/deposits", token, map[string]string{"userId": id, "amount": "1000"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "AUTH_004", out["error_code"])

	avail, _ := c.balance(token)
	assert.True(t, avail.IsZero())
}

func TestApp_HealthAndMetrics(t *testing.T) {
	c, _ := newTestApp(t)

	status, out := c.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status, out)

	w := httptest.NewRecorder()
	c.a.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestNew_UnknownDriver(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Database.Driver = "sqlite"

	_, err := New(context.Background(), cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "unknown database driver")
}
