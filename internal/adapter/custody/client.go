// Package custody talks to the custody service that holds the hot wallet and
// derives deposit addresses. Every request is HMAC-signed.
package custody

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"referral-ledger/internal/core/domain"
	"referral-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	HeaderAPIKey    = "X-Api-Key"
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
	HeaderNonce     = "X-Nonce"

	payoutPath  = "/v1/payouts"
	addressPath = "/v1/addresses"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements ports.PayoutClient and ports.AddressProvider.
type Client struct {
	baseURL string
	apiKey  string
	secret  string
	signer  ports.SignatureService
	http    HTTPClient
	now     func() time.Time
}

func NewClient(baseURL, apiKey, secret string, signer ports.SignatureService, httpClient HTTPClient) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		secret:  secret,
		signer:  signer,
		http:    httpClient,
		now:     time.Now,
	}
}

type payoutRequest struct {
	To      string          `json:"to"`
	Amount  decimal.Decimal `json:"amount"`
	Network domain.Network  `json:"network"`
}

type payoutResponse struct {
	Success bool   `json:"success"`
	TxHash  string `json:"tx_hash"`
	Error   string `json:"error"`
}

// SendTokens asks the custody service to broadcast a transfer. A decoded
// response with success=false is a definitive failure; transport errors, 5xx
// responses and undecodable bodies leave the outcome unknown and return an error.
func (c *Client) SendTokens(ctx context.Context, toAddress string, amount decimal.Decimal, network domain.Network) (*ports.PayoutResult, error) {
	status, body, err := c.do(ctx, http.MethodPost, payoutPath, payoutRequest{To: toAddress, Amount: amount, Network: network})
	if err != nil {
		return nil, err
	}
	if status >= 500 {
		return nil, fmt.Errorf("custody: payout status %d", status)
	}

	var resp payoutResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("custody: decode payout response (status %d): %w", status, err)
	}
	if status >= 300 && resp.Error == "" {
		resp.Error = fmt.Sprintf("payout rejected with status %d", status)
	}
	if resp.Success && status < 300 {
		if resp.TxHash == "" {
			return nil, fmt.Errorf("custody: payout succeeded without a tx hash")
		}
		return &ports.PayoutResult{Success: true, TxHash: resp.TxHash}, nil
	}
	return &ports.PayoutResult{Success: false, Error: resp.Error}, nil
}

type addressRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

type addressResponse struct {
	Address    string `json:"address"`
	PrivateKey string `json:"private_key"`
}

// NewDepositAddress allocates a TRC20 deposit address for userID.
func (c *Client) NewDepositAddress(ctx context.Context, userID uuid.UUID) (string, string, error) {
	status, body, err := c.do(ctx, http.MethodPost, addressPath, addressRequest{UserID: userID})
	if err != nil {
		return "", "", err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return "", "", fmt.Errorf("custody: address status %d", status)
	}
	var resp addressResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", "", fmt.Errorf("custody: decode address response: %w", err)
	}
	if err := domain.ValidateAddress(domain.NetworkTRC20, resp.Address); err != nil {
		return "", "", fmt.Errorf("custody: %w", err)
	}
	if resp.PrivateKey == "" {
		return "", "", fmt.Errorf("custody: address response without key")
	}
	return resp.Address, resp.PrivateKey, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("custody: encode request: %w", err)
	}
	nonce, err := newNonce()
	if err != nil {
		return 0, nil, fmt.Errorf("custody: nonce: %w", err)
	}
	ts := c.now().Unix()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, fmt.Errorf("custody: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderAPIKey, c.apiKey)
	req.Header.Set(HeaderTimestamp, fmt.Sprintf("%d", ts))
	req.Header.Set(HeaderNonce, nonce)
	req.Header.Set(HeaderSignature, c.signer.Sign(c.secret, c.signer.BuildCanonicalString(method, path, ts, nonce, string(raw))))

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("custody: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("custody: read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
