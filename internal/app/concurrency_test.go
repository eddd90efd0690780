package app

import (
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestConcurrentDuplicateDeposits fires the same on-chain hash many times at
// once. Exactly one request may credit the wallet and pay the cascade.
func TestConcurrentDuplicateDeposits(t *testing.T) {
	c, _ := newTestApp(t)

	referrerToken, _, code := c.signUp("referrer@example.com", "")
	token, id, _ := c.signUp("depositor@example.com", code)
	admin := c.data(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": adminEmail, "password": adminPassword}, http.StatusOK)
	adminToken := admin["token"].(string)

	const concurrency = 20
	var created, duplicates, other atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, out := c.do(http.MethodPost, "/api/v1/admin/deposits", adminToken,
				map[string]string{"userId": id, "amount": "10", "txHash": "dup-hash-1"})
			switch {
			case status == http.StatusCreated:
				created.Add(1)
			case status == http.StatusConflict && out["error_code"] == "PAY_003":
				duplicates.Add(1)
			default:
				other.Add(1)
			}
		}()
	}
	wg.Wait()
	c.a.WaitEvents()

	assert.EqualValues(t, 1, created.Load())
	assert.EqualValues(t, concurrency-1, duplicates.Load())
	assert.Zero(t, other.Load())

	avail, _ := c.balance(token)
	assertDecimal(t, "10", avail)
	avail, _ = c.balance(referrerToken)
	assertDecimal(t, "0.5", avail)
}
