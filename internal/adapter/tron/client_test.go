package tron

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	addr = "TJRabPrwbZy45sbavfcjinPJC18kjpRTv8"
	usdt = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
)

func transferJSON(id, value string) string {
	return fmt.Sprintf(`{"transaction_id":%q,"token_info":{"address":%q,"decimals":6},"block_timestamp":1700000000000,"from":"TFrom","to":%q,"type":"Transfer","value":%q}`,
		id, usdt, addr, value)
}

func TestClient_ListIncomingTransfers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts/"+addr+"/transactions/trc20", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("only_to"))
		assert.Equal(t, "1699990000000", r.URL.Query().Get("min_timestamp"))
		assert.Equal(t, usdt, r.URL.Query().Get("contract_address"))
		assert.Equal(t, "key-123", r.Header.Get("TRON-PRO-API-KEY"))

		fmt.Fprintf(w, `{"success":true,"data":[%s,%s,{"transaction_id":"tx3","type":"Approval","value":"1"}],"meta":{}}`,
			transferJSON("tx1", "10500000"), transferJSON("tx2", "1"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "key-123", usdt, srv.Client())
	got, err := c.ListIncomingTransfers(context.Background(), addr, 1699990000000)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "tx1", got[0].TxHash)
	assert.Equal(t, "10.5", got[0].Amount.String())
	assert.Equal(t, usdt, got[0].TokenContract)
	assert.Equal(t, addr, got[0].To)
	assert.Equal(t, int64(1700000000000), got[0].BlockTimeMs)
	assert.Equal(t, "0.000001", got[1].Amount.String())
}

func TestClient_FollowsFingerprint(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("fingerprint") == "" {
			items := make([]string, pageLimit)
			for i := range items {
				items[i] = transferJSON(fmt.Sprintf("p1-%d", i), "1000000")
			}
			fmt.Fprintf(w, `{"success":true,"data":[%s],"meta":{"fingerprint":"next"}}`, strings.Join(items, ","))
			return
		}
		assert.Equal(t, "next", r.URL.Query().Get("fingerprint"))
		fmt.Fprintf(w, `{"success":true,"data":[%s],"meta":{"fingerprint":"more"}}`, transferJSON("p2-0", "1000000"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", usdt, srv.Client())
	got, err := c.ListIncomingTransfers(context.Background(), addr, 0)
	require.NoError(t, err)
	assert.Len(t, got, pageLimit+1)
	assert.Equal(t, 2, calls, "a short page ends pagination")
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"rate limited", http.StatusTooManyRequests, `{"Error":"slow down"}`, "status 429"},
		{"api failure", http.StatusOK, `{"success":false,"error":"bad address"}`, "bad address"},
		{"bad json", http.StatusOK, `{`, "decode"},
		{"bad value", http.StatusOK, `{"success":true,"data":[` + transferJSON("tx", "abc") + `]}`, "bad value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "", usdt, srv.Client()).ListIncomingTransfers(context.Background(), addr, 0)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
