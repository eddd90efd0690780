// Package tron reads TRC20 transfers from the TronGrid REST API.
package tron

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"referral-ledger/internal/core/domain"

	"github.com/shopspring/decimal"
)

const (
	pageLimit = 200
	maxPages  = 10
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements ports.ChainClient against TronGrid.
type Client struct {
	baseURL  string
	apiKey   string
	contract string // empty lists every TRC20 token
	http     HTTPClient
}

func NewClient(baseURL, apiKey, contract string, httpClient HTTPClient) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		contract: contract,
		http:     httpClient,
	}
}

type transfersPage struct {
	Success bool       `json:"success"`
	Error   string     `json:"error"`
	Data    []transfer `json:"data"`
	Meta    struct {
		Fingerprint string `json:"fingerprint"`
	} `json:"meta"`
}

type transfer struct {
	TransactionID string `json:"transaction_id"`
	TokenInfo     struct {
		Address  string `json:"address"`
		Decimals int32  `json:"decimals"`
	} `json:"token_info"`
	BlockTimestamp int64  `json:"block_timestamp"`
	From           string `json:"from"`
	To             string `json:"to"`
	Type           string `json:"type"`
	Value          string `json:"value"`
}

// ListIncomingTransfers returns confirmed transfers into address with a block
// time at or after sinceMs, following pagination.
func (c *Client) ListIncomingTransfers(ctx context.Context, address string, sinceMs int64) ([]domain.ChainTransfer, error) {
	q := url.Values{}
	q.Set("only_to", "true")
	q.Set("only_confirmed", "true")
	q.Set("limit", strconv.Itoa(pageLimit))
	q.Set("min_timestamp", strconv.FormatInt(sinceMs, 10))
	if c.contract != "" {
		q.Set("contract_address", c.contract)
	}

	var out []domain.ChainTransfer
	for page := 0; page < maxPages; page++ {
		p, err := c.fetch(ctx, address, q)
		if err != nil {
			return nil, err
		}
		for _, t := range p.Data {
			if t.Type != "" && t.Type != "Transfer" {
				continue
			}
			amount, err := decimal.NewFromString(t.Value)
			if err != nil {
				return nil, fmt.Errorf("tron: transfer %s: bad value %q: %w", t.TransactionID, t.Value, err)
			}
			out = append(out, domain.ChainTransfer{
				TxHash:        t.TransactionID,
				From:          t.From,
				To:            t.To,
				Amount:        amount.Shift(-t.TokenInfo.Decimals),
				TokenContract: t.TokenInfo.Address,
				BlockTimeMs:   t.BlockTimestamp,
			})
		}
		if p.Meta.Fingerprint == "" || len(p.Data) < pageLimit {
			break
		}
		q.Set("fingerprint", p.Meta.Fingerprint)
	}
	return out, nil
}

func (c *Client) fetch(ctx context.Context, address string, q url.Values) (*transfersPage, error) {
	endpoint := fmt.Sprintf("%s/v1/accounts/%s/transactions/trc20?%s", c.baseURL, url.PathEscape(address), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("tron: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tron: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("tron: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tron: status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var p transfersPage
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("tron: decode response: %w", err)
	}
	if !p.Success {
		return nil, fmt.Errorf("tron: api error: %s", p.Error)
	}
	return &p, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
