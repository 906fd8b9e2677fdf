// Package api talks to the finance backend that owns transactions and
// balances. The dashboard only ever reads from it.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"gofinances/internal/core"
)

const (
	transactionsPath = "/transactions"
	maxBodyBytes     = 10 << 20
)

// ErrMalformedResponse is returned when the backend answers 2xx with a body
// that is not a valid statement.
var ErrMalformedResponse = errors.New("malformed transactions response")

// Source yields the current statement. Implementations must return the list
// and the balance from the same read.
type Source interface {
	Fetch(ctx context.Context) (core.Statement, error)
}

// StatusError reports a non-2xx answer from the backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Body)
}

// Client issues GET /transactions against the configured base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ Source = (*Client)(nil)

// NewClient creates a backend client. A nil httpClient gets a client with a
// 10 second timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 10 * time.Second,
		}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// BaseURL returns the backend base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Fetch performs a single GET /transactions. There is no retry: a failure is
// reported to the caller as-is.
func (c *Client) Fetch(ctx context.Context) (core.Statement, error) {
	reqURL := c.baseURL + transactionsPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return core.Statement{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.Statement{}, fmt.Errorf("get %s: %w", transactionsPath, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return core.Statement{}, fmt.Errorf("read response body: %w", err)
	}

	slog.DebugContext(ctx, "Backend responded",
		"url", reqURL,
		"status_code", resp.StatusCode,
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return core.Statement{}, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 256)}
	}

	return DecodeStatement(body)
}

// DecodeStatement parses and validates a GET /transactions body.
func DecodeStatement(body []byte) (core.Statement, error) {
	var raw struct {
		Transactions []core.Transaction `json:"transactions"`
		Balance      *core.Balance      `json:"balance"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return core.Statement{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if raw.Balance == nil {
		return core.Statement{}, fmt.Errorf("%w: missing balance", ErrMalformedResponse)
	}
	st := core.Statement{Transactions: raw.Transactions, Balance: *raw.Balance}
	if st.Transactions == nil {
		st.Transactions = []core.Transaction{}
	}
	if err := st.Validate(); err != nil {
		return core.Statement{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return st, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
