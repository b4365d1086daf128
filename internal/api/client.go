// Package api is the HTTP gateway to the financial assistant backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/batalabs/finchat/internal/domain"
)

// DefaultBaseURL is where the backend listens in a local setup.
const DefaultBaseURL = "http://localhost:5000/api"

// maxErrorBody caps how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

// HealthStatus is the response of GET health.
type HealthStatus struct {
	Status           string `json:"status"`
	Timestamp        string `json:"timestamp"`
	AgentInitialized bool   `json:"agent_initialized"`
}

// OK reports whether the backend described itself as healthy.
func (h *HealthStatus) OK() bool {
	return h != nil && h.Status == "ok"
}

// Result is the response of POST query and POST update-data.
type Result struct {
	Success   bool   `json:"success"`
	Answer    string `json:"answer,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Err returns a KindApplication error when the backend reported failure.
func (r *Result) Err() error {
	if r == nil || r.Success {
		return nil
	}
	msg := r.Message
	if msg == "" {
		msg = "backend reported failure"
	}
	return &Error{Kind: KindApplication, Message: msg}
}

// Dataset is the response of the price and news lookups. Data holds one
// record per row.
type Dataset struct {
	Success bool             `json:"success"`
	Symbol  string           `json:"symbol,omitempty"`
	Data    []map[string]any `json:"data"`
	Message string           `json:"message,omitempty"`
}

// UpdateOptions selects which sources POST update-data refreshes. The zero
// value collects everything.
type UpdateOptions struct {
	SkipNews       bool
	SkipFinancials bool
	SkipHistorical bool
}

// Client talks to the backend REST API. Each call issues exactly one request.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds every request. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

// New creates a client for the backend at baseURL ("" selects DefaultBaseURL).
func New(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the base URL requests are resolved against.
func (c *Client) BaseURL() string { return c.baseURL }

// Health checks whether the backend is up.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var out HealthStatus
	if err := c.get(ctx, "health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stocks lists the symbols the backend can answer about.
func (c *Client) Stocks(ctx context.Context) ([]domain.Stock, error) {
	var out []domain.Stock
	if err := c.get(ctx, "stocks", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateData asks the backend to refresh its data for symbols.
func (c *Client) UpdateData(ctx context.Context, symbols []string, opts UpdateOptions) (*Result, error) {
	body := map[string]any{
		"symbols":            nonNil(symbols),
		"collect_news":       !opts.SkipNews,
		"collect_financials": !opts.SkipFinancials,
		"collect_historical": !opts.SkipHistorical,
	}
	var out Result
	if err := c.post(ctx, "update-data", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Query submits a natural-language question about symbols. collectFresh asks
// the backend to fetch live data before answering.
func (c *Client) Query(ctx context.Context, query string, symbols []string, collectFresh bool) (*Result, error) {
	body := map[string]any{
		"query":         query,
		"symbols":       nonNil(symbols),
		"collect_fresh": collectFresh,
	}
	var out Result
	if err := c.post(ctx, "query", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// HistoricalPrices fetches the price history of symbol.
func (c *Client) HistoricalPrices(ctx context.Context, symbol string) (*Dataset, error) {
	return c.dataset(ctx, "historical-prices", url.Values{"symbol": {symbol}})
}

// CompanyNews fetches the latest news for symbol.
func (c *Client) CompanyNews(ctx context.Context, symbol string) (*Dataset, error) {
	return c.dataset(ctx, "company-news", url.Values{"symbol": {symbol}})
}

// StockPrices fetches the latest prices of symbols; an empty list asks for all.
func (c *Client) StockPrices(ctx context.Context, symbols []string) (*Dataset, error) {
	return c.dataset(ctx, "stock-prices", url.Values{"symbols": {strings.Join(symbols, ",")}})
}

func (c *Client) dataset(ctx context.Context, endpoint string, params url.Values) (*Dataset, error) {
	var out Dataset
	if err := c.get(ctx, endpoint, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	target := c.baseURL + "/" + endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return c.do(req, endpoint, out)
}

func (c *Client) post(ctx context.Context, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, endpoint, out)
}

// transportError classifies a failed round trip. A request that ran out of
// time or was canceled says nothing about whether the backend is up, so only
// the remaining failures count as unavailable.
func transportError(ctx context.Context, op string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return &Error{Kind: KindCanceled, Op: op, Message: "request timed out", Err: err}
	case ctx.Err() != nil:
		return &Error{Kind: KindCanceled, Op: op, Message: "request canceled", Err: err}
	}
	return &Error{Kind: KindUnavailable, Op: op, Message: "backend unreachable: " + transportCause(err), Err: err}
}

func (c *Client) do(req *http.Request, op string, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(req.Context(), op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(op, resp.StatusCode, errorMessage(resp.Body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(req.Context(), op, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: KindMalformed, Op: op, Message: fmt.Sprintf("malformed response from %s", op), Err: err}
	}
	return nil
}

// errorMessage pulls "message" (or "error") out of a failed response body.
// Bodies that are not JSON yield "".
func errorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &payload) != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}

// transportCause strips the method and URL that net/http prefixes to
// transport errors.
func transportCause(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err.Error()
	}
	return err.Error()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ParseTimestamp parses a backend timestamp. The backend emits ISO 8601,
// usually without a zone offset, in which case local time is assumed.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
