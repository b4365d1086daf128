package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// newTestClient starts a server handling every request with h and returns a
// client pointed at its /api prefix.
func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL + "/api/")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestNew_defaults(t *testing.T) {
	if got := New("").BaseURL(); got != DefaultBaseURL {
		t.Errorf("BaseURL() = %q, want %q", got, DefaultBaseURL)
	}
	if got := New("http://example.com/api///").BaseURL(); got != "http://example.com/api" {
		t.Errorf("BaseURL() = %q", got)
	}
}

func TestWithTimeout(t *testing.T) {
	hc := &http.Client{}
	c := New("", WithHTTPClient(hc), WithTimeout(3*time.Second))
	if c.httpClient.Timeout != 3*time.Second {
		t.Errorf("timeout = %v", c.httpClient.Timeout)
	}
	if hc.Timeout != 0 {
		t.Error("WithTimeout mutated the caller's http.Client")
	}
}

func TestHealth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/health" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":            "ok",
			"timestamp":         "2025-03-04T10:11:12.345678",
			"agent_initialized": true,
		})
	})

	h, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if !h.OK() || !h.AgentInitialized || h.Timestamp == "" {
		t.Errorf("unexpected health %+v", h)
	}
}

func TestStocks(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]string{
			{"symbol": "AAPL", "name": "Apple"},
			{"symbol": "KO", "name": "Coca-Cola"},
		})
	})

	stocks, err := c.Stocks(context.Background())
	if err != nil {
		t.Fatalf("Stocks: %v", err)
	}
	if len(stocks) != 2 || stocks[1].Symbol != "KO" || stocks[1].Name != "Coca-Cola" {
		t.Errorf("unexpected stocks %+v", stocks)
	}
}

func TestQuery_requestBody(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/query" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "answer": "Up 3%", "timestamp": "2025-01-01T00:00:00"})
	})

	res, err := c.Query(context.Background(), "How is AAPL?", []string{"AAPL"}, true)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Answer != "Up 3%" || res.Err() != nil {
		t.Errorf("unexpected result %+v", res)
	}
	if got["query"] != "How is AAPL?" || got["collect_fresh"] != true {
		t.Errorf("unexpected body %v", got)
	}
	syms, ok := got["symbols"].([]any)
	if !ok || len(syms) != 1 || syms[0] != "AAPL" {
		t.Errorf("symbols = %v", got["symbols"])
	}
}

func TestQuery_nilSymbolsSentAsArray(t *testing.T) {
	var raw map[string]json.RawMessage
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	if _, err := c.Query(context.Background(), "hi", nil, false); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if string(raw["symbols"]) != "[]" {
		t.Errorf("symbols = %s, want []", raw["symbols"])
	}
}

func TestUpdateData_flags(t *testing.T) {
	tests := []struct {
		name string
		opts UpdateOptions
		want map[string]bool
	}{
		{"zero value collects all", UpdateOptions{}, map[string]bool{"collect_news": true, "collect_financials": true, "collect_historical": true}},
		{"skip news", UpdateOptions{SkipNews: true}, map[string]bool{"collect_news": false, "collect_financials": true, "collect_historical": true}},
		{"skip all", UpdateOptions{SkipNews: true, SkipFinancials: true, SkipHistorical: true}, map[string]bool{"collect_news": false, "collect_financials": false, "collect_historical": false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]any
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/update-data" {
					t.Errorf("path = %s", r.URL.Path)
				}
				json.NewDecoder(r.Body).Decode(&got)
				writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "done"})
			})
			if _, err := c.UpdateData(context.Background(), []string{"AAPL", "MSFT"}, tt.opts); err != nil {
				t.Fatalf("UpdateData: %v", err)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestDatasets_queryParams(t *testing.T) {
	tests := []struct {
		name     string
		call     func(*Client) (*Dataset, error)
		path     string
		param    string
		expected string
	}{
		{"historical", func(c *Client) (*Dataset, error) { return c.HistoricalPrices(context.Background(), "AAPL") }, "/api/historical-prices", "symbol", "AAPL"},
		{"news", func(c *Client) (*Dataset, error) { return c.CompanyNews(context.Background(), "TSLA") }, "/api/company-news", "symbol", "TSLA"},
		{"prices", func(c *Client) (*Dataset, error) {
			return c.StockPrices(context.Background(), []string{"AAPL", "KO"})
		}, "/api/stock-prices", "symbols", "AAPL,KO"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != tt.path {
					t.Errorf("path = %s, want %s", r.URL.Path, tt.path)
				}
				if got := r.URL.Query().Get(tt.param); got != tt.expected {
					t.Errorf("%s = %q, want %q", tt.param, got, tt.expected)
				}
				writeJSON(w, http.StatusOK, map[string]any{
					"success": true,
					"data":    []map[string]any{{"date": "2025-01-02", "close": 101.5}},
				})
			})
			ds, err := tt.call(c)
			if err != nil {
				t.Fatalf("call: %v", err)
			}
			if len(ds.Data) != 1 || ds.Data[0]["close"] != 101.5 {
				t.Errorf("unexpected data %+v", ds.Data)
			}
		})
	}
}

func TestErrors_statusMessage(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"message field", http.StatusInternalServerError, `{"success":false,"message":"Financial AI Agent not initialized"}`, "Financial AI Agent not initialized"},
		{"error field", http.StatusBadRequest, `{"error":"bad symbol"}`, "bad symbol"},
		{"empty json", http.StatusNotFound, `{}`, "API error: 404"},
		{"not json", http.StatusBadGateway, `<html>bad gateway</html>`, "API error: 502"},
		{"empty body", http.StatusServiceUnavailable, ``, "API error: 503"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})
			_, err := c.Query(context.Background(), "q", []string{"AAPL"}, false)
			if err == nil {
				t.Fatal("expected error")
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.wantMsg)
			}
			var apiErr *Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if apiErr.Kind != KindStatus || apiErr.StatusCode != tt.status || apiErr.Op != "query" {
				t.Errorf("unexpected error fields %+v", apiErr)
			}
		})
	}
}

func TestErrors_malformed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not json")
	})
	_, err := c.Stocks(context.Background())
	if KindOf(err) != KindMalformed {
		t.Fatalf("KindOf = %v, want malformed (err=%v)", KindOf(err), err)
	}
}

func TestErrors_unavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url)
	_, err := c.Health(context.Background())
	if !IsUnavailable(err) {
		t.Fatalf("expected unavailable, got %v (%v)", KindOf(err), err)
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Err == nil {
		t.Fatal("expected the transport error to be wrapped")
	}
	if got := err.Error(); len(got) < len("backend unreachable: ") || got[:len("backend unreachable: ")] != "backend unreachable: " {
		t.Errorf("Error() = %q", got)
	}
}

func TestErrors_canceled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Health(ctx)
	if KindOf(err) != KindCanceled {
		t.Fatalf("KindOf = %v, want canceled", KindOf(err))
	}
}

func TestErrors_timeout(t *testing.T) {
	slow := func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "answer": "late"})
	}

	t.Run("client timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(slow))
		t.Cleanup(srv.Close)
		c := New(srv.URL, WithTimeout(50*time.Millisecond))
		_, err := c.Query(context.Background(), "q", []string{"AAPL"}, false)
		if KindOf(err) != KindCanceled {
			t.Fatalf("KindOf = %v (%v), want canceled", KindOf(err), err)
		}
		if IsUnavailable(err) {
			t.Error("a timeout must not report the backend unavailable")
		}
		if err.Error() != "request timed out" {
			t.Errorf("Error() = %q", err.Error())
		}
	})

	t.Run("context deadline", func(t *testing.T) {
		c := newTestClient(t, slow)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := c.Query(ctx, "q", []string{"AAPL"}, false)
		if KindOf(err) != KindCanceled {
			t.Fatalf("KindOf = %v (%v), want canceled", KindOf(err), err)
		}
	})
}

func TestResult_Err(t *testing.T) {
	if (&Result{Success: true}).Err() != nil {
		t.Error("successful result should have no error")
	}
	err := (&Result{Success: false, Message: "No symbols provided"}).Err()
	if KindOf(err) != KindApplication || err.Error() != "No symbols provided" {
		t.Errorf("unexpected error %v", err)
	}
	if (&Result{}).Err().Error() == "" {
		t.Error("failure without message should still describe itself")
	}
}

func TestKindOf_wrapped(t *testing.T) {
	err := fmt.Errorf("sending: %w", &Error{Kind: KindStatus, Message: "x"})
	if KindOf(err) != KindStatus {
		t.Errorf("KindOf = %v", KindOf(err))
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("plain error should be unknown")
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		want time.Time
	}{
		{"2025-03-04T10:11:12.345678", true, time.Date(2025, 3, 4, 10, 11, 12, 345678000, time.Local)},
		{"2025-03-04T10:11:12", true, time.Date(2025, 3, 4, 10, 11, 12, 0, time.Local)},
		{"2025-03-04T10:11:12Z", true, time.Date(2025, 3, 4, 10, 11, 12, 0, time.UTC)},
		{"", false, time.Time{}},
		{"yesterday", false, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.in)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
