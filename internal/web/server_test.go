package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/batalabs/finchat/internal/api"
	"github.com/batalabs/finchat/internal/chat"
	"github.com/batalabs/finchat/internal/config"
)

const tableAnswer = "| a | b |\n|---|---|\n| 1 | 2 |\n<script>alert(1)</script>"

// fakeAPI is a scripted backend HTTP API.
type fakeAPI struct {
	mu      sync.Mutex
	answer  string
	records []map[string]any
	failing map[string]int // endpoint -> status code
	queries []map[string]any
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "timestamp": "2025-03-04T10:11:12", "agent_initialized": true})
	})
	mux.HandleFunc("GET /api/stocks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]string{
			{"symbol": "AAPL", "name": "Apple Inc."},
			{"symbol": "MSFT", "name": "Microsoft"},
		})
	})
	mux.HandleFunc("POST /api/query", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.queries = append(f.queries, body)
		answer := f.answer
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "answer": answer, "timestamp": "2025-03-05T09:00:00"})
	})
	mux.HandleFunc("POST /api/update-data", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "done", "timestamp": "2025-03-05T09:00:00"})
	})
	dataset := func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		code := f.failing[strings.TrimPrefix(r.URL.Path, "/api/")]
		records := f.records
		f.mu.Unlock()
		if code != 0 {
			writeJSON(w, code, map[string]any{"success": false, "message": "backend exploded"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "symbol": r.URL.Query().Get("symbol"), "data": records})
	}
	mux.HandleFunc("GET /api/historical-prices", dataset)
	mux.HandleFunc("GET /api/company-news", dataset)
	mux.HandleFunc("GET /api/stock-prices", dataset)
	return mux
}

func (f *fakeAPI) lastQuery(t *testing.T) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		t.Fatal("no query reached the backend")
	}
	return f.queries[len(f.queries)-1]
}

func newTestServer(t *testing.T) (*Server, *http.ServeMux, *fakeAPI) {
	t.Helper()
	fake := &fakeAPI{
		answer:  tableAnswer,
		records: []map[string]any{{"close": 1.5, "date": "2025-01-02"}},
		failing: map[string]int{},
	}
	backend := httptest.NewServer(fake.handler())
	t.Cleanup(backend.Close)

	client := api.New(backend.URL + "/api")
	prefs := config.DefaultPreferences()
	srv, err := NewServer(func() *chat.Controller {
		return chat.New(client, chat.Options{})
	}, &prefs)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	mux := http.NewServeMux()
	srv.registerRoutes(mux)
	return srv, mux, fake
}

// browser replays the session cookie across requests.
type browser struct {
	t      *testing.T
	mux    http.Handler
	cookie *http.Cookie
}

func (b *browser) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	b.t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if b.cookie != nil {
		req.AddCookie(b.cookie)
	}
	rec := httptest.NewRecorder()
	b.mux.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			b.cookie = c
		}
	}
	return rec
}

type stateResponse struct {
	chat.View
	CollectFresh bool `json:"collect_fresh"`
}

func (b *browser) state() stateResponse {
	b.t.Helper()
	rec := b.do("GET", "/api/state", nil)
	if rec.Code != http.StatusOK {
		b.t.Fatalf("/api/state status = %d", rec.Code)
	}
	var st stateResponse
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		b.t.Fatalf("decoding state: %v", err)
	}
	return st
}

func TestIndex_setsSessionCookie(t *testing.T) {
	_, mux, _ := newTestServer(t)
	b := &browser{t: t, mux: mux}

	rec := b.do("GET", "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if b.cookie == nil || b.cookie.Value == "" {
		t.Fatal("expected a session cookie")
	}
	if !b.cookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}
	body := rec.Body.String()
	for _, want := range []string{"AAPL", "Apple Inc.", "Data last updated"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}

	// The same cookie keeps the same session.
	first := b.cookie.Value
	b.do("GET", "/", nil)
	if b.cookie.Value != first {
		t.Errorf("cookie changed from %s to %s", first, b.cookie.Value)
	}
}

func TestSuggestions_prefillDraft(t *testing.T) {
	_, mux, fake := newTestServer(t)
	b := &browser{t: t, mux: mux}

	page := b.do("GET", "/", nil).Body.String()
	if !strings.Contains(page, `href="/?draft=What%20is%20the%20current%20price`) {
		t.Error("suggestion should link to a prefilled draft")
	}
	if strings.Contains(page, "autofocus") {
		t.Error("empty draft should not steal focus")
	}

	rec := b.do("GET", "/?draft="+url.QueryEscape("Compare <b>AAPL</b>"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "autofocus>Compare &lt;b&gt;AAPL&lt;/b&gt;</textarea>") {
		t.Errorf("draft not placed in the message box:\n%s", body)
	}
	fake.mu.Lock()
	n := len(fake.queries)
	fake.mu.Unlock()
	if n != 0 {
		t.Errorf("choosing a suggestion sent %d queries", n)
	}

	long := strings.Repeat("x", MaxMessageLength+1)
	if strings.Contains(b.do("GET", "/?draft="+long, nil).Body.String(), long) {
		t.Error("oversized draft should be dropped")
	}
}

func TestUnknownPath(t *testing.T) {
	_, mux, _ := newTestServer(t)
	b := &browser{t: t, mux: mux}
	if rec := b.do("GET", "/nope", nil); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestSessions_isolated(t *testing.T) {
	srv, mux, _ := newTestServer(t)
	alice := &browser{t: t, mux: mux}
	bob := &browser{t: t, mux: mux}

	alice.do("GET", "/", nil)
	bob.do("GET", "/", nil)
	if alice.cookie.Value == bob.cookie.Value {
		t.Fatal("two browsers share a session ID")
	}

	rec := alice.do("POST", "/select", url.Values{"symbol": {"AAPL"}})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("select status = %d, want 303", rec.Code)
	}

	if got := alice.state().Selection; len(got) != 1 || got[0] != "AAPL" {
		t.Errorf("alice selection = %v, want [AAPL]", got)
	}
	if got := bob.state().Selection; len(got) != 0 {
		t.Errorf("bob selection = %v, want empty", got)
	}
	if n := srv.sessions.Len(); n != 2 {
		t.Errorf("sessions = %d, want 2", n)
	}
}

func TestSelectAndClear(t *testing.T) {
	_, mux, _ := newTestServer(t)
	b := &browser{t: t, mux: mux}

	b.do("POST", "/select", url.Values{"symbol": {"AAPL"}})
	b.do("POST", "/select", url.Values{"symbol": {"MSFT"}})
	b.do("POST", "/select", url.Values{"symbol": {"AAPL"}})
	if got := b.state().Selection; len(got) != 1 || got[0] != "MSFT" {
		t.Fatalf("selection = %v, want [MSFT]", got)
	}

	rec := b.do("POST", "/clear", url.Values{})
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
		t.Errorf("clear: status = %d location = %q", rec.Code, rec.Header().Get("Location"))
	}
	if got := b.state().Selection; len(got) != 0 {
		t.Errorf("selection after clear = %v", got)
	}
}

func TestSend_rendersSanitizedAnswer(t *testing.T) {
	_, mux, fake := newTestServer(t)
	b := &browser{t: t, mux: mux}

	b.do("POST", "/select", url.Values{"symbol": {"AAPL"}})
	rec := b.do("POST", "/send", url.Values{"message": {"<b>compare</b>"}, "fresh": {"on"}})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("send status = %d, want 303", rec.Code)
	}

	q := fake.lastQuery(t)
	if q["query"] != "<b>compare</b>" {
		t.Errorf("query = %v", q["query"])
	}
	if q["collect_fresh"] != true {
		t.Errorf("collect_fresh = %v, want true", q["collect_fresh"])
	}

	page := b.do("GET", "/", nil).Body.String()
	if !strings.Contains(page, "&lt;b&gt;compare&lt;/b&gt;") {
		t.Error("user text should be escaped")
	}
	if strings.Contains(page, "<b>compare</b>") {
		t.Error("user text rendered as markup")
	}
	if !strings.Contains(page, "<th>a</th>") || !strings.Contains(page, "<td>2</td>") {
		t.Error("assistant table missing from page")
	}
	if strings.Contains(page, "<script>alert") {
		t.Error("script survived sanitizing")
	}
	if !strings.Contains(page, "Mar 5, 2025") {
		t.Error("freshness label not updated")
	}
	if !strings.Contains(page, `name="fresh" value="on" checked`) {
		t.Error("fresh checkbox should stay ticked")
	}
}

func TestSend_withoutSelectionAlerts(t *testing.T) {
	_, mux, fake := newTestServer(t)
	b := &browser{t: t, mux: mux}

	b.do("POST", "/send", url.Values{"message": {"hello"}})
	if len(fake.queries) != 0 {
		t.Fatal("query sent without a selection")
	}
	st := b.state()
	last := st.Messages[len(st.Messages)-1]
	if last.Text != chat.MsgSendNoSelection || last.Class != "alert alert-error" {
		t.Errorf("last message = %+v", last)
	}
}

func TestSend_messageTooLong(t *testing.T) {
	_, mux, _ := newTestServer(t)
	b := &browser{t: t, mux: mux}
	rec := b.do("POST", "/send", url.Values{"message": {strings.Repeat("x", MaxMessageLength+1)}})
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestState_sanitizesHTML(t *testing.T) {
	_, mux, _ := newTestServer(t)
	b := &browser{t: t, mux: mux}

	b.do("POST", "/select", url.Values{"symbol": {"MSFT"}})
	b.do("POST", "/send", url.Values{"message": {"<i>q</i>"}})
	st := b.state()
	if len(st.Messages) < 2 {
		t.Fatalf("messages = %d, want at least 2", len(st.Messages))
	}
	for _, m := range st.Messages {
		if strings.Contains(m.HTML, "<script") || strings.Contains(m.HTML, "<i>") {
			t.Errorf("unsafe html in %s message: %q", m.Role, m.HTML)
		}
	}
	if st.CollectFresh {
		t.Error("collect_fresh should follow the unticked checkbox")
	}
}

func TestFreshToggle(t *testing.T) {
	_, mux, _ := newTestServer(t)
	b := &browser{t: t, mux: mux}

	b.do("POST", "/fresh", url.Values{"fresh": {"on"}})
	if !b.state().CollectFresh {
		t.Error("fresh not recorded")
	}
	b.do("POST", "/fresh", url.Values{})
	if b.state().CollectFresh {
		t.Error("fresh not cleared")
	}
}

func TestUpdate(t *testing.T) {
	_, mux, _ := newTestServer(t)
	b := &browser{t: t, mux: mux}

	b.do("POST", "/select", url.Values{"symbol": {"AAPL"}})
	rec := b.do("POST", "/update", url.Values{})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	st := b.state()
	last := st.Messages[len(st.Messages)-1]
	if last.Text != "Data successfully updated for AAPL." {
		t.Errorf("last message = %q", last.Text)
	}
}

func TestExport_historical(t *testing.T) {
	_, mux, _ := newTestServer(t)
	b := &browser{t: t, mux: mux}

	rec := b.do("GET", "/export/historical.xlsx?symbol=aapl", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "historical-aapl.xlsx") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	f, err := excelize.OpenReader(rec.Body)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) != 1 {
		t.Fatalf("sheets = %v", sheets)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 2 || strings.Join(rows[0], ",") != "date,close" || rows[1][0] != "2025-01-02" {
		t.Errorf("rows = %v", rows)
	}
}

func TestExport_errors(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		setup   func(*fakeAPI)
		want    int
		contain string
	}{
		{
			name:   "missing symbol",
			target: "/export/historical.xlsx",
			want:   http.StatusBadRequest,
		},
		{
			name:   "no records",
			target: "/export/news.xlsx?symbol=MSFT",
			setup:  func(f *fakeAPI) { f.records = nil },
			want:   http.StatusNotFound,
		},
		{
			name:    "backend error",
			target:  "/export/prices.xlsx?symbols=AAPL,MSFT",
			setup:   func(f *fakeAPI) { f.failing["stock-prices"] = http.StatusInternalServerError },
			want:    http.StatusBadGateway,
			contain: "backend exploded",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mux, fake := newTestServer(t)
			if tt.setup != nil {
				tt.setup(fake)
			}
			b := &browser{t: t, mux: mux}
			rec := b.do("GET", tt.target, nil)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %q)", rec.Code, tt.want, rec.Body.String())
			}
			if tt.contain != "" && !strings.Contains(rec.Body.String(), tt.contain) {
				t.Errorf("body %q missing %q", rec.Body.String(), tt.contain)
			}
		})
	}
}

func TestHealthz(t *testing.T) {
	_, mux, _ := newTestServer(t)
	b := &browser{t: t, mux: mux}
	rec := b.do("GET", "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out map[string]any
	json.NewDecoder(rec.Body).Decode(&out)
	if out["status"] != "ok" {
		t.Errorf("status field = %v", out["status"])
	}
	if b.cookie != nil {
		t.Error("healthz should not create a session")
	}
}

func TestStatic(t *testing.T) {
	_, mux, _ := newTestServer(t)
	b := &browser{t: t, mux: mux}
	rec := b.do("GET", "/static/style.css", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), ".bot-message") {
		t.Error("stylesheet content missing")
	}
}

func TestSessionStore_sweepsIdle(t *testing.T) {
	st := newSessionStore()
	now := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return now }

	st.add("old", &session{})
	now = now.Add(SessionIdle + time.Minute)
	st.add("new", &session{})

	if st.get("old") != nil {
		t.Error("idle session was kept")
	}
	if st.get("new") == nil {
		t.Error("fresh session was dropped")
	}
}

func TestStartAndShutdown(t *testing.T) {
	srv, _, _ := newTestServer(t)
	srv.prefs.BindAddress = "127.0.0.1"
	srv.prefs.Port = 0
	srv.SetQuiet(true)

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	port := srv.Port()
	if port == 0 {
		t.Fatal("port not assigned")
	}
	resp, err := http.Get(srv.URL() + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := <-errc; err != nil {
		t.Errorf("Start returned %v", err)
	}
}

func TestStart_usesPreferredPortOrFallsBack(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer taken.Close()
	busyPort := taken.Addr().(*net.TCPAddr).Port

	srv, _, _ := newTestServer(t)
	srv.prefs.BindAddress = "127.0.0.1"
	srv.prefs.Port = busyPort
	srv.SetQuiet(true)

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()
	if port := srv.Port(); port == busyPort || port == 0 {
		t.Errorf("port = %d, want a fallback other than %d", port, busyPort)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := <-errc; err != nil {
		t.Errorf("Start returned %v", err)
	}
}

func TestShutdown_beforeStart(t *testing.T) {
	srv, _, _ := newTestServer(t)
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown = %v, want nil", err)
	}
}
