// Package web serves the chat as a server-rendered browser UI. Every browser
// gets its own chat.Controller, keyed by a session cookie.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/batalabs/finchat/internal/chat"
	"github.com/batalabs/finchat/internal/config"
	"github.com/batalabs/finchat/internal/domain"
)

//go:embed templates/* static/*
var embeddedFS embed.FS

const (
	// ReadHeaderTimeout bounds how long a client may take to send headers.
	ReadHeaderTimeout = 10 * time.Second

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout = 60 * time.Second

	// MaxRequestBodySize is the maximum size of POST request bodies (64KB).
	MaxRequestBodySize = 64 * 1024

	// MaxMessageLength is the maximum length of a chat message (8KB).
	MaxMessageLength = 8 * 1024
)

// ControllerFactory creates the controller for a new browser session.
type ControllerFactory func() *chat.Controller

// Logger receives diagnostic lines. *config.Logger satisfies it.
type Logger interface {
	Printf(format string, args ...any)
}

// Server is the browser adapter.
type Server struct {
	newController ControllerFactory
	prefs         *config.Preferences
	log           Logger
	policy        *bluemonday.Policy
	page          *template.Template
	sessions      *sessionStore

	port   int
	ready  chan struct{} // closed once port is assigned in Start()
	server *http.Server
	quiet  bool
}

// NewServer creates a browser adapter. prefs supplies the bind address and
// the default of the fresh-data checkbox.
func NewServer(factory ControllerFactory, prefs *config.Preferences) (*Server, error) {
	tmpl, err := template.ParseFS(embeddedFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	if prefs == nil {
		p := config.DefaultPreferences()
		prefs = &p
	}
	return &Server{
		newController: factory,
		prefs:         prefs,
		log:           nopLogger{},
		policy:        bluemonday.UGCPolicy(),
		page:          tmpl,
		sessions:      newSessionStore(),
		ready:         make(chan struct{}),
	}, nil
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// SetLogger directs diagnostics to l.
func (s *Server) SetLogger(l Logger) {
	if l != nil {
		s.log = l
	}
}

// SetQuiet suppresses the startup line on stderr.
func (s *Server) SetQuiet(quiet bool) {
	s.quiet = quiet
}

// Start binds the preferences' listen address and serves until Shutdown. If
// the port is taken it falls back to an OS-assigned port.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.prefs.ListenAddr())
	if err != nil {
		// Port in use -- let OS assign
		ln, err = net.Listen("tcp", net.JoinHostPort(s.prefs.BindAddress, "0"))
		if err != nil {
			return fmt.Errorf("listening: %w", err)
		}
	}
	s.port = ln.Addr().(*net.TCPAddr).Port
	if !s.quiet {
		fmt.Fprintf(os.Stderr, "finchat web UI listening on %s\n", s.URL())
	}
	s.log.Printf("web: listening on port %d", s.port)

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: ReadHeaderTimeout,
		IdleTimeout:       IdleTimeout,
	}
	close(s.ready) // signal that port is assigned

	if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Port returns the actual listening port. Blocks until Start() has bound the
// listener and assigned the port.
func (s *Server) Port() int {
	<-s.ready
	return s.port
}

// URL returns the address browsers should open.
func (s *Server) URL() string {
	host := s.prefs.BindAddress
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(s.Port()))
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	select {
	case <-s.ready:
	default:
		return nil
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	static, _ := fs.Sub(embeddedFS, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /select", s.handleSelect)
	mux.HandleFunc("POST /clear", s.handleClear)
	mux.HandleFunc("POST /send", s.handleSend)
	mux.HandleFunc("POST /update", s.handleUpdate)
	mux.HandleFunc("POST /health", s.handleRecheck)
	mux.HandleFunc("POST /fresh", s.handleFresh)
	mux.HandleFunc("GET /export/historical.xlsx", s.handleExportHistorical)
	mux.HandleFunc("GET /export/news.xlsx", s.handleExportNews)
	mux.HandleFunc("GET /export/prices.xlsx", s.handleExportPrices)
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	data := s.pageData(sess)
	if draft := r.URL.Query().Get("draft"); len(draft) <= MaxMessageLength {
		data.Draft = draft
	}
	var buf strings.Builder
	if err := s.page.ExecuteTemplate(&buf, "index.html", data); err != nil {
		s.log.Printf("web: render page: %v", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	fmt.Fprint(w, buf.String())
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	})
}

// handleState returns the session snapshot with assistant HTML sanitized.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	v := sess.ctrl.Snapshot()
	for i := range v.Messages {
		v.Messages[i].HTML = s.messageHTML(v.Messages[i])
	}
	writeJSON(w, http.StatusOK, struct {
		chat.View
		CollectFresh bool `json:"collect_fresh"`
	}{v, sess.Fresh()})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if !s.parseForm(w, r) {
		return
	}
	for _, sym := range r.PostForm["symbol"] {
		sess.ctrl.Toggle(sym)
	}
	redirectHome(w, r)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.session(w, r).ctrl.ClearSelection()
	redirectHome(w, r)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if !s.parseForm(w, r) {
		return
	}
	msg := r.PostForm.Get("message")
	if len(msg) > MaxMessageLength {
		http.Error(w, "message too long", http.StatusRequestEntityTooLarge)
		return
	}
	fresh := checkbox(r.PostForm.Get("fresh"))
	sess.SetFresh(fresh)
	if err := sess.ctrl.Send(r.Context(), msg, fresh); err != nil {
		s.log.Printf("web: send: %v", err)
	}
	redirectHome(w, r)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if err := s.session(w, r).ctrl.UpdateData(r.Context()); err != nil {
		s.log.Printf("web: update data: %v", err)
	}
	redirectHome(w, r)
}

func (s *Server) handleRecheck(w http.ResponseWriter, r *http.Request) {
	if err := s.session(w, r).ctrl.CheckHealth(r.Context()); err != nil {
		s.log.Printf("web: health check: %v", err)
	}
	redirectHome(w, r)
}

func (s *Server) handleFresh(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if !s.parseForm(w, r) {
		return
	}
	sess.SetFresh(checkbox(r.PostForm.Get("fresh")))
	redirectHome(w, r)
}

// ---------------------------------------------------------------------------
// Page rendering
// ---------------------------------------------------------------------------

type pageMessage struct {
	Class string
	Rich  bool          // body is sanitized assistant HTML
	Text  string        // escaped by the template when !Rich
	HTML  template.HTML // sanitized markup when Rich
}

type pageData struct {
	View         chat.View
	Messages     []pageMessage
	CollectFresh bool
	Refresh      bool
	Draft        string // prefilled message box text
}

func (s *Server) pageData(sess *session) pageData {
	v := sess.ctrl.Snapshot()
	msgs := make([]pageMessage, 0, len(v.Messages))
	for _, m := range v.Messages {
		pm := pageMessage{Class: m.Class, Text: m.Text}
		if m.Role == domain.RoleAssistant {
			pm.Rich = true
			pm.HTML = template.HTML(s.messageHTML(m))
		}
		msgs = append(msgs, pm)
	}
	return pageData{
		View:         v,
		Messages:     msgs,
		CollectFresh: sess.Fresh(),
		Refresh:      v.Loading,
	}
}

// messageHTML returns markup safe to insert into the page: sanitized
// assistant HTML, escaped text otherwise.
func (s *Server) messageHTML(m chat.MessageView) string {
	if m.Role == domain.RoleAssistant {
		return s.policy.Sanitize(m.HTML)
	}
	return template.HTMLEscapeString(m.Text)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *Server) parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := r.ParseForm(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request too large", http.StatusRequestEntityTooLarge)
			return false
		}
		http.Error(w, "invalid form", http.StatusBadRequest)
		return false
	}
	return true
}

func checkbox(v string) bool {
	b, err := config.ParseBoolish(strings.TrimSpace(v))
	return err == nil && b
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "web: write json response: %v\n", err)
	}
}
