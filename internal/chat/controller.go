// Package chat holds the application state of one chat session and the
// operations the user interfaces drive. It performs no I/O of its own beyond
// calls to the Backend and produces pure View snapshots for rendering.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/batalabs/finchat/internal/api"
	"github.com/batalabs/finchat/internal/domain"
	"github.com/batalabs/finchat/internal/render"
)

// User-facing strings.
const (
	MsgBackendUnavailable = "Could not connect to the backend API. Please make sure the server is running."
	MsgStocksLoading      = "Loading stocks..."
	MsgStocksFailed       = "Failed to load stocks. Please reload the page."
	MsgSendUnavailable    = "Cannot send messages because the API is unavailable."
	MsgSendNoSelection    = "Please select at least one stock from the sidebar before asking questions."
	MsgQueryFailed        = "Failed to get response from AI."
	MsgUpdateUnavailable  = "Cannot update data because the API is unavailable."
	MsgUpdateNoSelection  = "Please select at least one stock before updating data."
	MsgUpdateFailed       = "Failed to update data."
	FreshnessNever        = "Data last updated: Never"
)

// FreshnessLayout formats the data freshness timestamp in local time.
const FreshnessLayout = "Jan 2, 2006, 3:04:05 PM"

var (
	// ErrBusy is returned when an action of the same kind is already running.
	ErrBusy = errors.New("an identical request is already in progress")
	// ErrUnhealthy is returned when the backend is known to be unavailable.
	ErrUnhealthy = errors.New("backend is unavailable")
	// ErrNoSelection is returned when an action needs at least one symbol.
	ErrNoSelection = errors.New("no stocks selected")
)

// DefaultSuggestions are offered as starter questions.
var DefaultSuggestions = []string{
	"What is the current price of the selected stocks?",
	"Compare the recent performance of the selected stocks.",
	"What are the latest news headlines for the selected companies?",
	"Summarize the key financial metrics of the selected stocks.",
}

// Backend is the subset of the API gateway the controller uses.
// *api.Client satisfies it.
type Backend interface {
	Health(ctx context.Context) (*api.HealthStatus, error)
	Stocks(ctx context.Context) ([]domain.Stock, error)
	UpdateData(ctx context.Context, symbols []string, opts api.UpdateOptions) (*api.Result, error)
	Query(ctx context.Context, query string, symbols []string, collectFresh bool) (*api.Result, error)
	HistoricalPrices(ctx context.Context, symbol string) (*api.Dataset, error)
	CompanyNews(ctx context.Context, symbol string) (*api.Dataset, error)
	StockPrices(ctx context.Context, symbols []string) (*api.Dataset, error)
}

// Logger receives diagnostic lines. *config.Logger satisfies it.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Options configures a Controller. Zero fields take defaults.
type Options struct {
	Logger        Logger
	Now           func() time.Time
	ErrorAlert    time.Duration // default 5s
	SuccessAlert  time.Duration // default 3s
	Suggestions   []string
	UpdateOptions api.UpdateOptions
}

type action int

const (
	actionSend action = iota
	actionUpdate
	actionHealth
)

// Controller owns the state of one chat session. It is safe for concurrent
// use; backend calls are made without the lock held.
type Controller struct {
	backend      Backend
	log          Logger
	now          func() time.Time
	errorAlert   time.Duration
	successAlert time.Duration
	suggestions  []string
	updateOpts   api.UpdateOptions

	mu           sync.Mutex
	stocks       []domain.Stock
	stocksStatus string
	selection    domain.Selection
	messages     []domain.Message
	healthy      bool
	lastUpdated  time.Time
	busy         map[action]bool
}

// New creates a controller over backend.
func New(backend Backend, opts Options) *Controller {
	c := &Controller{
		backend:      backend,
		log:          opts.Logger,
		now:          opts.Now,
		errorAlert:   opts.ErrorAlert,
		successAlert: opts.SuccessAlert,
		suggestions:  opts.Suggestions,
		updateOpts:   opts.UpdateOptions,
		busy:         make(map[action]bool),
	}
	if c.log == nil {
		c.log = nopLogger{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.errorAlert <= 0 {
		c.errorAlert = 5 * time.Second
	}
	if c.successAlert <= 0 {
		c.successAlert = 3 * time.Second
	}
	if c.suggestions == nil {
		c.suggestions = DefaultSuggestions
	}
	return c
}

// Init loads the stock list and then checks backend health.
func (c *Controller) Init(ctx context.Context) {
	if err := c.LoadStocks(ctx); err != nil {
		c.log.Printf("chat: loading stocks: %v", err)
	}
	if err := c.CheckHealth(ctx); err != nil {
		c.log.Printf("chat: health check: %v", err)
	}
}

// CheckHealth asks the backend for its status. Anything other than "ok"
// marks the backend unavailable and disables submission.
func (c *Controller) CheckHealth(ctx context.Context) error {
	if !c.begin(actionHealth) {
		return ErrBusy
	}
	h, err := c.backend.Health(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.busy, actionHealth)

	if err == nil && !h.OK() {
		status := ""
		if h != nil {
			status = h.Status
		}
		err = fmt.Errorf("backend reported status %q", status)
	}
	if err != nil {
		c.healthy = false
		c.alertLocked(domain.AlertError, MsgBackendUnavailable)
		return err
	}
	c.healthy = true
	c.touchLocked(h.Timestamp)
	c.log.Printf("chat: backend healthy (agent initialized: %v)", h.AgentInitialized)
	return nil
}

// LoadStocks fetches the list of selectable symbols.
func (c *Controller) LoadStocks(ctx context.Context) error {
	c.mu.Lock()
	c.stocksStatus = MsgStocksLoading
	c.mu.Unlock()

	stocks, err := c.backend.Stocks(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.stocksStatus = MsgStocksFailed
		return fmt.Errorf("loading stocks: %w", err)
	}
	c.stocks = stocks
	c.stocksStatus = ""
	return nil
}

// Toggle flips the selection state of symbol and reports whether it is
// selected afterwards. Symbols outside a loaded stock list are ignored.
func (c *Controller) Toggle(symbol string) bool {
	symbol = strings.TrimSpace(symbol)
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.stocks) > 0 && !c.knownLocked(symbol) {
		return false
	}
	selected := c.selection.Toggle(symbol)
	c.log.Printf("chat: selected stocks: [%s]", c.selection.String())
	return selected
}

// ClearSelection deselects every symbol.
func (c *Controller) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selection.Clear()
	c.log.Printf("chat: selection cleared")
}

// Selection returns the selected symbols in selection order.
func (c *Controller) Selection() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection.Symbols()
}

// Healthy reports whether the last health check succeeded and no
// connectivity failure has happened since.
func (c *Controller) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthy
}

// Notify shows a transient success alert.
func (c *Controller) Notify(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alertLocked(domain.AlertSuccess, text)
}

// Send submits text as a query about the selected stocks. Blank text is
// ignored. Validation failures and backend errors are reported to the user
// as alerts and also returned.
func (c *Controller) Send(ctx context.Context, text string, collectFresh bool) error {
	q, err := c.Accept(text, collectFresh)
	if err != nil || q == nil {
		return err
	}
	return q.Run(ctx)
}

// PendingQuery is a query that passed validation and is already in the
// transcript, waiting to be sent.
type PendingQuery struct {
	c       *Controller
	text    string
	symbols []string
	fresh   bool
}

// Accept validates text and records it as a user message without calling
// the backend. It returns a nil query for blank text. On success the send
// action stays busy until Run is called.
func (c *Controller) Accept(text string, collectFresh bool) (*PendingQuery, error) {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy[actionSend] {
		return nil, ErrBusy
	}
	if !c.healthy {
		c.alertLocked(domain.AlertError, MsgSendUnavailable)
		return nil, ErrUnhealthy
	}
	if text == "" {
		return nil, nil
	}
	if c.selection.Len() == 0 {
		c.alertLocked(domain.AlertError, MsgSendNoSelection)
		return nil, ErrNoSelection
	}
	c.appendLocked(domain.RoleUser, text)
	c.busy[actionSend] = true
	return &PendingQuery{c: c, text: text, symbols: c.selection.Symbols(), fresh: collectFresh}, nil
}

// Run sends the accepted query and records the answer or the failure.
func (q *PendingQuery) Run(ctx context.Context) error {
	c := q.c
	c.log.Printf("chat: query for %v (fresh=%v)", q.symbols, q.fresh)
	res, err := c.backend.Query(ctx, q.text, q.symbols, q.fresh)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.busy, actionSend)

	if err != nil {
		c.failLocked(err)
		c.alertLocked(domain.AlertError, "Error: "+err.Error())
		return err
	}
	if !res.Success {
		c.alertLocked(domain.AlertError, orDefault(res.Message, MsgQueryFailed))
		return res.Err()
	}
	c.appendLocked(domain.RoleAssistant, res.Answer)
	c.touchLocked(res.Timestamp)
	return nil
}

// UpdateData asks the backend to refresh data for the selected stocks.
func (c *Controller) UpdateData(ctx context.Context) error {
	c.mu.Lock()
	if c.busy[actionUpdate] {
		c.mu.Unlock()
		return ErrBusy
	}
	if !c.healthy {
		c.alertLocked(domain.AlertError, MsgUpdateUnavailable)
		c.mu.Unlock()
		return ErrUnhealthy
	}
	if c.selection.Len() == 0 {
		c.alertLocked(domain.AlertError, MsgUpdateNoSelection)
		c.mu.Unlock()
		return ErrNoSelection
	}
	symbols := c.selection.Symbols()
	joined := strings.Join(symbols, ", ")
	c.appendLocked(domain.RoleAssistant, "Updating data for "+joined+"...")
	c.busy[actionUpdate] = true
	c.mu.Unlock()

	c.log.Printf("chat: updating data for %v", symbols)
	res, err := c.backend.UpdateData(ctx, symbols, c.updateOpts)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.busy, actionUpdate)

	if err != nil {
		c.failLocked(err)
		c.alertLocked(domain.AlertError, "Error updating data: "+err.Error())
		return err
	}
	if !res.Success {
		c.alertLocked(domain.AlertError, orDefault(res.Message, MsgUpdateFailed))
		return res.Err()
	}
	c.appendLocked(domain.RoleAssistant, "Data successfully updated for "+joined+".")
	c.touchLocked(res.Timestamp)
	return nil
}

// HistoricalPrices looks up the price history of symbol.
func (c *Controller) HistoricalPrices(ctx context.Context, symbol string) (*api.Dataset, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, errors.New("a symbol is required")
	}
	return c.lookup("historical prices", func() (*api.Dataset, error) {
		return c.backend.HistoricalPrices(ctx, symbol)
	})
}

// CompanyNews looks up the latest news for symbol.
func (c *Controller) CompanyNews(ctx context.Context, symbol string) (*api.Dataset, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, errors.New("a symbol is required")
	}
	return c.lookup("company news", func() (*api.Dataset, error) {
		return c.backend.CompanyNews(ctx, symbol)
	})
}

// StockPrices looks up the latest prices of symbols. With no symbols the
// current selection is used; with an empty selection the backend returns
// every symbol it knows.
func (c *Controller) StockPrices(ctx context.Context, symbols []string) (*api.Dataset, error) {
	var norm []string
	for _, s := range symbols {
		if s = normalizeSymbol(s); s != "" {
			norm = append(norm, s)
		}
	}
	if len(norm) == 0 {
		norm = c.Selection()
	}
	return c.lookup("stock prices", func() (*api.Dataset, error) {
		return c.backend.StockPrices(ctx, norm)
	})
}

func (c *Controller) lookup(what string, call func() (*api.Dataset, error)) (*api.Dataset, error) {
	ds, err := call()
	if err != nil {
		if api.IsUnavailable(err) {
			c.mu.Lock()
			c.failLocked(err)
			c.mu.Unlock()
		}
		return nil, fmt.Errorf("fetching %s: %w", what, err)
	}
	if !ds.Success {
		msg := orDefault(ds.Message, "no "+what+" returned")
		return nil, &api.Error{Kind: api.KindApplication, Message: msg}
	}
	return ds, nil
}

// begin marks a kind of action as running. It reports false if one is
// already in flight.
func (c *Controller) begin(a action) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy[a] {
		return false
	}
	c.busy[a] = true
	return true
}

// failLocked marks the backend unavailable after a connectivity failure so
// submission stays disabled until a health check succeeds.
func (c *Controller) failLocked(err error) {
	if api.IsUnavailable(err) {
		c.healthy = false
		c.log.Printf("chat: backend unreachable: %v", err)
	}
}

func (c *Controller) appendLocked(role domain.Role, text string) {
	c.messages = append(c.messages, domain.Message{
		ID:        domain.NewUUID(),
		Role:      role,
		Text:      text,
		CreatedAt: c.now(),
	})
}

func (c *Controller) alertLocked(level domain.AlertLevel, text string) {
	d := c.errorAlert
	if level == domain.AlertSuccess {
		d = c.successAlert
	}
	now := c.now()
	c.messages = append(c.messages, domain.Message{
		ID:        domain.NewUUID(),
		Role:      domain.RoleAlert,
		Level:     level,
		Text:      text,
		CreatedAt: now,
		ExpiresAt: now.Add(d),
	})
	c.log.Printf("chat: alert (%s): %s", level, text)
}

// touchLocked records a backend timestamp as the data freshness time.
// Unparseable or empty timestamps leave it unchanged.
func (c *Controller) touchLocked(ts string) {
	if t, ok := api.ParseTimestamp(ts); ok {
		c.lastUpdated = t
	}
}

func (c *Controller) knownLocked(symbol string) bool {
	for _, s := range c.stocks {
		if s.Symbol == symbol {
			return true
		}
	}
	return false
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// StockView is one entry of the stock list.
type StockView struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Selected bool   `json:"selected"`
}

// MessageView is one visible chat entry. HTML is the assistant markup for
// assistant messages and the raw text otherwise; it is not sanitized.
type MessageView struct {
	ID        string            `json:"id"`
	Role      domain.Role       `json:"role"`
	Level     domain.AlertLevel `json:"level,omitempty"`
	Class     string            `json:"class"`
	Text      string            `json:"text"`
	HTML      string            `json:"html"`
	CreatedAt time.Time         `json:"created_at"`
}

// View is a snapshot of everything a UI needs to draw the session.
type View struct {
	Stocks         []StockView   `json:"stocks"`
	StocksStatus   string        `json:"stocks_status,omitempty"`
	Selection      []string      `json:"selection"`
	Messages       []MessageView `json:"messages"`
	Loading        bool          `json:"loading"`
	Healthy        bool          `json:"healthy"`
	Freshness      string        `json:"freshness"`
	SendDisabled   bool          `json:"send_disabled"`
	UpdateDisabled bool          `json:"update_disabled"`
	Suggestions    []string      `json:"suggestions"`
}

// Snapshot returns the current render instructions. Expired alerts are left
// out.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()

	v := View{
		Stocks:         make([]StockView, 0, len(c.stocks)),
		StocksStatus:   c.stocksStatus,
		Selection:      c.selection.Symbols(),
		Messages:       make([]MessageView, 0, len(c.messages)),
		Loading:        len(c.busy) > 0,
		Healthy:        c.healthy,
		Freshness:      FreshnessNever,
		SendDisabled:   !c.healthy || c.busy[actionSend],
		UpdateDisabled: !c.healthy || c.busy[actionUpdate],
		Suggestions:    append([]string(nil), c.suggestions...),
	}
	for _, s := range c.stocks {
		v.Stocks = append(v.Stocks, StockView{Symbol: s.Symbol, Name: s.Name, Selected: c.selection.Has(s.Symbol)})
	}
	for _, m := range c.messages {
		if m.Expired(now) {
			continue
		}
		v.Messages = append(v.Messages, MessageView{
			ID:        m.ID,
			Role:      m.Role,
			Level:     m.Level,
			Class:     MessageClass(m),
			Text:      m.Text,
			HTML:      render.Message(m.Role, m.Text),
			CreatedAt: m.CreatedAt,
		})
	}
	if !c.lastUpdated.IsZero() {
		v.Freshness = "Data last updated: " + c.lastUpdated.Local().Format(FreshnessLayout)
	}
	return v
}

// MessageClass returns the CSS class list used to style m.
func MessageClass(m domain.Message) string {
	switch m.Role {
	case domain.RoleUser:
		return "message user-message"
	case domain.RoleAlert:
		if m.Level == domain.AlertSuccess {
			return "alert alert-success"
		}
		return "alert alert-error"
	default:
		return "message bot-message"
	}
}
