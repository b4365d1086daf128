package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/batalabs/finchat/internal/api"
	"github.com/batalabs/finchat/internal/chat"
	"github.com/batalabs/finchat/internal/config"
	"github.com/batalabs/finchat/internal/domain"
)

// ---------------------------------------------------------------------------
// Bubble Tea message types
// ---------------------------------------------------------------------------

// InitDoneMsg is delivered once the stock list and health check finish.
type InitDoneMsg struct{}

// ActionDoneMsg reports the end of a controller action.
type ActionDoneMsg struct {
	Action string
	Err    error
}

// DatasetMsg carries a lookup result.
type DatasetMsg struct {
	Title   string
	Dataset *api.Dataset
	Err     error
}

// ExportDoneMsg reports a finished spreadsheet export.
type ExportDoneMsg struct {
	Path string
	Err  error
}

// Model is the terminal chat UI. It is a thin view over a chat.Controller:
// every state change goes through the controller and new transcript entries
// are printed to the terminal scrollback once.
type Model struct {
	ctrl    *chat.Controller
	prefs   config.Preferences
	version string

	width  int
	height int

	input       string
	inputCursor int

	history      []string
	historyIdx   int
	historyDraft string

	spinner spinner.Model
	running map[string]bool // in-flight actions by name

	fresh      bool
	healthy    bool
	freshness  string
	lastAnswer string
	printed    map[string]bool // message IDs already in scrollback

	// Autocomplete state
	completions   []string
	completionIdx int
	completionOn  bool

	stockPicker  *StockPicker
	configPicker *ConfigPicker

	// Paste detection: rapid keystrokes (< 5ms apart) indicate pasted text.
	lastKeypressTime time.Time
}

// InitialModel creates the initial Bubble Tea model.
func InitialModel(ctrl *chat.Controller, prefs config.Preferences, version string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return Model{
		ctrl:       ctrl,
		prefs:      prefs,
		version:    version,
		spinner:    sp,
		historyIdx: -1,
		running:    map[string]bool{"init": true},
		fresh:      prefs.CollectFresh,
		freshness:  chat.FreshnessNever,
		printed:    make(map[string]bool),
	}
}

// Init prints the banner and starts the controller's startup sequence.
func (m Model) Init() tea.Cmd {
	ctrl := m.ctrl
	return tea.Batch(
		PrintToScrollback(WelcomeStyle.Render("finchat: ask about your stocks. /help lists commands, Ctrl+S picks stocks.")),
		m.spinner.Tick,
		func() tea.Msg {
			ctrl.Init(context.Background())
			return InitDoneMsg{}
		},
	)
}

// Update handles Bubble Tea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case PasteMsg:
		return m.handlePaste(msg)

	case ClipboardWriteMsg:
		if msg.Err != nil {
			return m, PrintToScrollback(m.renderError("Copy failed: " + msg.Err.Error()))
		}
		return m, PrintToScrollback(FooterMeta.Render("Copied to clipboard."))

	case InitDoneMsg:
		delete(m.running, "init")
		v := m.ctrl.Snapshot()
		cmds := []tea.Cmd{m.flush()}
		if v.StocksStatus != "" {
			cmds = append(cmds, PrintToScrollback(m.renderError(v.StocksStatus)))
		} else {
			cmds = append(cmds, PrintToScrollback(FooterMeta.Render(fmt.Sprintf("%d stocks available.", len(v.Stocks)))))
		}
		return m, tea.Batch(cmds...)

	case ActionDoneMsg:
		delete(m.running, msg.Action)
		cmd := m.flush()
		if errors.Is(msg.Err, chat.ErrBusy) {
			cmd = tea.Batch(cmd, PrintToScrollback(FooterMeta.Render("Still working on the previous request...")))
		}
		return m, cmd

	case DatasetMsg:
		delete(m.running, "lookup")
		if msg.Err != nil {
			cmd := m.flush()
			return m, tea.Batch(cmd, PrintToScrollback(m.renderError(msg.Err.Error())))
		}
		return m, PrintToScrollback(FormatDataset(msg.Title, msg.Dataset, m.width))

	case ExportDoneMsg:
		delete(m.running, "export")
		if msg.Err != nil {
			cmd := m.flush()
			return m, tea.Batch(cmd, PrintToScrollback(m.renderError("Export failed: "+msg.Err.Error())))
		}
		return m, PrintToScrollback(SuccessLineStyle.Render("Saved " + msg.Path))

	case spinner.TickMsg:
		if len(m.running) > 0 {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	default:
		return m, nil
	}
}

// flush prints transcript entries that have not been shown yet.
func (m *Model) flush() tea.Cmd {
	v := m.ctrl.Snapshot()
	m.healthy = v.Healthy
	m.freshness = v.Freshness
	if m.stockPicker.IsActive() {
		m.stockPicker.Refresh(v.Stocks)
	}

	var blocks []string
	for _, msg := range v.Messages {
		if m.printed[msg.ID] {
			continue
		}
		m.printed[msg.ID] = true
		if msg.Role == domain.RoleAssistant {
			m.lastAnswer = msg.Text
		}
		blocks = append(blocks, FormatMessage(msg, m.width))
	}
	if len(blocks) == 0 {
		return nil
	}
	return PrintToScrollback(strings.Join(blocks, "\n\n"))
}

// ---------------------------------------------------------------------------
// Async commands
// ---------------------------------------------------------------------------

// start marks action as running and returns the command that performs it.
// While the same action is in flight it only prints a notice.
func (m *Model) start(action string, run func(ctx context.Context) error) tea.Cmd {
	if m.running[action] {
		return PrintToScrollback(FooterMeta.Render("Still working on the previous " + action + "..."))
	}
	m.running[action] = true
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		return ActionDoneMsg{Action: action, Err: run(context.Background())}
	})
}

func (m *Model) lookup(title string, fetch func(ctx context.Context) (*api.Dataset, error)) tea.Cmd {
	m.running["lookup"] = true
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		ds, err := fetch(context.Background())
		return DatasetMsg{Title: title, Dataset: ds, Err: err}
	})
}

// ---------------------------------------------------------------------------
// View
// ---------------------------------------------------------------------------

func (m Model) View() string {
	if m.stockPicker.IsActive() {
		return m.stockPicker.View(m.width)
	}
	if m.configPicker.IsActive() {
		return m.configPicker.View(m.width)
	}

	var b strings.Builder
	availWidth := max(10, m.width-2)

	if len(m.running) > 0 {
		b.WriteString(ThinkingStyle.Render(m.spinner.View()+" "+m.statusLabel()) + "\n\n")
	}

	inputLines := strings.Split(withInlineCursor(m.input, m.inputCursor), "\n")
	first := true
	for _, line := range inputLines {
		for _, wl := range hardWrapLine(line, availWidth) {
			if first {
				b.WriteString(PromptStyle.Render("❯ ") + InputStyle.Render(wl))
				first = false
			} else {
				b.WriteString("\n" + PromptStyle.Render("  ") + InputStyle.Render(wl))
			}
		}
	}

	if m.completionOn && len(m.completions) > 0 {
		b.WriteString("\n")
		b.WriteString(RenderCompletionMenu(m.completions, m.completionIdx, max(40, m.width)))
	}

	b.WriteString("\n\n")
	b.WriteString(m.footer())
	b.WriteString("\n")
	return b.String()
}

func (m Model) statusLabel() string {
	switch {
	case m.running["send"]:
		return "Thinking..."
	case m.running["update"]:
		return "Updating data..."
	case m.running["init"]:
		return "Connecting..."
	case m.running["export"]:
		return "Exporting..."
	default:
		return "Loading..."
	}
}

func (m Model) footer() string {
	parts := []string{FooterHead.Render("finchat " + m.version)}
	if m.healthy {
		parts = append(parts, FooterOK.Render("backend ok"))
	} else if !m.running["init"] {
		parts = append(parts, FooterDown.Render("backend unavailable"))
	}
	if sel := m.ctrl.Selection(); len(sel) > 0 {
		parts = append(parts, SelectedStyle.Render(strings.Join(sel, ", ")))
	} else {
		parts = append(parts, FooterMeta.Render("no stocks selected"))
	}
	if m.fresh {
		parts = append(parts, FooterMeta.Render("fresh data on"))
	}
	line := strings.Join(parts, FooterMeta.Render(" · "))
	return line + "\n" + FooterMeta.Render("   "+m.freshness+"  ·  ^S stocks  ^U update  ^F fresh  ^R reconnect  ^Y copy")
}

// ---------------------------------------------------------------------------
// Key handler
// ---------------------------------------------------------------------------

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.stockPicker.IsActive() {
		return m.handleStockPickerKey(msg)
	}
	if m.configPicker.IsActive() {
		return m.handleConfigPickerKey(msg)
	}

	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		if m.completionOn {
			m.dismissCompletions()
			return m, nil
		}
		if m.input != "" {
			m.setInput("")
			return m, nil
		}
		return m, tea.Quit

	case tea.KeyTab:
		if strings.HasPrefix(m.input, "/") {
			if !m.completionOn {
				m.completions = ComputeCompletions(m.input, m.symbols())
				if len(m.completions) > 0 {
					m.completionOn = true
					m.completionIdx = 0
					m.setInput(m.completions[0])
				}
			} else if len(m.completions) > 0 {
				m.completionIdx = (m.completionIdx + 1) % len(m.completions)
				m.setInput(m.completions[m.completionIdx])
			}
		}
		return m, nil

	case tea.KeyShiftTab:
		if m.completionOn && len(m.completions) > 0 {
			m.completionIdx = (m.completionIdx - 1 + len(m.completions)) % len(m.completions)
			m.setInput(m.completions[m.completionIdx])
		}
		return m, nil

	case tea.KeyCtrlJ:
		m.dismissCompletions()
		m.insertInputAtCursor("\n")
		m.resetHistory()
		return m, nil

	case tea.KeyEnter:
		// Bracketed paste or rapid keystrokes mean a pasted newline.
		now := time.Now()
		isPaste := msg.Paste || (!m.lastKeypressTime.IsZero() && now.Sub(m.lastKeypressTime) < 5*time.Millisecond)
		m.lastKeypressTime = now
		if isPaste {
			m.insertInputAtCursor("\n")
			return m, nil
		}
		if m.completionOn {
			selected := m.input
			m.dismissCompletions()
			if CommandExpectsArgs(selected) {
				m.setInput(selected + " ")
				return m, nil
			}
		}
		trimmed := strings.TrimSpace(m.input)
		if trimmed == "" {
			m.setInput("")
			return m, nil
		}
		return m.submit(trimmed)

	case tea.KeyUp:
		m.dismissCompletions()
		m.browseHistoryBack()
		return m, nil

	case tea.KeyDown:
		m.dismissCompletions()
		m.browseHistoryForward()
		return m, nil

	case tea.KeyLeft:
		m.moveInputCursor(-1)
		return m, nil

	case tea.KeyRight:
		m.moveInputCursor(1)
		return m, nil

	case tea.KeyHome, tea.KeyCtrlA:
		m.inputCursor = 0
		return m, nil

	case tea.KeyEnd, tea.KeyCtrlE:
		m.inputCursor = len([]rune(m.input))
		return m, nil

	case tea.KeyBackspace:
		m.dismissCompletions()
		if m.deleteInputBeforeCursor() {
			m.resetHistory()
		}
		return m, nil

	case tea.KeyDelete:
		m.dismissCompletions()
		if m.deleteInputAtCursor() {
			m.resetHistory()
		}
		return m, nil

	case tea.KeyCtrlV:
		m.dismissCompletions()
		return m, ReadClipboardCmd()

	case tea.KeyCtrlY:
		return m, WriteClipboardCmd(m.lastAnswer)

	case tea.KeyCtrlS:
		m.stockPicker = NewStockPicker(m.ctrl.Snapshot().Stocks)
		return m, nil

	case tea.KeyCtrlU:
		return m.runCommand("/update", nil)

	case tea.KeyCtrlF:
		return m.runCommand("/fresh", nil)

	case tea.KeyCtrlR:
		return m.runCommand("/health", nil)

	default:
		if (msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace) && len(msg.Runes) > 0 {
			m.dismissCompletions()
			m.insertInputAtCursor(filterNulls(msg.Runes))
			m.resetHistory()
			m.lastKeypressTime = time.Now()
		}
		return m, nil
	}
}

// handleStockPickerKey routes keys while the stock picker is open.
func (m Model) handleStockPickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.stockPicker
	switch msg.Type {
	case tea.KeyEsc, tea.KeyEnter, tea.KeyCtrlC, tea.KeyCtrlS:
		p.Dismiss()
		return m, m.selectionSummary()
	case tea.KeyUp:
		p.MoveUp()
	case tea.KeyDown:
		p.MoveDown()
	case tea.KeySpace:
		if sym := p.Highlighted(); sym != "" {
			m.ctrl.Toggle(sym)
			p.Refresh(m.ctrl.Snapshot().Stocks)
		}
	case tea.KeyCtrlX:
		m.ctrl.ClearSelection()
		p.Refresh(m.ctrl.Snapshot().Stocks)
	case tea.KeyBackspace:
		p.BackspaceFilter()
	case tea.KeyRunes:
		for _, r := range msg.Runes {
			if r == ' ' {
				continue
			}
			p.AppendFilter(r)
		}
	}
	return m, nil
}

// handleConfigPickerKey routes keys while the preferences picker is open.
func (m Model) handleConfigPickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.configPicker
	if p.Editing() {
		switch msg.Type {
		case tea.KeyEsc:
			p.Back()
		case tea.KeyEnter:
			key, err := p.Commit(&m.prefs)
			if err == nil {
				return m, m.preferenceChanged(key)
			}
		case tea.KeyBackspace:
			p.BackspaceEdit()
		case tea.KeySpace:
			p.AppendEdit(' ')
		case tea.KeyRunes:
			for _, r := range msg.Runes {
				p.AppendEdit(r)
			}
		}
		return m, nil
	}

	switch msg.Type {
	case tea.KeyEsc, tea.KeyCtrlC:
		p.Back()
	case tea.KeyUp:
		p.MoveUp()
	case tea.KeyDown:
		p.MoveDown()
	case tea.KeyEnter:
		key, err := p.Enter(&m.prefs)
		if err != nil {
			return m, PrintToScrollback(m.renderError(err.Error()))
		}
		if key != "" {
			return m, m.preferenceChanged(key)
		}
	}
	return m, nil
}

// preferenceChanged persists prefs and applies what can change at runtime.
func (m *Model) preferenceChanged(key string) tea.Cmd {
	if key == "chat.collect_fresh" {
		m.fresh = m.prefs.CollectFresh
	}
	if err := config.SavePreferences(m.prefs); err != nil {
		return PrintToScrollback(m.renderError("Failed to save preferences: " + err.Error()))
	}
	note := fmt.Sprintf("Set %s = %s", key, m.prefs.Get(key))
	if strings.HasPrefix(key, "api.") || strings.HasPrefix(key, "web.") || strings.HasPrefix(key, "alerts.") {
		note += " (takes effect on restart)"
	}
	return PrintToScrollback(FooterMeta.Render(note))
}

func (m Model) selectionSummary() tea.Cmd {
	sel := m.ctrl.Selection()
	if len(sel) == 0 {
		return PrintToScrollback(FooterMeta.Render("No stocks selected."))
	}
	return PrintToScrollback(FooterMeta.Render("Selected: " + strings.Join(sel, ", ")))
}

func (m Model) symbols() []string {
	stocks := m.ctrl.Snapshot().Stocks
	out := make([]string, len(stocks))
	for i, s := range stocks {
		out[i] = s.Symbol
	}
	return out
}

// ---------------------------------------------------------------------------
// Scrollback
// ---------------------------------------------------------------------------

// PrintToScrollback prints rendered text above the active Bubble Tea view.
// This preserves native terminal scrollback and avoids large View reflows.
func PrintToScrollback(text string) tea.Cmd {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	// Add a small visual gap between finalized message blocks.
	return tea.Println(stripTrailingBlankLines(text) + "\n")
}

// renderError wraps an error message to the terminal width and styles it.
func (m Model) renderError(msg string) string {
	w := m.width
	if w < 20 {
		w = 80
	}
	var styled []string
	for _, l := range WrapWords(msg, w-2) {
		styled = append(styled, ErrorLineStyle.Render(l))
	}
	return strings.Join(styled, "\n")
}

// stripTrailingBlankLines removes trailing lines that are empty or
// whitespace-only.
func stripTrailingBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[:end], "\n")
}
