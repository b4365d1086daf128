package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/batalabs/finchat/internal/api"
	"github.com/batalabs/finchat/internal/chat"
	"github.com/batalabs/finchat/internal/config"
	"github.com/batalabs/finchat/internal/domain"
	"github.com/batalabs/finchat/internal/export"
)

// submit sends a question or runs a slash command.
func (m Model) submit(trimmed string) (tea.Model, tea.Cmd) {
	m.history = append(m.history, trimmed)
	m.resetHistory()
	m.setInput("")

	if strings.HasPrefix(trimmed, "/") {
		fields := strings.Fields(trimmed)
		return m.runCommand(strings.ToLower(fields[0]), fields[1:])
	}

	q, err := m.ctrl.Accept(trimmed, m.fresh)
	if errors.Is(err, chat.ErrBusy) {
		return m, PrintToScrollback(FooterMeta.Render("Still working on the previous request..."))
	}
	// The question reaches the scrollback only once the controller has
	// recorded it; rejections print just their alert.
	cmd := m.flush()
	if q == nil {
		return m, cmd
	}
	return m, tea.Batch(cmd, m.start("send", q.Run))
}

// runCommand executes a slash command with its arguments.
func (m Model) runCommand(name string, args []string) (tea.Model, tea.Cmd) {
	ctrl := m.ctrl

	switch name {
	case "/exit", "/quit":
		return m, tea.Quit

	case "/help":
		return m, PrintToScrollback(helpText())

	case "/health":
		return m, m.start("health", ctrl.CheckHealth)

	case "/update":
		return m, m.start("update", ctrl.UpdateData)

	case "/select":
		if len(args) == 0 {
			m.stockPicker = NewStockPicker(ctrl.Snapshot().Stocks)
			return m, nil
		}
		var ignored []string
		for _, a := range args {
			sym := strings.ToUpper(strings.Trim(a, ","))
			before := ctrl.Selection()
			ctrl.Toggle(sym)
			if sameSymbols(before, ctrl.Selection()) {
				ignored = append(ignored, sym)
			}
		}
		cmds := []tea.Cmd{m.selectionSummary()}
		if len(ignored) > 0 {
			cmds = append(cmds, PrintToScrollback(m.renderError("Unknown symbols: "+strings.Join(ignored, ", "))))
		}
		return m, tea.Sequence(cmds...)

	case "/stocks":
		m.stockPicker = NewStockPicker(ctrl.Snapshot().Stocks)
		return m, nil

	case "/clear":
		ctrl.ClearSelection()
		return m, m.selectionSummary()

	case "/fresh":
		m.fresh = !m.fresh
		state := "off"
		if m.fresh {
			state = "on"
		}
		ctrl.Notify("Fresh data collection " + state + ".")
		cmd := m.flush()
		return m, cmd

	case "/history", "/news":
		sym := firstSymbol(args, ctrl.Selection())
		if sym == "" {
			return m, PrintToScrollback(m.renderError("Usage: " + usage(name)))
		}
		if name == "/history" {
			return m, m.lookup("Historical prices", func(ctx context.Context) (*api.Dataset, error) {
				return ctrl.HistoricalPrices(ctx, sym)
			})
		}
		return m, m.lookup("Company news", func(ctx context.Context) (*api.Dataset, error) {
			return ctrl.CompanyNews(ctx, sym)
		})

	case "/prices":
		return m, m.lookup("Stock prices", func(ctx context.Context) (*api.Dataset, error) {
			return ctrl.StockPrices(ctx, args)
		})

	case "/export":
		if len(args) == 0 {
			return m, PrintToScrollback(m.renderError("Usage: " + usage(name)))
		}
		m.running["export"] = true
		return m, tea.Batch(m.spinner.Tick, exportCmd(ctrl, strings.ToLower(args[0]), args[1:], MustGetwd()))

	case "/copy":
		return m, WriteClipboardCmd(m.lastAnswer)

	case "/config":
		if len(args) == 0 {
			m.configPicker = NewConfigPicker(m.prefs)
			return m, nil
		}
		if len(args) == 1 && m.prefs.GroupByName(strings.ToLower(args[0])) != nil {
			m.configPicker = NewConfigPickerAtGroup(m.prefs, args[0])
			return m, nil
		}
		out, err := config.ExecuteConfigAction(&m.prefs, args)
		if err != nil {
			return m, PrintToScrollback(m.renderError(err.Error()))
		}
		m.fresh = m.prefs.CollectFresh
		return m, PrintToScrollback(FooterMeta.Render(out))

	default:
		return m, PrintToScrollback(m.renderError("Unknown command: " + name + " (try /help)"))
	}
}

// exportCmd fetches a dataset and saves it as an xlsx file in dir.
func exportCmd(ctrl *chat.Controller, kind string, args []string, dir string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		var (
			ds   *api.Dataset
			err  error
			name string
		)
		switch kind {
		case "history", "news":
			sym := firstSymbol(args, ctrl.Selection())
			if sym == "" {
				return ExportDoneMsg{Err: errors.New("a symbol is required")}
			}
			name = kind + " " + sym
			if kind == "history" {
				ds, err = ctrl.HistoricalPrices(ctx, sym)
			} else {
				ds, err = ctrl.CompanyNews(ctx, sym)
			}
		case "prices":
			name = "prices"
			ds, err = ctrl.StockPrices(ctx, args)
		default:
			return ExportDoneMsg{Err: fmt.Errorf("unknown dataset %q (use history, news or prices)", kind)}
		}
		if err != nil {
			return ExportDoneMsg{Err: err}
		}

		sheet := export.SheetName(name)
		path := filepath.Join(dir, strings.ReplaceAll(strings.ToLower(sheet), " ", "-")+".xlsx")
		f, err := os.Create(path)
		if err != nil {
			return ExportDoneMsg{Err: fmt.Errorf("creating file: %w", err)}
		}
		if err := export.Write(f, sheet, ds.Data); err != nil {
			f.Close()
			os.Remove(path)
			return ExportDoneMsg{Err: err}
		}
		if err := f.Close(); err != nil {
			return ExportDoneMsg{Err: fmt.Errorf("closing file: %w", err)}
		}
		return ExportDoneMsg{Path: path}
	}
}

// firstSymbol returns the first argument as a symbol, falling back to the
// first selected stock.
func firstSymbol(args, selection []string) string {
	if len(args) > 0 {
		return strings.ToUpper(strings.TrimSpace(args[0]))
	}
	if len(selection) > 0 {
		return selection[0]
	}
	return ""
}

func sameSymbols(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func usage(name string) string {
	if def, ok := domain.LookupCommand(name); ok {
		return def.Usage
	}
	return name
}

// helpText lists the slash commands by group.
func helpText() string {
	var b strings.Builder
	b.WriteString(HeadingStyle.Render("Commands"))
	for _, g := range domain.CommandGroups {
		b.WriteString("\n\n" + FooterHead.Render(g.Label))
		for _, c := range domain.CommandDefs {
			if c.Group != g.Key {
				continue
			}
			b.WriteString(fmt.Sprintf("\n  %-42s %s", c.Usage, FooterMeta.Render(c.Description)))
		}
	}
	b.WriteString("\n\n" + FooterMeta.Render("Keys: Ctrl+S stocks · Ctrl+U update · Ctrl+F fresh data · Ctrl+R reconnect · Ctrl+Y copy answer · Tab complete"))
	return b.String()
}
