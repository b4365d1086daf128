package tui

import (
	"fmt"
	"strings"

	"github.com/batalabs/finchat/internal/chat"
)

// StockPicker is an overlay listing the available stocks. The model toggles
// the highlighted symbol on the controller and feeds the new list back with
// Refresh, so the picker never owns selection state.
type StockPicker struct {
	stocks      []chat.StockView
	filtered    []chat.StockView
	selectedIdx int
	filter      string
	active      bool
}

// NewStockPicker creates a picker over stocks.
func NewStockPicker(stocks []chat.StockView) *StockPicker {
	p := &StockPicker{stocks: stocks, active: true}
	p.applyFilter()
	return p
}

// IsActive reports whether the picker is currently shown.
func (p *StockPicker) IsActive() bool {
	return p != nil && p.active
}

// Dismiss closes the picker.
func (p *StockPicker) Dismiss() {
	p.active = false
}

// Highlighted returns the symbol under the cursor, or "".
func (p *StockPicker) Highlighted() string {
	if len(p.filtered) == 0 {
		return ""
	}
	return p.filtered[p.selectedIdx].Symbol
}

// Refresh replaces the stock list, keeping the filter and cursor.
func (p *StockPicker) Refresh(stocks []chat.StockView) {
	idx := p.selectedIdx
	p.stocks = stocks
	p.applyFilter()
	if idx < len(p.filtered) {
		p.selectedIdx = idx
	}
}

// MoveUp moves the cursor up.
func (p *StockPicker) MoveUp() {
	if p.selectedIdx > 0 {
		p.selectedIdx--
	}
}

// MoveDown moves the cursor down.
func (p *StockPicker) MoveDown() {
	if p.selectedIdx < len(p.filtered)-1 {
		p.selectedIdx++
	}
}

// AppendFilter adds a rune to the filter.
func (p *StockPicker) AppendFilter(r rune) {
	p.filter += string(r)
	p.applyFilter()
}

// BackspaceFilter removes the last rune from the filter.
func (p *StockPicker) BackspaceFilter() {
	if len(p.filter) > 0 {
		runes := []rune(p.filter)
		p.filter = string(runes[:len(runes)-1])
		p.applyFilter()
	}
}

func (p *StockPicker) applyFilter() {
	p.selectedIdx = 0
	if p.filter == "" {
		p.filtered = p.stocks
		return
	}
	lower := strings.ToLower(p.filter)
	p.filtered = nil
	for _, s := range p.stocks {
		if strings.Contains(strings.ToLower(s.Symbol), lower) || strings.Contains(strings.ToLower(s.Name), lower) {
			p.filtered = append(p.filtered, s)
		}
	}
}

// View renders the picker as a string.
func (p *StockPicker) View(width int) string {
	if width < 40 {
		width = 40
	}

	var b strings.Builder
	b.WriteString(FooterHead.Render("Stocks"))
	b.WriteString("\n")
	b.WriteString(FooterMeta.Render("  Filter: " + p.filter))
	b.WriteString(CursorStyle.Render("█"))
	b.WriteString("\n\n")

	if len(p.filtered) == 0 {
		b.WriteString(FooterMeta.Render("  No matching stocks."))
		b.WriteString("\n")
	} else {
		const maxVisible = 12
		start := 0
		if p.selectedIdx >= maxVisible {
			start = p.selectedIdx - maxVisible + 1
		}
		end := min(start+maxVisible, len(p.filtered))

		nameWidth := max(10, width-18)
		for i := start; i < end; i++ {
			s := p.filtered[i]
			indicator := "  "
			if i == p.selectedIdx {
				indicator = "> "
			}
			check := "[ ] "
			if s.Selected {
				check = "[x] "
			}
			line := fmt.Sprintf("%s%s%-6s  %s", indicator, check, s.Symbol, TruncateToWidth(s.Name, nameWidth))

			switch {
			case i == p.selectedIdx:
				b.WriteString(CompletionSelStyle.Render(line))
			case s.Selected:
				b.WriteString(SelectedStyle.Render(line))
			default:
				b.WriteString(FooterMeta.Render(line))
			}
			b.WriteString("\n")
		}
		if len(p.filtered) > maxVisible {
			b.WriteString(FooterMeta.Render(fmt.Sprintf("  ... %d total", len(p.filtered))))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(FooterMeta.Render("  Space=toggle  Ctrl+X=clear  Enter/Esc=done"))
	b.WriteString("\n")
	return b.String()
}
