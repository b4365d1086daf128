package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"

	"github.com/batalabs/finchat/internal/api"
	"github.com/batalabs/finchat/internal/chat"
	"github.com/batalabs/finchat/internal/domain"
	"github.com/batalabs/finchat/internal/export"
	"github.com/batalabs/finchat/internal/render"
)

var inlineCodeRe = regexp.MustCompile("`([^`]+)`")
var boldRe = regexp.MustCompile(`\*\*(.+?)\*\*`)
var headingRe = regexp.MustCompile(`^#{1,3}\s+(.+)$`)

// maxDatasetRows caps how many records a lookup prints.
const maxDatasetRows = 20

// WrapWords splits s into lines that fit within width, breaking at word
// boundaries. Words longer than width are hard-broken.
func WrapWords(s string, width int) []string {
	if width < 10 {
		width = 10
	}
	parts := strings.Fields(s)
	if len(parts) == 0 {
		return []string{""}
	}
	lines := make([]string, 0, 8)
	cur := ""
	for _, word := range parts {
		next := word
		if cur != "" {
			next = cur + " " + word
		}
		if lipgloss.Width(next) <= width {
			cur = next
			continue
		}
		if cur != "" {
			lines = append(lines, cur)
		}
		for lipgloss.Width(word) > width {
			head := TruncateToWidth(word, width)
			lines = append(lines, head)
			word = word[len(head):]
		}
		cur = word
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

// RenderAssistantLines draws an assistant answer for the terminal. Tables
// and lists are recognized exactly as the browser renderer does; the other
// lines are word-wrapped with light inline styling.
func RenderAssistantLines(content string, width int) []string {
	if width < 20 {
		width = 20
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")
	var out []string
	for _, b := range render.Parse(content) {
		switch b.Kind {
		case render.KindTable:
			out = append(out, RenderTable(b.Rows, width)...)
		case render.KindList:
			for _, item := range b.Items {
				wrapped := WrapWords(item, width-2)
				out = append(out, BulletStyle.Render("• ")+ApplyInlineFormatting(wrapped[0]))
				for _, wl := range wrapped[1:] {
					out = append(out, "  "+ApplyInlineFormatting(wl))
				}
			}
		default:
			out = append(out, renderLine(b.Text, width)...)
		}
	}
	return out
}

func renderLine(line string, width int) []string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return []string{""}
	}
	if m := headingRe.FindStringSubmatch(trimmed); m != nil {
		var out []string
		for _, wl := range WrapWords(m[1], width) {
			out = append(out, HeadingStyle.Render(boldRe.ReplaceAllString(wl, "$1")))
		}
		return out
	}
	var out []string
	for _, wl := range WrapWords(line, width) {
		out = append(out, ApplyInlineFormatting(wl))
	}
	return out
}

// RenderTable renders table rows with box-drawing characters. A border is
// drawn under every header row. Short rows are padded with empty cells.
func RenderTable(rows []render.Row, width int) []string {
	numCols := 0
	for _, r := range rows {
		numCols = max(numCols, len(r.Cells))
	}
	if numCols == 0 {
		return nil
	}

	const cellPad = 2 // one space each side of cell content

	colWidths := make([]int, numCols)
	for _, r := range rows {
		for i, c := range r.Cells {
			colWidths[i] = max(colWidths[i], stripMarkdownWidth(c))
		}
	}

	// Fixed overhead: numCols+1 border chars + cellPad per column.
	available := width - (numCols + 1 + numCols*cellPad)
	if available < numCols {
		available = numCols
	}
	totalContent := 0
	for _, w := range colWidths {
		totalContent += w
	}
	if totalContent > available {
		for i := range colWidths {
			colWidths[i] = max(1, colWidths[i]*available/totalContent)
		}
	}

	borderTop := buildBorder("┌", "┬", "┐", "─", colWidths, cellPad)
	borderMid := buildBorder("├", "┼", "┤", "─", colWidths, cellPad)
	borderBot := buildBorder("└", "┴", "┘", "─", colWidths, cellPad)

	out := make([]string, 0, len(rows)+3)
	out = append(out, TableBorderStyle.Render(borderTop))
	for i, r := range rows {
		out = append(out, renderTableRow(r.Cells, colWidths, cellPad, r.Header))
		if r.Header && i < len(rows)-1 {
			out = append(out, TableBorderStyle.Render(borderMid))
		}
	}
	out = append(out, TableBorderStyle.Render(borderBot))
	return out
}

// stripMarkdownWidth returns the visual width of text after stripping
// inline markers.
func stripMarkdownWidth(s string) int {
	s = inlineCodeRe.ReplaceAllString(s, "$1")
	s = boldRe.ReplaceAllString(s, "$1")
	return lipgloss.Width(s)
}

func buildBorder(left, mid, right, horiz string, colWidths []int, cellPad int) string {
	var b strings.Builder
	b.WriteString(left)
	for i, w := range colWidths {
		b.WriteString(strings.Repeat(horiz, w+cellPad))
		if i < len(colWidths)-1 {
			b.WriteString(mid)
		}
	}
	b.WriteString(right)
	return b.String()
}

func renderTableRow(cells []string, colWidths []int, cellPad int, isHeader bool) string {
	var b strings.Builder
	b.WriteString(TableBorderStyle.Render("│"))
	for i, w := range colWidths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		raw := boldRe.ReplaceAllString(cell, "$1")
		raw = inlineCodeRe.ReplaceAllString(raw, "$1")

		var styled string
		switch {
		case lipgloss.Width(raw) > w:
			styled = TruncateToWidth(raw, w)
			if isHeader {
				styled = TableHeaderStyle.Render(styled)
			}
		case isHeader:
			styled = TableHeaderStyle.Render(raw)
		default:
			styled = ApplyInlineFormatting(cell)
		}

		padRight := max(0, w-lipgloss.Width(styled))
		b.WriteString(" " + styled + strings.Repeat(" ", padRight) + " ")
		if i < len(colWidths)-1 {
			b.WriteString(TableBorderStyle.Render("│"))
		}
	}
	b.WriteString(TableBorderStyle.Render("│"))
	return b.String()
}

// TruncateToWidth truncates s to fit within maxWidth visible columns,
// handling multi-byte characters safely.
func TruncateToWidth(s string, maxWidth int) string {
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	runes := []rune(s)
	for i := len(runes); i > 0; i-- {
		candidate := string(runes[:i])
		if lipgloss.Width(candidate) <= maxWidth {
			return candidate
		}
	}
	return ""
}

// ApplyInlineFormatting styles `code` and **bold** spans.
func ApplyInlineFormatting(s string) string {
	s = inlineCodeRe.ReplaceAllStringFunc(s, func(match string) string {
		return InlineCodeStyle.Render(inlineCodeRe.FindStringSubmatch(match)[1])
	})
	return boldRe.ReplaceAllStringFunc(s, func(match string) string {
		return BoldInlineStyle.Render(boldRe.FindStringSubmatch(match)[1])
	})
}

// HighlightJSON pretty-prints v and syntax-highlights it with Chroma,
// prefixing each line with a line-number gutter.
func HighlightJSON(v any) []string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return []string{ErrorLineStyle.Render("unprintable data: " + err.Error())}
	}
	var hl bytes.Buffer
	if err := quick.Highlight(&hl, string(data), "json", "terminal256", "dracula"); err != nil {
		hl.Reset()
		hl.Write(data)
	}
	lines := strings.Split(strings.TrimSuffix(hl.String(), "\n"), "\n")
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		out = append(out, CodeGutterStyle.Render(fmt.Sprintf("%3d │ ", i+1))+line)
	}
	return out
}

// FormatDataset renders a lookup result. Flat records become a table with
// the same column order as the spreadsheet export; records holding nested
// values are printed as highlighted JSON.
func FormatDataset(title string, ds *api.Dataset, width int) string {
	var b strings.Builder
	b.WriteString(HeadingStyle.Render(title))
	if ds.Symbol != "" {
		b.WriteString(FooterMeta.Render("  " + ds.Symbol))
	}
	records := ds.Data
	if len(records) == 0 {
		b.WriteString("\n" + FooterMeta.Render("No records."))
		return b.String()
	}
	more := 0
	if len(records) > maxDatasetRows {
		more = len(records) - maxDatasetRows
		records = records[:maxDatasetRows]
	}

	var lines []string
	if flat(records) {
		cols := export.Columns(records)
		rows := []render.Row{{Header: true, Cells: cols}}
		for _, rec := range records {
			cells := make([]string, len(cols))
			for i, c := range cols {
				if v, ok := rec[c]; ok && v != nil {
					cells[i] = fmt.Sprint(v)
				}
			}
			rows = append(rows, render.Row{Cells: cells})
		}
		lines = RenderTable(rows, max(40, width))
	} else {
		lines = HighlightJSON(records)
	}
	for _, l := range lines {
		b.WriteString("\n" + l)
	}
	if more > 0 {
		b.WriteString("\n" + FooterMeta.Render(fmt.Sprintf("... and %d more records", more)))
	}
	return b.String()
}

// flat reports whether every value is a scalar that fits in a table cell.
func flat(records []map[string]any) bool {
	for _, rec := range records {
		for _, v := range rec {
			switch v.(type) {
			case map[string]any, []any:
				return false
			}
		}
	}
	return true
}

// FormatMessage renders one chat entry for the terminal scrollback.
func FormatMessage(m chat.MessageView, width int) string {
	contentWidth := max(20, width-4)

	var icon string
	var lines []string
	switch m.Role {
	case domain.RoleUser:
		icon = UserIconStyle.Render("● ")
		lines = WrapWords(m.Text, contentWidth-2)
	case domain.RoleAssistant:
		icon = AsstIconStyle.Render("● ")
		lines = RenderAssistantLines(m.Text, contentWidth-2)
	default:
		style := ErrorLineStyle
		icon = ErrorLineStyle.Render("! ")
		if m.Level == domain.AlertSuccess {
			style = SuccessLineStyle
			icon = SuccessLineStyle.Render("✓ ")
		}
		for _, l := range WrapWords(m.Text, contentWidth-2) {
			lines = append(lines, style.Render(l))
		}
	}
	if len(lines) == 0 {
		return icon
	}
	return icon + lines[0] + prefixLines(lines[1:], "\n  ")
}

func prefixLines(lines []string, prefix string) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(prefix + l)
	}
	return b.String()
}
