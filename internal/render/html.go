// Package render converts the small markdown subset produced by the
// assistant (pipe tables, dash/star bullet lists, line breaks) into HTML.
//
// The renderer never escapes cell or item text, so running it over its own
// output is a no-op. Callers that place the result in a page must sanitize it.
package render

import (
	"strings"

	"github.com/batalabs/finchat/internal/domain"
)

// Kind identifies the type of a rendered block.
type Kind int

const (
	KindLine Kind = iota
	KindTable
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindTable:
		return "table"
	case KindList:
		return "list"
	default:
		return "line"
	}
}

// Row is one table row. Header rows emit <th> cells.
type Row struct {
	Header bool
	Cells  []string
}

// Block is one unit of rendered output: a plain line, a table or a list.
type Block struct {
	Kind  Kind
	Text  string   // KindLine
	Rows  []Row    // KindTable
	Items []string // KindList
}

// Parse splits text into blocks. Tables are detected first; list detection
// runs over the lines the table pass left alone.
func Parse(text string) []Block {
	return parseLists(parseTables(text))
}

// ConvertTables rewrites pipe tables as HTML and leaves every other line as is.
func ConvertTables(text string) string {
	return HTML(parseTables(text))
}

// ConvertLists rewrites bullet lists as HTML and leaves every other line as is.
func ConvertLists(text string) string {
	return HTML(parseLists(lineBlocks(text)))
}

// LineBreaks replaces every newline with <br>.
func LineBreaks(text string) string {
	return strings.ReplaceAll(text, "\n", "<br>")
}

// Assistant applies the full pipeline used for assistant messages:
// tables, then lists, then line breaks.
func Assistant(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return LineBreaks(ConvertLists(ConvertTables(text)))
}

// Message renders text for a chat message from role. Only assistant text is
// transformed; user and alert text is returned unchanged.
func Message(role domain.Role, text string) string {
	if role == domain.RoleAssistant {
		return Assistant(text)
	}
	return text
}

// HTML emits blocks in order, joined by newlines.
func HTML(blocks []Block) string {
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = blockHTML(b)
	}
	return strings.Join(parts, "\n")
}

func blockHTML(b Block) string {
	var sb strings.Builder
	switch b.Kind {
	case KindTable:
		sb.WriteString("<table>")
		for _, row := range b.Rows {
			tag := "td"
			if row.Header {
				tag = "th"
			}
			sb.WriteString("<tr>")
			for _, cell := range row.Cells {
				sb.WriteString("<" + tag + ">" + cell + "</" + tag + ">")
			}
			sb.WriteString("</tr>")
		}
		sb.WriteString("</table>")
	case KindList:
		sb.WriteString("<ul>")
		for _, item := range b.Items {
			sb.WriteString("<li>" + item + "</li>")
		}
		sb.WriteString("</ul>")
	default:
		sb.WriteString(b.Text)
	}
	return sb.String()
}

func lineBlocks(text string) []Block {
	lines := strings.Split(text, "\n")
	blocks := make([]Block, len(lines))
	for i, line := range lines {
		blocks[i] = Block{Kind: KindLine, Text: line}
	}
	return blocks
}

// parseTables groups consecutive table rows into table blocks. A row directly
// followed by a separator row is a header and the separator is consumed.
func parseTables(text string) []Block {
	lines := strings.Split(text, "\n")
	var out []Block
	var table *Block

	flush := func() {
		if table != nil {
			out = append(out, *table)
			table = nil
		}
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if !IsTableRow(line) {
			flush()
			out = append(out, Block{Kind: KindLine, Text: line})
			continue
		}
		if table == nil {
			table = &Block{Kind: KindTable}
		}
		row := Row{Cells: ParseTableRow(line)}
		if i+1 < len(lines) && IsSeparatorRow(lines[i+1]) {
			row.Header = true
			i++
		}
		table.Rows = append(table.Rows, row)
	}
	flush()
	return out
}

// parseLists groups consecutive list-item lines into list blocks. Non-line
// blocks pass through unchanged and close any open list.
func parseLists(blocks []Block) []Block {
	var out []Block
	var list *Block

	flush := func() {
		if list != nil {
			out = append(out, *list)
			list = nil
		}
	}

	for _, b := range blocks {
		item, ok := listItem(b)
		if !ok {
			flush()
			out = append(out, b)
			continue
		}
		if list == nil {
			list = &Block{Kind: KindList}
		}
		list.Items = append(list.Items, item)
	}
	flush()
	return out
}

func listItem(b Block) (string, bool) {
	if b.Kind != KindLine {
		return "", false
	}
	trimmed := strings.TrimSpace(b.Text)
	if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") {
		return trimmed[2:], true
	}
	return "", false
}

// IsTableRow reports whether line, once trimmed, starts and ends with a pipe.
func IsTableRow(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "|") && strings.HasSuffix(trimmed, "|")
}

// IsSeparatorRow reports whether line is a header separator such as
// "|---|---|": a pipe-delimited line holding only dashes and whitespace once
// the pipes are stripped. A blank row like "| |" also qualifies.
func IsSeparatorRow(line string) bool {
	if !strings.Contains(line, "|") {
		return false
	}
	for _, r := range strings.ReplaceAll(line, "|", "") {
		if r != '-' && r != ' ' && r != '\t' {
			return false
		}
	}
	return true
}

// ParseTableRow returns the trimmed cells between the boundary pipes of line.
// "| a || b |" yields ["a", "", "b"]; a lone "|" yields no cells.
func ParseTableRow(line string) []string {
	parts := strings.Split(strings.TrimSpace(line), "|")
	if len(parts) < 2 {
		return nil
	}
	parts = parts[1 : len(parts)-1]
	cells := make([]string, 0, len(parts))
	for _, p := range parts {
		cells = append(cells, strings.TrimSpace(p))
	}
	return cells
}
