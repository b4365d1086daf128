package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// Line editing for the prompt. The cursor is a rune offset into m.input.

func (m *Model) setInput(s string) {
	m.input = s
	m.inputCursor = len([]rune(s))
}

// clampCursor keeps the cursor inside the current input and returns it.
func (m *Model) clampCursor() int {
	n := len([]rune(m.input))
	m.inputCursor = min(max(m.inputCursor, 0), n)
	return m.inputCursor
}

func (m *Model) moveInputCursor(delta int) {
	m.inputCursor += delta
	m.clampCursor()
}

func (m *Model) insertInputAtCursor(s string) {
	if s == "" {
		return
	}
	at := m.clampCursor()
	r := []rune(m.input)
	ins := []rune(s)
	m.input = string(r[:at]) + s + string(r[at:])
	m.inputCursor = at + len(ins)
}

// deleteInputBeforeCursor removes the rune left of the cursor (Backspace).
func (m *Model) deleteInputBeforeCursor() bool {
	at := m.clampCursor()
	if at == 0 {
		return false
	}
	r := []rune(m.input)
	m.input = string(r[:at-1]) + string(r[at:])
	m.inputCursor = at - 1
	return true
}

// deleteInputAtCursor removes the rune under the cursor (Delete).
func (m *Model) deleteInputAtCursor() bool {
	at := m.clampCursor()
	r := []rune(m.input)
	if at >= len(r) {
		return false
	}
	m.input = string(r[:at]) + string(r[at+1:])
	return true
}

// ---------------------------------------------------------------------------
// History
// ---------------------------------------------------------------------------

func (m *Model) browseHistoryBack() {
	if len(m.history) == 0 {
		return
	}
	switch {
	case m.historyIdx == -1:
		m.historyDraft = m.input
		m.historyIdx = len(m.history) - 1
	case m.historyIdx > 0:
		m.historyIdx--
	}
	m.setInput(m.history[m.historyIdx])
}

func (m *Model) browseHistoryForward() {
	if m.historyIdx == -1 {
		return
	}
	if m.historyIdx+1 < len(m.history) {
		m.historyIdx++
		m.setInput(m.history[m.historyIdx])
		return
	}
	draft := m.historyDraft
	m.resetHistory()
	m.setInput(draft)
}

func (m *Model) resetHistory() {
	m.historyIdx = -1
	m.historyDraft = ""
}

func (m *Model) dismissCompletions() {
	m.completionOn = false
	m.completions = nil
	m.completionIdx = 0
}

// handlePaste inserts clipboard text at the cursor. Read errors are ignored.
func (m Model) handlePaste(msg PasteMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		return m, nil
	}
	text := strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(msg.Text)
	text = strings.TrimRight(text, "\n")
	if text != "" {
		m.insertInputAtCursor(text)
		m.resetHistory()
	}
	return m, nil
}

// filterNulls drops NUL runes some terminals send with pasted text.
func filterNulls(runes []rune) string {
	var b strings.Builder
	for _, r := range runes {
		if r != 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// withInlineCursor draws a block cursor at rune offset cursor.
func withInlineCursor(input string, cursor int) string {
	r := []rune(input)
	cursor = min(max(cursor, 0), len(r))
	return string(r[:cursor]) + "█" + string(r[cursor:])
}

// hardWrapLine splits line into chunks of at most width runes.
func hardWrapLine(line string, width int) []string {
	width = max(width, 1)
	r := []rune(line)
	if len(r) <= width {
		return []string{line}
	}
	var out []string
	for len(r) > width {
		out = append(out, string(r[:width]))
		r = r[width:]
	}
	return append(out, string(r))
}
