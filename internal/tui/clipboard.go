package tui

import (
	"errors"
	"os/exec"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// PasteMsg carries clipboard read results to the TUI model.
type PasteMsg struct {
	Text string
	Err  error
}

// ClipboardWriteMsg carries clipboard write results to the TUI model.
type ClipboardWriteMsg struct {
	OK  bool
	Err error
}

// clipboardTool is one platform clipboard command.
type clipboardTool struct {
	read  []string
	write []string
}

// clipboardTools are tried in order: Windows, macOS, then X11.
var clipboardTools = []clipboardTool{
	{read: []string{"powershell", "-NoProfile", "-Command", "Get-Clipboard -Raw"}, write: []string{"powershell", "-NoProfile", "-Command", "$input | Set-Clipboard"}},
	{read: []string{"pbpaste"}, write: []string{"pbcopy"}},
	{read: []string{"xclip", "-selection", "clipboard", "-o"}, write: []string{"xclip", "-selection", "clipboard"}},
}

// ReadClipboardCmd reads the system clipboard and delivers a PasteMsg.
func ReadClipboardCmd() tea.Cmd {
	return func() tea.Msg {
		for _, t := range clipboardTools {
			if out, err := exec.Command(t.read[0], t.read[1:]...).Output(); err == nil {
				return PasteMsg{Text: string(out)}
			}
		}
		return PasteMsg{Err: errors.New("clipboard read not available")}
	}
}

// WriteClipboardCmd writes text to the system clipboard and delivers a
// ClipboardWriteMsg.
func WriteClipboardCmd(text string) tea.Cmd {
	return func() tea.Msg {
		if text == "" {
			return ClipboardWriteMsg{Err: errors.New("nothing to copy")}
		}
		for _, t := range clipboardTools {
			cmd := exec.Command(t.write[0], t.write[1:]...)
			cmd.Stdin = strings.NewReader(text)
			if err := cmd.Run(); err == nil {
				return ClipboardWriteMsg{OK: true}
			}
		}
		return ClipboardWriteMsg{Err: errors.New("clipboard write not available")}
	}
}
