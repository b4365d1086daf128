package tui

import (
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/batalabs/finchat/internal/chat"
	"github.com/batalabs/finchat/internal/config"
)

// Run starts the terminal UI over ctrl and blocks until the user quits.
func Run(ctrl *chat.Controller, prefs config.Preferences, version string) error {
	m := InitialModel(ctrl, prefs, version)
	p := tea.NewProgram(m)
	_, err := p.Run()
	return err
}

// MustGetwd returns the current working directory or "." on error.
func MustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
