package tui

import "github.com/charmbracelet/lipgloss"

var (
	WelcomeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
	UserIconStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("111"))
	AsstIconStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	PromptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("183"))
	InputStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	CursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	ThinkingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	FooterHead    = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
	FooterMeta    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	FooterOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
	FooterDown    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	SelectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Bold(true)

	ErrorLineStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	SuccessLineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
	BulletStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("180"))
	HeadingStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("222")).Bold(true)
	CodeGutterStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	BoldInlineStyle  = lipgloss.NewStyle().Bold(true)
	InlineCodeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
	TableBorderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	TableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("111"))

	CompletionStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	CompletionSelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("62"))
)
