package domain

import (
	"strings"
	"time"
)

// Stock is an entry from the backend's list of available symbols.
type Stock struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// Role identifies who a chat message came from.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleAlert     Role = "alert"
)

// AlertLevel distinguishes error alerts from success alerts.
type AlertLevel string

const (
	AlertError   AlertLevel = "error"
	AlertSuccess AlertLevel = "success"
)

// Message is one entry in the chat transcript. Messages are appended and
// never modified; alerts carry an expiry after which they are hidden.
type Message struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Level     AlertLevel `json:"level,omitempty"`
	Text      string     `json:"text"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at,omitempty"`
}

// IsAlert reports whether the message is a transient alert.
func (m Message) IsAlert() bool {
	return m.Role == RoleAlert
}

// Expired reports whether an alert has passed its expiry at now.
// Non-alert messages never expire.
func (m Message) Expired(now time.Time) bool {
	if !m.IsAlert() || m.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(m.ExpiresAt)
}

// Selection is an ordered set of stock symbols chosen by the user.
// The zero value is an empty selection ready to use.
type Selection struct {
	symbols []string
}

// Toggle adds symbol to the end of the selection, or removes it if it is
// already selected. It reports whether the symbol is selected afterwards.
func (s *Selection) Toggle(symbol string) bool {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return false
	}
	for i, existing := range s.symbols {
		if existing == symbol {
			s.symbols = append(s.symbols[:i:i], s.symbols[i+1:]...)
			return false
		}
	}
	s.symbols = append(s.symbols, symbol)
	return true
}

// Has reports whether symbol is selected.
func (s *Selection) Has(symbol string) bool {
	for _, existing := range s.symbols {
		if existing == symbol {
			return true
		}
	}
	return false
}

// Clear removes every symbol.
func (s *Selection) Clear() {
	s.symbols = nil
}

// Len returns the number of selected symbols.
func (s *Selection) Len() int {
	return len(s.symbols)
}

// Symbols returns a copy of the selected symbols in selection order.
func (s *Selection) Symbols() []string {
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

// String joins the selected symbols for display ("AAPL, MSFT").
func (s *Selection) String() string {
	return strings.Join(s.symbols, ", ")
}
