package tui

import (
	"fmt"
	"strings"

	"github.com/batalabs/finchat/internal/config"
	"github.com/batalabs/finchat/internal/domain"
)

// ConfigSubcommands lists the available /config subcommands.
var ConfigSubcommands = []string{"backend", "chat", "reset", "set", "show", "web"}

// ExportKinds lists the datasets /export can save.
var ExportKinds = []string{"history", "news", "prices"}

// SlashCommands returns the names of every slash command.
func SlashCommands() []string {
	names := make([]string, 0, len(domain.CommandDefs))
	for _, c := range domain.CommandDefs {
		names = append(names, c.Name)
	}
	return names
}

// symbolCommands take stock symbols as arguments; the value is how many
// symbols they accept (0 means any number).
var symbolCommands = map[string]int{
	"/history": 1,
	"/news":    1,
	"/prices":  0,
	"/select":  0,
}

// ComputeCompletions returns full-input completion candidates for input.
// symbols are the loaded stock symbols offered as arguments.
func ComputeCompletions(input string, symbols []string) []string {
	if !strings.HasPrefix(input, "/") {
		return nil
	}

	fields := strings.Fields(input)
	trailingSpace := strings.HasSuffix(input, " ")
	cmd := strings.ToLower(fields[0])

	if len(fields) == 1 && !trailingSpace {
		return FilterByPrefix(SlashCommands(), "", cmd)
	}

	// args holds the completed arguments; partial is the word being typed.
	args := fields[1:]
	partial := ""
	if !trailingSpace && len(args) > 0 {
		partial = args[len(args)-1]
		args = args[:len(args)-1]
	}
	prefix := strings.Join(append([]string{fields[0]}, args...), " ") + " "

	switch cmd {
	case "/config":
		if len(args) == 0 {
			return FilterByPrefix(ConfigSubcommands, prefix, partial)
		}
		if strings.ToLower(args[0]) == "set" && len(args) == 1 {
			return FilterByPrefix(config.ValidConfigKeys(), prefix, partial)
		}
	case "/export":
		if len(args) == 0 {
			return FilterByPrefix(ExportKinds, prefix, partial)
		}
		if strings.ToLower(args[0]) != "prices" && len(args) > 1 {
			return nil
		}
		return FilterByPrefix(symbols, prefix, strings.ToUpper(partial))
	default:
		limit, ok := symbolCommands[cmd]
		if !ok || (limit > 0 && len(args) >= limit) {
			return nil
		}
		return FilterByPrefix(symbols, prefix, strings.ToUpper(partial))
	}
	return nil
}

// FilterByPrefix returns candidates that start with partial, each prefixed
// with the given prefix string. If partial is empty, all candidates match.
func FilterByPrefix(candidates []string, prefix, partial string) []string {
	var result []string
	lower := strings.ToLower(partial)
	for _, c := range candidates {
		if strings.HasPrefix(strings.ToLower(c), lower) {
			result = append(result, prefix+c)
		}
	}
	return result
}

// CommandExpectsArgs reports whether the completed command should get a
// trailing space (rather than being submitted) because it needs an argument.
func CommandExpectsArgs(completion string) bool {
	fields := strings.Fields(completion)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToLower(fields[0]) {
	case "/history", "/news", "/select", "/export":
		return len(fields) == 1
	case "/config":
		if len(fields) == 2 && strings.ToLower(fields[1]) == "set" {
			return true
		}
		// /config set KEY expects a value
		return len(fields) == 3 && strings.ToLower(fields[1]) == "set"
	}
	return false
}

// RenderCompletionMenu renders up to maxVisible completion items as a
// vertical menu. The selected item is highlighted.
func RenderCompletionMenu(completions []string, selectedIdx, width int) string {
	const maxVisible = 8
	n := len(completions)
	if n == 0 {
		return ""
	}

	var b strings.Builder
	visible := min(n, maxVisible)
	for i := 0; i < visible; i++ {
		label := completions[i]
		if len(label) > width-4 {
			label = label[:width-4]
		}
		if i == selectedIdx {
			b.WriteString(CompletionSelStyle.Render(" " + label + " "))
		} else {
			b.WriteString(CompletionStyle.Render(" " + label + " "))
		}
		b.WriteString("\n")
	}
	if n > maxVisible {
		b.WriteString(CompletionStyle.Render(fmt.Sprintf(" ... and %d more", n-maxVisible)))
		b.WriteString("\n")
	}
	return b.String()
}
