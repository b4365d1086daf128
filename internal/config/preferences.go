package config

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// DefaultAPIURL is the backend base URL used when none is configured.
const DefaultAPIURL = "http://localhost:5000/api"

// Preferences holds user-configurable settings.
// Persisted to ~/.config/finchat/config.json.
type Preferences struct {
	// Backend
	APIURL                string `json:"api_url"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`

	// Web UI
	BindAddress string `json:"bind_address"`
	Port        int    `json:"port"`

	// Chat behavior
	ErrorAlertSeconds   int      `json:"error_alert_seconds"`
	SuccessAlertSeconds int      `json:"success_alert_seconds"`
	CollectFresh        bool     `json:"collect_fresh"`
	Suggestions         []string `json:"suggestions,omitempty"`
}

// PrefEntry holds a single key-value preference entry for display.
type PrefEntry struct {
	Key   string
	Value string
}

// ConfigGroup holds a named group of preference entries for display.
type ConfigGroup struct {
	Name    string
	Entries []PrefEntry
}

// ConfigGroupDef defines a single group with a name and its keys.
type ConfigGroupDef struct {
	Name string
	Keys []string
}

// ConfigGroupDefs defines the preference key groupings and their display order.
var ConfigGroupDefs = []ConfigGroupDef{
	{Name: "backend", Keys: []string{"api.url", "api.timeout_seconds"}},
	{Name: "web", Keys: []string{"web.bind_address", "web.port"}},
	{Name: "chat", Keys: []string{"chat.collect_fresh", "chat.suggestions", "alerts.error_seconds", "alerts.success_seconds"}},
}

// ConfigGroupNames returns the list of valid group names.
func ConfigGroupNames() []string {
	names := make([]string, len(ConfigGroupDefs))
	for i, g := range ConfigGroupDefs {
		names[i] = g.Name
	}
	return names
}

// ValidConfigKeys returns all config keys accepted by Set().
func ValidConfigKeys() []string {
	var keys []string
	for _, g := range ConfigGroupDefs {
		keys = append(keys, g.Keys...)
	}
	return keys
}

// DefaultPreferences returns the default set of preferences.
func DefaultPreferences() Preferences {
	return Preferences{
		APIURL:                DefaultAPIURL,
		RequestTimeoutSeconds: 0, // no timeout unless configured
		BindAddress:           "localhost",
		Port:                  8080,
		ErrorAlertSeconds:     5,
		SuccessAlertSeconds:   3,
	}
}

// RequestTimeout returns the backend request timeout; zero disables it.
func (p Preferences) RequestTimeout() time.Duration {
	return time.Duration(p.RequestTimeoutSeconds) * time.Second
}

// ErrorAlert returns how long error alerts stay visible.
func (p Preferences) ErrorAlert() time.Duration {
	return time.Duration(p.ErrorAlertSeconds) * time.Second
}

// SuccessAlert returns how long success alerts stay visible.
func (p Preferences) SuccessAlert() time.Duration {
	return time.Duration(p.SuccessAlertSeconds) * time.Second
}

// ListenAddr returns the host:port the web UI binds to.
func (p Preferences) ListenAddr() string {
	return net.JoinHostPort(p.BindAddress, strconv.Itoa(p.Port))
}

// LoadPreferences reads preferences from ~/.config/finchat/config.json.
// Missing fields keep their defaults; a missing or unreadable file yields
// the defaults.
func LoadPreferences() Preferences {
	p := DefaultPreferences()
	path := ConfigFilePath()
	if path == "" {
		return p
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p
	}
	if err := json.Unmarshal(data, &p); err != nil {
		fmt.Fprintf(os.Stderr, "config: parse %s: %v\n", path, err)
		return DefaultPreferences()
	}
	warnInsecurePermissions(path)
	if sanitizePreferences(&p) {
		if err := SavePreferences(p); err != nil {
			fmt.Fprintf(os.Stderr, "config: save sanitized config: %v\n", err)
		}
	}
	return p
}

// SavePreferences writes preferences to ~/.config/finchat/config.json.
func SavePreferences(p Preferences) error {
	dir := ConfigDir()
	if dir == "" {
		return fmt.Errorf("could not determine config directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0o600)
}

// warnInsecurePermissions prints a warning to stderr if the config file is
// writable by group or others. On Windows the check is skipped.
func warnInsecurePermissions(path string) {
	if runtime.GOOS == "windows" {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.Mode().Perm()&0o022 != 0 {
		fmt.Fprintf(os.Stderr, "WARNING: %s is writable by others (mode %o). Run: chmod 600 %s\n",
			path, info.Mode().Perm(), path)
	}
}

// Grouped returns all preferences organized into named groups.
func (p Preferences) Grouped() []ConfigGroup {
	var groups []ConfigGroup
	for _, def := range ConfigGroupDefs {
		entries := make([]PrefEntry, 0, len(def.Keys))
		for _, key := range def.Keys {
			entries = append(entries, PrefEntry{Key: key, Value: AnnotateValue(p.Get(key))})
		}
		groups = append(groups, ConfigGroup{Name: def.Name, Entries: entries})
	}
	return groups
}

// GroupByName returns entries for a single config group, or nil if not found.
func (p Preferences) GroupByName(name string) *ConfigGroup {
	for _, g := range p.Grouped() {
		if g.Name == name {
			return &g
		}
	}
	return nil
}

// Get returns the display value for a single preference key.
func (p Preferences) Get(key string) string {
	switch key {
	case "api.url":
		return p.APIURL
	case "api.timeout_seconds":
		return strconv.Itoa(p.RequestTimeoutSeconds)
	case "web.bind_address":
		return p.BindAddress
	case "web.port":
		return strconv.Itoa(p.Port)
	case "chat.collect_fresh":
		return strconv.FormatBool(p.CollectFresh)
	case "chat.suggestions":
		return strings.Join(p.Suggestions, "|")
	case "alerts.error_seconds":
		return strconv.Itoa(p.ErrorAlertSeconds)
	case "alerts.success_seconds":
		return strconv.Itoa(p.SuccessAlertSeconds)
	default:
		return ""
	}
}

// Set updates a single preference key to the given value.
func (p *Preferences) Set(key, value string) error {
	value = SanitizeValue(value)
	switch key {
	case "api.url":
		u, err := url.Parse(value)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid API URL %q: must be an http(s) URL", value)
		}
		p.APIURL = strings.TrimRight(value, "/")
	case "api.timeout_seconds":
		n, err := parseNonNegative(value)
		if err != nil {
			return err
		}
		p.RequestTimeoutSeconds = n
	case "web.bind_address":
		p.BindAddress = value
	case "web.port":
		n, err := parseNonNegative(value)
		if err != nil {
			return err
		}
		if n > 65535 {
			return fmt.Errorf("invalid port %d", n)
		}
		p.Port = n
	case "chat.collect_fresh":
		b, err := ParseBoolish(value)
		if err != nil {
			return err
		}
		p.CollectFresh = b
	case "chat.suggestions":
		p.Suggestions = ParseSuggestions(value)
	case "alerts.error_seconds":
		n, err := parsePositive(value)
		if err != nil {
			return err
		}
		p.ErrorAlertSeconds = n
	case "alerts.success_seconds":
		n, err := parsePositive(value)
		if err != nil {
			return err
		}
		p.SuccessAlertSeconds = n
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

// SanitizeValue strips null bytes, ASCII control characters (< 32 except
// \n and \t), and DEL (0x7F) from a string value and trims surrounding
// whitespace.
func SanitizeValue(s string) string {
	return strings.Map(func(r rune) rune {
		if (r < 32 && r != '\n' && r != '\t') || r == 0x7F {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

// sanitizePreferences strips control characters from all string fields in
// an already-loaded Preferences struct. Returns true if any field was modified.
func sanitizePreferences(p *Preferences) bool {
	changed := false
	sanitize := func(s *string) {
		cleaned := SanitizeValue(*s)
		if cleaned != *s {
			*s = cleaned
			changed = true
		}
	}
	sanitize(&p.APIURL)
	sanitize(&p.BindAddress)
	for i := range p.Suggestions {
		sanitize(&p.Suggestions[i])
	}
	return changed
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// ParseBoolish parses a boolean-like string value.
func ParseBoolish(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "on", "yes", "1":
		return true, nil
	case "false", "off", "no", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value: %s (use true/false, on/off, yes/no)", s)
	}
}

// ParseSuggestions splits a "|"-separated list of starter questions.
// An empty string clears the list.
func ParseSuggestions(s string) []string {
	var out []string
	for _, part := range strings.Split(s, "|") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseNonNegative(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid number: %s (must be a non-negative integer)", s)
	}
	return n, nil
}

func parsePositive(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid number: %s (must be a positive integer)", s)
	}
	return n, nil
}

// AnnotateValue returns a display string for a config value.
// Shows "(not set)" for empty values, otherwise shows the raw value.
func AnnotateValue(value string) string {
	if value == "" {
		return "(not set)"
	}
	return value
}

// ConfigFilePath returns the absolute path to config.json.
func ConfigFilePath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.json")
}

// ---------------------------------------------------------------------------
// Config actions
// ---------------------------------------------------------------------------

// ExecuteConfigAction handles /config subcommands and returns a plain-text
// response. The caller applies its own formatting.
func ExecuteConfigAction(prefs *Preferences, args []string) (string, error) {
	sub := "show"
	if len(args) > 0 {
		sub = strings.ToLower(args[0])
	}

	switch sub {
	case "show":
		return FormatConfigGroups(prefs.Grouped()), nil

	case "backend", "web", "chat":
		group := prefs.GroupByName(sub)
		if group == nil {
			return "", fmt.Errorf("unknown config group: %s", sub)
		}
		return FormatConfigGroups([]ConfigGroup{*group}), nil

	case "set":
		if len(args) < 3 {
			return "", fmt.Errorf("usage: /config set <key> <value>")
		}
		key := args[1]
		value := strings.Join(args[2:], " ")
		if err := prefs.Set(key, value); err != nil {
			return "", err
		}
		if err := SavePreferences(*prefs); err != nil {
			return "", fmt.Errorf("failed to save: %w", err)
		}
		return fmt.Sprintf("Set %s = %s", key, prefs.Get(key)), nil

	case "reset":
		*prefs = DefaultPreferences()
		if err := SavePreferences(*prefs); err != nil {
			return "", fmt.Errorf("failed to save: %w", err)
		}
		return "Preferences reset to defaults.", nil

	default:
		return "", fmt.Errorf("usage: /config [show|backend|web|chat|set <key> <value>|reset]")
	}
}

// FormatConfigGroups renders config groups as plain text (no ANSI styling).
func FormatConfigGroups(groups []ConfigGroup) string {
	var lines []string
	for i, g := range groups {
		if i > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, strings.ToUpper(g.Name[:1])+g.Name[1:]+":")
		for _, e := range g.Entries {
			lines = append(lines, fmt.Sprintf("  %-24s %s", e.Key, e.Value))
		}
	}
	lines = append(lines, "")
	lines = append(lines, "  Use /config set <key> <value> to change")
	return strings.Join(lines, "\n")
}
