package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// appName names the config and data directories.
const appName = "finchat"

// Environment variables that override preferences.
const (
	EnvAPIURL = "FINCHAT_API_URL"
	EnvBind   = "FINCHAT_BIND"
	EnvPort   = "FINCHAT_PORT"
)

// configDirOverride is set by tests to redirect ConfigDir.
var configDirOverride string

// ConfigDir returns the config directory for finchat.
func ConfigDir() string {
	if configDirOverride != "" {
		return configDirOverride
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", appName)
}

// DataDir returns ~/.local/share/finchat, creating it if needed.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".local", "share", appName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// ApplyEnv overrides p with any FINCHAT_* variables set in the environment.
// It returns the names of the variables that were applied.
func ApplyEnv(p *Preferences) ([]string, error) {
	var applied []string
	if v := strings.TrimSpace(os.Getenv(EnvAPIURL)); v != "" {
		if err := p.Set("api.url", v); err != nil {
			return applied, fmt.Errorf("%s: %w", EnvAPIURL, err)
		}
		applied = append(applied, EnvAPIURL)
	}
	if v := strings.TrimSpace(os.Getenv(EnvBind)); v != "" {
		p.BindAddress = SanitizeValue(v)
		applied = append(applied, EnvBind)
	}
	if v := strings.TrimSpace(os.Getenv(EnvPort)); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 0 || port > 65535 {
			return applied, fmt.Errorf("%s: invalid port %q", EnvPort, v)
		}
		p.Port = port
		applied = append(applied, EnvPort)
	}
	return applied, nil
}
