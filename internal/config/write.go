package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConfigDir returns the evolve config directory path.
// Uses $XDG_CONFIG_HOME/evolve if set, otherwise ~/.config/evolve.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "evolve")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "evolve")
}

// WriteDefault writes a default config.toml tracking author.
// Returns the config file path. Skips if config.toml already exists.
func WriteDefault(author, stateDir string) (string, error) {
	dir := ConfigDir()
	path := filepath.Join(dir, "config.toml")

	if _, err := os.Stat(path); err == nil {
		return path, nil // already exists
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}

	if stateDir == "" {
		stateDir = DefaultConfig().StateDir
	}

	content := fmt.Sprintf(`state_dir = %q

[source]
author = %q
repo = ""
base_url = "https://api.github.com"
token_env = "GITHUB_TOKEN"
requests_per_minute = 30
timeout_seconds = 20

[generator]
enabled = true
provider = "anthropic"
model = "claude-3-5-haiku-latest"
api_key_env = "ANTHROPIC_API_KEY"
timeout_seconds = 30
max_retries = 2
fallback_file = ""

[publisher]
command = "python3"
args = ["asset_generator/generate_character.py", "--description", "{description}", "--animation"]
timeout_seconds = 600

[published]
path = "public/evolution.json"

[scheduler]
interval = "1h"

[archive]
compress = true
keep = 20

[log]
format = "text"
level = "info"
`, CompressHome(stateDir), author)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}

	return path, nil
}

// CompressHome replaces $HOME prefix with ~/ for portable config values.
func CompressHome(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if strings.HasPrefix(path, home+"/") {
		return "~/" + path[len(home)+1:]
	}
	if path == home {
		return "~"
	}
	return path
}
