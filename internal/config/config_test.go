package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.StateDir != "~/.local/state/evolve" {
		t.Errorf("StateDir = %q", cfg.StateDir)
	}
	if cfg.Source.BaseURL != "https://api.github.com" {
		t.Errorf("Source.BaseURL = %q", cfg.Source.BaseURL)
	}
	if cfg.Source.TokenEnv != "GITHUB_TOKEN" {
		t.Errorf("Source.TokenEnv = %q", cfg.Source.TokenEnv)
	}
	if !cfg.Generator.Enabled {
		t.Error("Generator.Enabled should default to true")
	}
	if cfg.Generator.Provider != "anthropic" {
		t.Errorf("Generator.Provider = %q", cfg.Generator.Provider)
	}
	if cfg.Scheduler.Interval != "1h" {
		t.Errorf("Scheduler.Interval = %q", cfg.Scheduler.Interval)
	}
	if !cfg.Archive.Compress {
		t.Error("Archive.Compress should default to true")
	}
	found := false
	for _, a := range cfg.Publisher.Args {
		if a == "{description}" {
			found = true
		}
	}
	if !found {
		t.Errorf("Publisher.Args missing {description} placeholder: %v", cfg.Publisher.Args)
	}
}

func TestLoad_NoConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv(IntervalEnv, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if strings.HasPrefix(cfg.StateDir, "~/") {
		t.Errorf("StateDir not expanded: %q", cfg.StateDir)
	}
	if !strings.HasSuffix(cfg.StateDir, filepath.Join(".local", "state", "evolve")) {
		t.Errorf("StateDir = %q", cfg.StateDir)
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv("HOME", t.TempDir())
	t.Setenv(IntervalEnv, "")

	configDir := filepath.Join(xdg, "evolve")
	os.MkdirAll(configDir, 0o755)

	tomlContent := `state_dir = "/custom/state"

[source]
author = "potnoodledev"
repo = "potnoodledev/evolve"

[generator]
provider = "openai"
model = "gpt-4o-mini"
api_key_env = "OPENAI_API_KEY"

[publisher]
command = "/bin/true"
args = ["{description}"]

[scheduler]
interval = "15m"
`
	os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(tomlContent), 0o644)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.StateDir != "/custom/state" {
		t.Errorf("StateDir = %q", cfg.StateDir)
	}
	if cfg.Source.Author != "potnoodledev" {
		t.Errorf("Source.Author = %q", cfg.Source.Author)
	}
	if cfg.Source.Repo != "potnoodledev/evolve" {
		t.Errorf("Source.Repo = %q", cfg.Source.Repo)
	}
	// Unset keys keep their defaults.
	if cfg.Source.TokenEnv != "GITHUB_TOKEN" {
		t.Errorf("Source.TokenEnv = %q", cfg.Source.TokenEnv)
	}
	if cfg.Generator.Provider != "openai" {
		t.Errorf("Generator.Provider = %q", cfg.Generator.Provider)
	}
	if cfg.Publisher.Command != "/bin/true" {
		t.Errorf("Publisher.Command = %q", cfg.Publisher.Command)
	}
	d, err := cfg.Interval()
	if err != nil {
		t.Fatalf("Interval: %v", err)
	}
	if d != 15*time.Minute {
		t.Errorf("Interval = %s", d)
	}
	if cfg.LedgerPath() != "/custom/state/ledger.json" {
		t.Errorf("LedgerPath = %q", cfg.LedgerPath())
	}
}

func TestLoad_BadTOML(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv("HOME", t.TempDir())

	configDir := filepath.Join(xdg, "evolve")
	os.MkdirAll(configDir, 0o755)
	os.WriteFile(filepath.Join(configDir, "config.toml"), []byte("state_dir = [unclosed"), 0o644)

	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_IntervalEnvOverride(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv(IntervalEnv, "5m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	d, err := cfg.Interval()
	if err != nil {
		t.Fatalf("Interval: %v", err)
	}
	if d != 5*time.Minute {
		t.Errorf("Interval = %s, want 5m", d)
	}
}

func TestInterval_Invalid(t *testing.T) {
	tests := []string{"", "soon", "10s", "-1h"}
	for _, v := range tests {
		cfg := DefaultConfig()
		cfg.Scheduler.Interval = v
		if _, err := cfg.Interval(); err == nil {
			t.Errorf("Interval(%q): expected error", v)
		}
	}
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if got := expandHome("~/state"); got != filepath.Join(home, "state") {
		t.Errorf("expandHome(~/state) = %q", got)
	}
	if got := expandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("expandHome(/abs/path) = %q", got)
	}
	if got := expandHome("relative"); got != "relative" {
		t.Errorf("expandHome(relative) = %q", got)
	}
}

func TestTimeout(t *testing.T) {
	if got := Timeout(0, 7*time.Second); got != 7*time.Second {
		t.Errorf("Timeout(0) = %s", got)
	}
	if got := Timeout(3, 7*time.Second); got != 3*time.Second {
		t.Errorf("Timeout(3) = %s", got)
	}
}
