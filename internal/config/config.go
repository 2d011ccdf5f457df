// Package config loads evo settings from config.toml and resolves the
// state paths derived from them.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all evolve configuration.
type Config struct {
	StateDir string `toml:"state_dir"`

	Source    SourceConfig    `toml:"source"`
	Generator GeneratorConfig `toml:"generator"`
	Publisher PublisherConfig `toml:"publisher"`
	Published PublishedConfig `toml:"published"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Archive   ArchiveConfig   `toml:"archive"`
	Log       LogConfig       `toml:"log"`
}

// SourceConfig points at the hosted commit search API.
type SourceConfig struct {
	Author            string `toml:"author"`
	Repo              string `toml:"repo"`
	BaseURL           string `toml:"base_url"`
	TokenEnv          string `toml:"token_env"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
}

type GeneratorConfig struct {
	Enabled        bool   `toml:"enabled"`
	Provider       string `toml:"provider"`
	Model          string `toml:"model"`
	APIKeyEnv      string `toml:"api_key_env"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxRetries     int    `toml:"max_retries"`
	FallbackFile   string `toml:"fallback_file"`
}

// PublisherConfig describes the asset regeneration subprocess. Any argument
// equal to "{description}" is replaced with the final description.
type PublisherConfig struct {
	Command        string   `toml:"command"`
	Args           []string `toml:"args"`
	Dir            string   `toml:"dir"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// PublishedConfig controls where the read-only ledger copy for the game goes.
type PublishedConfig struct {
	Path       string `toml:"path"`
	S3Bucket   string `toml:"s3_bucket"`
	S3Key      string `toml:"s3_key"`
	S3Region   string `toml:"s3_region"`
	S3Endpoint string `toml:"s3_endpoint"`
}

type SchedulerConfig struct {
	Interval string `toml:"interval"`
}

type ArchiveConfig struct {
	Compress bool `toml:"compress"`
	Keep     int  `toml:"keep"`
}

type LogConfig struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// IntervalEnv overrides the scheduler interval when set.
const IntervalEnv = "EVO_INTERVAL"

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		StateDir: "~/.local/state/evolve",
		Source: SourceConfig{
			Author:            "",
			BaseURL:           "https://api.github.com",
			TokenEnv:          "GITHUB_TOKEN",
			RequestsPerMinute: 30,
			TimeoutSeconds:    20,
		},
		Generator: GeneratorConfig{
			Enabled:        true,
			Provider:       "anthropic",
			Model:          "claude-3-5-haiku-latest",
			APIKeyEnv:      "ANTHROPIC_API_KEY",
			TimeoutSeconds: 30,
			MaxRetries:     2,
		},
		Publisher: PublisherConfig{
			Command:        "python3",
			Args:           []string{"asset_generator/generate_character.py", "--description", "{description}", "--animation"},
			TimeoutSeconds: 600,
		},
		Published: PublishedConfig{
			Path: "public/evolution.json",
		},
		Scheduler: SchedulerConfig{
			Interval: "1h",
		},
		Archive: ArchiveConfig{
			Compress: true,
			Keep:     20,
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
	}
}

// Load reads config from the standard path, falling back to defaults.
func Load() (Config, error) {
	cfg := DefaultConfig()

	for _, p := range configPaths() {
		if _, err := os.Stat(p); err == nil {
			if _, err := toml.DecodeFile(p, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", p, err)
			}
			break
		}
	}

	if v := strings.TrimSpace(os.Getenv(IntervalEnv)); v != "" {
		cfg.Scheduler.Interval = v
	}

	cfg.StateDir = expandHome(cfg.StateDir)
	cfg.Published.Path = expandHome(cfg.Published.Path)
	cfg.Publisher.Dir = expandHome(cfg.Publisher.Dir)
	cfg.Generator.FallbackFile = expandHome(cfg.Generator.FallbackFile)

	return cfg, nil
}

func configPaths() []string {
	var paths []string

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "evolve", "config.toml"))
	}

	home, _ := os.UserHomeDir()
	if home != "" {
		paths = append(paths, filepath.Join(home, ".config", "evolve", "config.toml"))
	}

	return paths
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// Interval parses the scheduler interval. Values below one minute are
// rejected so a typo cannot hammer the commit API.
func (c Config) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(c.Scheduler.Interval))
	if err != nil {
		return 0, fmt.Errorf("parse scheduler interval %q: %w", c.Scheduler.Interval, err)
	}
	if d < time.Minute {
		return 0, fmt.Errorf("scheduler interval %s is below 1m", d)
	}
	return d, nil
}

// LedgerPath returns the path of the authoritative ledger document.
func (c Config) LedgerPath() string {
	return filepath.Join(c.StateDir, "ledger.json")
}

// LockPath returns the cross-process writer lock path.
func (c Config) LockPath() string {
	return filepath.Join(c.StateDir, "ledger.lock")
}

// ArchiveDir returns the directory holding ledger snapshots.
func (c Config) ArchiveDir() string {
	return filepath.Join(c.StateDir, "archive")
}

// JournalPath returns the sqlite cycle journal path.
func (c Config) JournalPath() string {
	return filepath.Join(c.StateDir, "journal.db")
}

// TriggerDir returns the directory watched by `evo serve`.
func (c Config) TriggerDir() string {
	return filepath.Join(c.StateDir, "triggers")
}

// Timeout converts a seconds setting, using def when unset.
func Timeout(seconds int, def time.Duration) time.Duration {
	if seconds <= 0 {
		return def
	}
	return time.Duration(seconds) * time.Second
}
