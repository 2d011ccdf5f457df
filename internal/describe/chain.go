package describe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/suykerbuyk/evolve/internal/config"
	"github.com/suykerbuyk/evolve/internal/logging"
	"github.com/suykerbuyk/evolve/internal/sanitize"
)

// Chain is the Generator used by the engine: it asks a Provider and falls
// back to the table whenever the provider is missing or fails.
type Chain struct {
	provider Provider
	table    Table
	maxLen   int
	logger   *slog.Logger
}

// NewChain returns a Chain. A nil provider always uses the table.
func NewChain(p Provider, table Table, logger *slog.Logger) *Chain {
	if len(table) == 0 {
		table = DefaultTable()
	}
	return &Chain{provider: p, table: table, maxLen: sanitize.MaxDescription, logger: logging.OrDiscard(logger)}
}

// FromConfig builds a Chain from generator config. A disabled generator or
// an unset API key yields a table-only chain, not an error.
func FromConfig(cfg config.GeneratorConfig, logger *slog.Logger) (*Chain, error) {
	logger = logging.OrDiscard(logger)
	table, err := LoadTable(cfg.FallbackFile)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return NewChain(nil, table, logger), nil
	}
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		logger.Warn("generator api key not set, using fallback table", "env", cfg.APIKeyEnv)
		return NewChain(nil, table, logger), nil
	}
	p, err := NewProvider(cfg, apiKey)
	if err != nil {
		return nil, err
	}
	return NewChain(p, table, logger), nil
}

// NewProvider builds the provider named in cfg.
func NewProvider(cfg config.GeneratorConfig, apiKey string) (Provider, error) {
	timeout := config.Timeout(cfg.TimeoutSeconds, 30*time.Second)
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "anthropic":
		return newAnthropicProvider(apiKey, cfg.BaseURL, cfg.Model, timeout, retries), nil
	case "openai", "openai_compatible":
		return newOpenAIProvider(apiKey, cfg.BaseURL, cfg.Model, timeout, retries), nil
	default:
		return nil, fmt.Errorf("unsupported generator provider %q", cfg.Provider)
	}
}

// Table returns the fallback table in use.
func (c *Chain) Table() Table { return c.table }

// ProviderName returns the provider name, or "none" for a table-only chain.
func (c *Chain) ProviderName() string {
	if c.provider == nil {
		return "none"
	}
	return c.provider.Name()
}

// Improve implements Generator.
func (c *Chain) Improve(ctx context.Context, current string, level int) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if c.provider == nil {
		return NewFallback(c.table.At(level), "no generator configured"), nil
	}

	prompt := BuildPrompt(current, level)
	text, err := c.provider.Complete(ctx, SystemPrompt, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		c.logger.Warn("generator failed, using fallback", "provider", c.provider.Name(), "level", level, "err", err)
		return NewFallback(c.table.At(level), err.Error()), nil
	}

	text = sanitize.Description(text, c.maxLen)
	if text == "" {
		c.logger.Warn("generator returned empty description, using fallback", "provider", c.provider.Name(), "level", level)
		return NewFallback(c.table.At(level), "empty description"), nil
	}
	return NewGenerated(prompt, text), nil
}
