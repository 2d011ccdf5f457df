// Package publish regenerates the character's sprite assets from a final
// description by running an external command.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/suykerbuyk/evolve/internal/config"
	"github.com/suykerbuyk/evolve/internal/logging"
)

// Placeholder is replaced with the description in command arguments.
const Placeholder = "{description}"

const tailBytes = 2048

// Publisher synthesizes assets for a description. Any error means the
// assets were not (fully) regenerated.
type Publisher interface {
	Publish(ctx context.Context, description string) error
}

// Func adapts a function to Publisher.
type Func func(ctx context.Context, description string) error

func (f Func) Publish(ctx context.Context, description string) error { return f(ctx, description) }

// Command runs a subprocess per publish. A non-zero exit, a timeout or a
// failure to start is an error.
type Command struct {
	name    string
	args    []string
	dir     string
	timeout time.Duration
	logger  *slog.Logger
}

// NewCommand builds a Command from config.
func NewCommand(cfg config.PublisherConfig, logger *slog.Logger) (*Command, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, errors.New("publisher command is not configured")
	}
	return &Command{
		name:    cfg.Command,
		args:    append([]string(nil), cfg.Args...),
		dir:     cfg.Dir,
		timeout: config.Timeout(cfg.TimeoutSeconds, 10*time.Minute),
		logger:  logging.OrDiscard(logger),
	}, nil
}

// Args returns the argument list for description. When no argument holds
// the placeholder the description is appended as the last argument.
func (c *Command) Args(description string) []string {
	out := make([]string, 0, len(c.args)+1)
	found := false
	for _, a := range c.args {
		if strings.Contains(a, Placeholder) {
			found = true
			a = strings.ReplaceAll(a, Placeholder, description)
		}
		out = append(out, a)
	}
	if !found {
		out = append(out, description)
	}
	return out
}

// String renders the command line with the placeholder left in place.
func (c *Command) String() string {
	return strings.Join(append([]string{c.name}, c.args...), " ")
}

// Publish runs the command and waits for it.
func (c *Command) Publish(ctx context.Context, description string) error {
	if strings.TrimSpace(description) == "" {
		return errors.New("empty description")
	}
	execCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, c.name, c.Args(description)...)
	cmd.Dir = c.dir
	out := &tailBuffer{max: tailBytes}
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = 5 * time.Second

	started := time.Now()
	c.logger.Info("publishing assets", "command", c.name, "description", description)
	err := cmd.Run()
	elapsed := time.Since(started).Round(time.Millisecond)

	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			err = fmt.Errorf("timed out after %s", c.timeout)
		}
		if tail := strings.TrimSpace(out.String()); tail != "" {
			return fmt.Errorf("publisher %s: %w\n%s", c.name, err, tail)
		}
		return fmt.Errorf("publisher %s: %w", c.name, err)
	}
	c.logger.Info("assets published", "command", c.name, "elapsed", elapsed)
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu        sync.Mutex
	buf       []byte
	max       int
	truncated bool
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = append(t.buf[:0], t.buf[len(t.buf)-t.max:]...)
		t.truncated = true
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.truncated {
		return "[...]" + string(t.buf)
	}
	return string(t.buf)
}
