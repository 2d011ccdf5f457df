// Package scheduler runs evolution cycles on an interval and on demand.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/suykerbuyk/evolve/internal/engine"
	"github.com/suykerbuyk/evolve/internal/logging"
)

// Runner is the subset of the engine the scheduler drives.
type Runner interface {
	Check(ctx context.Context) (engine.Report, error)
	Reset(ctx context.Context) (engine.Report, error)
	ForceReplay(ctx context.Context, maxCommits int) (engine.Report, error)
}

// Options configures a Scheduler.
type Options struct {
	Interval   time.Duration
	TriggerDir string // optional; watched for trigger files when set
	Logger     *slog.Logger
	// OnReport is called after every cycle.
	OnReport func(engine.Report)
}

// Scheduler owns the engine for the life of `evo serve`: it runs a check at
// start, then on every interval tick and for every trigger file.
type Scheduler struct {
	runner Runner
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	watcher *fsnotify.Watcher
}

// New returns a stopped Scheduler.
func New(r Runner, opts Options) (*Scheduler, error) {
	if r == nil {
		return nil, errors.New("scheduler: nil runner")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("scheduler: interval must be positive, got %s", opts.Interval)
	}
	return &Scheduler{runner: r, opts: opts, logger: logging.OrDiscard(opts.Logger)}, nil
}

// Start launches the loop. The first check runs immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return errors.New("scheduler: already started")
	}

	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	if s.opts.TriggerDir != "" {
		if err := os.MkdirAll(s.opts.TriggerDir, 0o755); err != nil {
			return fmt.Errorf("create trigger dir: %w", err)
		}
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		if err := w.Add(s.opts.TriggerDir); err != nil {
			w.Close()
			return fmt.Errorf("watch %s: %w", s.opts.TriggerDir, err)
		}
		s.watcher = w
		events, watchErrs = w.Events, w.Errors
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	done := make(chan struct{})
	s.done = done
	go s.loop(ctx, done, events, watchErrs)

	s.logger.Info("scheduler started", "interval", s.opts.Interval, "trigger_dir", s.opts.TriggerDir)
	return nil
}

// Stop cancels the loop and waits for an in-flight cycle to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done, w := s.cancel, s.done, s.watcher
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	if w != nil {
		w.Close()
	}
	s.mu.Lock()
	s.cancel, s.done, s.watcher = nil, nil, nil
	s.mu.Unlock()
	s.logger.Info("scheduler stopped")
}

// Done is closed when the loop exits.
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}, events <-chan fsnotify.Event, watchErrs <-chan error) {
	defer close(done)

	s.runCycle(ctx, Trigger{Op: "check"})
	s.drainTriggers(ctx)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx, Trigger{Op: "check"})
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			s.handleFile(ctx, ev.Name)
		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			s.logger.Warn("trigger watcher error", "err", err)
		}
	}
}

// drainTriggers runs trigger files left while no scheduler was running.
func (s *Scheduler) drainTriggers(ctx context.Context) {
	if s.opts.TriggerDir == "" {
		return
	}
	entries, err := os.ReadDir(s.opts.TriggerDir)
	if err != nil {
		s.logger.Warn("read trigger dir", "err", err)
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		if ctx.Err() != nil {
			return
		}
		s.handleFile(ctx, filepath.Join(s.opts.TriggerDir, n))
	}
}

func (s *Scheduler) handleFile(ctx context.Context, path string) {
	t, ok := ParseTrigger(filepath.Base(path))
	if !ok {
		return
	}
	// The file is consumed before the run so a crash mid-cycle does not
	// replay a destructive trigger on restart.
	if err := os.Remove(path); err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("remove trigger", "path", path, "err", err)
		}
		return
	}
	s.logger.Info("trigger received", "op", t.Op, "count", t.Count)
	s.runCycle(ctx, t)
}

// runCycle runs one operation, recovering from panics so a bad cycle never
// takes the owner process down.
func (s *Scheduler) runCycle(ctx context.Context, t Trigger) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("cycle panicked", "op", t.Op, "panic", fmt.Sprint(r))
		}
	}()

	var rep engine.Report
	switch t.Op {
	case "check":
		rep, _ = s.runner.Check(ctx)
	case "reset":
		rep, _ = s.runner.Reset(ctx)
	case "force":
		rep, _ = s.runner.ForceReplay(ctx, t.Count)
	default:
		return
	}
	if s.opts.OnReport != nil {
		s.opts.OnReport(rep)
	}
}
