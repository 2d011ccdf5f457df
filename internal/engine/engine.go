// Package engine advances the evolution ledger from new commits. It is the
// only writer of the ledger: every mutating operation holds an in-process
// mutex and a cross-process file lock for its whole load/compute/save run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/suykerbuyk/evolve/internal/archive"
	"github.com/suykerbuyk/evolve/internal/commits"
	"github.com/suykerbuyk/evolve/internal/describe"
	"github.com/suykerbuyk/evolve/internal/journal"
	"github.com/suykerbuyk/evolve/internal/ledger"
	"github.com/suykerbuyk/evolve/internal/lockfile"
	"github.com/suykerbuyk/evolve/internal/logging"
	"github.com/suykerbuyk/evolve/internal/publish"
	"github.com/suykerbuyk/evolve/internal/sanitize"
)

var (
	// ErrSourceUnavailable wraps commit fetch failures.
	ErrSourceUnavailable = errors.New("commit source unavailable")
	// ErrPublishFailed wraps asset publisher failures.
	ErrPublishFailed = errors.New("asset publish failed")
)

// Orientation is the phrase every published description must contain.
const Orientation = "facing right"

// FaceRight appends the orientation phrase when description lacks it.
func FaceRight(description string) string {
	d := strings.TrimSpace(description)
	if strings.Contains(strings.ToLower(d), Orientation) {
		return d
	}
	d = strings.TrimRight(d, " .,;")
	if d == "" {
		return Orientation
	}
	return d + ", " + Orientation
}

// Options wires an Engine. Source, Generator, Publisher and Store are
// required; the rest are optional.
type Options struct {
	Source    commits.Source
	Generator describe.Generator
	Publisher publish.Publisher
	Store     *ledger.Store

	Archiver *archive.Archiver
	Journal  *journal.Journal
	LockPath string
	LockPoll time.Duration
	Logger   *slog.Logger

	// Orient enforces the orientation constraint on each new description.
	// Defaults to FaceRight.
	Orient func(string) string
	Now    func() time.Time
	NewID  func() string
}

// Engine runs evolution operations.
type Engine struct {
	src     commits.Source
	gen     describe.Generator
	pub     publish.Publisher
	store   *ledger.Store
	arch    *archive.Archiver
	journal *journal.Journal

	lockPath string
	lockPoll time.Duration
	logger   *slog.Logger
	orient   func(string) string
	now      func() time.Time
	newID    func() string

	mu sync.Mutex
}

// New validates opts and returns an Engine.
func New(opts Options) (*Engine, error) {
	switch {
	case opts.Source == nil:
		return nil, errors.New("engine: missing commit source")
	case opts.Generator == nil:
		return nil, errors.New("engine: missing generator")
	case opts.Publisher == nil:
		return nil, errors.New("engine: missing publisher")
	case opts.Store == nil:
		return nil, errors.New("engine: missing ledger store")
	}
	e := &Engine{
		src:      opts.Source,
		gen:      opts.Generator,
		pub:      opts.Publisher,
		store:    opts.Store,
		arch:     opts.Archiver,
		journal:  opts.Journal,
		lockPath: opts.LockPath,
		lockPoll: opts.LockPoll,
		logger:   logging.OrDiscard(opts.Logger),
		orient:   opts.Orient,
		now:      opts.Now,
		newID:    opts.NewID,
	}
	if e.lockPoll <= 0 {
		e.lockPoll = lockfile.DefaultPoll
	}
	if e.orient == nil {
		e.orient = FaceRight
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	return e, nil
}

// Ledger returns the current ledger without taking the writer lock.
func (e *Engine) Ledger() (*ledger.Ledger, error) {
	return e.store.Load()
}

// Check runs one evolution cycle: fetch commits, fold every commit not yet
// in the history (oldest first) through the generator, publish the final
// description once, then save. Nothing is saved unless publishing succeeds.
func (e *Engine) Check(ctx context.Context) (Report, error) {
	return e.run(ctx, OpCheck, e.check)
}

func (e *Engine) check(ctx context.Context, rep *Report) error {
	all, err := e.src.Fetch(ctx)
	if err != nil {
		rep.Outcome = OutcomeSourceUnavailable
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	if len(all) == 0 {
		rep.Outcome = OutcomeNoCommits
		return nil
	}

	cur, err := e.store.Load()
	if err != nil {
		rep.Outcome = OutcomeFailed
		return fmt.Errorf("load ledger: %w", err)
	}
	rep.Level, rep.Description = cur.Level, cur.CurrentDescription

	fresh := NewCommits(cur, all)
	if len(fresh) == 0 {
		rep.Outcome = OutcomeUpToDate
		return nil
	}

	next := cur.Clone()
	if err := e.fold(ctx, next, fresh, rep); err != nil {
		rep.Outcome = OutcomeAborted
		rep.NewEvents, rep.Fallbacks = nil, 0
		return err
	}
	if err := e.publish(ctx, next.CurrentDescription, rep); err != nil {
		return err
	}
	if err := e.save(ctx, next, fresh[len(fresh)-1].ID, rep); err != nil {
		return err
	}
	rep.Outcome = OutcomeEvolved
	return nil
}

// Reset replaces the ledger with the canonical default and publishes the
// canonical description. The previous ledger is archived first. A publish
// failure is returned but the reset stands.
func (e *Engine) Reset(ctx context.Context) (Report, error) {
	return e.run(ctx, OpReset, e.reset)
}

func (e *Engine) reset(ctx context.Context, rep *Report) error {
	if err := e.snapshot("reset", rep); err != nil {
		rep.Outcome = OutcomeFailed
		return err
	}
	fresh := ledger.Default()
	if err := e.save(ctx, fresh, "", rep); err != nil {
		return err
	}
	rep.Outcome = OutcomeReset
	if err := e.pub.Publish(ctx, fresh.CurrentDescription); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// ForceReplay rebuilds the ledger from scratch: it ignores the current
// history, takes the oldest maxCommits commits and replays the chain from
// the canonical description. When fewer commits exist all of them are
// replayed. The ledger is only replaced if publishing succeeds.
func (e *Engine) ForceReplay(ctx context.Context, maxCommits int) (Report, error) {
	if maxCommits <= 0 {
		err := fmt.Errorf("force replay: max commits must be positive, got %d", maxCommits)
		return Report{Op: OpForce, Outcome: OutcomeFailed, Err: err}, err
	}
	return e.run(ctx, OpForce, func(ctx context.Context, rep *Report) error {
		return e.forceReplay(ctx, maxCommits, rep)
	})
}

func (e *Engine) forceReplay(ctx context.Context, maxCommits int, rep *Report) error {
	all, err := e.src.Fetch(ctx)
	if err != nil {
		rep.Outcome = OutcomeSourceUnavailable
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	if len(all) == 0 {
		rep.Outcome = OutcomeNoCommits
		return nil
	}

	picked := commits.Unique(append([]commits.Commit(nil), all...))
	commits.Sort(picked)
	if len(picked) > maxCommits {
		picked = picked[:maxCommits]
	} else if len(picked) < maxCommits {
		e.logger.Warn("fewer commits than requested, replaying all", "requested", maxCommits, "available", len(picked))
	}

	next := ledger.Default()
	if err := e.fold(ctx, next, picked, rep); err != nil {
		rep.Outcome = OutcomeAborted
		rep.NewEvents, rep.Fallbacks = nil, 0
		return err
	}
	if err := e.publish(ctx, next.CurrentDescription, rep); err != nil {
		return err
	}
	if err := e.snapshot("force", rep); err != nil {
		rep.Outcome = OutcomeFailed
		return err
	}
	if err := e.save(ctx, next, picked[len(picked)-1].ID, rep); err != nil {
		return err
	}
	rep.Outcome = OutcomeReplayed
	return nil
}

// Generate publishes description directly, bypassing the ledger.
func (e *Engine) Generate(ctx context.Context, description string) (Report, error) {
	return e.run(ctx, OpGenerate, func(ctx context.Context, rep *Report) error {
		d := sanitize.Description(description, 0)
		if d == "" {
			rep.Outcome = OutcomeFailed
			return errors.New("generate: empty description")
		}
		d = e.orient(d)
		rep.Description = d
		if err := e.pub.Publish(ctx, d); err != nil {
			rep.Outcome = OutcomePublishFailed
			return fmt.Errorf("%w: %w", ErrPublishFailed, err)
		}
		rep.Outcome = OutcomePublished
		return nil
	})
}

// NewCommits returns the commits in all whose id is not yet in l's
// history, deduplicated and sorted oldest first.
func NewCommits(l *ledger.Ledger, all []commits.Commit) []commits.Commit {
	known := l.CommitIDs()
	var out []commits.Commit
	for _, c := range all {
		if c.ID == "" || known[c.ID] {
			continue
		}
		out = append(out, c)
	}
	out = commits.Unique(out)
	commits.Sort(out)
	return out
}

// fold chains the generator over cs, appending one event per commit.
func (e *Engine) fold(ctx context.Context, l *ledger.Ledger, cs []commits.Commit, rep *Report) error {
	for _, c := range cs {
		res, err := e.gen.Improve(ctx, l.CurrentDescription, l.Level)
		if err != nil {
			return fmt.Errorf("generate level %d: %w", l.Level+1, err)
		}
		source := ledger.SourceGenerated
		prompt := res.Prompt
		if res.IsFallback() {
			source = ledger.SourceFallback
			prompt = describe.FallbackPrompt
			rep.Fallbacks++
			e.logger.Warn("fallback description used",
				"cycle_id", rep.CycleID, "commit", shortID(c.ID), "level", l.Level+1, "reason", res.Reason)
		}
		ev, err := l.Append(ledger.Event{
			CommitID:       c.ID,
			CommitMessage:  c.Message,
			CommitDate:     c.Date.UTC(),
			NewDescription: e.orient(res.Text),
			Prompt:         prompt,
			Source:         source,
		})
		if err != nil {
			return err
		}
		rep.NewEvents = append(rep.NewEvents, ev)
		e.logger.Info("evolved",
			"cycle_id", rep.CycleID, "commit", shortID(c.ID), "level", ev.Level, "source", source)
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, description string, rep *Report) error {
	if err := e.pub.Publish(ctx, description); err != nil {
		rep.Outcome = OutcomePublishFailed
		rep.NewEvents, rep.Fallbacks = nil, 0
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// save persists l with the cursor set. A mirror failure after a durable
// write is a warning, not a failed save.
func (e *Engine) save(ctx context.Context, l *ledger.Ledger, cursorID string, rep *Report) error {
	l.CursorCommitID = cursorID
	if cursorID != "" {
		ts := e.now().UTC()
		l.CursorTimestamp = &ts
	}
	if err := e.store.Save(ctx, l); err != nil {
		if !errors.Is(err, ledger.ErrMirror) {
			rep.Outcome = OutcomeFailed
			rep.NewEvents, rep.Fallbacks = nil, 0
			return err
		}
		rep.Warning = err.Error()
		e.logger.Warn("ledger saved but not mirrored", "cycle_id", rep.CycleID, "err", err)
	}
	rep.Level, rep.Description = l.Level, l.CurrentDescription
	if d, err := l.Digest(); err == nil {
		rep.Digest = d
	}
	return nil
}

// snapshot archives the ledger file as it is on disk, including a document
// that no longer loads.
func (e *Engine) snapshot(reason string, rep *Report) error {
	if e.arch == nil {
		return nil
	}
	data, err := os.ReadFile(e.store.Path())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read ledger for archive: %w", err)
	}
	path, err := e.arch.Snapshot(reason, data, e.now())
	if err != nil {
		return fmt.Errorf("archive ledger: %w", err)
	}
	rep.Snapshot = path
	return nil
}

// describeCurrent fills the level and description from the stored ledger
// for reports that did not save one.
func (e *Engine) describeCurrent(rep *Report) {
	cur, err := e.store.Load()
	if err != nil {
		return
	}
	rep.Level, rep.Description = cur.Level, cur.CurrentDescription
}

// run serializes op behind the mutex and file lock, then logs and journals
// its report.
func (e *Engine) run(ctx context.Context, op string, fn func(context.Context, *Report) error) (Report, error) {
	rep := Report{CycleID: e.newID(), Op: op, StartedAt: e.now()}

	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.withLock(ctx, func() error { return fn(ctx, &rep) })
	if err != nil && rep.Outcome == "" {
		rep.Outcome = OutcomeAborted
	}
	if rep.Digest == "" && op != OpGenerate {
		e.describeCurrent(&rep)
	}
	rep.Err = err
	rep.FinishedAt = e.now()

	e.logReport(rep)
	e.record(rep)
	return rep, err
}

func (e *Engine) withLock(ctx context.Context, fn func() error) error {
	if e.lockPath == "" {
		return fn()
	}
	lock, err := lockfile.AcquireWait(ctx, e.lockPath, e.lockPoll)
	if err != nil {
		return fmt.Errorf("acquire ledger lock: %w", err)
	}
	defer func() {
		if rerr := lock.Release(); rerr != nil {
			e.logger.Warn("release ledger lock", "err", rerr)
		}
	}()
	return fn()
}

func (e *Engine) logReport(rep Report) {
	attrs := []any{
		"cycle_id", rep.CycleID,
		"op", rep.Op,
		"outcome", string(rep.Outcome),
		"new_events", len(rep.NewEvents),
		"fallbacks", rep.Fallbacks,
		"level", rep.Level,
		"elapsed", rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond),
	}
	switch {
	case rep.Err != nil:
		e.logger.Error("cycle finished", append(attrs, "err", rep.Err)...)
	case rep.Warning != "":
		e.logger.Warn("cycle finished", append(attrs, "warning", rep.Warning)...)
	default:
		e.logger.Info("cycle finished", attrs...)
	}
}

// record journals rep. Journal errors are logged and never fail the run.
func (e *Engine) record(rep Report) {
	if e.journal == nil {
		return
	}
	run := journal.Run{
		ID:          rep.CycleID,
		Op:          rep.Op,
		Outcome:     string(rep.Outcome),
		StartedAt:   rep.StartedAt,
		FinishedAt:  rep.FinishedAt,
		NewEvents:   len(rep.NewEvents),
		Fallbacks:   rep.Fallbacks,
		Level:       rep.Level,
		Description: rep.Description,
		Digest:      rep.Digest,
	}
	if rep.Err != nil {
		run.Error = rep.Err.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.journal.Record(ctx, run); err != nil {
		e.logger.Warn("journal record failed", "cycle_id", rep.CycleID, "err", err)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
