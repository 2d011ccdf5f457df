package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/suykerbuyk/evolve/internal/commits"
	"github.com/suykerbuyk/evolve/internal/describe"
	"github.com/suykerbuyk/evolve/internal/ledger"
)

var t0 = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

func commitAt(id string, minutes int) commits.Commit {
	return commits.Commit{ID: id, Message: "commit " + id, Date: t0.Add(time.Duration(minutes) * time.Minute)}
}

// fakeSource returns a fixed commit list or error.
type fakeSource struct {
	mu      sync.Mutex
	commits []commits.Commit
	err     error
	calls   int
}

func (f *fakeSource) Fetch(context.Context) ([]commits.Commit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]commits.Commit(nil), f.commits...), nil
}

func (f *fakeSource) set(cs ...commits.Commit) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = cs
}

// levelGenerator returns "L<level+1> facing right" as a Generated result
// unless a per-level override is set.
type levelGenerator struct {
	mu        sync.Mutex
	overrides map[int]describe.Result
	calls     []genCall
	delay     time.Duration
}

type genCall struct {
	current string
	level   int
}

func (g *levelGenerator) Improve(ctx context.Context, current string, level int) (describe.Result, error) {
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return describe.Result{}, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return describe.Result{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, genCall{current: current, level: level})
	if r, ok := g.overrides[level]; ok {
		return r, nil
	}
	text := fmt.Sprintf("L%d facing right", level+1)
	return describe.NewGenerated("prompt for "+text, text), nil
}

// recordingPublisher records every description it is asked to publish.
type recordingPublisher struct {
	mu    sync.Mutex
	descs []string
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, d string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.descs = append(p.descs, d)
	return p.err
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.descs...)
}

func (p *recordingPublisher) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// memMirror captures published ledger copies.
type memMirror struct {
	mu   sync.Mutex
	data [][]byte
	err  error
}

func (m *memMirror) Name() string { return "mem" }

func (m *memMirror) Put(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data = append(m.data, append([]byte(nil), data...))
	return nil
}

type harness struct {
	engine *Engine
	src    *fakeSource
	gen    *levelGenerator
	pub    *recordingPublisher
	store  *ledger.Store
	dir    string
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		src:   &fakeSource{},
		gen:   &levelGenerator{overrides: map[int]describe.Result{}},
		pub:   &recordingPublisher{},
		store: ledger.NewStore(filepath.Join(dir, "ledger.json")),
		dir:   dir,
	}
	opts := Options{
		Source:    h.src,
		Generator: h.gen,
		Publisher: h.pub,
		Store:     h.store,
		LockPath:  filepath.Join(dir, "ledger.lock"),
		LockPoll:  10 * time.Millisecond,
		Now:       func() time.Time { return t0.Add(24 * time.Hour) },
	}
	if mutate != nil {
		mutate(&opts)
	}
	if opts.Store != h.store {
		h.store = opts.Store
	}
	e, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.engine = e
	return h
}

// seed saves a ledger holding one event per id with descriptions D1..Dn.
func seed(t *testing.T, s *ledger.Store, cs ...commits.Commit) *ledger.Ledger {
	t.Helper()
	l := ledger.Default()
	for i, c := range cs {
		if _, err := l.Append(ledger.Event{
			CommitID:       c.ID,
			CommitMessage:  c.Message,
			CommitDate:     c.Date,
			NewDescription: fmt.Sprintf("D%d", i+1),
			Prompt:         "seed",
			Source:         ledger.SourceGenerated,
		}); err != nil {
			t.Fatal(err)
		}
	}
	if len(cs) > 0 {
		l.CursorCommitID = cs[len(cs)-1].ID
	}
	if err := s.Save(context.Background(), l); err != nil {
		t.Fatal(err)
	}
	return l
}

func historyIDs(l *ledger.Ledger) []string {
	ids := make([]string, 0, len(l.History))
	for _, e := range l.History {
		ids = append(ids, e.CommitID)
	}
	return ids
}
