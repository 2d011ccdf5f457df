package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suykerbuyk/evolve/internal/engine"
)

type call struct {
	op    string
	count int
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []call
	seen  chan call
	panic bool
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{seen: make(chan call, 64)}
}

func (f *fakeRunner) record(c call) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	f.seen <- c
}

func (f *fakeRunner) Check(context.Context) (engine.Report, error) {
	f.record(call{op: "check"})
	f.mu.Lock()
	p := f.panic
	f.mu.Unlock()
	if p {
		panic("boom")
	}
	return engine.Report{Op: engine.OpCheck, Outcome: engine.OutcomeUpToDate}, nil
}

func (f *fakeRunner) Reset(context.Context) (engine.Report, error) {
	f.record(call{op: "reset"})
	return engine.Report{Op: engine.OpReset, Outcome: engine.OutcomeReset}, nil
}

func (f *fakeRunner) ForceReplay(_ context.Context, n int) (engine.Report, error) {
	f.record(call{op: "force", count: n})
	return engine.Report{Op: engine.OpForce}, errors.New("source down")
}

func waitCall(t *testing.T, f *fakeRunner) call {
	t.Helper()
	select {
	case c := <-f.seen:
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a cycle")
		return call{}
	}
}

func TestNew_Validates(t *testing.T) {
	_, err := New(nil, Options{Interval: time.Minute})
	assert.Error(t, err)
	_, err = New(newFakeRunner(), Options{})
	assert.Error(t, err)
}

func TestStart_RunsCheckImmediately(t *testing.T) {
	f := newFakeRunner()
	s, err := New(f, Options{Interval: time.Hour})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Equal(t, call{op: "check"}, waitCall(t, f))
}

func TestStart_Twice(t *testing.T) {
	s, _ := New(newFakeRunner(), Options{Interval: time.Hour})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	assert.Error(t, s.Start(context.Background()))
}

func TestInterval(t *testing.T) {
	f := newFakeRunner()
	s, _ := New(f, Options{Interval: 20 * time.Millisecond})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	for i := 0; i < 3; i++ {
		assert.Equal(t, "check", waitCall(t, f).op)
	}
}

func TestTriggerFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "triggers")
	f := newFakeRunner()
	var (
		mu      sync.Mutex
		reports []engine.Report
	)
	s, _ := New(f, Options{
		Interval:   time.Hour,
		TriggerDir: dir,
		OnReport: func(r engine.Report) {
			mu.Lock()
			reports = append(reports, r)
			mu.Unlock()
		},
	})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	waitCall(t, f) // startup check

	_, err := WriteTrigger(dir, Trigger{Op: "reset"})
	require.NoError(t, err)
	assert.Equal(t, call{op: "reset"}, waitCall(t, f))

	_, err = WriteTrigger(dir, Trigger{Op: "force", Count: 3})
	require.NoError(t, err)
	assert.Equal(t, call{op: "force", count: 3}, waitCall(t, f))

	// Unknown files are ignored and left alone.
	junk := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(junk, []byte("x"), 0o644))
	_, err = WriteTrigger(dir, Trigger{Op: "check"})
	require.NoError(t, err)
	assert.Equal(t, call{op: "check"}, waitCall(t, f))

	_, err = os.Stat(junk)
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "check"))
	assert.True(t, os.IsNotExist(err), "trigger file must be consumed")

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reports) == 4
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStart_DrainsPendingTriggers(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "triggers")
	_, err := WriteTrigger(dir, Trigger{Op: "reset"})
	require.NoError(t, err)

	f := newFakeRunner()
	s, _ := New(f, Options{Interval: time.Hour, TriggerDir: dir})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Equal(t, "check", waitCall(t, f).op)
	assert.Equal(t, "reset", waitCall(t, f).op)
}

func TestRecoversFromPanic(t *testing.T) {
	f := newFakeRunner()
	f.panic = true
	s, _ := New(f, Options{Interval: 20 * time.Millisecond})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	waitCall(t, f)
	waitCall(t, f) // loop survived the first panic
}

func TestStop(t *testing.T) {
	f := newFakeRunner()
	s, _ := New(f, Options{Interval: time.Hour})
	s.Stop() // not started: no-op

	require.NoError(t, s.Start(context.Background()))
	done := s.Done()
	waitCall(t, f)
	s.Stop()

	select {
	case <-done:
	default:
		t.Fatal("loop still running after Stop")
	}

	// A stopped scheduler can be started again.
	require.NoError(t, s.Start(context.Background()))
	waitCall(t, f)
	s.Stop()
}

func TestParseTrigger(t *testing.T) {
	tests := []struct {
		name string
		want Trigger
		ok   bool
	}{
		{"check", Trigger{Op: "check"}, true},
		{"reset", Trigger{Op: "reset"}, true},
		{"force-12", Trigger{Op: "force", Count: 12}, true},
		{"force-0", Trigger{}, false},
		{"force-x", Trigger{}, false},
		{".trigger-123", Trigger{}, false},
		{"generate", Trigger{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseTrigger(tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestWriteTrigger_Invalid(t *testing.T) {
	_, err := WriteTrigger(t.TempDir(), Trigger{Op: "force", Count: 0})
	assert.Error(t, err)
	_, err = WriteTrigger(t.TempDir(), Trigger{Op: "explode"})
	assert.Error(t, err)
}
