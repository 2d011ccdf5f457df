// Package lockfile provides the cross-process single-writer lock around the
// evolution ledger.
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrAlreadyLocked indicates the lock is held by another process.
	ErrAlreadyLocked = errors.New("lock already held")
)

// DefaultPoll is how often AcquireWait retries a held lock.
const DefaultPoll = 250 * time.Millisecond

type Lock struct {
	path string
	f    *os.File
}

// Acquire takes the lock without blocking.
func Acquire(path string) (*Lock, error) {
	if path == "" {
		return nil, fmt.Errorf("lock path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, err
	}

	// pid is informational only; `evo status` shows it.
	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	_ = f.Sync()

	return &Lock{path: path, f: f}, nil
}

// AcquireWait retries Acquire every poll interval until it succeeds or ctx
// is done. Errors other than ErrAlreadyLocked are returned immediately.
func AcquireWait(ctx context.Context, path string, poll time.Duration) (*Lock, error) {
	if poll <= 0 {
		poll = DefaultPoll
	}
	for {
		l, err := Acquire(path)
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, ErrAlreadyLocked) {
			return nil, err
		}
		t := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("wait for %s: %w", path, ctx.Err())
		case <-t.C:
		}
	}
}

// Holder returns the pid recorded in the lock file and whether the lock is
// currently held. A missing file reports (0, false, nil).
func Holder(path string) (int, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	pid, _ := strconv.Atoi(strings.TrimSpace(string(data)))

	// Probe on a separate descriptor; Acquire would overwrite the pid.
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return pid, false, err
	}
	defer f.Close()
	err = lockFile(f)
	if errors.Is(err, ErrAlreadyLocked) {
		return pid, true, nil
	}
	if err != nil {
		return pid, false, err
	}
	_ = unlockFile(f)
	return pid, false, nil
}

func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	// Unlock first; close always.
	unlockErr := unlockFile(l.f)
	closeErr := l.f.Close()
	l.f = nil
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}
