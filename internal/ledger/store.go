package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Mirror receives a copy of every saved ledger document. The game reads the
// file mirror at load time.
type Mirror interface {
	Name() string
	Put(ctx context.Context, data []byte) error
}

// ErrMirror marks a save whose ledger write succeeded but whose copy could
// not be published to one or more mirrors.
var ErrMirror = errors.New("mirror publish failed")

// Store persists a Ledger as a JSON file and republishes it to mirrors.
type Store struct {
	path    string
	mirrors []Mirror
}

// NewStore returns a store for the document at path.
func NewStore(path string, mirrors ...Mirror) *Store {
	return &Store{path: path, mirrors: mirrors}
}

// Path returns the ledger document path.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether the ledger document has been written.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the ledger, returning the canonical default if it doesn't exist.
func (s *Store) Load() (*Ledger, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	l, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("parse ledger %s: %w", s.path, err)
	}
	return l, nil
}

// Save validates l, writes it atomically, then republishes it.
// A mirror failure is returned after the ledger itself is durable.
func (s *Store) Save(ctx context.Context, l *Ledger) error {
	if err := l.Validate(); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	data, err := l.Encode()
	if err != nil {
		return err
	}
	if err := WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return s.publish(ctx, data)
}

// Reset replaces the ledger with the canonical default.
func (s *Store) Reset(ctx context.Context) (*Ledger, error) {
	l := Default()
	if err := s.Save(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// Republish pushes the current document to every mirror without rewriting
// the ledger. A missing ledger publishes the canonical default.
func (s *Store) Republish(ctx context.Context) error {
	l, err := s.Load()
	if err != nil {
		return err
	}
	data, err := l.Encode()
	if err != nil {
		return err
	}
	return s.publish(ctx, data)
}

func (s *Store) publish(ctx context.Context, data []byte) error {
	var errs []error
	for _, m := range s.mirrors {
		if err := m.Put(ctx, data); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", m.Name(), err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrMirror, errors.Join(errs...))
}

// WriteFileAtomic writes data to a temp file beside path, syncs it, and
// renames it into place. On any error the previous file is left untouched.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename: %w", err)
	}

	// Persist the rename itself; not all platforms allow syncing a dir.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}
