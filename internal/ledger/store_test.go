package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type memMirror struct {
	name string
	data [][]byte
	err  error
}

func (m *memMirror) Name() string { return m.name }

func (m *memMirror) Put(_ context.Context, data []byte) error {
	if m.err != nil {
		return m.err
	}
	m.data = append(m.data, append([]byte(nil), data...))
	return nil
}

func TestStore_LoadMissingReturnsDefault(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "ledger.json"))
	l, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if l.CurrentDescription != CanonicalDescription || l.Level != 0 {
		t.Errorf("Load = %+v", l)
	}
	if s.Exists() {
		t.Error("Load must not create the file")
	}
}

func TestStore_SaveLoadAndPublish(t *testing.T) {
	m := &memMirror{name: "mem"}
	path := filepath.Join(t.TempDir(), "state", "ledger.json")
	s := NewStore(path, m)

	l := Default()
	mustAppend(t, l, "c1", "D1")
	if err := s.Save(context.Background(), l); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.CurrentDescription != "D1" || got.Level != 1 {
		t.Errorf("Load = %+v", got)
	}

	onDisk, _ := os.ReadFile(path)
	if len(m.data) != 1 || string(m.data[0]) != string(onDisk) {
		t.Errorf("mirror copy differs from ledger file")
	}

	// No temp files left behind.
	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestStore_SaveRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	s := NewStore(path)

	good := Default()
	mustAppend(t, good, "c1", "D1")
	if err := s.Save(context.Background(), good); err != nil {
		t.Fatalf("Save: %v", err)
	}
	before, _ := os.ReadFile(path)

	bad := good.Clone()
	bad.Level = 9
	if err := s.Save(context.Background(), bad); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Save invalid = %v, want ErrInvalid", err)
	}

	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("failed save modified the ledger file")
	}
}

func TestStore_FailedWriteKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.json")
	s := NewStore(path)

	if err := s.Save(context.Background(), Default()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	before, _ := os.ReadFile(path)

	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	// A read-only directory makes the temp file creation fail.
	if err := os.Chmod(dir, 0o555); err != nil {
		t.Skipf("chmod: %v", err)
	}
	defer os.Chmod(dir, 0o755)

	l := Default()
	mustAppend(t, l, "c1", "D1")
	if err := s.Save(context.Background(), l); err == nil {
		t.Fatal("expected write error")
	}

	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("failed write modified the ledger file")
	}
}

func TestStore_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	os.WriteFile(path, []byte(`{"level": 3, "hist`), 0o644)

	s := NewStore(path)
	if _, err := s.Load(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Load corrupt = %v, want ErrInvalid", err)
	}
}

func TestStore_MirrorErrorAfterDurableWrite(t *testing.T) {
	m := &memMirror{name: "broken", err: errors.New("bucket gone")}
	path := filepath.Join(t.TempDir(), "ledger.json")
	s := NewStore(path, m)

	l := Default()
	mustAppend(t, l, "c1", "D1")
	err := s.Save(context.Background(), l)
	if err == nil || !strings.Contains(err.Error(), "publish broken") {
		t.Fatalf("Save = %v, want publish error", err)
	}
	if !errors.Is(err, ErrMirror) {
		t.Errorf("Save = %v, want ErrMirror", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Level != 1 {
		t.Error("ledger not durable despite mirror failure")
	}
}

func TestStore_Reset(t *testing.T) {
	m := &memMirror{name: "mem"}
	s := NewStore(filepath.Join(t.TempDir(), "ledger.json"), m)

	l := Default()
	mustAppend(t, l, "c1", "D1")
	mustAppend(t, l, "c2", "D2")
	if err := s.Save(context.Background(), l); err != nil {
		t.Fatalf("Save: %v", err)
	}

	fresh, err := s.Reset(context.Background())
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	got, _ := s.Load()
	for _, x := range []*Ledger{fresh, got} {
		if x.Level != 0 || len(x.History) != 0 || x.CurrentDescription != CanonicalDescription {
			t.Errorf("reset ledger not canonical: %+v", x)
		}
	}
	if len(m.data) != 2 {
		t.Errorf("mirror puts = %d, want 2", len(m.data))
	}
}

func TestStore_Republish(t *testing.T) {
	m := &memMirror{name: "mem"}
	s := NewStore(filepath.Join(t.TempDir(), "ledger.json"), m)

	if err := s.Republish(context.Background()); err != nil {
		t.Fatalf("Republish: %v", err)
	}
	if len(m.data) != 1 || !strings.Contains(string(m.data[0]), CanonicalDescription) {
		t.Errorf("republish of missing ledger should publish the default")
	}
	if s.Exists() {
		t.Error("Republish must not write the ledger")
	}
}
