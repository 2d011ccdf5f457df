package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Trigger is an out-of-band request dropped into the trigger directory.
type Trigger struct {
	Op    string // check, reset or force
	Count int    // commit count for force
}

// Name returns the trigger file name.
func (t Trigger) Name() string {
	if t.Op == "force" {
		return fmt.Sprintf("force-%d", t.Count)
	}
	return t.Op
}

// ParseTrigger parses a trigger file name.
func ParseTrigger(name string) (Trigger, bool) {
	switch name {
	case "check", "reset":
		return Trigger{Op: name}, true
	}
	if rest, ok := strings.CutPrefix(name, "force-"); ok {
		n, err := strconv.Atoi(rest)
		if err != nil || n <= 0 {
			return Trigger{}, false
		}
		return Trigger{Op: "force", Count: n}, true
	}
	return Trigger{}, false
}

// WriteTrigger drops t into dir for a running scheduler to pick up. The
// file is renamed into place so the watcher sees one complete file.
func WriteTrigger(dir string, t Trigger) (string, error) {
	if _, ok := ParseTrigger(t.Name()); !ok {
		return "", fmt.Errorf("invalid trigger %q", t.Name())
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create trigger dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".trigger-*")
	if err != nil {
		return "", fmt.Errorf("create trigger: %w", err)
	}
	tmpName := tmp.Name()
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close trigger: %w", err)
	}
	path := filepath.Join(dir, t.Name())
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("place trigger: %w", err)
	}
	return path, nil
}
