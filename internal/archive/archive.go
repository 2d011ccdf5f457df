// Package archive keeps snapshots of the ledger taken before destructive
// operations (reset, forced replay) so a lost history can be recovered.
package archive

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	prefix     = "ledger-"
	plainExt   = ".json"
	zstdExt    = ".json.zst"
	stampShape = "20060102T150405.000Z"
)

// Entry describes one snapshot on disk.
type Entry struct {
	Name       string
	Path       string
	Reason     string
	TakenAt    time.Time
	Size       int64
	Compressed bool
}

// Archiver writes and prunes snapshots in a single directory.
type Archiver struct {
	dir      string
	compress bool
	keep     int
}

// New returns an Archiver. keep <= 0 disables pruning.
func New(dir string, compress bool, keep int) *Archiver {
	return &Archiver{dir: dir, compress: compress, keep: keep}
}

// Dir returns the snapshot directory.
func (a *Archiver) Dir() string { return a.dir }

// Snapshot stores data as ledger-<stamp>-<reason>.json[.zst] and prunes
// old snapshots. Returns the snapshot path.
func (a *Archiver) Snapshot(reason string, data []byte, at time.Time) (string, error) {
	reason = cleanReason(reason)
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	ext := plainExt
	if a.compress {
		ext = zstdExt
	}
	base := prefix + at.UTC().Format(stampShape) + "-" + reason
	destPath := filepath.Join(a.dir, base+ext)
	for i := 1; fileExists(destPath); i++ {
		destPath = filepath.Join(a.dir, fmt.Sprintf("%s.%d%s", base, i, ext))
	}

	dest, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	defer dest.Close()

	var w io.Writer = dest
	var encoder *zstd.Encoder
	if a.compress {
		encoder, err = zstd.NewWriter(dest)
		if err != nil {
			os.Remove(destPath)
			return "", fmt.Errorf("create zstd encoder: %w", err)
		}
		w = encoder
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		if encoder != nil {
			encoder.Close()
		}
		os.Remove(destPath)
		return "", fmt.Errorf("compress: %w", err)
	}
	if encoder != nil {
		if err := encoder.Close(); err != nil {
			os.Remove(destPath)
			return "", fmt.Errorf("finalize compression: %w", err)
		}
	}
	if err := dest.Sync(); err != nil {
		return "", fmt.Errorf("sync archive: %w", err)
	}

	if a.keep > 0 {
		if _, err := a.Prune(a.keep); err != nil {
			return destPath, err
		}
	}
	return destPath, nil
}

// List returns snapshots newest first. A missing directory is empty.
func (a *Archiver) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(a.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read archive dir: %w", err)
	}

	var out []Entry
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		e, ok := parseName(de.Name())
		if !ok {
			continue
		}
		e.Path = filepath.Join(a.dir, de.Name())
		if info, err := de.Info(); err == nil {
			e.Size = info.Size()
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TakenAt.Equal(out[j].TakenAt) {
			return out[i].TakenAt.After(out[j].TakenAt)
		}
		return out[i].Name > out[j].Name
	})
	return out, nil
}

// Prune removes all but the newest keep snapshots and returns how many
// were removed.
func (a *Archiver) Prune(keep int) (int, error) {
	entries, err := a.List()
	if err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}
	removed := 0
	for i := keep; i < len(entries); i++ {
		if err := os.Remove(entries[i].Path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove %s: %w", entries[i].Name, err)
		}
		removed++
	}
	return removed, nil
}

// Find resolves a snapshot by file name.
func (a *Archiver) Find(name string) (Entry, error) {
	entries, err := a.List()
	if err != nil {
		return Entry{}, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("snapshot %q not found in %s", name, a.dir)
}

// Read returns the snapshot contents, decompressing when needed.
func Read(path string) ([]byte, error) {
	src, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer src.Close()

	if !strings.HasSuffix(path, ".zst") {
		data, err := io.ReadAll(src)
		if err != nil {
			return nil, fmt.Errorf("read archive: %w", err)
		}
		return data, nil
	}

	decoder, err := zstd.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer decoder.Close()

	data, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return data, nil
}

func parseName(name string) (Entry, bool) {
	if !strings.HasPrefix(name, prefix) {
		return Entry{}, false
	}
	var rest string
	compressed := false
	switch {
	case strings.HasSuffix(name, zstdExt):
		rest = strings.TrimSuffix(name, zstdExt)
		compressed = true
	case strings.HasSuffix(name, plainExt):
		rest = strings.TrimSuffix(name, plainExt)
	default:
		return Entry{}, false
	}
	rest = strings.TrimPrefix(rest, prefix)
	if len(rest) < len(stampShape)+2 {
		return Entry{}, false
	}
	at, err := time.Parse(stampShape, rest[:len(stampShape)])
	if err != nil {
		return Entry{}, false
	}
	reason := rest[len(stampShape)+1:]
	if i := strings.IndexByte(reason, '.'); i >= 0 {
		reason = reason[:i]
	}
	return Entry{Name: name, Reason: reason, TakenAt: at, Compressed: compressed}, true
}

func cleanReason(reason string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(reason) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == ' ':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "manual"
	}
	return b.String()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
