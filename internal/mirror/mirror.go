// Package mirror publishes read-only copies of the ledger for the game.
package mirror

import (
	"context"
	"fmt"

	"github.com/suykerbuyk/evolve/internal/config"
	"github.com/suykerbuyk/evolve/internal/ledger"
)

// File writes the published copy to a local path.
type File struct {
	path string
}

// NewFile returns a mirror writing to path.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Name() string { return "file:" + f.path }

// Put replaces the published copy atomically so the game never reads a
// half-written document.
func (f *File) Put(_ context.Context, data []byte) error {
	return ledger.WriteFileAtomic(f.path, data, 0o644)
}

// FromConfig builds the mirrors configured in cfg. The file mirror is
// skipped when its path is empty; S3 is added when a bucket is set.
func FromConfig(ctx context.Context, cfg config.PublishedConfig) ([]ledger.Mirror, error) {
	var out []ledger.Mirror
	if cfg.Path != "" {
		out = append(out, NewFile(cfg.Path))
	}
	if cfg.S3Bucket != "" {
		s3m, err := NewS3(ctx, S3Config{
			Bucket:   cfg.S3Bucket,
			Key:      cfg.S3Key,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 mirror: %w", err)
		}
		out = append(out, s3m)
	}
	return out, nil
}
