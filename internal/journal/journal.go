// Package journal records every engine run in a local sqlite database so
// operators can see which branch each cycle took.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Run is one engine operation.
type Run struct {
	ID          string
	Op          string // check, reset, force, generate
	Outcome     string
	StartedAt   time.Time
	FinishedAt  time.Time
	NewEvents   int
	Fallbacks   int
	Level       int
	Description string
	Digest      string // ledger digest after the run, "" when not saved
	Error       string
}

// Duration returns how long the run took.
func (r Run) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Journal is an append-only run log.
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal at path.
func Open(path string) (*Journal, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" || p == "." {
		return nil, errors.New("missing journal path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Close closes the database. Safe on a nil Journal.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record appends r.
func (j *Journal) Record(ctx context.Context, r Run) error {
	if j == nil || j.db == nil {
		return errors.New("journal not initialized")
	}
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("missing run id")
	}
	_, err := j.db.ExecContext(ctx, `
INSERT INTO runs(
  run_id, op, outcome, started_at_unix_ms, finished_at_unix_ms,
  new_events, fallbacks, level, description, digest, error
) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		r.ID,
		r.Op,
		r.Outcome,
		r.StartedAt.UnixMilli(),
		r.FinishedAt.UnixMilli(),
		r.NewEvents,
		r.Fallbacks,
		r.Level,
		r.Description,
		r.Digest,
		r.Error,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

const selectRuns = `
SELECT run_id, op, outcome, started_at_unix_ms, finished_at_unix_ms,
       new_events, fallbacks, level, description, digest, error
FROM runs
`

// Recent returns up to limit runs, newest first. limit <= 0 returns all.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Run, error) {
	if j == nil || j.db == nil {
		return nil, errors.New("journal not initialized")
	}
	q := selectRuns + "ORDER BY seq DESC"
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Last returns the newest run, or nil when the journal is empty.
func (j *Journal) Last(ctx context.Context) (*Run, error) {
	runs, err := j.Recent(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// Get returns the run with id, or nil when absent.
func (j *Journal) Get(ctx context.Context, id string) (*Run, error) {
	if j == nil || j.db == nil {
		return nil, errors.New("journal not initialized")
	}
	r, err := scanRun(j.db.QueryRowContext(ctx, selectRuns+"WHERE run_id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

// Counts returns the number of runs per outcome.
func (j *Journal) Counts(ctx context.Context) (map[string]int, error) {
	if j == nil || j.db == nil {
		return nil, errors.New("journal not initialized")
	}
	rows, err := j.db.QueryContext(ctx, `SELECT outcome, COUNT(1) FROM runs GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		out[outcome] = n
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var r Run
	var started, finished int64
	if err := s.Scan(
		&r.ID,
		&r.Op,
		&r.Outcome,
		&started,
		&finished,
		&r.NewEvents,
		&r.Fallbacks,
		&r.Level,
		&r.Description,
		&r.Digest,
		&r.Error,
	); err != nil {
		return Run{}, err
	}
	r.StartedAt = time.UnixMilli(started).UTC()
	r.FinishedAt = time.UnixMilli(finished).UTC()
	return r, nil
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=3000;`); err != nil {
		return fmt.Errorf("pragma busy_timeout: %w", err)
	}
	return migrateSchema(db)
}

func migrateSchema(db *sql.DB) error {
	// Schema versions:
	// - v1: runs table
	const targetVersion = 1

	var v int
	if err := db.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return fmt.Errorf("pragma user_version: %w", err)
	}
	if v >= targetVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS runs (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id TEXT NOT NULL UNIQUE,
  op TEXT NOT NULL,
  outcome TEXT NOT NULL,
  started_at_unix_ms INTEGER NOT NULL,
  finished_at_unix_ms INTEGER NOT NULL,
  new_events INTEGER NOT NULL DEFAULT 0,
  fallbacks INTEGER NOT NULL DEFAULT 0,
  level INTEGER NOT NULL DEFAULT 0,
  description TEXT NOT NULL DEFAULT '',
  digest TEXT NOT NULL DEFAULT '',
  error TEXT NOT NULL DEFAULT ''
);
`); err != nil {
		return fmt.Errorf("create table v1: %w", err)
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version=%d;", targetVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return tx.Commit()
}
