package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/suykerbuyk/evolve/internal/archive"
	"github.com/suykerbuyk/evolve/internal/commits"
	"github.com/suykerbuyk/evolve/internal/config"
	"github.com/suykerbuyk/evolve/internal/describe"
	"github.com/suykerbuyk/evolve/internal/engine"
	"github.com/suykerbuyk/evolve/internal/journal"
	"github.com/suykerbuyk/evolve/internal/ledger"
	"github.com/suykerbuyk/evolve/internal/logging"
	"github.com/suykerbuyk/evolve/internal/mirror"
	"github.com/suykerbuyk/evolve/internal/publish"
)

// app holds the wired engine and the resources it owns.
type app struct {
	engine  *engine.Engine
	logger  *slog.Logger
	journal *journal.Journal
}

func (a *app) Close() {
	if err := a.journal.Close(); err != nil {
		a.logger.Warn("close journal", "err", err)
	}
}

// mustBuild wires an engine from cfg.
func mustBuild(ctx context.Context, cfg config.Config) *app {
	logger, err := logging.New(cfg.Log.Format, cfg.Log.Level, os.Stderr)
	if err != nil {
		fatal("log config: %v", err)
	}

	src, err := commits.NewGitHub(cfg.Source)
	if err != nil {
		fatal("%v", err)
	}
	gen, err := describe.FromConfig(cfg.Generator, logger)
	if err != nil {
		fatal("%v", err)
	}
	pub, err := publish.NewCommand(cfg.Publisher, logger)
	if err != nil {
		fatal("%v", err)
	}
	mirrors, err := mirror.FromConfig(ctx, cfg.Published)
	if err != nil {
		fatal("%v", err)
	}

	// A broken journal costs history, not evolutions.
	j, err := journal.Open(cfg.JournalPath())
	if err != nil {
		logger.Warn("journal unavailable", "path", cfg.JournalPath(), "err", err)
		j = nil
	}

	eng, err := engine.New(engine.Options{
		Source:    src,
		Generator: gen,
		Publisher: pub,
		Store:     ledger.NewStore(cfg.LedgerPath(), mirrors...),
		Archiver:  archive.New(cfg.ArchiveDir(), cfg.Archive.Compress, cfg.Archive.Keep),
		Journal:   j,
		LockPath:  cfg.LockPath(),
		Logger:    logger,
	})
	if err != nil {
		_ = j.Close()
		fatal("%v", err)
	}

	logger.Debug("engine ready",
		"query", src.Query(),
		"generator", gen.ProviderName(),
		"publisher", pub.String(),
		"mirrors", len(mirrors))

	return &app{engine: eng, logger: logger, journal: j}
}

// openJournalIfExists opens the journal for reading without creating it.
func openJournalIfExists(cfg config.Config) *journal.Journal {
	if _, err := os.Stat(cfg.JournalPath()); err != nil {
		return nil
	}
	j, err := journal.Open(cfg.JournalPath())
	if err != nil {
		fatal("%v", err)
	}
	return j
}
