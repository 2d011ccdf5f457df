// Package check implements the diagnostics behind `evo status`.
package check

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/suykerbuyk/evolve/internal/archive"
	"github.com/suykerbuyk/evolve/internal/config"
	"github.com/suykerbuyk/evolve/internal/describe"
	"github.com/suykerbuyk/evolve/internal/journal"
	"github.com/suykerbuyk/evolve/internal/ledger"
	"github.com/suykerbuyk/evolve/internal/lockfile"
)

// Status represents the outcome of a single check.
type Status int

const (
	Pass Status = iota
	Warn
	Fail
)

func (s Status) String() string {
	switch s {
	case Pass:
		return "pass"
	case Warn:
		return "warn"
	case Fail:
		return "FAIL"
	default:
		return "unknown"
	}
}

// Result holds the outcome of a single check.
type Result struct {
	Name   string
	Status Status
	Detail string
}

// Report aggregates all check results.
type Report struct {
	Results []Result
}

// HasFailures returns true if any result has Fail status.
func (r Report) HasFailures() bool {
	for _, res := range r.Results {
		if res.Status == Fail {
			return true
		}
	}
	return false
}

// Format returns the human-readable report string.
func (r Report) Format() string {
	if len(r.Results) == 0 {
		return "evo status\n\n  no checks ran\n"
	}

	maxName := 0
	for _, res := range r.Results {
		if len(res.Name) > maxName {
			maxName = len(res.Name)
		}
	}

	var b strings.Builder
	b.WriteString("evo status\n\n")

	var passed, warnings, failures int
	for _, res := range r.Results {
		switch res.Status {
		case Pass:
			passed++
		case Warn:
			warnings++
		case Fail:
			failures++
		}
		fmt.Fprintf(&b, "  %-4s  %-*s  %s\n", res.Status, maxName, res.Name, res.Detail)
	}

	fmt.Fprintf(&b, "\n%d passed, %d warning, %d failure\n", passed, warnings, failures)
	return b.String()
}

// CheckConfig reports the resolved config path. A missing file is fine;
// defaults apply.
func CheckConfig() Result {
	cfgPath := filepath.Join(config.ConfigDir(), "config.toml")
	if _, err := os.Stat(cfgPath); err != nil {
		return Result{Name: "config", Status: Warn, Detail: config.CompressHome(cfgPath) + " not found (defaults, run evo init)"}
	}
	return Result{Name: "config", Status: Pass, Detail: config.CompressHome(cfgPath)}
}

// CheckStateDir checks whether the state directory exists.
func CheckStateDir(stateDir string) Result {
	if info, err := os.Stat(stateDir); err == nil && info.IsDir() {
		return Result{Name: "state", Status: Pass, Detail: config.CompressHome(stateDir)}
	}
	return Result{Name: "state", Status: Warn, Detail: config.CompressHome(stateDir) + " not found (created on first run)"}
}

// CheckLedger loads and validates the ledger document.
func CheckLedger(path string) Result {
	s := ledger.NewStore(path)
	if !s.Exists() {
		return Result{Name: "ledger", Status: Warn, Detail: "not written yet (level 0)"}
	}
	l, err := s.Load()
	if err != nil {
		return Result{Name: "ledger", Status: Fail, Detail: err.Error()}
	}
	digest, err := l.Digest()
	if err != nil {
		return Result{Name: "ledger", Status: Fail, Detail: err.Error()}
	}
	return Result{
		Name:   "ledger",
		Status: Pass,
		Detail: fmt.Sprintf("level %d, %d events, digest %s", l.Level, len(l.History), digest[:12]),
	}
}

// CheckSource checks the commit search settings. An author is required; a
// token only raises the rate limit.
func CheckSource(src config.SourceConfig) Result {
	if strings.TrimSpace(src.Author) == "" {
		return Result{Name: "source", Status: Fail, Detail: "source.author not set"}
	}
	q := "author:" + src.Author
	if src.Repo != "" {
		q += " repo:" + src.Repo
	}
	if src.TokenEnv != "" && os.Getenv(src.TokenEnv) != "" {
		return Result{Name: "source", Status: Pass, Detail: q + ", " + src.TokenEnv + " set"}
	}
	return Result{Name: "source", Status: Warn, Detail: q + ", no token (unauthenticated rate limit)"}
}

// CheckGenerator checks the description generator configuration.
func CheckGenerator(gcfg config.GeneratorConfig) Result {
	if !gcfg.Enabled {
		return Result{Name: "generator", Status: Pass, Detail: "disabled (fallback table only)"}
	}
	if gcfg.APIKeyEnv == "" {
		return Result{Name: "generator", Status: Warn, Detail: gcfg.Provider + ": api_key_env not set"}
	}
	if os.Getenv(gcfg.APIKeyEnv) != "" {
		return Result{Name: "generator", Status: Pass, Detail: fmt.Sprintf("%s %s, %s set", gcfg.Provider, gcfg.Model, gcfg.APIKeyEnv)}
	}
	return Result{Name: "generator", Status: Warn, Detail: gcfg.APIKeyEnv + " not set (fallback table only)"}
}

// CheckFallbacks loads the fallback table.
func CheckFallbacks(path string) Result {
	if path == "" {
		return Result{Name: "fallbacks", Status: Pass, Detail: fmt.Sprintf("built-in (%d entries)", len(describe.DefaultTable()))}
	}
	t, err := describe.LoadTable(path)
	if err != nil {
		return Result{Name: "fallbacks", Status: Fail, Detail: err.Error()}
	}
	return Result{Name: "fallbacks", Status: Pass, Detail: fmt.Sprintf("%s (%d entries)", config.CompressHome(path), len(t))}
}

// CheckPublisher checks that the asset command can be found.
func CheckPublisher(pcfg config.PublisherConfig) Result {
	if strings.TrimSpace(pcfg.Command) == "" {
		return Result{Name: "publisher", Status: Fail, Detail: "publisher.command not set"}
	}
	p, err := exec.LookPath(pcfg.Command)
	if err != nil {
		return Result{Name: "publisher", Status: Fail, Detail: pcfg.Command + " not found"}
	}
	if pcfg.Dir != "" {
		if info, err := os.Stat(pcfg.Dir); err != nil || !info.IsDir() {
			return Result{Name: "publisher", Status: Warn, Detail: p + ", dir " + config.CompressHome(pcfg.Dir) + " not found"}
		}
	}
	return Result{Name: "publisher", Status: Pass, Detail: p}
}

// CheckPublished reports where the game copy of the ledger is written.
func CheckPublished(pub config.PublishedConfig) Result {
	var targets []string
	if pub.Path != "" {
		targets = append(targets, config.CompressHome(pub.Path))
	}
	if pub.S3Bucket != "" {
		key := pub.S3Key
		if key == "" {
			key = "evolution.json"
		}
		targets = append(targets, "s3://"+pub.S3Bucket+"/"+key)
	}
	if len(targets) == 0 {
		return Result{Name: "published", Status: Warn, Detail: "no copy for the game configured"}
	}
	if pub.Path != "" {
		if info, err := os.Stat(filepath.Dir(pub.Path)); err != nil || !info.IsDir() {
			return Result{Name: "published", Status: Warn, Detail: strings.Join(targets, ", ") + " (parent dir missing)"}
		}
	}
	return Result{Name: "published", Status: Pass, Detail: strings.Join(targets, ", ")}
}

// CheckInterval validates the scheduler interval.
func CheckInterval(cfg config.Config) Result {
	d, err := cfg.Interval()
	if err != nil {
		return Result{Name: "interval", Status: Fail, Detail: err.Error()}
	}
	return Result{Name: "interval", Status: Pass, Detail: d.String()}
}

// CheckLock reports whether another process is holding the writer lock.
func CheckLock(path string) Result {
	pid, held, err := lockfile.Holder(path)
	if err != nil {
		return Result{Name: "lock", Status: Warn, Detail: err.Error()}
	}
	if held {
		return Result{Name: "lock", Status: Pass, Detail: fmt.Sprintf("held by pid %d", pid)}
	}
	return Result{Name: "lock", Status: Pass, Detail: "free"}
}

// CheckLastRun reports the newest journal entry. The journal is not created
// when it doesn't exist.
func CheckLastRun(path string, now time.Time) Result {
	if _, err := os.Stat(path); err != nil {
		return Result{Name: "last run", Status: Warn, Detail: "no runs recorded"}
	}
	j, err := journal.Open(path)
	if err != nil {
		return Result{Name: "last run", Status: Fail, Detail: err.Error()}
	}
	defer j.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r, err := j.Last(ctx)
	if err != nil {
		return Result{Name: "last run", Status: Fail, Detail: err.Error()}
	}
	if r == nil {
		return Result{Name: "last run", Status: Warn, Detail: "no runs recorded"}
	}
	detail := fmt.Sprintf("%s %s, %s ago", r.Op, r.Outcome, now.Sub(r.FinishedAt).Round(time.Second))
	if r.Error != "" {
		return Result{Name: "last run", Status: Warn, Detail: detail + ": " + r.Error}
	}
	return Result{Name: "last run", Status: Pass, Detail: detail}
}

// CheckArchive counts ledger snapshots.
func CheckArchive(dir string) Result {
	entries, err := archive.New(dir, false, 0).List()
	if err != nil {
		return Result{Name: "archive", Status: Warn, Detail: err.Error()}
	}
	if len(entries) == 0 {
		return Result{Name: "archive", Status: Pass, Detail: "no snapshots"}
	}
	return Result{Name: "archive", Status: Pass, Detail: fmt.Sprintf("%d snapshots, newest %s", len(entries), entries[0].Name)}
}

// Run executes all checks against the given config and returns a report.
func Run(cfg config.Config) Report {
	var results []Result

	results = append(results, CheckConfig())
	results = append(results, CheckStateDir(cfg.StateDir))
	results = append(results, CheckLedger(cfg.LedgerPath()))
	results = append(results, CheckSource(cfg.Source))
	results = append(results, CheckGenerator(cfg.Generator))
	results = append(results, CheckFallbacks(cfg.Generator.FallbackFile))
	results = append(results, CheckPublisher(cfg.Publisher))
	results = append(results, CheckPublished(cfg.Published))
	results = append(results, CheckInterval(cfg))
	results = append(results, CheckLock(cfg.LockPath()))
	results = append(results, CheckLastRun(cfg.JournalPath(), time.Now()))
	results = append(results, CheckArchive(cfg.ArchiveDir()))

	return Report{Results: results}
}
