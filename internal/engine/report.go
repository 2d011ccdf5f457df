package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/suykerbuyk/evolve/internal/ledger"
)

// Outcome names the branch an operation took.
type Outcome string

const (
	OutcomeSourceUnavailable Outcome = "source_unavailable"
	OutcomeNoCommits         Outcome = "no_commits"
	OutcomeUpToDate          Outcome = "up_to_date"
	OutcomeEvolved           Outcome = "evolved"
	OutcomePublishFailed     Outcome = "publish_failed"
	OutcomeFailed            Outcome = "failed"
	OutcomeAborted           Outcome = "aborted"
	OutcomeReset             Outcome = "reset"
	OutcomeReplayed          Outcome = "replayed"
	OutcomePublished         Outcome = "published"
)

// Operation names.
const (
	OpCheck    = "check"
	OpReset    = "reset"
	OpForce    = "force"
	OpGenerate = "generate"
)

// Report describes one engine operation.
type Report struct {
	CycleID     string
	Op          string
	Outcome     Outcome
	StartedAt   time.Time
	FinishedAt  time.Time
	NewEvents   []ledger.Event
	Fallbacks   int
	Level       int    // ledger level after the operation
	Description string // current description after the operation
	Digest      string // digest of the saved ledger, "" when nothing was saved
	Snapshot    string // archive written before a destructive operation
	Warning     string
	Err         error
}

// OK reports whether the operation finished without error.
func (r Report) OK() bool { return r.Err == nil }

// Summary renders a short human-readable account of the report.
func (r Report) Summary() string {
	var b strings.Builder
	switch r.Outcome {
	case OutcomeSourceUnavailable:
		b.WriteString("commit source unavailable; nothing changed")
	case OutcomeNoCommits:
		b.WriteString("no commits found; nothing changed")
	case OutcomeUpToDate:
		fmt.Fprintf(&b, "up to date at level %d", r.Level)
	case OutcomeEvolved:
		fmt.Fprintf(&b, "evolved %d level(s) to level %d", len(r.NewEvents), r.Level)
	case OutcomeReplayed:
		fmt.Fprintf(&b, "replayed %d commit(s) to level %d", len(r.NewEvents), r.Level)
	case OutcomeReset:
		b.WriteString("ledger reset to the canonical description")
	case OutcomePublished:
		b.WriteString("assets published")
	case OutcomePublishFailed:
		b.WriteString("asset publish failed; ledger unchanged")
	case OutcomeAborted:
		b.WriteString("aborted; ledger unchanged")
	default:
		b.WriteString(string(r.Outcome))
	}
	if r.Fallbacks > 0 {
		fmt.Fprintf(&b, " (%d fallback description(s))", r.Fallbacks)
	}
	return b.String()
}
