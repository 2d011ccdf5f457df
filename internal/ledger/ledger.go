// Package ledger holds the persisted evolution record: the character's
// current description, its level, and the append-only history of
// commit-triggered changes.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gowebpki/jcs"
)

// CanonicalDescription is the description of a fresh or reset ledger.
const CanonicalDescription = "a small pixel-art hero facing right"

// ErrInvalid marks a ledger that violates its invariants or schema.
var ErrInvalid = errors.New("invalid ledger")

// Source tags where an event's description came from.
const (
	SourceGenerated = "generated"
	SourceFallback  = "fallback"
)

// Ledger is the single persisted pipeline record.
type Ledger struct {
	CursorCommitID     string     `json:"cursor_commit_id"`
	CursorTimestamp    *time.Time `json:"cursor_timestamp"`
	CurrentDescription string     `json:"current_description"`
	Level              int        `json:"level"`
	TotalCommits       int        `json:"total_commits"`
	History            []Event    `json:"history"`
}

// Event records one commit-triggered description change.
type Event struct {
	Level               int       `json:"level"`
	CommitID            string    `json:"commit_id"`
	CommitMessage       string    `json:"commit_message"`
	CommitDate          time.Time `json:"commit_date"`
	PreviousDescription string    `json:"previous_description"`
	NewDescription      string    `json:"new_description"`
	Prompt              string    `json:"prompt"`
	Source              string    `json:"source"`
}

// Default returns the canonical empty ledger.
func Default() *Ledger {
	return &Ledger{
		CurrentDescription: CanonicalDescription,
		History:            []Event{},
	}
}

// HasCommit reports whether commitID is already recorded.
func (l *Ledger) HasCommit(commitID string) bool {
	for _, e := range l.History {
		if e.CommitID == commitID {
			return true
		}
	}
	return false
}

// CommitIDs returns the set of recorded commit ids.
func (l *Ledger) CommitIDs() map[string]bool {
	ids := make(map[string]bool, len(l.History))
	for _, e := range l.History {
		ids[e.CommitID] = true
	}
	return ids
}

// Append records e as the next event. Level and PreviousDescription are
// assigned from the ledger so the chain cannot be broken by the caller.
func (l *Ledger) Append(e Event) (Event, error) {
	if strings.TrimSpace(e.CommitID) == "" {
		return Event{}, fmt.Errorf("append: empty commit id")
	}
	if l.HasCommit(e.CommitID) {
		return Event{}, fmt.Errorf("append: commit %s already recorded", e.CommitID)
	}
	if strings.TrimSpace(e.NewDescription) == "" {
		return Event{}, fmt.Errorf("append: empty description for commit %s", e.CommitID)
	}
	e.Level = len(l.History) + 1
	e.PreviousDescription = l.CurrentDescription
	l.History = append(l.History, e)
	l.Level = len(l.History)
	l.CurrentDescription = e.NewDescription
	l.TotalCommits++
	return e, nil
}

// Clone returns a deep copy.
func (l *Ledger) Clone() *Ledger {
	c := *l
	if l.CursorTimestamp != nil {
		ts := *l.CursorTimestamp
		c.CursorTimestamp = &ts
	}
	c.History = make([]Event, len(l.History))
	copy(c.History, l.History)
	return &c
}

// Last returns the newest event, if any.
func (l *Ledger) Last() (Event, bool) {
	if len(l.History) == 0 {
		return Event{}, false
	}
	return l.History[len(l.History)-1], true
}

// Validate checks the ledger invariants.
func (l *Ledger) Validate() error {
	if l.Level != len(l.History) {
		return fmt.Errorf("%w: level %d != history length %d", ErrInvalid, l.Level, len(l.History))
	}
	if l.TotalCommits < l.Level {
		return fmt.Errorf("%w: total_commits %d < level %d", ErrInvalid, l.TotalCommits, l.Level)
	}
	seen := make(map[string]bool, len(l.History))
	prev := ""
	for i, e := range l.History {
		if e.Level != i+1 {
			return fmt.Errorf("%w: event %d has level %d", ErrInvalid, i, e.Level)
		}
		if e.CommitID == "" {
			return fmt.Errorf("%w: event %d has no commit id", ErrInvalid, i)
		}
		if seen[e.CommitID] {
			return fmt.Errorf("%w: commit %s recorded twice", ErrInvalid, e.CommitID)
		}
		seen[e.CommitID] = true
		if i == 0 && e.PreviousDescription != CanonicalDescription {
			return fmt.Errorf("%w: first event does not start from the canonical description", ErrInvalid)
		}
		if i > 0 && e.PreviousDescription != prev {
			return fmt.Errorf("%w: event %d does not chain from event %d", ErrInvalid, i, i-1)
		}
		prev = e.NewDescription
	}
	want := CanonicalDescription
	if last, ok := l.Last(); ok {
		want = last.NewDescription
	}
	if l.CurrentDescription != want {
		return fmt.Errorf("%w: current_description does not match last event", ErrInvalid)
	}
	return nil
}

// Encode renders the on-disk document.
func (l *Ledger) Encode() ([]byte, error) {
	out := *l
	if out.History == nil {
		out.History = []Event{}
	}
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal ledger: %w", err)
	}
	return append(data, '\n'), nil
}

// Digest is the hex SHA-256 of the RFC 8785 canonical form of the ledger.
func (l *Ledger) Digest() (string, error) {
	data, err := l.Encode()
	if err != nil {
		return "", err
	}
	canon, err := jcs.Transform(data)
	if err != nil {
		return "", fmt.Errorf("canonicalize ledger: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// Decode parses and validates a ledger document.
func Decode(data []byte) (*Ledger, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}
	var l Ledger
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if l.History == nil {
		l.History = []Event{}
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}
