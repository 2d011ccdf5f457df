package stats

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/suykerbuyk/evolve/internal/journal"
	"github.com/suykerbuyk/evolve/internal/ledger"
)

var t0 = time.Date(2026, 1, 30, 9, 0, 0, 0, time.UTC)

func buildLedger(t *testing.T, sources []string, gaps []time.Duration) *ledger.Ledger {
	t.Helper()
	l := ledger.Default()
	at := t0
	for i, src := range sources {
		if i > 0 {
			at = at.Add(gaps[i-1])
		}
		_, err := l.Append(ledger.Event{
			CommitID:       "commit" + string(rune('a'+i)) + "0123456789",
			CommitMessage:  "msg " + string(rune('a'+i)),
			CommitDate:     at,
			NewDescription: "D" + string(rune('1'+i)) + ", facing right",
			Source:         src,
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	return l
}

func TestCompute_Empty(t *testing.T) {
	s := Compute(ledger.Default(), nil)
	if s.Events != 0 || s.Level != 0 {
		t.Errorf("Events = %d, Level = %d", s.Events, s.Level)
	}
	if s.FallbackPct != 0 {
		t.Errorf("FallbackPct = %f, want 0", s.FallbackPct)
	}
	if s.AvgGap != 0 {
		t.Errorf("AvgGap = %s, want 0", s.AvgGap)
	}
}

func TestCompute_NilLedger(t *testing.T) {
	s := Compute(nil, map[string]int{"no_commits": 2})
	if s.Events != 0 || s.Runs != 2 {
		t.Errorf("Events = %d, Runs = %d", s.Events, s.Runs)
	}
}

func TestCompute_Counts(t *testing.T) {
	l := buildLedger(t,
		[]string{ledger.SourceGenerated, ledger.SourceFallback, ledger.SourceGenerated, ledger.SourceFallback},
		[]time.Duration{time.Hour, 2 * time.Hour, 3 * time.Hour},
	)
	s := Compute(l, nil)

	if s.Level != 4 || s.Events != 4 || s.TotalCommits != 4 {
		t.Errorf("Level = %d, Events = %d, TotalCommits = %d", s.Level, s.Events, s.TotalCommits)
	}
	if s.Generated != 2 || s.Fallbacks != 2 {
		t.Errorf("Generated = %d, Fallbacks = %d", s.Generated, s.Fallbacks)
	}
	if s.FallbackPct != 50 {
		t.Errorf("FallbackPct = %f, want 50", s.FallbackPct)
	}
	if s.AvgGap != 2*time.Hour {
		t.Errorf("AvgGap = %s, want 2h", s.AvgGap)
	}
	if !s.FirstCommit.Equal(t0) || !s.LastCommit.Equal(t0.Add(6*time.Hour)) {
		t.Errorf("First = %s, Last = %s", s.FirstCommit, s.LastCommit)
	}
}

func TestCompute_MonthlyTrend(t *testing.T) {
	// t0 is Jan 30; gaps push events into Feb and Mar.
	l := buildLedger(t,
		[]string{ledger.SourceGenerated, ledger.SourceFallback, ledger.SourceGenerated},
		[]time.Duration{5 * 24 * time.Hour, 30 * 24 * time.Hour},
	)
	s := Compute(l, nil)

	if len(s.Monthly) != 3 {
		t.Fatalf("Monthly = %d, want 3", len(s.Monthly))
	}
	if s.Monthly[0].Month != "2026-03" || s.Monthly[2].Month != "2026-01" {
		t.Errorf("months not recent-first: %+v", s.Monthly)
	}
	if s.Monthly[1].Month != "2026-02" || s.Monthly[1].Fallbacks != 1 {
		t.Errorf("Feb = %+v", s.Monthly[1])
	}
}

func TestCompute_MonthlyCap(t *testing.T) {
	sources := make([]string, 9)
	gaps := make([]time.Duration, 8)
	for i := range sources {
		sources[i] = ledger.SourceGenerated
	}
	for i := range gaps {
		gaps[i] = 31 * 24 * time.Hour
	}
	s := Compute(buildLedger(t, sources, gaps), nil)
	if len(s.Monthly) != 6 {
		t.Errorf("Monthly = %d, want 6", len(s.Monthly))
	}
}

func TestCompute_Outcomes(t *testing.T) {
	s := Compute(ledger.Default(), map[string]int{
		"up_to_date":         7,
		"evolved":            3,
		"source_unavailable": 3,
	})
	if s.Runs != 13 {
		t.Errorf("Runs = %d, want 13", s.Runs)
	}
	want := []string{"up_to_date", "evolved", "source_unavailable"}
	for i, name := range want {
		if s.Outcomes[i].Name != name {
			t.Errorf("Outcomes[%d] = %s, want %s", i, s.Outcomes[i].Name, name)
		}
	}
}

func TestFormat_Overview(t *testing.T) {
	l := buildLedger(t,
		[]string{ledger.SourceGenerated, ledger.SourceFallback},
		[]time.Duration{90 * time.Minute},
	)
	out := Format(Compute(l, map[string]int{"evolved": 1}))

	for _, want := range []string{
		"evo stats\n",
		"Overview",
		"level                2",
		"1 generated / 1 fallback (50%)",
		"avg gap              1h 30m",
		"Monthly Trend",
		"2026-01",
		"Cycles (1)",
		"evolved",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormat_Empty(t *testing.T) {
	out := Format(Compute(ledger.Default(), nil))
	if !strings.Contains(out, "No evolutions yet") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestFormatHistory(t *testing.T) {
	l := buildLedger(t, []string{ledger.SourceGenerated, ledger.SourceFallback}, []time.Duration{time.Hour})
	out := FormatHistory(l.History)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %d, want 4:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[2], "  1  commita0  2026-01-30 09:00  generated  D1, facing right") {
		t.Errorf("row 1 = %q", lines[2])
	}
	if !strings.Contains(lines[3], "fallback") {
		t.Errorf("row 2 = %q", lines[3])
	}

	if got := FormatHistory(nil); !strings.Contains(got, "No evolution events") {
		t.Errorf("empty history: %q", got)
	}
}

func TestFormatRuns(t *testing.T) {
	runs := []journal.Run{
		{ID: "r2", Op: "check", Outcome: "publish_failed", StartedAt: t0, FinishedAt: t0.Add(3 * time.Second), Error: "exit status 1"},
		{ID: "r1", Op: "check", Outcome: "evolved", StartedAt: t0.Add(-time.Hour), FinishedAt: t0.Add(-time.Hour + 2*time.Minute), NewEvents: 2, Fallbacks: 1, Level: 2},
	}
	out := FormatRuns(runs)
	if !strings.Contains(out, "publish_failed") || !strings.Contains(out, "exit status 1") {
		t.Errorf("missing failed run:\n%s", out)
	}
	if !strings.Contains(out, "+2 (1 fallback)  level 2  2m") {
		t.Errorf("missing evolved run:\n%s", out)
	}
	if got := FormatRuns(nil); !strings.Contains(got, "No runs recorded") {
		t.Errorf("empty runs: %q", got)
	}
}

func TestWriteCSV(t *testing.T) {
	l := buildLedger(t, []string{ledger.SourceGenerated, ledger.SourceFallback}, []time.Duration{time.Hour})
	var buf bytes.Buffer
	if err := WriteCSV(&buf, l.History); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	wantHeader := []string{"level", "commit_id", "commit_date", "commit_message", "source", "previous_description", "new_description"}
	for i, h := range wantHeader {
		if records[0][i] != h {
			t.Errorf("header[%d] = %q, want %q", i, records[0][i], h)
		}
	}
	// Descriptions contain commas and must survive quoting.
	if records[1][6] != "D1, facing right" {
		t.Errorf("new_description = %q", records[1][6])
	}
	if records[2][4] != "fallback" || records[2][5] != "D1, facing right" {
		t.Errorf("row 2 = %v", records[2])
	}
	if records[1][2] != "2026-01-30T09:00:00Z" {
		t.Errorf("commit_date = %q", records[1][2])
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{-time.Second, "0s"},
		{42 * time.Second, "42s"},
		{5 * time.Minute, "5m"},
		{2 * time.Hour, "2h"},
		{90 * time.Minute, "1h 30m"},
		{48 * time.Hour, "2d"},
		{27 * time.Hour, "1d 3h"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatInt(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-5, "0"},
	}
	for _, tt := range tests {
		if got := formatInt(tt.in); got != tt.want {
			t.Errorf("formatInt(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
