package stats

import (
	"fmt"
	"strings"
	"time"

	"github.com/suykerbuyk/evolve/internal/journal"
	"github.com/suykerbuyk/evolve/internal/ledger"
)

// Format renders a Summary as aligned terminal output.
func Format(s Summary) string {
	if s.Events == 0 && s.Runs == 0 {
		return "evo stats\n\n  No evolutions yet. Run `evo check` or `evo serve` first.\n"
	}

	var b strings.Builder
	b.WriteString("evo stats\n")

	// Overview
	b.WriteString("\nOverview\n")
	fmt.Fprintf(&b, "  %-20s %d\n", "level", s.Level)
	fmt.Fprintf(&b, "  %-20s %s\n", "commits", formatInt(s.TotalCommits))
	fmt.Fprintf(&b, "  %-20s %s generated / %s fallback (%d%%)\n", "descriptions",
		formatInt(s.Generated), formatInt(s.Fallbacks), int(s.FallbackPct+0.5))
	if s.Events > 0 {
		fmt.Fprintf(&b, "  %-20s %s\n", "first commit", s.FirstCommit.Format("2006-01-02"))
		fmt.Fprintf(&b, "  %-20s %s\n", "last commit", s.LastCommit.Format("2006-01-02"))
		fmt.Fprintf(&b, "  %-20s %s\n", "avg gap", formatDuration(s.AvgGap))
	}

	// Monthly Trend
	if len(s.Monthly) > 0 {
		b.WriteString("\nMonthly Trend\n")
		for _, m := range s.Monthly {
			fmt.Fprintf(&b, "  %-12s %3d events   %3d fallback\n", m.Month, m.Events, m.Fallbacks)
		}
	}

	// Cycles
	if len(s.Outcomes) > 0 {
		fmt.Fprintf(&b, "\nCycles (%s)\n", formatInt(s.Runs))
		for _, o := range s.Outcomes {
			fmt.Fprintf(&b, "  %-24s %5s\n", o.Name, formatInt(o.Count))
		}
	}

	return b.String()
}

// FormatHistory renders ledger events oldest first, one per line.
func FormatHistory(events []ledger.Event) string {
	if len(events) == 0 {
		return "evo history\n\n  No evolution events.\n"
	}
	var b strings.Builder
	b.WriteString("evo history\n\n")
	for _, e := range events {
		fmt.Fprintf(&b, "  %3d  %-8s  %s  %-9s  %s\n",
			e.Level, shortID(e.CommitID), e.CommitDate.UTC().Format("2006-01-02 15:04"),
			e.Source, clip(e.NewDescription, 72))
	}
	return b.String()
}

// FormatRuns renders journal runs newest first.
func FormatRuns(runs []journal.Run) string {
	if len(runs) == 0 {
		return "evo runs\n\n  No runs recorded.\n"
	}
	var b strings.Builder
	b.WriteString("evo runs\n\n")
	for _, r := range runs {
		line := fmt.Sprintf("  %s  %-8s  %-18s  +%d (%d fallback)  level %d  %s",
			r.StartedAt.UTC().Format("2006-01-02 15:04:05"), r.Op, r.Outcome,
			r.NewEvents, r.Fallbacks, r.Level, formatDuration(r.Duration()))
		if r.Error != "" {
			line += "  " + clip(r.Error, 60)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// clip shortens s to max runes with a trailing ellipsis.
func clip(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

// formatInt formats an integer with comma separators.
func formatInt(n int) string {
	if n < 0 {
		return "0"
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var result []byte
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(c))
	}
	return string(result)
}

// formatDuration formats d as "Xd Yh", "Xh Ym", "Xm" or "Xs".
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d/time.Second))
	}
	minutes := int(d / time.Minute)
	days := minutes / (24 * 60)
	h := (minutes / 60) % 24
	m := minutes % 60
	switch {
	case days > 0 && h == 0:
		return fmt.Sprintf("%dd", days)
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, h)
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}
