// Package stats summarizes the evolution ledger and the cycle journal for
// `evo stats`, `evo history` and `evo runs`.
package stats

import (
	"sort"
	"time"

	"github.com/suykerbuyk/evolve/internal/ledger"
)

// Summary holds aggregate metrics computed from the ledger and journal.
type Summary struct {
	Level        int
	TotalCommits int
	Events       int
	Generated    int
	Fallbacks    int
	FallbackPct  float64

	FirstCommit time.Time
	LastCommit  time.Time
	AvgGap      time.Duration // mean time between consecutive commits

	Monthly  []MonthStats
	Outcomes []OutcomeStats
	Runs     int
}

// MonthStats holds per-month event counts.
type MonthStats struct {
	Month     string // YYYY-MM
	Events    int
	Fallbacks int
}

// OutcomeStats holds the number of journal runs with one outcome.
type OutcomeStats struct {
	Name  string
	Count int
}

// Compute builds a Summary from l and the per-outcome run counts (may be nil).
func Compute(l *ledger.Ledger, outcomes map[string]int) Summary {
	var s Summary
	if l == nil {
		l = ledger.Default()
	}

	s.Level = l.Level
	s.TotalCommits = l.TotalCommits
	s.Events = len(l.History)

	monthMap := make(map[string]*MonthStats)
	var prev time.Time
	var gaps time.Duration
	var nGaps int

	for i, e := range l.History {
		if e.Source == ledger.SourceFallback {
			s.Fallbacks++
		} else {
			s.Generated++
		}

		d := e.CommitDate.UTC()
		if i == 0 || d.Before(s.FirstCommit) {
			s.FirstCommit = d
		}
		if d.After(s.LastCommit) {
			s.LastCommit = d
		}
		if i > 0 && !d.Before(prev) {
			gaps += d.Sub(prev)
			nGaps++
		}
		prev = d

		month := d.Format("2006-01")
		mm, ok := monthMap[month]
		if !ok {
			mm = &MonthStats{Month: month}
			monthMap[month] = mm
		}
		mm.Events++
		if e.Source == ledger.SourceFallback {
			mm.Fallbacks++
		}
	}

	if s.Events > 0 {
		s.FallbackPct = float64(s.Fallbacks) / float64(s.Events) * 100
	}
	if nGaps > 0 {
		s.AvgGap = gaps / time.Duration(nGaps)
	}

	// Months recent-first, cap at 6
	for _, mm := range monthMap {
		s.Monthly = append(s.Monthly, *mm)
	}
	sort.Slice(s.Monthly, func(i, j int) bool {
		return s.Monthly[i].Month > s.Monthly[j].Month
	})
	if len(s.Monthly) > 6 {
		s.Monthly = s.Monthly[:6]
	}

	for name, n := range outcomes {
		s.Runs += n
		s.Outcomes = append(s.Outcomes, OutcomeStats{Name: name, Count: n})
	}
	sort.Slice(s.Outcomes, func(i, j int) bool {
		if s.Outcomes[i].Count != s.Outcomes[j].Count {
			return s.Outcomes[i].Count > s.Outcomes[j].Count
		}
		return s.Outcomes[i].Name < s.Outcomes[j].Name
	})

	return s
}
