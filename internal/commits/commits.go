// Package commits fetches the commits that drive character evolution.
package commits

import (
	"context"
	"sort"
	"time"
)

// Commit is one commit by the tracked author.
type Commit struct {
	ID      string
	Message string
	Date    time.Time // author timestamp
}

// Source returns every commit by the tracked author. Implementations return
// an error when the feed is unreachable; an empty slice is not an error.
type Source interface {
	Fetch(ctx context.Context) ([]Commit, error)
}

// Sort orders commits oldest first by author timestamp, breaking ties by id
// so the order is total and repeatable.
func Sort(cs []Commit) {
	sort.SliceStable(cs, func(i, j int) bool {
		if !cs[i].Date.Equal(cs[j].Date) {
			return cs[i].Date.Before(cs[j].Date)
		}
		return cs[i].ID < cs[j].ID
	})
}

// Unique drops repeated ids, keeping the first occurrence. Search pages can
// overlap when new commits land between page requests.
func Unique(cs []Commit) []Commit {
	seen := make(map[string]bool, len(cs))
	out := cs[:0:0]
	for _, c := range cs {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}

// Subject returns the first line of a commit message.
func Subject(msg string) string {
	for i := 0; i < len(msg); i++ {
		if msg[i] == '\n' || msg[i] == '\r' {
			return msg[:i]
		}
	}
	return msg
}
