package analytics

import (
	"time"

	"github.com/cam3ron2/commit-stats/internal/table"
)

// Streak is the time between a committer's earliest and latest commit in the window.
// It is a calendar span; days without commits inside it are not considered.
type Streak struct {
	Name  string
	First time.Time
	Last  time.Time
	Span  time.Duration
}

// LongestStreak returns the committer with the widest span. Ties go to the name that
// appears first in the table. ok is false when no row is attributed.
func LongestStreak(t *table.Table) (Streak, bool) {
	spans := make([]Streak, 0)
	index := make(map[string]int)
	for _, row := range t.All() {
		if !row.Attributed() {
			continue
		}
		i, seen := index[row.Name]
		if !seen {
			index[row.Name] = len(spans)
			spans = append(spans, Streak{Name: row.Name, First: row.Date, Last: row.Date})
			continue
		}
		if row.Date.Before(spans[i].First) {
			spans[i].First = row.Date
		}
		if row.Date.After(spans[i].Last) {
			spans[i].Last = row.Date
		}
	}
	if len(spans) == 0 {
		return Streak{}, false
	}

	best := 0
	for i := range spans {
		spans[i].Span = spans[i].Last.Sub(spans[i].First)
		if spans[i].Span > spans[best].Span {
			best = i
		}
	}
	return spans[best], true
}
