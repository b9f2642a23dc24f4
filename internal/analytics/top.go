package analytics

import (
	"slices"

	"github.com/cam3ron2/commit-stats/internal/table"
)

// DefaultTopK is the number of committers ranked when no K is given.
const DefaultTopK = 5

// CommitterCount is one entry of the committer ranking.
type CommitterCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TopCommitters ranks committers by number of rows, most first. Equal counts keep the order
// in which the names first appear in the table. Unattributed rows are not ranked.
func TopCommitters(t *table.Table, k int) []CommitterCount {
	if k <= 0 {
		k = DefaultTopK
	}

	counts := make([]CommitterCount, 0)
	index := make(map[string]int)
	for _, row := range t.All() {
		if !row.Attributed() {
			continue
		}
		i, ok := index[row.Name]
		if !ok {
			i = len(counts)
			index[row.Name] = i
			counts = append(counts, CommitterCount{Name: row.Name})
		}
		counts[i].Count++
	}

	slices.SortStableFunc(counts, func(a, b CommitterCount) int {
		return b.Count - a.Count
	})
	if len(counts) > k {
		counts = counts[:k]
	}
	return counts
}
