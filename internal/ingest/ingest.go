package ingest

import (
	"context"
	"time"

	"github.com/cam3ron2/commit-stats/internal/table"
	"go.uber.org/zap"
)

// Stats summarizes one ingestion pass.
type Stats struct {
	Pages   int
	Records int
	Rows    int
	Skipped map[SkipReason]int
}

// SkippedTotal returns the number of records that produced no row.
func (s Stats) SkippedTotal() int {
	total := 0
	for _, count := range s.Skipped {
		total += count
	}
	return total
}

// Ingest fetches every page since the cutoff and normalizes the records into a table.
// A fetch error aborts the pass and no table is returned.
func Ingest(ctx context.Context, fetcher *Fetcher, since time.Time) (*table.Table, Stats, error) {
	stats := Stats{Skipped: make(map[SkipReason]int)}
	var builder table.Builder

	for page, err := range fetcher.Pages(ctx, since) {
		if err != nil {
			return nil, stats, err
		}
		stats.Pages++
		stats.Records += len(page.Records)

		for i, raw := range page.Records {
			row, reason := Normalize(raw)
			if reason != SkipNone {
				stats.Skipped[reason]++
				fetcher.logger.Debug("commit record skipped",
					zap.Int("page", page.Number),
					zap.Int("index", i),
					zap.String("reason", string(reason)),
				)
				continue
			}
			builder.Append(row)
		}
	}

	stats.Rows = builder.Len()
	return builder.Freeze(), stats, nil
}
