package analytics

import (
	"context"

	"github.com/cam3ron2/commit-stats/internal/table"
	"golang.org/x/sync/errgroup"
)

// Options configures Compute.
type Options struct {
	TopK int
	Zone ZonePolicy
}

// Report bundles the three aggregations over one table.
type Report struct {
	Rows      int
	Top       []CommitterCount
	Streak    Streak
	HasStreak bool
	Heatmap   Heatmap
	Zone      ZonePolicy
}

// Compute runs the aggregations concurrently over a frozen table.
func Compute(ctx context.Context, t *table.Table, opts Options) (Report, error) {
	report := Report{Rows: t.Len(), Zone: opts.Zone}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := groupCtx.Err(); err != nil {
			return err
		}
		report.Top = TopCommitters(t, opts.TopK)
		return nil
	})
	group.Go(func() error {
		if err := groupCtx.Err(); err != nil {
			return err
		}
		report.Streak, report.HasStreak = LongestStreak(t)
		return nil
	})
	group.Go(func() error {
		if err := groupCtx.Err(); err != nil {
			return err
		}
		report.Heatmap = BuildHeatmap(t, opts.Zone)
		return nil
	})
	if err := group.Wait(); err != nil {
		return Report{}, err
	}
	return report, nil
}
