package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/cam3ron2/commit-stats/internal/analytics"
	"github.com/cam3ron2/commit-stats/internal/githubapi"
	"github.com/cam3ron2/commit-stats/internal/ingest"
	"github.com/cam3ron2/commit-stats/internal/report"
	"github.com/cam3ron2/commit-stats/internal/table"
	"github.com/cam3ron2/commit-stats/internal/telemetry"
	"github.com/cam3ron2/commit-stats/internal/window"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Stage names one step of a run.
type Stage string

const (
	// StageWindow resolves the cutoff.
	StageWindow Stage = "window"
	// StageFetch checks the repository and pages through its commits.
	StageFetch Stage = "fetch"
	// StageStore writes the table to the sink and optionally reads it back.
	StageStore Stage = "store"
	// StageAggregate computes the report.
	StageAggregate Stage = "aggregate"
)

// StageError wraps the failure that aborted a run.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// RepositoryChecker confirms the repository exists before paging.
type RepositoryChecker interface {
	Repository(ctx context.Context, owner, repo string) (githubapi.Repository, error)
}

// Runner executes one extract-and-aggregate pass.
type Runner struct {
	Owner  string
	Repo   string
	Months int

	Fetcher *ingest.Fetcher
	// Preflight is optional.
	Preflight RepositoryChecker
	// Sink is optional. With Reload set it must also implement table.Source.
	Sink   table.Sink
	Reload bool

	Analytics analytics.Options
	Logger    *zap.Logger
	Now       func() time.Time
}

// Result is the outcome of a successful run.
type Result struct {
	Repository string
	Months     int
	Cutoff     time.Time
	Stats      ingest.Stats
	Table      *table.Table
	Report     analytics.Report
}

// Header returns the report header for this run.
func (r Result) Header() report.Header {
	return report.Header{
		Repository: r.Repository,
		Months:     r.Months,
		Cutoff:     r.Cutoff,
		Skipped:    r.Stats.SkippedTotal(),
	}
}

// Run resolves the window, fetches and normalizes commits, persists the table and aggregates it.
// Any failure is returned as a *StageError and no partial result is produced.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	result := Result{Repository: r.Owner + "/" + r.Repo, Months: r.Months}
	logger = logger.With(zap.String("repository", result.Repository))

	cutoff, err := runStage(ctx, StageWindow, func(context.Context) (time.Time, error) {
		return window.Resolve(r.Months, now())
	}, attribute.Int("window.months", r.Months))
	if err != nil {
		return Result{}, err
	}
	result.Cutoff = cutoff
	logger.Info("resolved commit window",
		zap.Int("months", r.Months),
		zap.String("since", window.FormatCutoff(cutoff)),
	)

	type fetched struct {
		table *table.Table
		stats ingest.Stats
	}
	fetch, err := runStage(ctx, StageFetch, func(stageCtx context.Context) (fetched, error) {
		if r.Fetcher == nil {
			return fetched{}, fmt.Errorf("fetcher is not configured")
		}
		if r.Preflight != nil {
			repository, err := r.Preflight.Repository(stageCtx, r.Owner, r.Repo)
			if err != nil {
				return fetched{}, err
			}
			logger.Info("repository found",
				zap.String("full_name", repository.FullName),
				zap.String("default_branch", repository.DefaultBranch),
				zap.Bool("archived", repository.Archived),
			)
		}
		tbl, stats, err := ingest.Ingest(stageCtx, r.Fetcher, cutoff)
		if err != nil {
			return fetched{}, err
		}
		return fetched{table: tbl, stats: stats}, nil
	}, attribute.String("repository", result.Repository))
	if err != nil {
		return Result{}, err
	}
	result.Stats = fetch.stats
	logger.Info("commits ingested",
		zap.Int("pages", fetch.stats.Pages),
		zap.Int("records", fetch.stats.Records),
		zap.Int("rows", fetch.stats.Rows),
		zap.Int("skipped", fetch.stats.SkippedTotal()),
	)

	tbl := fetch.table
	if r.Sink != nil {
		tbl, err = runStage(ctx, StageStore, func(stageCtx context.Context) (*table.Table, error) {
			return r.persist(stageCtx, tbl, logger)
		}, attribute.Int("table.rows", tbl.Len()))
		if err != nil {
			return Result{}, err
		}
	}
	result.Table = tbl

	rep, err := runStage(ctx, StageAggregate, func(stageCtx context.Context) (analytics.Report, error) {
		return analytics.Compute(stageCtx, tbl, r.Analytics)
	}, attribute.Int("table.rows", tbl.Len()))
	if err != nil {
		return Result{}, err
	}
	result.Report = rep
	return result, nil
}

func (r *Runner) persist(ctx context.Context, tbl *table.Table, logger *zap.Logger) (*table.Table, error) {
	if err := r.Sink.WriteTable(ctx, tbl); err != nil {
		return nil, err
	}
	logger.Info("commit table stored", zap.Int("rows", tbl.Len()))
	if !r.Reload {
		return tbl, nil
	}

	source, ok := r.Sink.(table.Source)
	if !ok {
		return nil, fmt.Errorf("sink %T cannot reload tables", r.Sink)
	}
	reloaded, err := source.ReadTable(ctx)
	if err != nil {
		return nil, err
	}
	if reloaded.Len() != tbl.Len() {
		return nil, fmt.Errorf("reloaded %d rows, wrote %d", reloaded.Len(), tbl.Len())
	}
	logger.Debug("commit table reloaded", zap.Int("rows", reloaded.Len()))
	return reloaded, nil
}

func runStage[T any](ctx context.Context, stage Stage, fn func(context.Context) (T, error), attrs ...attribute.KeyValue) (T, error) {
	stageCtx, span := telemetry.StartStage(ctx, string(stage), attrs...)
	value, err := fn(stageCtx)
	telemetry.EndStage(span, err)
	if err != nil {
		var zero T
		return zero, &StageError{Stage: stage, Err: err}
	}
	return value, nil
}
