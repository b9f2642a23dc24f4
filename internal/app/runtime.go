package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cam3ron2/commit-stats/internal/exporter"
	"github.com/cam3ron2/commit-stats/internal/health"
	"github.com/cam3ron2/commit-stats/internal/pipeline"
	"github.com/cam3ron2/commit-stats/internal/report"
	"go.uber.org/zap"
)

// RunFunc executes one pipeline pass.
type RunFunc func(ctx context.Context) (pipeline.Result, error)

// Runtime keeps the latest report for serve mode and refreshes it on an interval.
type Runtime struct {
	run      RunFunc
	interval time.Duration
	logger   *zap.Logger

	mu            sync.RWMutex
	latest        report.Document
	hasReport     bool
	lastErr       error
	lastSuccess   time.Time
	githubHealthy bool
	storeHealthy  bool

	// Now is injected for deterministic tests.
	Now func() time.Time
}

// NewRuntime creates a runtime around run. A non-positive interval disables periodic refresh.
func NewRuntime(run RunFunc, interval time.Duration, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runtime{
		run:           run,
		interval:      interval,
		logger:        logger,
		githubHealthy: true,
		storeHealthy:  true,
		Now:           time.Now,
	}
}

// Refresh runs the pipeline once and publishes the report on success. A failed run keeps the
// previous report.
func (r *Runtime) Refresh(ctx context.Context) (pipeline.Result, error) {
	started := time.Now()
	result, err := r.run(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastErr = err
	if err != nil {
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) {
			switch stageErr.Stage {
			case pipeline.StageFetch:
				r.githubHealthy = false
			case pipeline.StageStore:
				r.storeHealthy = false
			}
		}
		r.logger.Warn("refresh failed", zap.Error(err), zap.Bool("serving_previous_report", r.hasReport))
		return pipeline.Result{}, err
	}

	r.latest = report.Build(result.Header(), result.Report)
	r.hasReport = true
	r.lastSuccess = r.Now()
	r.githubHealthy = true
	r.storeHealthy = true
	r.logger.Info("report refreshed",
		zap.Int("rows", result.Report.Rows),
		zap.Duration("duration", time.Since(started)),
	)
	return result, nil
}

// Start refreshes in the background until ctx is done.
func (r *Runtime) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	r.logger.Info("starting refresh loop", zap.Duration("interval", r.interval))
	go r.runRefreshLoop(ctx)
}

func (r *Runtime) runRefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("refresh loop stopped")
			return
		case <-ticker.C:
			_, _ = r.Refresh(ctx)
		}
	}
}

// Latest returns the most recent successful report.
func (r *Runtime) Latest() (report.Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest, r.hasReport
}

// LastSuccess returns when the published report was produced.
func (r *Runtime) LastSuccess() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSuccess
}

// CurrentStatus returns current health status.
func (r *Runtime) CurrentStatus(_ context.Context) health.Status {
	r.mu.RLock()
	input := health.Input{
		HasReport:        r.hasReport,
		LastRunSucceeded: r.lastErr == nil,
		GitHubHealthy:    r.githubHealthy,
		StoreHealthy:     r.storeHealthy,
	}
	if r.lastErr != nil {
		input.LastError = r.lastErr.Error()
	}
	r.mu.RUnlock()
	return health.Evaluate(input)
}

// Handler returns the combined HTTP handler.
func (r *Runtime) Handler() http.Handler {
	return NewHTTPHandler(exporter.NewOpenMetricsHandler(r), NewReportHandler(r), health.NewHandler(r))
}
