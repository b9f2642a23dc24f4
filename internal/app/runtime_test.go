package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cam3ron2/commit-stats/internal/analytics"
	"github.com/cam3ron2/commit-stats/internal/health"
	"github.com/cam3ron2/commit-stats/internal/pipeline"
	"github.com/cam3ron2/commit-stats/internal/report"
	"github.com/cam3ron2/commit-stats/internal/table"
)

type scriptedRun struct {
	results []error
	calls   int
}

func (s *scriptedRun) run(ctx context.Context) (pipeline.Result, error) {
	err := s.results[min(s.calls, len(s.results)-1)]
	s.calls++
	if err != nil {
		return pipeline.Result{}, err
	}
	tbl := table.FromRows([]table.Row{
		{Name: "alice", Date: time.Date(2021, time.March, 1, 10, 0, 0, 0, time.UTC)},
		{Name: "bob", Date: time.Date(2021, time.March, 2, 10, 0, 0, 0, time.UTC)},
	})
	rep, err := analytics.Compute(ctx, tbl, analytics.Options{})
	if err != nil {
		return pipeline.Result{}, err
	}
	return pipeline.Result{
		Repository: "apache/airflow",
		Months:     1,
		Cutoff:     time.Date(2021, time.February, 2, 10, 0, 0, 0, time.UTC),
		Table:      tbl,
		Report:     rep,
	}, nil
}

func TestRuntimeRefreshLifecycle(t *testing.T) {
	t.Parallel()

	fetchErr := &pipeline.StageError{Stage: pipeline.StageFetch, Err: errors.New("list commits page 1: status 502")}
	storeErr := &pipeline.StageError{Stage: pipeline.StageStore, Err: errors.New("ping redis")}
	script := &scriptedRun{results: []error{fetchErr, nil, storeErr, nil}}
	now := time.Date(2021, time.March, 3, 0, 0, 0, 0, time.UTC)
	runtime := NewRuntime(script.run, 0, nil)
	runtime.Now = func() time.Time { return now }

	steps := []struct {
		wantErr    bool
		wantMode   health.Mode
		wantReady  bool
		wantGitHub bool
		wantStore  bool
	}{
		{wantErr: true, wantMode: health.ModeUnhealthy, wantReady: false, wantGitHub: false, wantStore: true},
		{wantErr: false, wantMode: health.ModeHealthy, wantReady: true, wantGitHub: true, wantStore: true},
		{wantErr: true, wantMode: health.ModeDegraded, wantReady: true, wantGitHub: true, wantStore: false},
		{wantErr: false, wantMode: health.ModeHealthy, wantReady: true, wantGitHub: true, wantStore: true},
	}

	for i, step := range steps {
		_, err := runtime.Refresh(context.Background())
		if (err != nil) != step.wantErr {
			t.Fatalf("step %d: Refresh() error = %v, wantErr %t", i, err, step.wantErr)
		}
		status := runtime.CurrentStatus(context.Background())
		if status.Mode != step.wantMode || status.Ready != step.wantReady {
			t.Fatalf("step %d: status = %+v, want mode %q ready %t", i, status, step.wantMode, step.wantReady)
		}
		if status.Components["github"] != step.wantGitHub || status.Components["store"] != step.wantStore {
			t.Fatalf("step %d: components = %v", i, status.Components)
		}
	}

	doc, ok := runtime.Latest()
	if !ok || doc.Repository != "apache/airflow" || doc.Rows != 2 {
		t.Fatalf("Latest() = %+v, %t", doc, ok)
	}
	if !runtime.LastSuccess().Equal(now) {
		t.Fatalf("LastSuccess() = %s, want %s", runtime.LastSuccess(), now)
	}
}

func TestRuntimeStartRefreshesOnInterval(t *testing.T) {
	t.Parallel()

	calls := make(chan struct{}, 8)
	runtime := NewRuntime(func(context.Context) (pipeline.Result, error) {
		select {
		case calls <- struct{}{}:
		default:
		}
		return pipeline.Result{}, errors.New("still failing")
	}, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runtime.Start(ctx)

	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("refresh %d did not run", i+1)
		}
	}
}

func TestRuntimeStartWithoutIntervalIsNoop(t *testing.T) {
	t.Parallel()

	runtime := NewRuntime(func(context.Context) (pipeline.Result, error) {
		t.Errorf("run should not be called")
		return pipeline.Result{}, nil
	}, 0, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	runtime.Start(ctx)
	<-ctx.Done()
}

func TestRuntimeHandler(t *testing.T) {
	t.Parallel()

	script := &scriptedRun{results: []error{nil}}
	runtime := NewRuntime(script.run, 0, nil)
	handler := runtime.Handler()

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	if rec := get("/report"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("/report before refresh = %d, want 503", rec.Code)
	}
	if rec := get("/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("/readyz before refresh = %d, want 503", rec.Code)
	}

	if _, err := runtime.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() unexpected error: %v", err)
	}

	rec := get("/report")
	if rec.Code != http.StatusOK {
		t.Fatalf("/report = %d, want 200", rec.Code)
	}
	var doc report.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode /report: %v", err)
	}
	if doc.Rows != 2 || len(doc.Top) != 2 {
		t.Fatalf("/report document = %+v", doc)
	}

	if rec := get("/metrics"); !strings.Contains(rec.Body.String(), `commit_stats_rows{repository="apache/airflow"} 2`) {
		t.Fatalf("/metrics missing rows gauge:\n%s", rec.Body.String())
	}
	if rec := get("/healthz"); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"mode":"healthy"`) {
		t.Fatalf("/healthz = %d %s", rec.Code, rec.Body.String())
	}
}
