package health

import (
	"context"
	"encoding/json"
	"net/http"
)

// Mode indicates high-level health mode.
type Mode string

const (
	// ModeHealthy indicates the latest run succeeded.
	ModeHealthy Mode = "healthy"
	// ModeDegraded indicates a report is served but the latest refresh failed.
	ModeDegraded Mode = "degraded"
	// ModeUnhealthy indicates no report is available.
	ModeUnhealthy Mode = "unhealthy"
)

// Input represents run state used for health evaluation.
type Input struct {
	HasReport        bool
	LastRunSucceeded bool
	GitHubHealthy    bool
	StoreHealthy     bool
	LastError        string
}

// Status represents evaluated application health.
type Status struct {
	Mode       Mode            `json:"mode"`
	Ready      bool            `json:"ready"`
	Components map[string]bool `json:"components"`
	LastError  string          `json:"last_error,omitempty"`
}

// Provider supplies current health status.
type Provider interface {
	CurrentStatus(ctx context.Context) Status
}

// Evaluate derives readiness and mode. The service is ready once any report exists.
func Evaluate(input Input) Status {
	components := map[string]bool{
		"report":   input.HasReport,
		"last_run": input.LastRunSucceeded,
		"github":   input.GitHubHealthy,
		"store":    input.StoreHealthy,
	}

	mode := ModeHealthy
	if !input.HasReport {
		mode = ModeUnhealthy
	} else if !input.LastRunSucceeded || !input.GitHubHealthy || !input.StoreHealthy {
		mode = ModeDegraded
	}

	return Status{
		Mode:       mode,
		Ready:      input.HasReport,
		Components: components,
		LastError:  input.LastError,
	}
}

// NewHandler returns the health HTTP handler with /livez, /readyz, and /healthz endpoints.
func NewHandler(provider Provider) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			return
		}
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		status := provider.CurrentStatus(r.Context())
		if status.Ready {
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("ready")); err != nil {
				return
			}
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte("not ready")); err != nil {
			return
		}
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := provider.CurrentStatus(r.Context())
		payload, err := json.Marshal(status)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			if _, writeErr := w.Write([]byte(`{"mode":"unhealthy","error":"marshal health status"}`)); writeErr != nil {
				return
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		code := http.StatusOK
		if !status.Ready {
			code = http.StatusServiceUnavailable
		}
		w.WriteHeader(code)
		if _, err := w.Write(payload); err != nil {
			return
		}
	})

	return mux
}
