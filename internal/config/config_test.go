package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"
)

func TestLoadAndValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		yaml       string
		wantErr    bool
		errSubstrs []string
	}{
		{
			name: "valid_full_configuration",
			yaml: `
server:
  listen_addr: ":9090"
  log_level: "debug"
  serve: true
  refresh_interval: "1h"
window:
  months: 6
github:
  api_base_url: "https://ghe.example.com/api/v3"
  owner: "apache"
  repo: "airflow"
  request_timeout: "20s"
  per_page: 50
  token_env: "AIRFLOW_GH_TOKEN"
  requests_per_second: 2.5
  preflight: false
rate_limit:
  min_remaining_threshold: 50
  min_reset_buffer: "10s"
  secondary_limit_backoff: "60s"
retry:
  max_attempts: 4
  initial_backoff: "2s"
  max_backoff: "2m"
store:
  backend: "redis"
  reload: true
  redis_mode: "sentinel"
  redis_master_set: "mymaster"
  redis_sentinel_addrs: ["sentinel-0:26379", "sentinel-1:26379"]
  redis_password_env: "REDIS_PASSWORD"
  redis_db: 2
  redis_namespace: "etl"
  retention: "7d"
report:
  top_k: 10
  timezone: "Europe/Berlin"
  format: "json"
telemetry:
  otel_enabled: true
  otel_trace_mode: "sampled"
  otel_trace_sample_ratio: 0.25
`,
		},
		{
			name: "minimal_configuration",
			yaml: `
github:
  owner: "apache"
  repo: "airflow"
`,
		},
		{
			name: "missing_repository",
			yaml: `
window:
  months: 6
`,
			wantErr:    true,
			errSubstrs: []string{"github.owner is required", "github.repo is required"},
		},
		{
			name: "invalid_values_are_joined",
			yaml: `
server:
  log_level: "verbose"
window:
  months: -3
github:
  owner: "apache"
  repo: "airflow"
  per_page: 500
  requests_per_second: -1
retry:
  max_attempts: -1
report:
  top_k: -2
  format: "xml"
  timezone: "Mars/Olympus"
`,
			wantErr: true,
			errSubstrs: []string{
				"server.log_level must be one of debug|info|warn|error",
				"window.months must be > 0",
				"github.per_page must be between 1 and 100",
				"github.requests_per_second must be >= 0",
				"retry.max_attempts must be >= 1",
				"report.top_k must be >= 1",
				"report.format must be text or json",
				`report.timezone "Mars/Olympus" is not a known location`,
			},
		},
		{
			name: "partial_app_credentials",
			yaml: `
github:
  owner: "apache"
  repo: "airflow"
  app_id: 12
`,
			wantErr:    true,
			errSubstrs: []string{"github.installation_id must be > 0", "github.private_key_path is required"},
		},
		{
			name: "csv_backend_requires_path",
			yaml: `
github:
  owner: "apache"
  repo: "airflow"
store:
  backend: "csv"
`,
			wantErr:    true,
			errSubstrs: []string{"store.csv_path is required when store.backend=csv"},
		},
		{
			name: "redis_sentinel_requires_addrs",
			yaml: `
github:
  owner: "apache"
  repo: "airflow"
store:
  backend: "redis"
  redis_mode: "sentinel"
`,
			wantErr:    true,
			errSubstrs: []string{"store.redis_sentinel_addrs is required when store.redis_mode=sentinel"},
		},
		{
			name: "redis_unknown_mode",
			yaml: `
github:
  owner: "apache"
  repo: "airflow"
store:
  backend: "redis"
  redis_mode: "cluster"
`,
			wantErr:    true,
			errSubstrs: []string{"store.redis_mode must be standalone or sentinel"},
		},
		{
			name: "reload_without_backend",
			yaml: `
github:
  owner: "apache"
  repo: "airflow"
store:
  reload: true
`,
			wantErr:    true,
			errSubstrs: []string{"store.reload requires a csv or redis backend"},
		},
		{
			name: "unknown_store_backend",
			yaml: `
github:
  owner: "apache"
  repo: "airflow"
store:
  backend: "s3"
`,
			wantErr:    true,
			errSubstrs: []string{"store.backend must be one of none|csv|redis"},
		},
		{
			name: "unknown_field_rejected",
			yaml: `
github:
  owner: "apache"
  repo: "airflow"
  token: "ghp_should_not_be_here"
`,
			wantErr:    true,
			errSubstrs: []string{"unmarshal yaml", "field token not found"},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := Load(strings.NewReader(tc.yaml))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Load() expected error, got nil")
				}
				for _, substr := range tc.errSubstrs {
					if !strings.Contains(err.Error(), substr) {
						t.Fatalf("Load() error = %q, missing %q", err.Error(), substr)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() unexpected error: %v", err)
			}
			if cfg == nil {
				t.Fatalf("Load() returned nil config")
			}
		})
	}
}

func TestLoadAdditionalBehaviors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		reader      io.Reader
		wantErr     bool
		errContains string
		assert      func(t *testing.T, cfg *Config)
	}{
		{
			name:        "nil_reader_returns_error",
			reader:      nil,
			wantErr:     true,
			errContains: "config reader is nil",
		},
		{
			name:        "invalid_yaml_returns_parse_error",
			reader:      strings.NewReader("server: [oops"),
			wantErr:     true,
			errContains: "unmarshal yaml",
		},
		{
			name:        "empty_file_fails_validation",
			reader:      strings.NewReader(""),
			wantErr:     true,
			errContains: "github.owner is required",
		},
		{
			name: "applies_defaults",
			reader: strings.NewReader(`
github:
  owner: " apache "
  repo: "airflow"
store:
  backend: "CSV"
  csv_path: "/tmp/commits.csv"
  retention: "2w"
`),
			assert: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Server.LogLevel != "info" || cfg.Server.ListenAddr != ":8080" || cfg.Server.Serve {
					t.Fatalf("Server = %+v, want info on :8080 without serve", cfg.Server)
				}
				if cfg.Server.RefreshInterval != 0 {
					t.Fatalf("Server.RefreshInterval = %s, want 0", cfg.Server.RefreshInterval)
				}
				if cfg.Window.Months != 0 {
					t.Fatalf("Window.Months = %d, want 0 until the command line sets it", cfg.Window.Months)
				}
				if cfg.GitHub.Repository() != "apache/airflow" {
					t.Fatalf("Repository() = %q, want apache/airflow", cfg.GitHub.Repository())
				}
				if cfg.GitHub.APIBaseURL != "https://api.github.com" || cfg.GitHub.PerPage != 100 {
					t.Fatalf("GitHub = %+v, want public API with 100 per page", cfg.GitHub)
				}
				if cfg.GitHub.TokenEnv != "GITHUB_TOKEN" || cfg.GitHub.UsesApp() || !cfg.GitHub.Preflight {
					t.Fatalf("GitHub auth = %+v, want GITHUB_TOKEN with preflight", cfg.GitHub)
				}
				if cfg.GitHub.RequestTimeout != 30*time.Second {
					t.Fatalf("GitHub.RequestTimeout = %s, want 30s", cfg.GitHub.RequestTimeout)
				}
				if cfg.Retry.MaxAttempts != 3 || cfg.Retry.InitialBackoff != time.Second || cfg.Retry.MaxBackoff != 30*time.Second {
					t.Fatalf("Retry = %+v, want 3 attempts 1s..30s", cfg.Retry)
				}
				if cfg.RateLimit.MinResetBuffer != 5*time.Second || cfg.RateLimit.SecondaryLimitBackoff != time.Minute {
					t.Fatalf("RateLimit = %+v", cfg.RateLimit)
				}
				if cfg.Store.Backend != "csv" || !cfg.Store.CSVEnriched || cfg.Store.Reload {
					t.Fatalf("Store = %+v, want enriched csv without reload", cfg.Store)
				}
				if cfg.Store.Retention != 14*24*time.Hour {
					t.Fatalf("Store.Retention = %s, want %s", cfg.Store.Retention, 14*24*time.Hour)
				}
				if cfg.Store.RedisNamespace != "commit-stats" || cfg.Store.RedisMode != "standalone" {
					t.Fatalf("Store redis defaults = %+v", cfg.Store)
				}
				if cfg.Report.TopK != 5 || cfg.Report.Timezone != "commit" || cfg.Report.Format != "text" {
					t.Fatalf("Report = %+v, want top 5 text in commit timezone", cfg.Report)
				}
			},
		},
		{
			name: "explicit_false_flags_kept",
			reader: strings.NewReader(`
github:
  owner: "apache"
  repo: "airflow"
  preflight: false
store:
  backend: "csv"
  csv_path: "out.csv"
  csv_enriched: false
report:
  timezone: "utc"
`),
			assert: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.GitHub.Preflight {
					t.Fatalf("GitHub.Preflight = true, want false")
				}
				if cfg.Store.CSVEnriched {
					t.Fatalf("Store.CSVEnriched = true, want false")
				}
				if cfg.Report.Timezone != "UTC" {
					t.Fatalf("Report.Timezone = %q, want UTC", cfg.Report.Timezone)
				}
			},
		},
		{
			name: "app_credentials",
			reader: strings.NewReader(`
github:
  owner: "apache"
  repo: "airflow"
  app_id: 1
  installation_id: 2
  private_key_path: "/etc/commit-stats/app.pem"
`),
			assert: func(t *testing.T, cfg *Config) {
				t.Helper()
				if !cfg.GitHub.UsesApp() {
					t.Fatalf("UsesApp() = false, want true")
				}
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := Load(tc.reader)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Load() expected error, got nil")
				}
				if tc.errContains != "" && !strings.Contains(err.Error(), tc.errContains) {
					t.Fatalf("Load() error = %q, missing %q", err.Error(), tc.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() unexpected error: %v", err)
			}
			if tc.assert != nil {
				tc.assert(t, cfg)
			}
		})
	}
}

func TestParseFlexibleDuration(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{input: "", want: 0},
		{input: "90s", want: 90 * time.Second},
		{input: "1.5d", want: 36 * time.Hour},
		{input: "1w", want: 7 * 24 * time.Hour},
		{input: "3y", wantErr: true},
		{input: "xd", wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()

			got, err := parseFlexibleDuration(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseFlexibleDuration(%q) expected error, got nil", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFlexibleDuration(%q) unexpected error: %v", tc.input, err)
			}
			if got != tc.want {
				t.Fatalf("parseFlexibleDuration(%q) = %s, want %s", tc.input, got, tc.want)
			}
		})
	}
}

func TestLoadExampleConfig(t *testing.T) {
	t.Parallel()

	file, err := os.Open(filepath.Join("..", "..", "config", "local.yaml"))
	if err != nil {
		t.Fatalf("open example config: %v", err)
	}
	defer func() {
		_ = file.Close()
	}()

	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if got := cfg.GitHub.Repository(); got != "apache/airflow" {
		t.Fatalf("Repository() = %q, want apache/airflow", got)
	}
	if cfg.Window.Months != 6 {
		t.Fatalf("Window.Months = %d, want 6", cfg.Window.Months)
	}
	if cfg.Store.Backend != "csv" || !cfg.Store.Reload {
		t.Fatalf("Store = %+v, want csv backend with reload", cfg.Store)
	}
	if cfg.Store.Retention != 7*24*time.Hour {
		t.Fatalf("Store.Retention = %s, want 168h", cfg.Store.Retention)
	}
	if cfg.Server.RefreshInterval != time.Hour {
		t.Fatalf("Server.RefreshInterval = %s, want 1h", cfg.Server.RefreshInterval)
	}
}
