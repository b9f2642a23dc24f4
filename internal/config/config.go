package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	validLogLevels     = []string{"debug", "info", "warn", "error"}
	validStoreBackends = []string{"none", "csv", "redis"}
	validReportFormats = []string{"text", "json"}
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig
	Window    WindowConfig
	GitHub    GitHubConfig
	RateLimit RateLimitConfig
	Retry     RetryConfig
	Store     StoreConfig
	Report    ReportConfig
	Telemetry TelemetryConfig
}

// ServerConfig contains logging and serve-mode settings.
type ServerConfig struct {
	ListenAddr string
	LogLevel   string
	Serve      bool
	// RefreshInterval reruns the pipeline while serving. Zero serves the first report only.
	RefreshInterval time.Duration
}

// WindowConfig selects the lookback window. Zero means the value must come from the command line.
type WindowConfig struct {
	Months int
}

// GitHubConfig configures the commits source.
type GitHubConfig struct {
	APIBaseURL     string
	Owner          string
	Repo           string
	RequestTimeout time.Duration
	PerPage        int
	// TokenEnv names the environment variable holding the bearer token.
	TokenEnv          string
	AppID             int64
	InstallationID    int64
	PrivateKeyPath    string
	RequestsPerSecond float64
	Preflight         bool
}

// UsesApp reports whether GitHub App installation auth is configured.
func (g GitHubConfig) UsesApp() bool {
	return g.AppID > 0 || g.InstallationID > 0 || g.PrivateKeyPath != ""
}

// Repository returns owner/repo.
func (g GitHubConfig) Repository() string {
	return g.Owner + "/" + g.Repo
}

// RateLimitConfig configures rate-limit controls.
type RateLimitConfig struct {
	MinRemainingThreshold int
	MinResetBuffer        time.Duration
	SecondaryLimitBackoff time.Duration
}

// RetryConfig configures retries.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// StoreConfig configures where the commit table is persisted.
type StoreConfig struct {
	Backend            string
	Reload             bool
	CSVPath            string
	CSVEnriched        bool
	RedisMode          string
	RedisAddr          string
	RedisMasterSet     string
	RedisSentinelAddrs []string
	RedisPasswordEnv   string
	RedisDB            int
	RedisNamespace     string
	Retention          time.Duration
}

// ReportConfig configures aggregation and output.
type ReportConfig struct {
	TopK     int
	Timezone string
	Format   string
}

// TelemetryConfig configures OpenTelemetry behavior.
type TelemetryConfig struct {
	OTELEnabled          bool
	OTELTraceMode        string
	OTELTraceSampleRatio float64
}

// Load reads configuration from YAML and validates the result.
func Load(reader io.Reader) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("config reader is nil")
	}

	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	var raw rawConfig
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg := raw.toConfig()
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates configuration values.
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(validLogLevels, c.Server.LogLevel) {
		errs = append(errs, "server.log_level must be one of debug|info|warn|error")
	}
	if c.Server.Serve && strings.TrimSpace(c.Server.ListenAddr) == "" {
		errs = append(errs, "server.listen_addr is required when server.serve=true")
	}
	if c.Server.RefreshInterval < 0 {
		errs = append(errs, "server.refresh_interval must be >= 0")
	}

	if c.Window.Months < 0 {
		errs = append(errs, "window.months must be > 0")
	}

	if strings.TrimSpace(c.GitHub.Owner) == "" {
		errs = append(errs, "github.owner is required")
	}
	if strings.TrimSpace(c.GitHub.Repo) == "" {
		errs = append(errs, "github.repo is required")
	}
	if c.GitHub.PerPage < 1 || c.GitHub.PerPage > 100 {
		errs = append(errs, "github.per_page must be between 1 and 100")
	}
	if c.GitHub.RequestsPerSecond < 0 {
		errs = append(errs, "github.requests_per_second must be >= 0")
	}
	if c.GitHub.UsesApp() {
		if c.GitHub.AppID <= 0 {
			errs = append(errs, "github.app_id must be > 0")
		}
		if c.GitHub.InstallationID <= 0 {
			errs = append(errs, "github.installation_id must be > 0")
		}
		if c.GitHub.PrivateKeyPath == "" {
			errs = append(errs, "github.private_key_path is required")
		}
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry.max_attempts must be >= 1")
	}

	if !slices.Contains(validStoreBackends, c.Store.Backend) {
		errs = append(errs, "store.backend must be one of none|csv|redis")
	}
	if c.Store.Backend == "csv" && strings.TrimSpace(c.Store.CSVPath) == "" {
		errs = append(errs, "store.csv_path is required when store.backend=csv")
	}
	if c.Store.Backend == "redis" {
		if c.Store.RedisMode != "standalone" && c.Store.RedisMode != "sentinel" {
			errs = append(errs, "store.redis_mode must be standalone or sentinel")
		}
		if c.Store.RedisMode == "standalone" && c.Store.RedisAddr == "" {
			errs = append(errs, "store.redis_addr is required when store.redis_mode=standalone")
		}
		if c.Store.RedisMode == "sentinel" && len(c.Store.RedisSentinelAddrs) == 0 {
			errs = append(errs, "store.redis_sentinel_addrs is required when store.redis_mode=sentinel")
		}
	}
	if c.Store.Reload && c.Store.Backend == "none" {
		errs = append(errs, "store.reload requires a csv or redis backend")
	}

	if c.Report.TopK < 1 {
		errs = append(errs, "report.top_k must be >= 1")
	}
	if !slices.Contains(validReportFormats, c.Report.Format) {
		errs = append(errs, "report.format must be text or json")
	}
	if tz := c.Report.Timezone; tz != "commit" && tz != "UTC" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Sprintf("report.timezone %q is not a known location", tz))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.GitHub.APIBaseURL == "" {
		cfg.GitHub.APIBaseURL = "https://api.github.com"
	}
	if cfg.GitHub.RequestTimeout <= 0 {
		cfg.GitHub.RequestTimeout = 30 * time.Second
	}
	if cfg.GitHub.PerPage == 0 {
		cfg.GitHub.PerPage = 100
	}
	if cfg.GitHub.TokenEnv == "" {
		cfg.GitHub.TokenEnv = "GITHUB_TOKEN"
	}
	if cfg.RateLimit.MinResetBuffer <= 0 {
		cfg.RateLimit.MinResetBuffer = 5 * time.Second
	}
	if cfg.RateLimit.SecondaryLimitBackoff <= 0 {
		cfg.RateLimit.SecondaryLimitBackoff = time.Minute
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialBackoff <= 0 {
		cfg.Retry.InitialBackoff = time.Second
	}
	if cfg.Retry.MaxBackoff <= 0 {
		cfg.Retry.MaxBackoff = 30 * time.Second
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "none"
	}
	if cfg.Store.RedisMode == "" {
		cfg.Store.RedisMode = "standalone"
	}
	if cfg.Store.RedisNamespace == "" {
		cfg.Store.RedisNamespace = "commit-stats"
	}
	if cfg.Report.TopK == 0 {
		cfg.Report.TopK = 5
	}
	if cfg.Report.Timezone == "" || strings.EqualFold(cfg.Report.Timezone, "commit") {
		cfg.Report.Timezone = "commit"
	}
	if strings.EqualFold(cfg.Report.Timezone, "utc") {
		cfg.Report.Timezone = "UTC"
	}
	if cfg.Report.Format == "" {
		cfg.Report.Format = "text"
	}
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind == 0 || strings.TrimSpace(value.Value) == "" {
		d.Duration = 0
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}

	parsed, err := parseFlexibleDuration(raw)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func parseFlexibleDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}

	if standard, err := time.ParseDuration(trimmed); err == nil {
		return standard, nil
	}

	if strings.HasSuffix(trimmed, "d") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "d"), 24)
	}
	if strings.HasSuffix(trimmed, "w") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "w"), 24*7)
	}

	return 0, fmt.Errorf("parse duration %q: invalid unit", raw)
}

func parseDurationWithMultiplier(numeric string, multiplierHours float64) (time.Duration, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(numeric), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration value %q: %w", numeric, err)
	}

	nanos := value * multiplierHours * float64(time.Hour)
	if nanos > math.MaxInt64 || nanos < math.MinInt64 {
		return 0, fmt.Errorf("parse duration value %q: out of range", numeric)
	}
	return time.Duration(nanos), nil
}

type rawConfig struct {
	Server    rawServer    `yaml:"server"`
	Window    rawWindow    `yaml:"window"`
	GitHub    rawGitHub    `yaml:"github"`
	RateLimit rawRateLimit `yaml:"rate_limit"`
	Retry     rawRetry     `yaml:"retry"`
	Store     rawStore     `yaml:"store"`
	Report    rawReport    `yaml:"report"`
	Telemetry rawTelemetry `yaml:"telemetry"`
}

type rawWindow struct {
	Months int `yaml:"months"`
}

type rawServer struct {
	ListenAddr      string   `yaml:"listen_addr"`
	LogLevel        string   `yaml:"log_level"`
	Serve           bool     `yaml:"serve"`
	RefreshInterval duration `yaml:"refresh_interval"`
}

type rawGitHub struct {
	APIBaseURL        string   `yaml:"api_base_url"`
	Owner             string   `yaml:"owner"`
	Repo              string   `yaml:"repo"`
	RequestTimeout    duration `yaml:"request_timeout"`
	PerPage           int      `yaml:"per_page"`
	TokenEnv          string   `yaml:"token_env"`
	AppID             int64    `yaml:"app_id"`
	InstallationID    int64    `yaml:"installation_id"`
	PrivateKeyPath    string   `yaml:"private_key_path"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	Preflight         *bool    `yaml:"preflight"`
}

type rawRateLimit struct {
	MinRemainingThreshold int      `yaml:"min_remaining_threshold"`
	MinResetBuffer        duration `yaml:"min_reset_buffer"`
	SecondaryLimitBackoff duration `yaml:"secondary_limit_backoff"`
}

type rawRetry struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	InitialBackoff duration `yaml:"initial_backoff"`
	MaxBackoff     duration `yaml:"max_backoff"`
}

type rawStore struct {
	Backend            string   `yaml:"backend"`
	Reload             bool     `yaml:"reload"`
	CSVPath            string   `yaml:"csv_path"`
	CSVEnriched        *bool    `yaml:"csv_enriched"`
	RedisMode          string   `yaml:"redis_mode"`
	RedisAddr          string   `yaml:"redis_addr"`
	RedisMasterSet     string   `yaml:"redis_master_set"`
	RedisSentinelAddrs []string `yaml:"redis_sentinel_addrs"`
	RedisPasswordEnv   string   `yaml:"redis_password_env"`
	RedisDB            int      `yaml:"redis_db"`
	RedisNamespace     string   `yaml:"redis_namespace"`
	Retention          duration `yaml:"retention"`
}

type rawReport struct {
	TopK     int    `yaml:"top_k"`
	Timezone string `yaml:"timezone"`
	Format   string `yaml:"format"`
}

type rawTelemetry struct {
	OTELEnabled          bool    `yaml:"otel_enabled"`
	OTELTraceMode        string  `yaml:"otel_trace_mode"`
	OTELTraceSampleRatio float64 `yaml:"otel_trace_sample_ratio"`
}

func (r rawConfig) toConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      strings.TrimSpace(r.Server.ListenAddr),
			LogLevel:        strings.ToLower(strings.TrimSpace(r.Server.LogLevel)),
			Serve:           r.Server.Serve,
			RefreshInterval: r.Server.RefreshInterval.Duration,
		},
		Window: WindowConfig{Months: r.Window.Months},
		GitHub: GitHubConfig{
			APIBaseURL:        strings.TrimSpace(r.GitHub.APIBaseURL),
			Owner:             strings.TrimSpace(r.GitHub.Owner),
			Repo:              strings.TrimSpace(r.GitHub.Repo),
			RequestTimeout:    r.GitHub.RequestTimeout.Duration,
			PerPage:           r.GitHub.PerPage,
			TokenEnv:          strings.TrimSpace(r.GitHub.TokenEnv),
			AppID:             r.GitHub.AppID,
			InstallationID:    r.GitHub.InstallationID,
			PrivateKeyPath:    r.GitHub.PrivateKeyPath,
			RequestsPerSecond: r.GitHub.RequestsPerSecond,
			Preflight:         boolOr(r.GitHub.Preflight, true),
		},
		RateLimit: RateLimitConfig{
			MinRemainingThreshold: r.RateLimit.MinRemainingThreshold,
			MinResetBuffer:        r.RateLimit.MinResetBuffer.Duration,
			SecondaryLimitBackoff: r.RateLimit.SecondaryLimitBackoff.Duration,
		},
		Retry: RetryConfig{
			MaxAttempts:    r.Retry.MaxAttempts,
			InitialBackoff: r.Retry.InitialBackoff.Duration,
			MaxBackoff:     r.Retry.MaxBackoff.Duration,
		},
		Store: StoreConfig{
			Backend:            strings.ToLower(strings.TrimSpace(r.Store.Backend)),
			Reload:             r.Store.Reload,
			CSVPath:            r.Store.CSVPath,
			CSVEnriched:        boolOr(r.Store.CSVEnriched, true),
			RedisMode:          r.Store.RedisMode,
			RedisAddr:          r.Store.RedisAddr,
			RedisMasterSet:     r.Store.RedisMasterSet,
			RedisSentinelAddrs: r.Store.RedisSentinelAddrs,
			RedisPasswordEnv:   r.Store.RedisPasswordEnv,
			RedisDB:            r.Store.RedisDB,
			RedisNamespace:     r.Store.RedisNamespace,
			Retention:          r.Store.Retention.Duration,
		},
		Report: ReportConfig{
			TopK:     r.Report.TopK,
			Timezone: strings.TrimSpace(r.Report.Timezone),
			Format:   strings.ToLower(strings.TrimSpace(r.Report.Format)),
		},
		Telemetry: TelemetryConfig{
			OTELEnabled:          r.Telemetry.OTELEnabled,
			OTELTraceMode:        r.Telemetry.OTELTraceMode,
			OTELTraceSampleRatio: r.Telemetry.OTELTraceSampleRatio,
		},
	}
}

func boolOr(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}
