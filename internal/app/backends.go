package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cam3ron2/commit-stats/internal/analytics"
	"github.com/cam3ron2/commit-stats/internal/config"
	"github.com/cam3ron2/commit-stats/internal/githubapi"
	"github.com/cam3ron2/commit-stats/internal/ingest"
	"github.com/cam3ron2/commit-stats/internal/pipeline"
	"github.com/cam3ron2/commit-stats/internal/table"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Backends holds the pipeline and the resources it owns.
type Backends struct {
	Runner *pipeline.Runner
	Store  table.Store
	close  []func() error
}

// Close releases store connections.
func (b *Backends) Close() error {
	var firstErr error
	for _, closeFn := range b.close {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// BuildOptions carries inputs that do not come from the config file.
type BuildOptions struct {
	Months int
	Logger *zap.Logger
	// Getenv resolves secrets. Defaults to an empty environment.
	Getenv func(string) string
	// BaseTransport overrides the outbound transport.
	BaseTransport http.RoundTripper
}

// NewBackends wires the GitHub client, fetcher, store and aggregation options described by cfg.
func NewBackends(ctx context.Context, cfg *config.Config, opts BuildOptions) (*Backends, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	getenv := opts.Getenv
	if getenv == nil {
		getenv = func(string) string { return "" }
	}

	httpClient, err := newGitHubHTTPClient(cfg.GitHub, opts.BaseTransport, getenv, logger)
	if err != nil {
		return nil, err
	}

	requestClient := githubapi.NewClient(httpClient, githubapi.RetryConfig{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: cfg.Retry.InitialBackoff,
		MaxBackoff:     cfg.Retry.MaxBackoff,
	}, githubapi.RateLimitPolicy{
		MinRemainingThreshold: cfg.RateLimit.MinRemainingThreshold,
		MinResetBuffer:        cfg.RateLimit.MinResetBuffer,
		SecondaryLimitBackoff: cfg.RateLimit.SecondaryLimitBackoff,
	})
	commits, err := githubapi.NewCommitsClient(cfg.GitHub.APIBaseURL, cfg.GitHub.Owner, cfg.GitHub.Repo, requestClient)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.GitHub.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.GitHub.RequestsPerSecond), 1)
	}
	fetcher, err := ingest.NewFetcher(commits, ingest.FetcherConfig{
		PerPage: cfg.GitHub.PerPage,
		Limiter: limiter,
		Logger:  logger.Named("fetcher"),
	})
	if err != nil {
		return nil, err
	}

	zone, err := analytics.ParseZonePolicy(cfg.Report.Timezone)
	if err != nil {
		return nil, err
	}

	backends := &Backends{
		Runner: &pipeline.Runner{
			Owner:     cfg.GitHub.Owner,
			Repo:      cfg.GitHub.Repo,
			Months:    opts.Months,
			Fetcher:   fetcher,
			Reload:    cfg.Store.Reload,
			Analytics: analytics.Options{TopK: cfg.Report.TopK, Zone: zone},
			Logger:    logger.Named("pipeline"),
		},
	}

	if cfg.GitHub.Preflight {
		restClient, err := githubapi.NewGitHubRESTClient(&http.Client{Transport: requestClient.Transport()}, cfg.GitHub.APIBaseURL)
		if err != nil {
			return nil, err
		}
		backends.Runner.Preflight = restClient
	}

	store, closeFn, err := newTableStore(ctx, cfg.Store, cfg.GitHub.Repository(), zone, getenv)
	if err != nil {
		return nil, err
	}
	if store != nil {
		backends.Store = store
		backends.Runner.Sink = store
		backends.close = append(backends.close, closeFn)
		logger.Info("table store enabled", zap.String("backend", cfg.Store.Backend), zap.Bool("reload", cfg.Store.Reload))
	}
	return backends, nil
}

func newGitHubHTTPClient(cfg config.GitHubConfig, base http.RoundTripper, getenv func(string) string, logger *zap.Logger) (*http.Client, error) {
	if cfg.UsesApp() {
		logger.Info("using github app installation auth", zap.Int64("app_id", cfg.AppID), zap.Int64("installation_id", cfg.InstallationID))
		return githubapi.NewInstallationHTTPClient(githubapi.InstallationAuthConfig{
			AppID:          cfg.AppID,
			InstallationID: cfg.InstallationID,
			PrivateKeyPath: cfg.PrivateKeyPath,
			Timeout:        cfg.RequestTimeout,
			BaseTransport:  base,
		})
	}

	token := strings.TrimSpace(getenv(cfg.TokenEnv))
	if token == "" {
		logger.Warn("no github token found; requests are unauthenticated", zap.String("token_env", cfg.TokenEnv))
	} else {
		logger.Info("using github token auth", zap.String("token_env", cfg.TokenEnv))
	}
	return githubapi.NewTokenHTTPClient(githubapi.TokenAuthConfig{
		Token:         token,
		Timeout:       cfg.RequestTimeout,
		BaseTransport: base,
	}), nil
}

func newTableStore(ctx context.Context, cfg config.StoreConfig, repository string, zone analytics.ZonePolicy, getenv func(string) string) (table.Store, func() error, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil, nil
	case "csv":
		store, err := table.NewCSVStore(cfg.CSVPath, cfg.CSVEnriched)
		if err != nil {
			return nil, nil, err
		}
		store.Location = zone.Location()
		return store, func() error { return nil }, nil
	case "redis":
		store, err := newRedisTableStore(ctx, cfg, repository, getenv)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}

func newRedisTableStore(ctx context.Context, cfg config.StoreConfig, repository string, getenv func(string) string) (*table.RedisStore, error) {
	password := ""
	if cfg.RedisPasswordEnv != "" {
		password = getenv(cfg.RedisPasswordEnv)
	}

	var redisClient redis.UniversalClient
	if strings.EqualFold(cfg.RedisMode, "sentinel") {
		redisClient = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.RedisMasterSet,
			SentinelAddrs: cfg.RedisSentinelAddrs,
			Password:      password,
			DB:            cfg.RedisDB,
		})
	} else {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: password,
			DB:       cfg.RedisDB,
		})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return table.NewRedisStore(redisClient, table.RedisStoreConfig{
		Namespace:  cfg.RedisNamespace,
		Repository: repository,
		Retention:  cfg.Retention,
	}), nil
}
