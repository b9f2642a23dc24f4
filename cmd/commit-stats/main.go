package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/cam3ron2/commit-stats/internal/app"
	"github.com/cam3ron2/commit-stats/internal/config"
	"github.com/cam3ron2/commit-stats/internal/pipeline"
	"github.com/cam3ron2/commit-stats/internal/report"
	"github.com/cam3ron2/commit-stats/internal/telemetry"
	"github.com/cam3ron2/commit-stats/internal/window"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "commit-stats: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	envFile    string
	months     string
	format     string
	serve      bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	flags := flag.NewFlagSet("commit-stats", flag.ContinueOnError)
	flags.StringVar(&opts.configPath, "config", "config/local.yaml", "path to YAML config file")
	flags.StringVar(&opts.envFile, "env-file", ".env", "optional dotenv file with secrets")
	flags.StringVar(&opts.months, "months", "", "lookback window in calendar months (overrides window.months)")
	flags.StringVar(&opts.format, "format", "", "report format: text or json (overrides report.format)")
	flags.BoolVar(&opts.serve, "serve", false, "serve /metrics, /report and health endpoints after the first run")
	if err := flags.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func run(args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	if err := loadEnvFile(opts.envFile); err != nil {
		return err
	}

	configFile, err := os.Open(opts.configPath)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer func() {
		_ = configFile.Close()
	}()

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.format != "" {
		cfg.Report.Format = strings.ToLower(strings.TrimSpace(opts.format))
	}
	if opts.serve {
		cfg.Server.Serve = true
	}

	months, err := resolveMonths(opts.months, cfg.Window.Months)
	if err != nil {
		return &pipeline.StageError{Stage: pipeline.StageWindow, Err: err}
	}

	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(logLevel(cfg.Server.LogLevel))
	logger, err := loggerConfig.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil && !shouldIgnoreLoggerSyncError(syncErr) {
			_, _ = fmt.Fprintf(os.Stderr, "commit-stats: sync logger: %v\n", syncErr)
		}
	}()

	telemetryRuntime, err := telemetry.Setup(telemetry.Config{
		Enabled:          cfg.Telemetry.OTELEnabled,
		ServiceName:      "commit-stats",
		TraceMode:        cfg.Telemetry.OTELTraceMode,
		TraceSampleRatio: cfg.Telemetry.OTELTraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetryRuntime.Shutdown(shutdownCtx)
	}()

	rootCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backends, err := app.NewBackends(rootCtx, cfg, app.BuildOptions{
		Months: months,
		Logger: logger,
		Getenv: os.Getenv,
	})
	if err != nil {
		return fmt.Errorf("build backends: %w", err)
	}
	defer func() {
		if closeErr := backends.Close(); closeErr != nil {
			logger.Warn("failed to close table store", zap.Error(closeErr))
		}
	}()

	runtime := app.NewRuntime(backends.Runner.Run, cfg.Server.RefreshInterval, logger)
	result, err := runtime.Refresh(rootCtx)
	if err != nil {
		return err
	}
	if err := report.Render(stdout, cfg.Report.Format, result.Header(), result.Report); err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	if !cfg.Server.Serve {
		return nil
	}
	return serve(rootCtx, cfg.Server.ListenAddr, runtime, logger)
}

func serve(ctx context.Context, addr string, runtime *app.Runtime, logger *zap.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           runtime.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	runtime.Start(ctx)

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", addr))
		if serveErr := server.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			serverErrCh <- serveErr
		}
		close(serverErrCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr := <-serverErrCh:
		if serveErr != nil {
			return fmt.Errorf("http server failed: %w", serveErr)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// resolveMonths prefers the command-line value over the configured one.
func resolveMonths(flagValue string, configured int) (int, error) {
	if strings.TrimSpace(flagValue) != "" {
		return window.ParseMonths(flagValue)
	}
	if configured > 0 {
		return configured, nil
	}
	return 0, &window.ConfigError{Value: flagValue, Reason: "set window.months or pass -months"}
}

func loadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func logLevel(raw string) zapcore.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func shouldIgnoreLoggerSyncError(err error) bool {
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY)
}
