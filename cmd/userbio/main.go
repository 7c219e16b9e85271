// Package main provides the entry point for the userbio API server
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/memtensor/userbio/api"
	"github.com/memtensor/userbio/pkg/bio"
	"github.com/memtensor/userbio/pkg/config"
	"github.com/memtensor/userbio/pkg/interfaces"
	"github.com/memtensor/userbio/pkg/logger"
	"github.com/memtensor/userbio/pkg/metrics"
	"github.com/memtensor/userbio/pkg/ratelimit"
	"github.com/memtensor/userbio/pkg/users"
)

// Version information (set by build process)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Command line flags
var (
	configFile  = flag.String("config", "", "Path to configuration file (yaml or json)")
	logLevel    = flag.String("log-level", "", "Override log level (debug, info, warn, error)")
	showVersion = flag.Bool("version", false, "Show version information")
	printConfig = flag.Bool("print-config", false, "Print the effective configuration and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("userbio %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("Application failed: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	if *printConfig {
		out, err := cfg.ToYAML()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	}

	appLogger := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	appLogger.Info("Starting userbio", map[string]interface{}{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	})

	appMetrics, promMetrics := initializeMetrics(cfg)

	repo, err := users.Connect(ctx, cfg.MongoDB, appLogger)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if closeErr := repo.Close(closeCtx); closeErr != nil {
			appLogger.Error("Failed to close MongoDB connection", closeErr)
		}
	}()

	orchestrator, err := bio.NewFromConfig(cfg, bio.WithLogger(appLogger), bio.WithMetrics(appMetrics))
	if err != nil {
		return fmt.Errorf("failed to create bio orchestrator: %w", err)
	}
	status := orchestrator.Status()
	if !status.AnyConfigured {
		appLogger.Warn("No bio provider configured, user creation will fail")
	}
	appLogger.Info("Bio providers", map[string]interface{}{
		"primary":  status.Primary,
		"fallback": status.Fallback,
	})

	manager := users.NewManager(repo, orchestrator, appLogger, appMetrics)

	opts := []api.Option{
		api.WithVersion(Version),
		api.WithHealthCheckers(repo),
	}
	if promMetrics != nil {
		opts = append(opts, api.WithMetricsHandler(promMetrics.Handler()))
	}

	if cfg.RateLimit.Enabled {
		limiter, closeLimiter, err := initializeRateLimiter(ctx, cfg, appLogger)
		if err != nil {
			return fmt.Errorf("failed to initialize rate limiter: %w", err)
		}
		defer closeLimiter()
		opts = append(opts, api.WithRateLimiter(limiter))
		if checker, ok := limiter.(interfaces.HealthChecker); ok {
			opts = append(opts, api.WithHealthCheckers(checker))
		}
	}

	server := api.NewServer(manager, orchestrator, cfg, appLogger, appMetrics, opts...)
	return server.Start(ctx)
}

func initializeMetrics(cfg *config.Config) (interfaces.Metrics, *metrics.PrometheusMetrics) {
	if !cfg.Metrics.Enabled {
		return metrics.NewNoOpMetrics(), nil
	}
	prom := metrics.NewPrometheusMetrics("userbio")
	return prom, prom
}

func initializeRateLimiter(ctx context.Context, cfg *config.Config, appLogger interfaces.Logger) (ratelimit.Limiter, func(), error) {
	limits := ratelimit.Config{
		Requests: cfg.RateLimit.Requests,
		Window:   cfg.RateLimit.Window,
	}

	if cfg.Redis.URL == "" {
		return ratelimit.NewMemoryLimiter(limits), func() {}, nil
	}

	limiter, err := ratelimit.NewRedisLimiterFromURL(ctx, cfg.Redis.URL, limits, appLogger)
	if err != nil {
		return nil, nil, err
	}
	return limiter, func() {
		if err := limiter.Close(); err != nil {
			appLogger.Error("Failed to close Redis client", err)
		}
	}, nil
}
