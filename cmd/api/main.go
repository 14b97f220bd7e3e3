// Package main is the entry point for the SubTrack API server.
//
// It loads configuration, connects to Postgres and ensures the schema,
// constructs the Stripe client and SMTP mailer, wires the subscription
// handlers onto the core chassis, and starts the HTTP server alongside the
// daily background jobs.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/sync/errgroup"

	"subtrack/internal/api/handlers"
	"subtrack/internal/billing"
	"subtrack/internal/config"
	"subtrack/internal/core"
	"subtrack/internal/external"
	"subtrack/internal/metrics"
	"subtrack/internal/scheduler"
	"subtrack/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel, cfg.Service)
	logger.Info("subtrack API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := store.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if err := store.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}

	stripeClient := external.NewStripeClient(
		&http.Client{Timeout: 30 * time.Second},
		external.StripeClientConfig{
			SecretKey: cfg.Billing.StripeSecretKey.Unmask(),
			Logger:    logger,
		},
	)

	mailer, err := external.NewSMTPMailer(cfg.Mail, logger)
	if err != nil {
		return fmt.Errorf("creating mailer: %w", err)
	}

	collector, err := newCollector(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating metrics collector: %w", err)
	}

	txStore := store.NewTxStore(pool, logger)
	syncSvc := billing.NewSyncService(stripeClient, txStore, logger, cfg.Jobs.SyncPageLimit)
	alertSvc := billing.NewAlertService(stripeClient, mailer, logger, cfg.Jobs.AlertDaysBeforeEnd)
	receiptSvc := billing.NewReceiptService(stripeClient, mailer, logger)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = collector
	srv.HealthProbes = append(srv.HealthProbes, store.PoolProbe{Pool: pool})

	subHandler := handlers.NewSubscriptionHandler(stripeClient, syncSvc, receiptSvc, cfg, srv.Validator, logger)
	srv.RouteRegistrars = append(srv.RouteRegistrars, subHandler.RegisterRoutes)
	srv.MountRoutes()

	sched := scheduler.New(logger, collector)
	if err := sched.AddJob(scheduler.SpecDaily, "sync_subscriptions", func(ctx context.Context) error {
		_, err := syncSvc.Run(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("scheduling sync job: %w", err)
	}
	if err := sched.AddJob(scheduler.SpecDaily, "expiry_alerts", func(ctx context.Context) error {
		_, err := alertSvc.Run(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("scheduling alert job: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	// Run the alert scan once at startup so a restart never skips a day.
	sched.RunNow("expiry_alerts", func(ctx context.Context) error {
		_, err := alertSvc.Run(ctx)
		return err
	})

	return serveHTTP(ctx, srv, cfg, logger)
}

// serveHTTP runs the HTTP server until the context is canceled, then shuts
// down gracefully within the configured timeout.
func serveHTTP(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           gzhttp.GzipHandler(srv.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newCollector builds the configured metrics collector. Metrics default to
// off for local development.
func newCollector(ctx context.Context, cfg *config.Config, logger *slog.Logger) (metrics.Collector, error) {
	if !cfg.Observability.MetricsEnabled {
		return metrics.Noop{}, nil
	}

	client, err := metrics.NewCloudWatchClient(ctx, cfg.Observability.AWSRegion)
	if err != nil {
		return nil, err
	}
	return metrics.NewCloudWatchCollector(client, cfg.Observability.MetricNamespace, logger), nil
}

// newLogger creates a JSON structured logger for the given level.
func newLogger(level, service string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler).With("service", service)
}
