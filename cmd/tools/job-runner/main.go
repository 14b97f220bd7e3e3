// Package main is a one-shot runner for the background jobs. It executes a
// single job run and exits, which makes the jobs usable from external
// schedulers and for operational reruns:
//
//	job-runner --task=sync_subscriptions
//	job-runner --task=expiry_alerts
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"subtrack/internal/billing"
	"subtrack/internal/config"
	"subtrack/internal/external"
	"subtrack/internal/store"
	"subtrack/internal/types"
)

const (
	taskSync   = "sync_subscriptions"
	taskAlerts = "expiry_alerts"
)

func main() {
	task := flag.String("task", "", "job to run: sync_subscriptions or expiry_alerts")
	flag.Parse()

	if err := run(*task); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(task string) error {
	if task != taskSync && task != taskAlerts {
		return fmt.Errorf("unknown task %q (expected %s or %s)", task, taskSync, taskAlerts)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With(
		"service", cfg.Service,
		"worker_id", uuid.NewString(),
		"task", task,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = types.WithRequestID(ctx, uuid.NewString())

	stripeClient := external.NewStripeClient(
		&http.Client{Timeout: 30 * time.Second},
		external.StripeClientConfig{
			SecretKey: cfg.Billing.StripeSecretKey.Unmask(),
			Logger:    logger,
		},
	)

	start := time.Now()

	switch task {
	case taskSync:
		pool, err := store.NewPool(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()

		if err := store.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}

		svc := billing.NewSyncService(stripeClient, store.NewTxStore(pool, logger), logger, cfg.Jobs.SyncPageLimit)
		synced, err := svc.Run(ctx)
		if err != nil {
			return fmt.Errorf("sync run: %w", err)
		}
		logger.Info("run finished", "synced", synced, "duration", time.Since(start))

	case taskAlerts:
		mailer, err := external.NewSMTPMailer(cfg.Mail, logger)
		if err != nil {
			return fmt.Errorf("creating mailer: %w", err)
		}

		svc := billing.NewAlertService(stripeClient, mailer, logger, cfg.Jobs.AlertDaysBeforeEnd)
		sent, err := svc.Run(ctx)
		if err != nil {
			return fmt.Errorf("alert run: %w", err)
		}
		logger.Info("run finished", "sent", sent, "duration", time.Since(start))
	}

	return nil
}
