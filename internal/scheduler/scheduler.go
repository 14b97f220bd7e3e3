// Package scheduler runs the recurring background jobs on cron schedules.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"subtrack/internal/metrics"
	"subtrack/internal/types"
)

// SpecDaily runs a job once a day at midnight.
const SpecDaily = "@daily"

// JobFunc is one schedulable unit of work.
type JobFunc func(ctx context.Context) error

// Scheduler wraps a cron runner with per-job logging, panic recovery, and
// metrics. Runs of the same job are not serialized; a job that overruns its
// interval may overlap its next run.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	metrics metrics.Collector
}

func New(logger *slog.Logger, collector metrics.Collector) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.Noop{}
	}
	return &Scheduler{
		cron:    cron.New(),
		logger:  logger,
		metrics: collector,
	}
}

// AddJob schedules fn under the given cron spec. The returned error reports
// an unparsable spec.
func (s *Scheduler) AddJob(spec, name string, fn JobFunc) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.runJob(name, fn)
	})
	return err
}

// RunNow executes one job run immediately, off the caller's goroutine, with
// the same logging and metrics as a scheduled run.
func (s *Scheduler) RunNow(name string, fn JobFunc) {
	go s.runJob(name, fn)
}

// Start launches the cron runner in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", slog.Int("jobs", len(s.cron.Entries())))
}

// Stop halts scheduling and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// runJob executes one job run with a fresh request ID, recovering panics so a
// failing job cannot take down the scheduler.
func (s *Scheduler) runJob(name string, fn JobFunc) {
	ctx := types.WithRequestID(context.Background(), uuid.NewString())
	logger := s.logger.With(slog.String("job", name))

	start := time.Now()
	var err error

	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorContext(ctx, "job panicked", slog.Any("panic", rec))
			s.metrics.RecordJob(name, time.Since(start), false)
			return
		}

		duration := time.Since(start)
		if err != nil {
			logger.ErrorContext(ctx, "job failed",
				slog.Any("error", err),
				slog.Duration("duration", duration),
			)
		} else {
			logger.InfoContext(ctx, "job completed", slog.Duration("duration", duration))
		}
		s.metrics.RecordJob(name, duration, err == nil)
	}()

	logger.InfoContext(ctx, "job started")
	err = fn(ctx)
}
