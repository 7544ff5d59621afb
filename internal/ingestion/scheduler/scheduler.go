// Package scheduler refreshes a bucket on a fixed interval.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/ingestion"
)

// Scheduler runs a non-forced ingestion of one bucket every interval until
// its context ends. Runs never overlap: a tick that arrives while a run is in
// progress is dropped by the ticker.
type Scheduler struct {
	runner   ingestion.Runner
	bucket   string
	interval time.Duration
	logger   *slog.Logger
	done     chan struct{}
}

// New creates a Scheduler. interval must be positive.
func New(runner ingestion.Runner, bucket string, interval time.Duration) *Scheduler {
	return &Scheduler{
		runner:   runner,
		bucket:   bucket,
		interval: interval,
		logger:   slog.Default().With("component", "ingestion-scheduler", "bucket", bucket),
		done:     make(chan struct{}),
	}
}

// Start launches the refresh loop in the background and returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.tick(ctx)
			case <-ctx.Done():
				s.logger.Info("scheduler stopped")
				return
			}
		}
	}()
	s.logger.Info("scheduler started", "interval", s.interval)
}

// Wait blocks until the loop started by Start has exited.
func (s *Scheduler) Wait() {
	<-s.done
}

func (s *Scheduler) tick(ctx context.Context) {
	report, err := s.runner.Run(ctx, s.bucket, false)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("scheduled run failed", "error", err)
		return
	}
	counts := report.Counts()
	s.logger.Info("scheduled run finished",
		"run_id", report.RunID,
		"ok", counts.OK,
		"cached", counts.Cached,
		"invalid", counts.Invalid,
		"error", counts.Error,
	)
}
