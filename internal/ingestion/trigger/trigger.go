// Package trigger starts ingestion runs from TriggerEvents read off Kafka.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/resilience"
)

// DefaultRetry spaces attempts of a failing triggered run over roughly two
// minutes.
var DefaultRetry = resilience.RetryConfig{
	MaxAttempts:  6,
	InitialDelay: 2 * time.Second,
	MaxDelay:     time.Minute,
}

// HandleMessage returns a Kafka MessageHandler that runs one ingestion per
// TriggerEvent. Undecodable or bucketless events are logged and skipped. A
// run that fails discovery is retried per retry; once attempts run out the
// error is returned and the consumer moves on. If ctx ends first the error
// wraps ctx.Err(), which leaves the message uncommitted for redelivery.
func HandleMessage(runner ingestion.Runner, defaultBucket string, retry resilience.RetryConfig) kafka.MessageHandler {
	logger := slog.Default().With("component", "ingestion-trigger")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.TriggerEvent](value)
		if err != nil {
			logger.Error("failed to decode trigger event",
				"error", err,
				"key", string(key),
			)
			return nil
		}

		bucket := event.Bucket
		if bucket == "" {
			bucket = defaultBucket
		}
		if bucket == "" {
			logger.Warn("trigger event without bucket and no default configured", "key", string(key))
			return nil
		}

		cfg := retry
		cfg.Retryable = func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}
		var report *ingestion.Report
		err = resilience.Retry(ctx, "trigger."+bucket, cfg, func() error {
			var runErr error
			report, runErr = runner.Run(ctx, bucket, event.ForceRefresh)
			return runErr
		})
		if err != nil {
			return fmt.Errorf("triggered run for bucket %s: %w", bucket, err)
		}
		counts := report.Counts()
		logger.Info("triggered run finished",
			"run_id", report.RunID,
			"bucket", bucket,
			"force_refresh", event.ForceRefresh,
			"ok", counts.OK,
			"invalid", counts.Invalid,
			"error", counts.Error,
		)
		return nil
	}
}
