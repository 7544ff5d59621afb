// Package publisher announces completed ingestion runs on Kafka so that
// downstream consumers can react to cache refreshes without polling.
package publisher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/kafka"
)

// EventWriter is the subset of *kafka.Producer the publisher needs.
type EventWriter interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Publisher turns reports into ReportEvents keyed by bucket, so every run
// for a bucket lands on the same partition in order.
type Publisher struct {
	writer EventWriter
	logger *slog.Logger
}

// New creates a Publisher on top of writer.
func New(writer EventWriter) *Publisher {
	return &Publisher{
		writer: writer,
		logger: slog.Default().With("component", "report-publisher"),
	}
}

// PublishReport writes a summary of report.
func (p *Publisher) PublishReport(ctx context.Context, report *ingestion.Report) error {
	event := ingestion.NewReportEvent(report)
	if err := p.writer.Publish(ctx, kafka.Event{Key: report.Bucket, Value: event}); err != nil {
		return fmt.Errorf("publishing report for run %s: %w", report.RunID, err)
	}
	p.logger.Debug("ingestion report published",
		"run_id", report.RunID,
		"bucket", report.Bucket,
		"ok", event.Counts.OK,
		"invalid", event.Counts.Invalid,
		"error", event.Counts.Error,
	)
	return nil
}
