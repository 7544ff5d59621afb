// Package ingestion defines the run report produced by the ingestion pipeline
// and the Kafka event schemas used to trigger runs and publish their results.
package ingestion

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/reco"
)

// Status is the per-key result of an ingestion run.
type Status string

const (
	StatusOK      Status = "ok"
	StatusInvalid Status = "invalid"
	StatusError   Status = "error"
)

// Outcome records what happened to one discovered key. Detail holds the
// violations for an invalid document or the error text for a failed one.
type Outcome struct {
	Key    string `json:"key"`
	Status Status `json:"status"`
	Cached bool   `json:"cached,omitempty"`
	Detail any    `json:"detail,omitempty"`
}

// OK reports a key that was fetched, validated and stored.
func OK(key string) Outcome { return Outcome{Key: key, Status: StatusOK} }

// Cached reports a key that was skipped because a fresh entry already exists.
func Cached(key string) Outcome { return Outcome{Key: key, Status: StatusOK, Cached: true} }

// Invalid reports a key whose document failed validation.
func Invalid(key string, violations []reco.Violation) Outcome {
	return Outcome{Key: key, Status: StatusInvalid, Detail: violations}
}

// Failed reports a key that could not be fetched or stored.
func Failed(key string, err error) Outcome {
	return Outcome{Key: key, Status: StatusError, Detail: err.Error()}
}

// Report is the result of one pipeline run, with one outcome per discovered
// key in discovery order.
type Report struct {
	RunID        string    `json:"run_id"`
	Bucket       string    `json:"bucket"`
	ForceRefresh bool      `json:"force_refresh"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Outcomes     []Outcome `json:"outcomes"`
}

// Counts tallies outcomes by status. Cached keys count toward both OK and
// Cached.
type Counts struct {
	OK      int `json:"ok"`
	Cached  int `json:"cached"`
	Invalid int `json:"invalid"`
	Error   int `json:"error"`
}

func (r *Report) Counts() Counts {
	var c Counts
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusOK:
			c.OK++
			if o.Cached {
				c.Cached++
			}
		case StatusInvalid:
			c.Invalid++
		case StatusError:
			c.Error++
		}
	}
	return c
}

// Failures reports whether any key ended invalid or in error.
func (r *Report) Failures() bool {
	c := r.Counts()
	return c.Invalid > 0 || c.Error > 0
}

// TriggerEvent is the Kafka message that requests an ingestion run. A blank
// bucket selects the configured default.
type TriggerEvent struct {
	Bucket       string `json:"bucket"`
	ForceRefresh bool   `json:"force_refresh"`
}

// OutcomeSummary is the compact per-key form carried in a ReportEvent.
type OutcomeSummary struct {
	Key    string `json:"key"`
	Status Status `json:"status"`
	Cached bool   `json:"cached,omitempty"`
}

// ReportEvent is the Kafka message published after every completed run.
type ReportEvent struct {
	RunID        string           `json:"run_id"`
	Bucket       string           `json:"bucket"`
	ForceRefresh bool             `json:"force_refresh"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
	Counts       Counts           `json:"counts"`
	Outcomes     []OutcomeSummary `json:"outcomes"`
}

// NewReportEvent summarises r for publication.
func NewReportEvent(r *Report) ReportEvent {
	outcomes := make([]OutcomeSummary, len(r.Outcomes))
	for i, o := range r.Outcomes {
		outcomes[i] = OutcomeSummary{Key: o.Key, Status: o.Status, Cached: o.Cached}
	}
	return ReportEvent{
		RunID:        r.RunID,
		Bucket:       r.Bucket,
		ForceRefresh: r.ForceRefresh,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		Counts:       r.Counts(),
		Outcomes:     outcomes,
	}
}

// Runner starts an ingestion run. *pipeline.Pipeline implements it; the HTTP
// handler, Kafka trigger and scheduler depend only on this interface.
type Runner interface {
	Run(ctx context.Context, bucket string, forceRefresh bool) (*Report, error)
}
