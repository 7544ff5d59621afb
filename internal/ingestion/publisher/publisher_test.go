package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/reco"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/kafka"
)

type captureWriter struct {
	events []kafka.Event
	err    error
}

func (c *captureWriter) Publish(ctx context.Context, event kafka.Event) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, event)
	return nil
}

func sampleReport() *ingestion.Report {
	start := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	return &ingestion.Report{
		RunID:      "run-1",
		Bucket:     "reco",
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Second),
		Outcomes: []ingestion.Outcome{
			ingestion.OK("a.json"),
			ingestion.Cached("b.json"),
			ingestion.Invalid("c.json", []reco.Violation{{Field: "event.id", Reason: "required"}}),
			ingestion.Failed("d.json", errors.New("connection reset")),
		},
	}
}

func TestPublishReport_KeyedByBucket(t *testing.T) {
	w := &captureWriter{}
	p := New(w)

	require.NoError(t, p.PublishReport(context.Background(), sampleReport()))
	require.Len(t, w.events, 1)
	assert.Equal(t, "reco", w.events[0].Key)

	event, ok := w.events[0].Value.(ingestion.ReportEvent)
	require.True(t, ok)
	assert.Equal(t, "run-1", event.RunID)
	assert.Equal(t, ingestion.Counts{OK: 2, Cached: 1, Invalid: 1, Error: 1}, event.Counts)
	require.Len(t, event.Outcomes, 4)
	assert.Equal(t, ingestion.OutcomeSummary{Key: "b.json", Status: ingestion.StatusOK, Cached: true}, event.Outcomes[1])
}

func TestPublishReport_WireFormat(t *testing.T) {
	w := &captureWriter{}
	require.NoError(t, New(w).PublishReport(context.Background(), sampleReport()))

	data, err := json.Marshal(w.events[0].Value)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.Equal(t, "reco", decoded["bucket"])
	assert.Equal(t, false, decoded["force_refresh"])
	counts := decoded["counts"].(map[string]any)
	assert.Equal(t, 2.0, counts["ok"])
	assert.Equal(t, 1.0, counts["cached"])
	outcomes := decoded["outcomes"].([]any)
	first := outcomes[0].(map[string]any)
	assert.Equal(t, "a.json", first["key"])
	assert.Equal(t, "ok", first["status"])
	_, hasCached := first["cached"]
	assert.False(t, hasCached)
}

func TestPublishReport_WriterError(t *testing.T) {
	w := &captureWriter{err: errors.New("broker down")}
	err := New(w).PublishReport(context.Background(), sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run-1")
	assert.Contains(t, err.Error(), "broker down")
}
