package objectstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/resilience"
)

const breakerName = "objectstore"

// Resilient decorates a Store with a request rate limit, a circuit breaker
// and bounded retries of connection failures. Not-found results and
// cancellations pass straight through.
type Resilient struct {
	next    Store
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	metrics *metrics.Metrics
}

// NewResilient wraps next. m may be nil.
func NewResilient(next Store, cfg config.ObjectStoreConfig, m *metrics.Metrics) *Resilient {
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	isConnErr := func(err error) bool {
		return errors.Is(err, apperrors.ErrConnection)
	}
	r := &Resilient{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
		retry: resilience.RetryConfig{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			Retryable: func(err error) bool {
				return isConnErr(err) && !errors.Is(err, resilience.ErrCircuitOpen)
			},
		},
		metrics: m,
	}
	r.breaker = resilience.NewCircuitBreaker(breakerName, resilience.CircuitBreakerConfig{
		FailureThreshold:    cfg.CircuitBreaker.FailureThreshold,
		ResetTimeout:        cfg.CircuitBreaker.ResetTimeout,
		HalfOpenMaxRequests: cfg.CircuitBreaker.HalfOpenRequests,
		IsFailure:           isConnErr,
		OnStateChange: func(name string, to resilience.State) {
			if m != nil {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	if m != nil {
		m.CircuitBreakerState.WithLabelValues(breakerName).Set(float64(resilience.StateClosed))
	}
	return r
}

func (r *Resilient) ListKeys(ctx context.Context, bucket string) ([]string, error) {
	var keys []string
	err := r.do(ctx, "list", func() error {
		var err error
		keys, err = r.next.ListKeys(ctx, bucket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *Resilient) GetObject(ctx context.Context, bucket, key string) (*RawDocument, error) {
	var doc *RawDocument
	err := r.do(ctx, "get", func() error {
		var err error
		doc, err = r.next.GetObject(ctx, bucket, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *Resilient) Ping(ctx context.Context) error {
	return r.next.Ping(ctx)
}

func (r *Resilient) Close() error {
	return r.next.Close()
}

// BreakerState exposes the breaker state for readiness reporting.
func (r *Resilient) BreakerState() resilience.State {
	return r.breaker.GetState()
}

func (r *Resilient) do(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	err := resilience.Retry(ctx, "objectstore."+op, r.retry, func() error {
		if err := r.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for object store rate limit: %w", err)
		}
		err := r.breaker.Execute(fn)
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return apperrors.Connection(op, err)
		}
		return err
	})
	r.observe(op, start, err)
	return err
}

func (r *Resilient) observe(op string, start time.Time, err error) {
	if r.metrics == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrNotFound):
		result = "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		result = "cancelled"
	default:
		result = "error"
	}
	r.metrics.ObjectStoreRequestsTotal.WithLabelValues(op, result).Inc()
	r.metrics.ObjectStoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
