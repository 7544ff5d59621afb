// Package pipeline reconciles a bucket in the remote object store with the
// local cache. A run lists the bucket, decides per key whether a fetch is
// needed, fetches and validates those keys with bounded concurrency, stores
// the valid documents and reports one outcome per key in listing order.
//
// Failures are isolated per key. Only a failed listing or a cancelled run
// surfaces as an error from Run.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/reco"
	apperrors "github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/objectstore"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/tracing"
)

const (
	defaultConcurrency = 4
	publishTimeout     = 5 * time.Second
)

// DocumentValidator checks raw bytes. *validator.Validator satisfies it.
type DocumentValidator interface {
	Validate(raw []byte) validator.Result
}

// ReportSink receives every completed report. Publishing failures are
// logged and never fail the run.
type ReportSink interface {
	PublishReport(ctx context.Context, report *ingestion.Report) error
}

// Options tune a Pipeline.
type Options struct {
	// ConcurrencyLimit caps simultaneous fetches. Values below 1 use 4.
	ConcurrencyLimit int
	// MaxAge is the freshness window for cached entries. Zero means any
	// cached entry is fresh and only a forced refresh re-fetches it.
	MaxAge time.Duration
	// Reports, when set, receives each completed report.
	Reports ReportSink
	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// Pipeline runs ingestion against one object store and one cache.
type Pipeline struct {
	store     objectstore.Store
	cache     cache.Store
	validator DocumentValidator
	opts      Options
	runs      singleflight.Group
	now       func() time.Time
	logger    *slog.Logger

	// mu guards waiters and active. waiters counts Run calls still waiting
	// on each flight key; active holds the cancel of the execution under way.
	mu      sync.Mutex
	waiters map[string]int
	active  map[string]*execution
}

type execution struct {
	cancel context.CancelCauseFunc
}

// New builds a Pipeline. The caller keeps ownership of store and c.
func New(store objectstore.Store, c cache.Store, v DocumentValidator, opts Options) *Pipeline {
	if opts.ConcurrencyLimit < 1 {
		opts.ConcurrencyLimit = defaultConcurrency
	}
	return &Pipeline{
		store:     store,
		cache:     c,
		validator: v,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    slog.Default().With("component", "ingestion-pipeline"),
		waiters:   make(map[string]int),
		active:    make(map[string]*execution),
	}
}

// Run ingests bucket. With forceRefresh every discovered key is fetched;
// otherwise keys with a fresh cache entry are reported as cached.
//
// A listing failure returns a nil report and an error wrapping the cause
// (apperrors.ErrConnection for transport problems).
//
// Concurrent calls with the same bucket and flag share one execution and
// receive the same report, which callers must treat as read-only. The
// execution is detached from any single caller: a caller whose ctx ends
// stops waiting and gets a nil report with an error wrapping ctx.Err(). When
// the last waiting caller leaves, the execution is cancelled and that caller
// waits for in-flight work. If any key was cut short it receives the partial
// report together with an error wrapping ctx.Err(); otherwise the completed
// report and no error.
func (p *Pipeline) Run(ctx context.Context, bucket string, forceRefresh bool) (*ingestion.Report, error) {
	key := flightKey(bucket, forceRefresh)
	p.mu.Lock()
	p.waiters[key]++
	p.mu.Unlock()

	ch := p.runs.DoChan(key, func() (any, error) {
		return p.execute(ctx, key, bucket, forceRefresh)
	})

	select {
	case res := <-ch:
		p.leave(key, nil)
		if res.Shared {
			p.logger.Debug("joined in-flight run", "bucket", bucket, "force_refresh", forceRefresh)
		}
		report, _ := res.Val.(*ingestion.Report)
		return report, res.Err
	case <-ctx.Done():
	}

	if !p.leave(key, ctx.Err()) {
		p.logger.Debug("stopped waiting for shared run", "bucket", bucket, "error", ctx.Err())
		return nil, fmt.Errorf("waiting for ingestion run of bucket %s: %w", bucket, ctx.Err())
	}
	res := <-ch
	report, _ := res.Val.(*ingestion.Report)
	return report, res.Err
}

func flightKey(bucket string, forceRefresh bool) string {
	return bucket + "\x00" + strconv.FormatBool(forceRefresh)
}

// execute runs one shared execution on a context no caller owns. Request
// values survive; cancellation comes only from leave.
func (p *Pipeline) execute(ctx context.Context, key, bucket string, forceRefresh bool) (*ingestion.Report, error) {
	runCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	defer cancel(nil)
	exec := &execution{cancel: cancel}

	p.mu.Lock()
	p.active[key] = exec
	abandoned := p.waiters[key] == 0
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		if p.active[key] == exec {
			delete(p.active, key)
		}
		p.mu.Unlock()
	}()
	if abandoned {
		cancel(context.Canceled)
	}
	return p.run(runCtx, bucket, forceRefresh)
}

// leave drops one waiter for key. A non-nil cause means the caller gave up;
// if it was the last waiter the execution is cancelled with that cause and
// leave reports true.
func (p *Pipeline) leave(key string, cause error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waiters[key]--
	if p.waiters[key] > 0 {
		return false
	}
	delete(p.waiters, key)
	if cause == nil {
		return false
	}
	if exec := p.active[key]; exec != nil {
		exec.cancel(cause)
	}
	return true
}

func (p *Pipeline) run(ctx context.Context, bucket string, forceRefresh bool) (*ingestion.Report, error) {
	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID, "bucket", bucket)
	ctx, span := tracing.StartSpan(ctx, "ingestion.run", runID)
	span.SetAttr("bucket", bucket)
	span.SetAttr("force_refresh", forceRefresh)
	defer func() {
		span.End()
		span.Log(logger, slog.LevelDebug)
	}()

	report := &ingestion.Report{
		RunID:        runID,
		Bucket:       bucket,
		ForceRefresh: forceRefresh,
		StartedAt:    p.now(),
	}
	logger.Info("ingestion run started", "force_refresh", forceRefresh)

	keys, err := p.discover(ctx, bucket)
	if err != nil {
		span.RecordError(err)
		p.observeRun("failed_discovery", report.StartedAt)
		logger.Error("discovery failed", "error", err)
		return nil, err
	}
	span.SetAttr("keys", len(keys))

	report.Outcomes = make([]ingestion.Outcome, len(keys))
	var interrupted atomic.Bool
	var g errgroup.Group
	g.SetLimit(p.opts.ConcurrencyLimit)
	for i, key := range keys {
		g.Go(func() error {
			out, cut := p.process(ctx, bucket, key, forceRefresh)
			report.Outcomes[i] = out
			if cut {
				interrupted.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()
	report.FinishedAt = p.now()

	counts := report.Counts()
	p.observeOutcomes(report, counts)
	attrs := []any{
		"keys", len(keys),
		"ok", counts.OK,
		"cached", counts.Cached,
		"invalid", counts.Invalid,
		"error", counts.Error,
		"duration_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	}

	// Cancellation that arrives after every key settled changes nothing.
	if interrupted.Load() {
		err := context.Cause(ctx)
		span.RecordError(err)
		p.observeRun("cancelled", report.StartedAt)
		logger.Warn("ingestion run interrupted", append(attrs, "error", err)...)
		return report, fmt.Errorf("ingestion run %s interrupted: %w", runID, err)
	}

	p.observeRun("completed", report.StartedAt)
	logger.Info("ingestion run completed", attrs...)
	p.publish(ctx, logger, report)
	return report, nil
}

// discover lists bucket and drops repeated keys, keeping first positions.
func (p *Pipeline) discover(ctx context.Context, bucket string) ([]string, error) {
	_, span := tracing.StartChildSpan(ctx, "ingestion.discover")
	defer span.End()

	listed, err := p.store.ListKeys(ctx, bucket)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("discovering keys in bucket %s: %w", bucket, err)
	}
	seen := make(map[string]struct{}, len(listed))
	keys := make([]string, 0, len(listed))
	for _, k := range listed {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	if dropped := len(listed) - len(keys); dropped > 0 {
		p.logger.Warn("listing contained duplicate keys", "bucket", bucket, "duplicates", dropped)
	}
	span.SetAttr("keys", len(keys))
	return keys, nil
}

// process resolves one key. It never returns an error; every failure
// becomes the key's outcome. cut reports that the outcome is a failure caused
// by ctx ending.
func (p *Pipeline) process(ctx context.Context, bucket, key string, forceRefresh bool) (out ingestion.Outcome, cut bool) {
	if ctx.Err() != nil {
		return ingestion.Failed(key, context.Cause(ctx)), true
	}
	if !forceRefresh && p.isFresh(ctx, key) {
		return ingestion.Cached(key), false
	}

	ctx, span := tracing.StartChildSpan(ctx, "ingestion.fetch")
	span.SetAttr("key", key)
	defer span.End()

	raw, err := p.store.GetObject(ctx, bucket, key)
	if err != nil {
		span.RecordError(err)
		return ingestion.Failed(key, err), ctx.Err() != nil
	}

	var doc reco.Document
	switch r := p.validator.Validate(raw.Body).(type) {
	case validator.Invalid:
		span.SetAttr("violations", len(r.Violations))
		p.logger.Info("document rejected", "key", key, "violations", len(r.Violations))
		return ingestion.Invalid(key, r.Violations), false
	case validator.Valid:
		doc = r.Document
	default:
		err := fmt.Errorf("validator returned %T", r)
		span.RecordError(err)
		return ingestion.Failed(key, err), false
	}

	sum := sha256.Sum256(raw.Body)
	entry := reco.CacheEntry{
		Key:         key,
		Document:    doc,
		LastFetched: raw.RetrievedAt,
		Checksum:    hex.EncodeToString(sum[:]),
		ETag:        raw.ETag,
	}
	if entry.LastFetched.IsZero() {
		entry.LastFetched = p.now()
	}
	// Once started, a write runs to completion even if the run is cancelled.
	if err := p.cache.Put(context.WithoutCancel(ctx), entry); err != nil {
		if !errors.Is(err, apperrors.ErrCacheWrite) {
			err = apperrors.CacheWrite(key, err)
		}
		span.RecordError(err)
		p.observeCacheWrite("error")
		p.logger.Error("cache write failed", "key", key, "error", err)
		return ingestion.Failed(key, err), false
	}
	p.observeCacheWrite("ok")
	return ingestion.OK(key), false
}

func (p *Pipeline) isFresh(ctx context.Context, key string) bool {
	fresh, err := p.cache.Has(ctx, key, p.opts.MaxAge)
	if err != nil {
		p.logger.Warn("cache lookup failed, fetching", "key", key, "error", err)
		return false
	}
	return fresh
}

func (p *Pipeline) publish(ctx context.Context, logger *slog.Logger, report *ingestion.Report) {
	if p.opts.Reports == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.opts.Reports.PublishReport(ctx, report); err != nil {
		logger.Error("failed to publish ingestion report", "error", err)
	}
}

func (p *Pipeline) observeRun(result string, started time.Time) {
	m := p.opts.Metrics
	if m == nil {
		return
	}
	m.IngestionRunsTotal.WithLabelValues(result).Inc()
	m.IngestionRunDuration.Observe(p.now().Sub(started).Seconds())
}

func (p *Pipeline) observeOutcomes(report *ingestion.Report, c ingestion.Counts) {
	m := p.opts.Metrics
	if m == nil {
		return
	}
	m.IngestionOutcomesTotal.WithLabelValues("ok").Add(float64(c.OK - c.Cached))
	m.IngestionOutcomesTotal.WithLabelValues("cached").Add(float64(c.Cached))
	m.IngestionOutcomesTotal.WithLabelValues("invalid").Add(float64(c.Invalid))
	m.IngestionOutcomesTotal.WithLabelValues("error").Add(float64(c.Error))

	keys, err := p.cache.ListKeys(context.Background())
	if err != nil {
		p.logger.Debug("cache size unavailable", "run_id", report.RunID, "error", err)
		return
	}
	m.CacheEntries.Set(float64(len(keys)))
}

func (p *Pipeline) observeCacheWrite(result string) {
	if m := p.opts.Metrics; m != nil {
		m.CacheWritesTotal.WithLabelValues(result).Inc()
	}
}
