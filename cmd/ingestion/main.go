// Command ingestion runs the recommendation ingestion service.
//
// The service reconciles a bucket in the object store with the local cache
// on demand (POST /api/v1/ingestion/runs), on a schedule
// (ingestion.refreshInterval) and from Kafka trigger events, and serves the
// cached documents read-only under /api/v1/documents. Liveness and readiness
// probes are exposed at /health/live and /health/ready, Prometheus metrics on
// the metrics port.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/ingestion/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/ingestion/scheduler"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/ingestion/trigger"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/query"
	queryhandler "github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/query/handler"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/objectstore"
)

// main loads configuration, builds the object store client, cache and
// pipeline, starts the optional scheduler and Kafka consumer, and serves HTTP
// until SIGINT/SIGTERM.
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ingestion service",
		"port", cfg.Server.Port,
		"provider", cfg.ObjectStore.Provider,
		"cache_backend", cfg.Cache.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() { _ = shutdownMetrics(context.Background()) }()
	}

	store, err := objectstore.New(cfg.ObjectStore, m)
	if err != nil {
		slog.Error("failed to create object store client", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	cacheStore, err := cache.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open cache", "error", err)
		os.Exit(1)
	}
	defer cacheStore.Close()

	v, err := validator.New()
	if err != nil {
		slog.Error("failed to compile document schema", "error", err)
		os.Exit(1)
	}

	opts := pipeline.Options{
		ConcurrencyLimit: cfg.Ingestion.ConcurrencyLimit,
		MaxAge:           cfg.Ingestion.MaxAge,
		Metrics:          m,
	}
	if cfg.Kafka.Enabled && cfg.Kafka.Topics.IngestionReports != "" {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IngestionReports)
		defer producer.Close()
		opts.Reports = publisher.New(producer)
		slog.Info("kafka report publisher initialized", "topic", cfg.Kafka.Topics.IngestionReports)
	}
	pipe := pipeline.New(store, cacheStore, v, opts)

	var background sync.WaitGroup
	if cfg.Ingestion.RefreshInterval > 0 {
		if cfg.Ingestion.Bucket == "" {
			slog.Warn("refresh interval set without ingestion.bucket, scheduler disabled")
		} else {
			sched := scheduler.New(pipe, cfg.Ingestion.Bucket, cfg.Ingestion.RefreshInterval)
			sched.Start(ctx)
			defer sched.Wait()
		}
	}
	if cfg.Kafka.Enabled && cfg.Kafka.Topics.IngestionTrigger != "" {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IngestionTrigger,
			trigger.HandleMessage(pipe, cfg.Ingestion.Bucket, trigger.DefaultRetry))
		background.Add(1)
		go func() {
			defer background.Done()
			if err := consumer.Start(ctx); err != nil {
				slog.Error("trigger consumer stopped", "error", err)
			}
		}()
	}

	checker := health.NewChecker()
	checker.Register("objectstore", health.PingCheck("objectstore", store.Ping, health.StatusDown))
	checker.Register("cache", health.PingCheck("cache", cacheStore.Ping, health.StatusDown))

	ingestH := handler.New(pipe, cfg.Ingestion.Bucket)
	queryH := queryhandler.New(query.NewService(cacheStore))

	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/ingestion/runs",
		middleware.Timeout(cfg.Server.RunTimeout)(http.HandlerFunc(ingestH.TriggerRun)))
	mux.HandleFunc("GET /api/v1/documents", queryH.List)
	mux.HandleFunc("GET /api/v1/documents/{key...}", queryH.Get)
	mux.HandleFunc("GET /api/v1/cache/keys", queryH.Keys)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.CORS(cfg.Server.CORSOrigins)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		stop()
		background.Wait()
		os.Exit(1)
	}
	background.Wait()
	slog.Info("ingestion service stopped")
}
