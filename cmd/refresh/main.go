// Command refresh performs a single ingestion run against one bucket and
// prints the report as JSON on stdout. Logs go to stderr.
//
// Exit status is 0 when the run completes, 1 on configuration errors or when
// the run fails or is interrupted, and 2 when -strict is set and any key ended
// invalid or in error.
//
// Usage:
//
//	go run ./cmd/refresh -bucket reco-events [-refresh] [-strict]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/ingestion/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/objectstore"
)

const (
	exitOK       = 0
	exitFailed   = 1
	exitRejected = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	bucket := flag.String("bucket", "", "bucket to ingest (defaults to ingestion.bucket)")
	force := flag.Bool("refresh", false, "re-fetch every key, ignoring the cache")
	strict := flag.Bool("strict", false, "exit 2 when any key is invalid or failed")
	timeout := flag.Duration("timeout", 0, "abort the run after this long (0 waits forever)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return exitFailed
	}
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	if *bucket == "" {
		*bucket = cfg.Ingestion.Bucket
	}
	if *bucket == "" {
		slog.Error("no bucket given and ingestion.bucket is not configured")
		return exitFailed
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	store, err := objectstore.New(cfg.ObjectStore, nil)
	if err != nil {
		slog.Error("failed to create object store client", "error", err)
		return exitFailed
	}
	defer store.Close()

	cacheStore, err := cache.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open cache", "error", err)
		return exitFailed
	}
	defer cacheStore.Close()

	v, err := validator.New()
	if err != nil {
		slog.Error("failed to compile document schema", "error", err)
		return exitFailed
	}

	p := pipeline.New(store, cacheStore, v, pipeline.Options{
		ConcurrencyLimit: cfg.Ingestion.ConcurrencyLimit,
		MaxAge:           cfg.Ingestion.MaxAge,
	})
	started := time.Now()
	report, runErr := p.Run(ctx, *bucket, *force)
	if report != nil {
		if err := printReport(report); err != nil {
			slog.Error("failed to write report", "error", err)
			return exitFailed
		}
	}
	if runErr != nil {
		slog.Error("ingestion run failed", "bucket", *bucket, "error", runErr)
		return exitFailed
	}

	counts := report.Counts()
	slog.Info("ingestion run finished",
		"bucket", *bucket,
		"run_id", report.RunID,
		"ok", counts.OK,
		"cached", counts.Cached,
		"invalid", counts.Invalid,
		"error", counts.Error,
		"duration", time.Since(started).Round(time.Millisecond).String(),
	)
	if *strict && report.Failures() {
		return exitRejected
	}
	return exitOK
}

func printReport(r *ingestion.Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = os.Stdout.Write(data)
	return err
}
