// Package handler exposes ingestion runs over HTTP.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/logger"
)

type Handler struct {
	runner        ingestion.Runner
	defaultBucket string
	logger        *slog.Logger
}

func New(runner ingestion.Runner, defaultBucket string) *Handler {
	return &Handler{
		runner:        runner,
		defaultBucket: defaultBucket,
		logger:        slog.Default().With("component", "ingestion-handler"),
	}
}

// TriggerRun handles POST /api/v1/ingestion/runs?bucket=&refresh=.
//
// A completed run answers 200 with the report even when keys failed. A
// failed listing answers with the mapped error status and no report. An
// interrupted run answers 504 with the partial report.
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	bucket := r.URL.Query().Get("bucket")
	if bucket == "" {
		bucket = h.defaultBucket
	}
	if bucket == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'bucket' is required")
		return
	}

	force := false
	if v := r.URL.Query().Get("refresh"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "refresh must be a boolean")
			return
		}
		force = parsed
	}

	report, err := h.runner.Run(ctx, bucket, force)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		if report != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			log.Warn("ingestion run interrupted", "bucket", bucket, "run_id", report.RunID, "error", err)
			h.writeJSON(w, http.StatusGatewayTimeout, map[string]any{
				"error":  "ingestion run interrupted",
				"report": report,
			})
			return
		}
		log.Error("ingestion run failed", "bucket", bucket, "error", err, "status_code", status)
		h.writeError(w, status, err.Error())
		return
	}

	counts := report.Counts()
	log.Info("ingestion run served",
		"bucket", bucket,
		"run_id", report.RunID,
		"ok", counts.OK,
		"invalid", counts.Invalid,
		"error", counts.Error,
	)
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
