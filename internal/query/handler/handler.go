// Package handler serves the read-only document API backed by the query
// service.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/logger"
)

type Handler struct {
	service *query.Service
	logger  *slog.Logger
}

func New(service *query.Service) *Handler {
	return &Handler{
		service: service,
		logger:  slog.Default().With("component", "query-handler"),
	}
}

// List handles GET /api/v1/documents?q=&coverage=&min_confidence=&page=&page_size=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)
	q := r.URL.Query()

	params := query.Params{
		Search:   q.Get("q"),
		Coverage: q.Get("coverage"),
	}
	var ok bool
	if params.Page, ok = h.intParam(w, q.Get("page"), "page"); !ok {
		return
	}
	if params.PageSize, ok = h.intParam(w, q.Get("page_size"), "page_size"); !ok {
		return
	}
	if v := q.Get("min_confidence"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "min_confidence must be a number")
			return
		}
		params.MinConfidence = &f
	}

	page, err := h.service.List(ctx, params)
	if err != nil {
		h.fail(w, r, "listing documents failed", err)
		return
	}
	log.Debug("documents listed",
		"q", params.Search,
		"coverage", params.Coverage,
		"total", page.Total,
		"available", page.Available,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, page)
}

// Get handles GET /api/v1/documents/{key...}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		h.writeError(w, http.StatusBadRequest, "document key is required")
		return
	}
	item, err := h.service.Get(r.Context(), key)
	if err != nil {
		h.fail(w, r, "loading document failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, item)
}

// Keys handles GET /api/v1/cache/keys.
func (h *Handler) Keys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.service.Keys(r.Context())
	if err != nil {
		h.fail(w, r, "listing cache keys failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"keys": keys, "count": len(keys)})
}

func (h *Handler) intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		h.writeError(w, http.StatusBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return n, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error(msg, "error", err, "status_code", status)
		h.writeError(w, status, msg)
		return
	}
	h.writeError(w, status, err.Error())
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
