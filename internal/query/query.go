// Package query serves read-only views of the local cache: filtered,
// paginated listings and single-document lookups. It never talks to the
// object store.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/reco"
	apperrors "github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/errors"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Item is one cached document as presented to readers.
type Item struct {
	Key         string        `json:"key"`
	Document    reco.Document `json:"document"`
	LastFetched time.Time     `json:"last_fetched"`
}

// Params selects and pages items. Zero values mean "no filter" and the
// default page.
type Params struct {
	// Search matches case-insensitively against event and recommendation text.
	Search string
	// Coverage keeps documents with a recommendation of this coverage.
	Coverage string
	// MinConfidence keeps documents with a recommendation at or above it.
	MinConfidence *float64
	Page          int
	PageSize      int
}

// Page is one page of results. Total counts matches after filtering;
// Available counts every cached document.
type Page struct {
	Items      []Item `json:"items"`
	Total      int    `json:"total"`
	Available  int    `json:"available"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	TotalPages int    `json:"total_pages"`
}

type Service struct {
	cache  cache.Reader
	logger *slog.Logger
}

func NewService(r cache.Reader) *Service {
	return &Service{
		cache:  r,
		logger: slog.Default().With("component", "query"),
	}
}

// Normalize applies defaults and bounds to p.
func (p Params) Normalize() (Params, error) {
	if p.Page == 0 {
		p.Page = 1
	}
	if p.Page < 1 {
		return p, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "page must be a positive integer")
	}
	if p.PageSize == 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize < 1 {
		return p, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "page_size must be a positive integer")
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	if p.MinConfidence != nil && (*p.MinConfidence < 0 || *p.MinConfidence > 1) {
		return p, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "min_confidence must be between 0 and 1")
	}
	p.Search = strings.ToLower(strings.TrimSpace(p.Search))
	p.Coverage = strings.TrimSpace(p.Coverage)
	return p, nil
}

// List returns the requested page of cached documents ordered by key. An
// empty cache yields an empty page.
func (s *Service) List(ctx context.Context, params Params) (*Page, error) {
	params, err := params.Normalize()
	if err != nil {
		return nil, err
	}

	keys, err := s.cache.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing cached keys: %w", err)
	}

	matched := make([]Item, 0, len(keys))
	available := 0
	for _, key := range keys {
		entry, err := s.cache.Get(ctx, key)
		if errors.Is(err, cache.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("loading cached entry %q: %w", key, err)
		}
		available++
		if params.matches(&entry.Document) {
			matched = append(matched, itemOf(entry))
		}
	}

	page := &Page{
		Items:     []Item{},
		Total:     len(matched),
		Available: available,
		Page:      params.Page,
		PageSize:  params.PageSize,
	}
	page.TotalPages = (page.Total + params.PageSize - 1) / params.PageSize
	// Compare in pages first so huge page numbers cannot overflow the offset.
	if params.Page <= page.TotalPages {
		start := (params.Page - 1) * params.PageSize
		end := min(start+params.PageSize, len(matched))
		page.Items = matched[start:end]
	}
	return page, nil
}

// Get returns one cached document or an error wrapping cache.ErrNotFound.
func (s *Service) Get(ctx context.Context, key string) (*Item, error) {
	entry, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	item := itemOf(entry)
	return &item, nil
}

// Keys returns every cached key in order.
func (s *Service) Keys(ctx context.Context) ([]string, error) {
	return s.cache.ListKeys(ctx)
}

func itemOf(e *reco.CacheEntry) Item {
	return Item{Key: e.Key, Document: e.Document, LastFetched: e.LastFetched}
}

func (p Params) matches(doc *reco.Document) bool {
	if p.Coverage != "" && !anyRecommendation(doc, func(r *reco.Recommendation) bool {
		return strings.EqualFold(r.Coverage, p.Coverage)
	}) {
		return false
	}
	if p.MinConfidence != nil && !anyRecommendation(doc, func(r *reco.Recommendation) bool {
		return r.Confidence != nil && *r.Confidence >= *p.MinConfidence
	}) {
		return false
	}
	if p.Search != "" && !searchMatches(doc, p.Search) {
		return false
	}
	return true
}

func anyRecommendation(doc *reco.Document, pred func(*reco.Recommendation) bool) bool {
	for i := range doc.Recommendations {
		if pred(&doc.Recommendations[i]) {
			return true
		}
	}
	return false
}

// searchMatches reports whether term (already lowercased) occurs inside any
// single searchable field.
func searchMatches(doc *reco.Document, term string) bool {
	contains := func(fields ...string) bool {
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f), term) {
				return true
			}
		}
		return false
	}
	if contains(doc.Event.Name, doc.Event.League, doc.Event.Venue) {
		return true
	}
	for _, r := range doc.Recommendations {
		if contains(r.Title, r.Description, r.Code, r.Coverage, r.Market, r.Selection) {
			return true
		}
	}
	return false
}
