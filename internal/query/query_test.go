package query

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/reco"
	apperrors "github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/errors"
)

func ptr(f float64) *float64 { return &f }

func seed(t *testing.T) *cache.MemoryStore {
	t.Helper()
	s := cache.NewMemoryStore()
	ctx := context.Background()
	docs := map[string]reco.Document{
		"RecoNBA.json": {
			Event: reco.Event{ID: "nba-1", Name: "Lakers vs Celtics", League: "NBA", Venue: "Crypto.com Arena"},
			Recommendations: []reco.Recommendation{
				{Coverage: "moneyline", Code: "ML-LAL", Confidence: ptr(0.62)},
				{Coverage: "totals", Code: "OVER-224.5", Title: "High scoring game"},
			},
		},
		"RecoNFL.json": {
			Event: reco.Event{ID: "nfl-1", Name: "Chiefs vs Bills", League: "NFL"},
			Recommendations: []reco.Recommendation{
				{Coverage: "Spread", Code: "KC-3.5", Confidence: ptr(0.8)},
			},
		},
		"RecoNHL.json": {
			Event:           reco.Event{ID: "nhl-1", Name: "Rangers vs Bruins", League: "NHL"},
			Recommendations: []reco.Recommendation{},
		},
	}
	for k, d := range docs {
		require.NoError(t, s.Put(ctx, reco.CacheEntry{Key: k, Document: d, LastFetched: time.Now().UTC()}))
	}
	return s
}

func keysOf(p *Page) []string {
	out := make([]string, len(p.Items))
	for i, it := range p.Items {
		out[i] = it.Key
	}
	return out
}

func TestList_AllSortedByKey(t *testing.T) {
	svc := NewService(seed(t))
	page, err := svc.List(context.Background(), Params{})
	require.NoError(t, err)
	assert.Equal(t, []string{"RecoNBA.json", "RecoNFL.json", "RecoNHL.json"}, keysOf(page))
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 3, page.Available)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, DefaultPageSize, page.PageSize)
	assert.Equal(t, 1, page.TotalPages)
}

func TestList_EmptyCache(t *testing.T) {
	page, err := NewService(cache.NewMemoryStore()).List(context.Background(), Params{})
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.Equal(t, 0, page.TotalPages)
}

func TestList_Filters(t *testing.T) {
	svc := NewService(seed(t))
	tests := []struct {
		name   string
		params Params
		want   []string
	}{
		{"search event name", Params{Search: "celtics"}, []string{"RecoNBA.json"}},
		{"search league", Params{Search: "  nfl "}, []string{"RecoNFL.json"}},
		{"search recommendation title", Params{Search: "HIGH SCORING"}, []string{"RecoNBA.json"}},
		{"search recommendation code", Params{Search: "kc-3.5"}, []string{"RecoNFL.json"}},
		{"search no match", Params{Search: "cricket"}, []string{}},
		{"search does not span fields", Params{Search: "nba\ncrypto"}, []string{}},
		{"coverage case-insensitive", Params{Coverage: "spread"}, []string{"RecoNFL.json"}},
		{"min confidence", Params{MinConfidence: ptr(0.7)}, []string{"RecoNFL.json"}},
		{"min confidence inclusive", Params{MinConfidence: ptr(0.62)}, []string{"RecoNBA.json", "RecoNFL.json"}},
		{"combined", Params{Coverage: "moneyline", MinConfidence: ptr(0.7)}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.List(context.Background(), tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, keysOf(page))
			assert.Equal(t, len(tt.want), page.Total)
			assert.Equal(t, 3, page.Available)
		})
	}
}

func TestList_Pagination(t *testing.T) {
	s := cache.NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		require.NoError(t, s.Put(ctx, reco.CacheEntry{
			Key:      fmt.Sprintf("doc-%02d.json", i),
			Document: reco.Document{Event: reco.Event{ID: "e", Name: "n"}, Recommendations: []reco.Recommendation{}},
		}))
	}
	svc := NewService(s)

	page, err := svc.List(ctx, Params{Page: 3, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-20.json", "doc-21.json", "doc-22.json", "doc-23.json", "doc-24.json"}, keysOf(page))
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 25, page.Total)

	page, err = svc.List(ctx, Params{Page: 4, PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	page, err = svc.List(ctx, Params{PageSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, page.PageSize)
	assert.Len(t, page.Items, 25)
}

func TestList_PageBeyondEnd(t *testing.T) {
	svc := NewService(seed(t))
	for _, p := range []Params{{Page: math.MaxInt}, {Page: math.MaxInt, PageSize: MaxPageSize}, {Page: math.MaxInt / 2}} {
		page, err := svc.List(context.Background(), p)
		require.NoError(t, err)
		assert.Empty(t, page.Items)
		assert.Equal(t, 3, page.Total)
		assert.Equal(t, p.Page, page.Page)
	}
}

func TestList_InvalidParams(t *testing.T) {
	svc := NewService(seed(t))
	for _, p := range []Params{{Page: -1}, {PageSize: -5}, {MinConfidence: ptr(1.5)}} {
		_, err := svc.List(context.Background(), p)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatusCode(err))
	}
}

func TestGet(t *testing.T) {
	svc := NewService(seed(t))

	item, err := svc.Get(context.Background(), "RecoNBA.json")
	require.NoError(t, err)
	assert.Equal(t, "Lakers vs Celtics", item.Document.Event.Name)
	assert.Len(t, item.Document.Recommendations, 2)

	_, err = svc.Get(context.Background(), "missing.json")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

// vanishingReader lists a key that Get no longer finds.
type vanishingReader struct {
	*cache.MemoryStore
}

func (v vanishingReader) ListKeys(ctx context.Context) ([]string, error) {
	keys, err := v.MemoryStore.ListKeys(ctx)
	return append(keys, "zz-gone.json"), err
}

func TestList_SkipsEntriesRemovedMidListing(t *testing.T) {
	svc := NewService(vanishingReader{seed(t)})
	page, err := svc.List(context.Background(), Params{})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Available)
	assert.NotContains(t, keysOf(page), "zz-gone.json")
}
