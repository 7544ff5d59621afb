// Package reco defines the recommendation-event documents held in the local
// cache and the violations reported when a fetched document is rejected.
package reco

import "time"

// Document is a schema-conformant recommendation payload for one event.
type Document struct {
	Event           Event            `json:"event"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Event carries the metadata of the sporting event the recommendations
// refer to.
type Event struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	League   string     `json:"league,omitempty"`
	Venue    string     `json:"venue,omitempty"`
	StartsAt *time.Time `json:"starts_at,omitempty"`
}

// Recommendation is a single entry of a Document. Coverage and Code are
// always present; everything else is descriptive.
type Recommendation struct {
	Coverage    string   `json:"coverage"`
	Code        string   `json:"code"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Market      string   `json:"market,omitempty"`
	Selection   string   `json:"selection,omitempty"`
	Odds        *float64 `json:"odds,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Violation describes one field-level schema failure.
type Violation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// CacheEntry is what the cache stores per bucket key.
type CacheEntry struct {
	Key         string    `json:"key"`
	Document    Document  `json:"document"`
	LastFetched time.Time `json:"last_fetched"`
	Checksum    string    `json:"checksum"`
	ETag        string    `json:"etag,omitempty"`
}

// FreshWithin reports whether the entry was fetched within maxAge of now.
// A non-positive maxAge means any entry is fresh.
func (e *CacheEntry) FreshWithin(maxAge time.Duration, now time.Time) bool {
	if maxAge <= 0 {
		return true
	}
	return now.Sub(e.LastFetched) <= maxAge
}
