// Package cache is the local read cache of validated recommendation
// documents. The ingestion pipeline is its only writer; the query layer reads
// it through Reader.
//
// Every backend replaces an entry atomically: a concurrent reader sees either
// the complete previous entry or the complete new one, and a failed write
// leaves the previous entry untouched.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/reco"
	apperrors "github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/errors"
)

// ErrNotFound is returned by Get when no entry exists for the key.
var ErrNotFound = apperrors.ErrNotFound

// Reader is the read-only view used by the query layer.
type Reader interface {
	// Get returns the entry for key or an error wrapping ErrNotFound.
	Get(ctx context.Context, key string) (*reco.CacheEntry, error)
	// ListKeys returns every cached key in ascending order.
	ListKeys(ctx context.Context) ([]string, error)
}

// Store is the full cache contract owned by the ingestion pipeline.
type Store interface {
	Reader
	// Put atomically replaces the entry for entry.Key. Failures wrap
	// apperrors.ErrCacheWrite.
	Put(ctx context.Context, entry reco.CacheEntry) error
	// Has reports whether an entry exists that was fetched within maxAge.
	// A non-positive maxAge accepts any entry.
	Has(ctx context.Context, key string, maxAge time.Duration) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

func has(ctx context.Context, r Reader, key string, maxAge time.Duration, now time.Time) (bool, error) {
	entry, err := r.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return entry.FreshWithin(maxAge, now), nil
}

func notFound(key string) error {
	return fmt.Errorf("cache entry %q: %w", key, ErrNotFound)
}

func encodeEntry(entry reco.CacheEntry) ([]byte, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encoding cache entry %q: %w", entry.Key, err)
	}
	return data, nil
}

func decodeEntry(key string, data []byte) (*reco.CacheEntry, error) {
	var entry reco.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decoding cache entry %q: %w", key, err)
	}
	return &entry, nil
}

// keyLocks serializes writers of the same key without blocking other keys.
type keyLocks struct {
	locks sync.Map
}

func (k *keyLocks) lock(key string) func() {
	v, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
