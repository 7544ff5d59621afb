package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/reco"
	apperrors "github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/errors"
)

// MemoryStore holds encoded entries in a map. Entries are stored encoded so
// callers cannot mutate cached state through returned pointers.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string][]byte),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*reco.CacheEntry, error) {
	s.mu.RLock()
	data, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, notFound(key)
	}
	return decodeEntry(key, data)
}

func (s *MemoryStore) Put(ctx context.Context, entry reco.CacheEntry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return apperrors.CacheWrite(entry.Key, err)
	}
	s.mu.Lock()
	s.entries[entry.Key] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Has(ctx context.Context, key string, maxAge time.Duration) (bool, error) {
	return has(ctx, s, key, maxAge, s.now())
}

func (s *MemoryStore) ListKeys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
