package cache

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/reco"
	apperrors "github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/redis"
)

// RedisStore keeps each entry as a string value and the set of cached keys
// in a companion set, both written in one MULTI/EXEC.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, prefix: keyPrefix, now: time.Now}
}

func (s *RedisStore) entryKey(key string) string { return s.prefix + "entry:" + key }

func (s *RedisStore) indexKey() string { return s.prefix + "keys" }

func (s *RedisStore) Get(ctx context.Context, key string) (*reco.CacheEntry, error) {
	data, err := s.client.Get(ctx, s.entryKey(key))
	if redis.IsNilError(err) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry %q: %w", key, err)
	}
	return decodeEntry(key, data)
}

func (s *RedisStore) Put(ctx context.Context, entry reco.CacheEntry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return apperrors.CacheWrite(entry.Key, err)
	}
	if err := s.client.SetIndexed(ctx, s.entryKey(entry.Key), data, s.indexKey(), entry.Key); err != nil {
		return apperrors.CacheWrite(entry.Key, err)
	}
	return nil
}

func (s *RedisStore) Has(ctx context.Context, key string, maxAge time.Duration) (bool, error) {
	return has(ctx, s, key, maxAge, s.now())
}

func (s *RedisStore) ListKeys(ctx context.Context) ([]string, error) {
	keys, err := s.client.Members(ctx, s.indexKey())
	if err != nil {
		return nil, fmt.Errorf("listing redis cache: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
