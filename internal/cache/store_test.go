package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/reco"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/redis"
)

func testEntry(key, code string, fetched time.Time) reco.CacheEntry {
	return reco.CacheEntry{
		Key: key,
		Document: reco.Document{
			Event: reco.Event{ID: "evt-" + key, Name: "Lakers vs Celtics"},
			Recommendations: []reco.Recommendation{
				{Coverage: "moneyline", Code: code},
			},
		},
		LastFetched: fetched.UTC().Truncate(time.Millisecond),
		Checksum:    "sha256:" + code,
	}
}

// storeFactories returns every backend that can run in the current
// environment. Postgres is included only when reachable.
func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"file": func(t *testing.T) Store {
			s, err := NewFileStore(t.TempDir())
			require.NoError(t, err)
			return s
		},
		"badger": func(t *testing.T) Store {
			s, err := OpenBadger(t.TempDir())
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"redis": func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			client := redis.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
			return NewRedisStore(client, "test:")
		},
		"postgres": func(t *testing.T) Store {
			client := skipIfNoPostgres(t)
			s, err := NewPostgresStore(context.Background(), client)
			require.NoError(t, err)
			_, err = client.DB.Exec(`TRUNCATE reco_cache_entries`)
			require.NoError(t, err)
			return s
		},
	}
}

func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	cfg := config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "reco_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "reco"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
	db, err := postgres.New(cfg)
	if err != nil {
		t.Skipf("skipping postgres cache test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func TestStores_PutGetRoundTrip(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			now := time.Now()

			want := testEntry("reco/RecoNBA.json", "ML-LAL", now)
			require.NoError(t, s.Put(ctx, want))

			got, err := s.Get(ctx, "reco/RecoNBA.json")
			require.NoError(t, err)
			assert.Equal(t, want.Key, got.Key)
			assert.Equal(t, want.Document, got.Document)
			assert.True(t, want.LastFetched.Equal(got.LastFetched))
			assert.Equal(t, want.Checksum, got.Checksum)
		})
	}
}

func TestStores_GetMissing(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			_, err := s.Get(context.Background(), "absent.json")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStores_PutReplaces(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			now := time.Now()

			require.NoError(t, s.Put(ctx, testEntry("k.json", "OLD", now.Add(-time.Hour))))
			require.NoError(t, s.Put(ctx, testEntry("k.json", "NEW", now)))

			got, err := s.Get(ctx, "k.json")
			require.NoError(t, err)
			assert.Equal(t, "NEW", got.Document.Recommendations[0].Code)

			keys, err := s.ListKeys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"k.json"}, keys)
		})
	}
}

func TestStores_ListKeysSorted(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			keys, err := s.ListKeys(ctx)
			require.NoError(t, err)
			assert.Empty(t, keys)

			for _, k := range []string{"reco/RecoNFL.json", "a.json", "reco/RecoNBA.json"} {
				require.NoError(t, s.Put(ctx, testEntry(k, "C", time.Now())))
			}
			keys, err = s.ListKeys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"a.json", "reco/RecoNBA.json", "reco/RecoNFL.json"}, keys)
		})
	}
}

func TestStores_Has(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			ok, err := s.Has(ctx, "k.json", 0)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Put(ctx, testEntry("k.json", "C", time.Now().Add(-2*time.Hour))))

			ok, err = s.Has(ctx, "k.json", 0)
			require.NoError(t, err)
			assert.True(t, ok, "zero max age accepts any entry")

			ok, err = s.Has(ctx, "k.json", 3*time.Hour)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = s.Has(ctx, "k.json", time.Hour)
			require.NoError(t, err)
			assert.False(t, ok, "stale entry")
		})
	}
}

func TestFileStore_KeysWithSeparatorsStayInDir(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Put(context.Background(), testEntry("../../etc/passwd", "X", time.Now())))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, dir, filepath.Dir(s.path("../../etc/passwd")))
}

func TestFileStore_LongKeys(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	long := "reco/" + strings.Repeat("segment-", 127) + "RecoNBA.json"
	require.Greater(t, len(long), 1000)

	require.NoError(t, s.Put(ctx, testEntry(long, "ML-LAL", time.Now())))
	got, err := s.Get(ctx, long)
	require.NoError(t, err)
	assert.Equal(t, long, got.Key)

	ok, err := s.Has(ctx, long, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	keys, err := s.ListKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{long}, keys)
}

func TestFileStore_ListKeysSkipsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testEntry("k.json", "C", time.Now())))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.json"), []byte(`{"key":"x"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, strings.Repeat("ab", 32)+".json"), []byte("{broken"), 0o644))

	keys, err := s.ListKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"k.json"}, keys)
}

func TestFileStore_FailedWriteKeepsPreviousEntry(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testEntry("k.json", "OLD", time.Now())))

	s.sync = func(*os.File) error { return errors.New("disk full") }
	err = s.Put(ctx, testEntry("k.json", "NEW", time.Now()))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrCacheWrite)

	got, err := s.Get(ctx, "k.json")
	require.NoError(t, err)
	assert.Equal(t, "OLD", got.Document.Recommendations[0].Code)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 1, "temp file must be cleaned up")
}

func TestFileStore_RemovesStaleTempsOnOpen(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "abc.json"+tmpMarker+"123")
	require.NoError(t, os.WriteFile(stale, []byte("{partial"), 0o644))

	s, err := NewFileStore(dir)
	require.NoError(t, err)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))

	keys, err := s.ListKeys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestFileStore_ReadersNeverSeePartialEntries(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, testEntry("k.json", "v0", time.Now())))

	const writes = 50
	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 1; i <= writes; i++ {
			if err := s.Put(ctx, testEntry("k.json", fmt.Sprintf("v%d", i), time.Now())); err != nil {
				t.Errorf("put %d: %v", i, err)
				return
			}
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				got, err := s.Get(ctx, "k.json")
				if err != nil {
					t.Errorf("reader saw error: %v", err)
					return
				}
				if len(got.Document.Recommendations) != 1 {
					t.Errorf("reader saw torn entry: %+v", got)
					return
				}
			}
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, "k.json")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("v%d", writes), got.Document.Recommendations[0].Code)
}

func TestMemoryStore_ReturnedEntriesAreCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, testEntry("k.json", "C", time.Now())))

	got, err := s.Get(ctx, "k.json")
	require.NoError(t, err)
	got.Document.Recommendations[0].Code = "mutated"

	again, err := s.Get(ctx, "k.json")
	require.NoError(t, err)
	assert.Equal(t, "C", again.Document.Recommendations[0].Code)
}

func TestOpen_Backends(t *testing.T) {
	ctx := context.Background()

	cfg := config.Default()
	cfg.Cache.Backend = "file"
	cfg.Cache.Dir = t.TempDir()
	s, err := Open(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	cfg.Cache.Backend = "memory"
	s, err = Open(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	cfg.Cache.Backend = "badger"
	cfg.Cache.Dir = t.TempDir()
	s, err = Open(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &BadgerStore{}, s)
	require.NoError(t, s.Close())

	mr := miniredis.RunT(t)
	cfg.Cache.Backend = "redis"
	cfg.Redis.Addr = mr.Addr()
	s, err = Open(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, s)
	require.NoError(t, s.Close())

	cfg.Cache.Backend = "etcd"
	_, err = Open(ctx, cfg)
	assert.Error(t, err)
}
