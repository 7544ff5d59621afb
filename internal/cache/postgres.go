package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/reco"
	apperrors "github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/postgres"
)

const createEntriesTable = `
CREATE TABLE IF NOT EXISTS reco_cache_entries (
	key          TEXT PRIMARY KEY,
	payload      JSONB NOT NULL,
	checksum     TEXT NOT NULL,
	last_fetched TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const upsertEntry = `
INSERT INTO reco_cache_entries (key, payload, checksum, last_fetched, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (key) DO UPDATE SET
	payload = EXCLUDED.payload,
	checksum = EXCLUDED.checksum,
	last_fetched = EXCLUDED.last_fetched,
	updated_at = NOW()`

// PostgresStore keeps entries in the reco_cache_entries table. The row is
// replaced by a single upsert inside a transaction.
type PostgresStore struct {
	client *postgres.Client
	now    func() time.Time
}

// NewPostgresStore creates the table if it does not exist.
func NewPostgresStore(ctx context.Context, client *postgres.Client) (*PostgresStore, error) {
	if err := client.Exec(ctx, createEntriesTable); err != nil {
		return nil, fmt.Errorf("creating cache table: %w", err)
	}
	return &PostgresStore{client: client, now: time.Now}, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*reco.CacheEntry, error) {
	var data []byte
	err := s.client.DB.QueryRowContext(ctx,
		`SELECT payload FROM reco_cache_entries WHERE key = $1`, key,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry %q: %w", key, err)
	}
	return decodeEntry(key, data)
}

func (s *PostgresStore) Put(ctx context.Context, entry reco.CacheEntry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return apperrors.CacheWrite(entry.Key, err)
	}
	err = s.client.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, upsertEntry, entry.Key, string(data), entry.Checksum, entry.LastFetched)
		return err
	})
	if err != nil {
		return apperrors.CacheWrite(entry.Key, err)
	}
	return nil
}

func (s *PostgresStore) Has(ctx context.Context, key string, maxAge time.Duration) (bool, error) {
	return has(ctx, s, key, maxAge, s.now())
}

func (s *PostgresStore) ListKeys(ctx context.Context) ([]string, error) {
	rows, err := s.client.DB.QueryContext(ctx, `SELECT key FROM reco_cache_entries ORDER BY key COLLATE "C"`)
	if err != nil {
		return nil, fmt.Errorf("listing postgres cache: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning cache key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cache keys: %w", err)
	}
	return keys, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	return s.client.Close()
}
