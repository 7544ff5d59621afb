package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/reco"
	apperrors "github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/errors"
)

const badgerEntryPrefix = "entry:"

// BadgerStore persists entries in an embedded BadgerDB. Each Put is a single
// transaction, which gives readers snapshot isolation.
type BadgerStore struct {
	db  *badger.DB
	now func() time.Time
}

// OpenBadger opens or creates a database in dir.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger cache at %s: %w", dir, err)
	}
	return NewBadgerStore(db), nil
}

// NewBadgerStore wraps an already open database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db, now: time.Now}
}

func (s *BadgerStore) Get(ctx context.Context, key string) (*reco.CacheEntry, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerEntryPrefix + key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry %q: %w", key, err)
	}
	return decodeEntry(key, data)
}

func (s *BadgerStore) Put(ctx context.Context, entry reco.CacheEntry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return apperrors.CacheWrite(entry.Key, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerEntryPrefix+entry.Key), data)
	})
	if err != nil {
		return apperrors.CacheWrite(entry.Key, err)
	}
	return nil
}

func (s *BadgerStore) Has(ctx context.Context, key string, maxAge time.Duration) (bool, error) {
	return has(ctx, s, key, maxAge, s.now())
}

// ListKeys iterates the entry prefix; badger yields keys in byte order.
func (s *BadgerStore) ListKeys(ctx context.Context) ([]string, error) {
	keys := make([]string, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(badgerEntryPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().Key()
			keys = append(keys, string(k[len(badgerEntryPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing badger cache: %w", err)
	}
	return keys, nil
}

func (s *BadgerStore) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger cache is closed")
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
