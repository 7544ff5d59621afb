package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/internal/reco"
	apperrors "github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/errors"
)

const (
	entrySuffix = ".json"
	tmpMarker   = ".tmp-"
)

// FileStore keeps one JSON file per key in a directory, named by the SHA-256
// of the key so any object key maps to a short, safe file name. Writes go to a temp
// file in the same directory that is fsynced and then renamed over the old
// file, so readers observe either version in full.
type FileStore struct {
	dir    string
	locks  keyLocks
	now    func() time.Time
	sync   func(*os.File) error
	logger *slog.Logger
}

// NewFileStore creates dir if needed and removes temp files left by an
// interrupted write.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory %s: %w", dir, err)
	}
	s := &FileStore{
		dir:    dir,
		now:    time.Now,
		sync:   (*os.File).Sync,
		logger: slog.Default().With("component", "cache-file"),
	}
	if err := s.removeStaleTemps(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) Get(ctx context.Context, key string) (*reco.CacheEntry, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry %q: %w", key, err)
	}
	return decodeEntry(key, data)
}

func (s *FileStore) Put(ctx context.Context, entry reco.CacheEntry) error {
	unlock := s.locks.lock(entry.Key)
	defer unlock()

	data, err := encodeEntry(entry)
	if err != nil {
		return apperrors.CacheWrite(entry.Key, err)
	}
	final := s.path(entry.Key)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(final)+tmpMarker+"*")
	if err != nil {
		return apperrors.CacheWrite(entry.Key, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return apperrors.CacheWrite(entry.Key, err)
	}
	if err := s.sync(tmp); err != nil {
		_ = tmp.Close()
		return apperrors.CacheWrite(entry.Key, err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.CacheWrite(entry.Key, err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		return apperrors.CacheWrite(entry.Key, err)
	}
	committed = true
	s.syncDir()
	return nil
}

func (s *FileStore) Has(ctx context.Context, key string, maxAge time.Duration) (bool, error) {
	return has(ctx, s, key, maxAge, s.now())
}

// ListKeys reads the key recorded inside each entry file.
func (s *FileStore) ListKeys(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing cache directory: %w", err)
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !isEntryFile(name) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading cache file %s: %w", name, err)
		}
		entry, err := decodeEntry(name, data)
		if err != nil || entry.Key == "" {
			s.logger.Warn("ignoring unreadable file in cache directory", "file", name)
			continue
		}
		keys = append(keys, entry.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *FileStore) Ping(ctx context.Context) error {
	if _, err := os.Stat(s.dir); err != nil {
		return fmt.Errorf("cache directory: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// path hashes key, so separators cannot escape the cache directory and the
// name length does not grow with the key.
func (s *FileStore) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+entrySuffix)
}

// isEntryFile matches names produced by path.
func isEntryFile(name string) bool {
	digest, ok := strings.CutSuffix(name, entrySuffix)
	if !ok || len(digest) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(digest)
	return err == nil
}

func (s *FileStore) syncDir() {
	d, err := os.Open(s.dir)
	if err != nil {
		return
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		s.logger.Debug("directory sync failed", "error", err)
	}
}

func (s *FileStore) removeStaleTemps() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("scanning cache directory: %w", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), tmpMarker) {
			if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
				s.logger.Warn("failed to remove stale temp file", "file", e.Name(), "error", err)
			}
		}
	}
	return nil
}
