// Package objectstore lists and downloads recommendation documents from a
// remote S3-compatible bucket. Providers connect lazily on first use and
// report failures as apperrors.ErrConnection or apperrors.ErrNotFound.
package objectstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/metrics"
)

// RawDocument is the body of one object as retrieved from the bucket.
type RawDocument struct {
	Key         string
	Body        []byte
	ETag        string
	RetrievedAt time.Time
}

// Store is the contract the ingestion pipeline needs from a blob store.
type Store interface {
	// ListKeys returns every object key in bucket. An empty bucket yields an
	// empty slice and no error.
	ListKeys(ctx context.Context, bucket string) ([]string, error)
	// GetObject downloads key from bucket.
	GetObject(ctx context.Context, bucket, key string) (*RawDocument, error)
	Ping(ctx context.Context) error
	Close() error
}

// New builds the configured provider wrapped in the resilience decorator.
// m may be nil.
func New(cfg config.ObjectStoreConfig, m *metrics.Metrics) (Store, error) {
	var base Store
	switch cfg.Provider {
	case "", "minio":
		s, err := NewMinio(cfg)
		if err != nil {
			return nil, err
		}
		base = s
	case "s3":
		base = NewS3(cfg)
	default:
		return nil, fmt.Errorf("unknown object store provider %q", cfg.Provider)
	}
	return NewResilient(base, cfg, m), nil
}

// isDirectoryMarker reports whether key is a zero-byte "folder" placeholder.
func isDirectoryMarker(key string) bool {
	return key == "" || strings.HasSuffix(key, "/")
}
