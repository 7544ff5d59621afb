package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/errors"
)

// MinioStore reads objects through the minio-go SDK. The client is created
// on first use and shared by all callers.
type MinioStore struct {
	cfg    config.ObjectStoreConfig
	mu     sync.Mutex
	client *minio.Client
	logger *slog.Logger
}

// NewMinio validates cfg and returns a store that connects lazily.
func NewMinio(cfg config.ObjectStoreConfig) (*MinioStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("object store endpoint is required")
	}
	return &MinioStore{
		cfg:    cfg,
		logger: slog.Default().With("component", "objectstore-minio"),
	}, nil
}

func (s *MinioStore) conn() (*minio.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}

	endpoint, secure, err := splitEndpoint(s.cfg.Endpoint, s.cfg.UseSSL)
	if err != nil {
		return nil, apperrors.Connection("connecting to object store", err)
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(s.cfg.AccessKeyID, s.cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: s.cfg.Region,
	})
	if err != nil {
		return nil, apperrors.Connection("connecting to object store", err)
	}
	s.logger.Info("object store client created", "endpoint", endpoint, "secure", secure)
	s.client = client
	return client, nil
}

// ListKeys lists bucket recursively under the configured prefix.
func (s *MinioStore) ListKeys(ctx context.Context, bucket string) ([]string, error) {
	client, err := s.conn()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0)
	for obj := range client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    s.cfg.Prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, apperrors.Connection(fmt.Sprintf("listing bucket %s", bucket), obj.Err)
		}
		if isDirectoryMarker(obj.Key) {
			continue
		}
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

// GetObject downloads key. A missing key is reported as apperrors.ErrNotFound.
func (s *MinioStore) GetObject(ctx context.Context, bucket, key string) (*RawDocument, error) {
	client, err := s.conn()
	if err != nil {
		return nil, err
	}
	op := fmt.Sprintf("getting %s/%s", bucket, key)
	obj, err := client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classifyMinioError(op, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, classifyMinioError(op, err)
	}
	body, err := io.ReadAll(obj)
	if err != nil {
		return nil, classifyMinioError(op, err)
	}
	return &RawDocument{
		Key:         key,
		Body:        body,
		ETag:        strings.Trim(info.ETag, `"`),
		RetrievedAt: time.Now().UTC(),
	}, nil
}

// Ping lists buckets to confirm credentials and reachability.
func (s *MinioStore) Ping(ctx context.Context) error {
	client, err := s.conn()
	if err != nil {
		return err
	}
	if _, err := client.ListBuckets(ctx); err != nil {
		return apperrors.Connection("pinging object store", err)
	}
	return nil
}

// Close drops the client. minio-go keeps no resources that need releasing
// beyond idle HTTP connections.
func (s *MinioStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = nil
	return nil
}

func classifyMinioError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey":
		return apperrors.NotFound(op, err)
	default:
		return apperrors.Connection(op, err)
	}
}

// splitEndpoint accepts either a bare host:port or a URL and reports whether
// TLS should be used.
func splitEndpoint(endpoint string, useSSL bool) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		return endpoint, useSSL, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid endpoint URL: %w", err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("invalid endpoint URL %q: missing host", endpoint)
	}
	return u.Host, useSSL || u.Scheme == "https", nil
}
