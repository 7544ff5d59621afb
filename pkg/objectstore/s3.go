package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/errors"
)

// S3Store reads objects through aws-sdk-go-v2. Credentials are resolved on
// first use: static keys from config when present, otherwise the default
// AWS credential chain.
type S3Store struct {
	cfg    config.ObjectStoreConfig
	mu     sync.Mutex
	client *s3.Client
	logger *slog.Logger
}

// NewS3 returns a store that loads AWS configuration lazily.
func NewS3(cfg config.ObjectStoreConfig) *S3Store {
	return &S3Store{
		cfg:    cfg,
		logger: slog.Default().With("component", "objectstore-s3"),
	}
}

func (s *S3Store) conn(ctx context.Context) (*s3.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(s.cfg.Region),
	}
	if s.cfg.AccessKeyID != "" && s.cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.cfg.AccessKeyID, s.cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, apperrors.Connection("loading AWS config", err)
	}

	var s3Opts []func(*s3.Options)
	if s.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(s.cfg.Endpoint)
		})
	}
	if s.cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	s.client = s3.NewFromConfig(awsCfg, s3Opts...)
	s.logger.Info("object store client created", "region", s.cfg.Region, "endpoint", s.cfg.Endpoint)
	return s.client, nil
}

// ListKeys pages through ListObjectsV2 under the configured prefix.
func (s *S3Store) ListKeys(ctx context.Context, bucket string) ([]string, error) {
	client, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if s.cfg.Prefix != "" {
		input.Prefix = aws.String(s.cfg.Prefix)
	}
	keys := make([]string, 0)
	paginator := s3.NewListObjectsV2Paginator(client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("listing bucket %s: %w", bucket, ctx.Err())
			}
			return nil, apperrors.Connection(fmt.Sprintf("listing bucket %s", bucket), err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if isDirectoryMarker(key) {
				continue
			}
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// GetObject downloads key. A missing key is reported as apperrors.ErrNotFound.
func (s *S3Store) GetObject(ctx context.Context, bucket, key string) (*RawDocument, error) {
	client, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	op := fmt.Sprintf("getting %s/%s", bucket, key)
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyS3Error(ctx, op, err)
	}
	defer func() { _ = out.Body.Close() }()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, classifyS3Error(ctx, op, err)
	}
	return &RawDocument{
		Key:         key,
		Body:        body,
		ETag:        strings.Trim(aws.ToString(out.ETag), `"`),
		RetrievedAt: time.Now().UTC(),
	}, nil
}

// Ping lists buckets to confirm credentials and reachability.
func (s *S3Store) Ping(ctx context.Context) error {
	client, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if _, err := client.ListBuckets(ctx, &s3.ListBucketsInput{}); err != nil {
		return apperrors.Connection("pinging object store", err)
	}
	return nil
}

func (s *S3Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = nil
	return nil
}

func classifyS3Error(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return apperrors.NotFound(op, err)
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return apperrors.NotFound(op, err)
	}
	return apperrors.Connection(op, err)
}
