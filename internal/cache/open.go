package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Reco-Ingestion-Platform/pkg/redis"
)

// Open builds the backend named by cfg.Cache.Backend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	logger := slog.Default().With("component", "cache")

	switch cfg.Cache.Backend {
	case "", "file":
		s, err := NewFileStore(cfg.Cache.Dir)
		if err != nil {
			return nil, err
		}
		logger.Info("using file cache", "dir", cfg.Cache.Dir)
		return s, nil
	case "badger":
		s, err := OpenBadger(cfg.Cache.Dir)
		if err != nil {
			return nil, err
		}
		logger.Info("using badger cache", "dir", cfg.Cache.Dir)
		return s, nil
	case "redis":
		client, err := redis.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis cache: %w", err)
		}
		logger.Info("using redis cache", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.KeyPrefix)
		return NewRedisStore(client, cfg.Redis.KeyPrefix), nil
	case "postgres":
		client, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres cache: %w", err)
		}
		s, err := NewPostgresStore(ctx, client)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		logger.Info("using postgres cache", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		return s, nil
	case "memory":
		logger.Warn("using in-memory cache; entries are lost on restart")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}
