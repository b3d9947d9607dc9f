package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Config contains configuration for creating a store
type Config struct {
	// Pool is required for the postgres backend
	Pool *pgxpool.Pool
	// RedisClient is required for the redis backend
	RedisClient *redis.Client
	// DataDir is required for the file backend
	DataDir string
}

// NewStore creates a store for the given backend name
func NewStore(ctx context.Context, backend string, config Config) (Store, error) {
	switch backend {
	case "memory":
		return NewInMemStore(), nil
	case "file":
		if config.DataDir == "" {
			return nil, fmt.Errorf("dataDir required for file store")
		}
		return NewFileStore(config.DataDir)
	case "postgres", "postgresql":
		if config.Pool == nil {
			return nil, fmt.Errorf("pool required for postgres store")
		}
		return NewPostgresStore(ctx, config.Pool)
	case "redis":
		if config.RedisClient == nil {
			return nil, fmt.Errorf("redis client required for redis store")
		}
		return NewRedisStore(config.RedisClient), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s (supported: memory, file, postgres, redis)", backend)
	}
}
