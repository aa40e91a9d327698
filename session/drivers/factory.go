package drivers

import (
	"context"

	"github.com/creastat/chatstore/session"
)

// NewStore creates a session.Store based on the given type.
// Redis requires WithRedisClient, SQLite WithSQLitePath, Postgres
// WithPostgresDSN and MinIO WithMinIO.
func NewStore(ctx context.Context, storeType session.StoreType, opts ...session.StoreOption) (session.Store, error) {
	cfg, err := session.ApplyOptions(opts...)
	if err != nil {
		return nil, err
	}

	switch storeType {
	case session.StoreTypeMemory:
		return NewMemoryStore(), nil

	case session.StoreTypeRedis:
		if cfg.RedisClient == nil {
			return nil, session.ErrInvalidConfig
		}
		return NewRedisStore(cfg.RedisClient, cfg.RedisTTL, cfg.Codec), nil

	case session.StoreTypeSQLite:
		if cfg.SQLitePath == "" {
			return nil, session.ErrInvalidConfig
		}
		return NewSQLiteStore(cfg.SQLitePath, cfg.Codec)

	case session.StoreTypePostgres:
		if cfg.PostgresDSN == "" {
			return nil, session.ErrInvalidConfig
		}
		return NewPostgresStore(cfg.PostgresDSN, cfg.Codec)

	case session.StoreTypeMinIO:
		return NewMinIOStore(ctx, cfg.MinIO, cfg.Codec)

	default:
		return nil, session.ErrInvalidStoreType
	}
}
