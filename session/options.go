package session

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// StoreType represents the type of snapshot store.
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeRedis    StoreType = "redis"
	StoreTypeSQLite   StoreType = "sqlite"
	StoreTypePostgres StoreType = "postgres"
	StoreTypeMinIO    StoreType = "minio"
)

// StoreOption is a functional option for configuring a snapshot store.
type StoreOption func(*StoreConfig)

// MinIOConfig holds object storage settings for the MinIO store.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Secure    bool
}

// StoreConfig holds configuration for snapshot stores.
// Drivers read it after all options have been applied.
type StoreConfig struct {
	RedisClient *redis.Client
	RedisTTL    time.Duration
	SQLitePath  string
	PostgresDSN string
	MinIO       MinIOConfig
	Codec       *Codec
}

// ApplyOptions builds a StoreConfig from opts. A default codec is installed
// when none was given.
func ApplyOptions(opts ...StoreOption) (*StoreConfig, error) {
	cfg := &StoreConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Codec == nil {
		codec, err := NewCodec(true)
		if err != nil {
			return nil, err
		}
		cfg.Codec = codec
	}
	return cfg, nil
}

// WithRedisClient sets the Redis client for the Redis store.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *StoreConfig) {
		c.RedisClient = client
	}
}

// WithRedisTTL sets the TTL for Redis keys.
func WithRedisTTL(ttl time.Duration) StoreOption {
	return func(c *StoreConfig) {
		c.RedisTTL = ttl
	}
}

// WithSQLitePath sets the database file for the SQLite store.
func WithSQLitePath(path string) StoreOption {
	return func(c *StoreConfig) {
		c.SQLitePath = path
	}
}

// WithPostgresDSN sets the connection string for the Postgres store.
func WithPostgresDSN(dsn string) StoreOption {
	return func(c *StoreConfig) {
		c.PostgresDSN = dsn
	}
}

// WithMinIO sets the object storage settings for the MinIO store.
func WithMinIO(cfg MinIOConfig) StoreOption {
	return func(c *StoreConfig) {
		c.MinIO = cfg
	}
}

// WithCodec overrides the record codec used by the byte-oriented stores.
func WithCodec(codec *Codec) StoreOption {
	return func(c *StoreConfig) {
		c.Codec = codec
	}
}
