package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all client configuration.
//
// Values are layered: Default(), then the YAML file named by CHATSTORE_CONFIG
// (if any), then environment variables. A .env file in the working directory
// is loaded into the environment first.
type Config struct {
	Agent    AgentConfig    `yaml:"agent"`
	Identity IdentityConfig `yaml:"identity"`
	Storage  StorageConfig  `yaml:"storage"`
	Persist  PersistConfig  `yaml:"persist"`
	Logging  LogConfig      `yaml:"logging"`

	// MetricsAddr, when set, serves Prometheus metrics on /metrics.
	MetricsAddr string `envconfig:"METRICS_ADDR" yaml:"metrics_addr"`
}

// AgentConfig holds agent backend client configuration.
type AgentConfig struct {
	BaseURL          string        `envconfig:"AGENT_BASE_URL" yaml:"base_url"`
	Timeout          time.Duration `envconfig:"AGENT_TIMEOUT" yaml:"timeout"`
	RetryMax         int           `envconfig:"AGENT_RETRY_MAX" yaml:"retry_max"`
	RateLimit        float64       `envconfig:"AGENT_RATE_LIMIT" yaml:"rate_limit"`
	GuestToken       string        `envconfig:"AGENT_GUEST_TOKEN" yaml:"guest_token"`
	ClaimConcurrency int           `envconfig:"AGENT_CLAIM_CONCURRENCY" yaml:"claim_concurrency"`
}

// IdentityConfig selects and configures the identity provider.
type IdentityConfig struct {
	Provider    string `envconfig:"IDENTITY_PROVIDER" yaml:"provider"` // "supabase", "local" or "none"
	SupabaseURL string `envconfig:"SUPABASE_URL" yaml:"supabase_url"`
	SupabaseKey string `envconfig:"SUPABASE_KEY" yaml:"supabase_key"`
	LocalSecret string `envconfig:"LOCAL_JWT_SECRET" yaml:"local_secret"`
}

// StorageConfig selects and configures the snapshot store.
type StorageConfig struct {
	Driver         string        `envconfig:"STORE_DRIVER" yaml:"driver"`
	Key            string        `envconfig:"STORE_KEY" yaml:"key"`
	Compress       bool          `envconfig:"STORE_COMPRESS" yaml:"compress"`
	RedisAddr      string        `envconfig:"REDIS_ADDR" yaml:"redis_addr"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD" yaml:"redis_password"`
	RedisDB        int           `envconfig:"REDIS_DB" yaml:"redis_db"`
	RedisTTL       time.Duration `envconfig:"REDIS_TTL" yaml:"redis_ttl"`
	SQLitePath     string        `envconfig:"SQLITE_PATH" yaml:"sqlite_path"`
	PostgresDSN    string        `envconfig:"POSTGRES_DSN" yaml:"postgres_dsn"`
	MinIOEndpoint  string        `envconfig:"MINIO_ENDPOINT" yaml:"minio_endpoint"`
	MinIOAccessKey string        `envconfig:"MINIO_ACCESS_KEY" yaml:"minio_access_key"`
	MinIOSecretKey string        `envconfig:"MINIO_SECRET_KEY" yaml:"minio_secret_key"`
	MinIOBucket    string        `envconfig:"MINIO_BUCKET" yaml:"minio_bucket"`
	MinIOSecure    bool          `envconfig:"MINIO_SECURE" yaml:"minio_secure"`
}

// PersistConfig controls what is written to the snapshot store and how often.
type PersistConfig struct {
	Identity     bool          `envconfig:"PERSIST_IDENTITY" yaml:"identity"`
	Debounce     time.Duration `envconfig:"PERSIST_DEBOUNCE" yaml:"debounce"`
	MessageLimit int           `envconfig:"PERSIST_MESSAGE_LIMIT" yaml:"message_limit"`
	TokenLimit   int           `envconfig:"PERSIST_TOKEN_LIMIT" yaml:"token_limit"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development"`
	File        string `envconfig:"LOG_FILE" yaml:"file"`
}

// FileEnv names the environment variable pointing at an optional YAML config file.
const FileEnv = "CHATSTORE_CONFIG"

// Load loads configuration from .env, the optional YAML file and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return LoadFile(os.Getenv(FileEnv))
}

// LoadFile loads configuration from the YAML file at path (skipped when empty)
// and then applies environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			BaseURL:          "http://127.0.0.1:8000",
			Timeout:          60 * time.Second,
			RetryMax:         0,
			RateLimit:        0,
			GuestToken:       "mock_token",
			ClaimConcurrency: 8,
		},
		Identity: IdentityConfig{
			Provider: "none",
		},
		Storage: StorageConfig{
			Driver:     "sqlite",
			Key:        "chat-session-storage",
			Compress:   true,
			RedisAddr:  "localhost:6379",
			RedisTTL:   30 * 24 * time.Hour,
			SQLitePath: "chatstore.db",
		},
		Persist: PersistConfig{
			Identity: true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}
