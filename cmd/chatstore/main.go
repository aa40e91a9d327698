// Command chatstore is a terminal chat client for the agent backend. It keeps
// the session list in a persistent snapshot store and syncs it with the
// backend when a user signs in.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/creastat/chatstore/agent"
	"github.com/creastat/chatstore/identity"
	"github.com/creastat/chatstore/internal/config"
	"github.com/creastat/chatstore/internal/logging"
	"github.com/creastat/chatstore/internal/metrics"
	"github.com/creastat/chatstore/session"
	"github.com/creastat/chatstore/session/drivers"
	"github.com/creastat/chatstore/sessionstore"
	"github.com/creastat/chatstore/supabase"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "chatstore:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Development = cfg.Logging.Development
	logCfg.File = cfg.Logging.File
	logger, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, reg, logger.Logger)
	}

	client, err := agent.New(agent.Config{
		BaseURL:   cfg.Agent.BaseURL,
		Timeout:   cfg.Agent.Timeout,
		RetryMax:  cfg.Agent.RetryMax,
		RateLimit: cfg.Agent.RateLimit,
		Logger:    logger.Logger,
		Metrics:   m,
	})
	if err != nil {
		return err
	}

	provider, err := newIdentityProvider(cfg.Identity)
	if err != nil {
		return err
	}

	persistence, err := newSnapshotStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer persistence.Close()

	store, err := sessionstore.New(ctx, sessionstore.Options{
		Backend:             client,
		Identity:            provider,
		Persistence:         persistence,
		StorageKey:          cfg.Storage.Key,
		EphemeralIdentity:   !cfg.Persist.Identity,
		PersistDebounce:     cfg.Persist.Debounce,
		PersistMessageLimit: cfg.Persist.MessageLimit,
		PersistTokenLimit:   cfg.Persist.TokenLimit,
		RequestTimeout:      cfg.Agent.Timeout,
		ClaimConcurrency:    cfg.Agent.ClaimConcurrency,
		GuestToken:          cfg.Agent.GuestToken,
		Logger:              logger.Logger,
		Metrics:             m,
	})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Warn("failed to flush state", zap.Error(err))
		}
	}()

	logger.Debug("chatstore ready",
		zap.String("agent", cfg.Agent.BaseURL),
		zap.String("identity", cfg.Identity.Provider),
		zap.String("storage", cfg.Storage.Driver))

	return newREPL(store, client, os.Stdin, os.Stdout).run(ctx)
}

// newIdentityProvider builds the provider named by cfg.Provider. "none"
// returns nil: the client then only supports guest use.
func newIdentityProvider(cfg config.IdentityConfig) (identity.Provider, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "supabase":
		p, err := supabase.New(supabase.Config{URL: cfg.SupabaseURL, APIKey: cfg.SupabaseKey})
		if err != nil {
			return nil, err
		}
		return p, nil
	case "local":
		p, err := identity.NewLocalProvider(cfg.LocalSecret)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown identity provider %q", cfg.Provider)
	}
}

func newSnapshotStore(ctx context.Context, cfg config.StorageConfig) (session.Store, error) {
	codec, err := session.NewCodec(cfg.Compress)
	if err != nil {
		return nil, err
	}
	opts := []session.StoreOption{session.WithCodec(codec)}

	storeType := session.StoreType(cfg.Driver)
	switch storeType {
	case session.StoreTypeRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		opts = append(opts, session.WithRedisClient(rdb), session.WithRedisTTL(cfg.RedisTTL))
	case session.StoreTypeSQLite:
		opts = append(opts, session.WithSQLitePath(cfg.SQLitePath))
	case session.StoreTypePostgres:
		opts = append(opts, session.WithPostgresDSN(cfg.PostgresDSN))
	case session.StoreTypeMinIO:
		opts = append(opts, session.WithMinIO(session.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			Secure:    cfg.MinIOSecure,
		}))
	}

	store, err := drivers.NewStore(ctx, storeType, opts...)
	if err != nil {
		return nil, fmt.Errorf("open %s snapshot store: %w", cfg.Driver, err)
	}
	return store, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("metrics server stopped", zap.Error(err))
	}
}
