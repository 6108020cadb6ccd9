package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	appconfig "github.com/wolfman30/clinic-concierge/internal/config"
	"github.com/wolfman30/clinic-concierge/internal/storage"
	"github.com/wolfman30/clinic-concierge/internal/storage/memory"
	"github.com/wolfman30/clinic-concierge/internal/storage/postgres"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

const pingTimeout = 3 * time.Second

// BuildRedisClient returns nil when no address is configured. With verify set
// it also returns nil when the server does not answer a ping, so callers fall
// back to in-memory state.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	client := redis.NewClient(redisOptions(cfg))
	if !verify {
		return client
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		if logger != nil {
			logger.Warn("redis unreachable, using in-memory state", "addr", cfg.RedisAddr, "error", err)
		}
		_ = client.Close()
		return nil
	}
	return client
}

func redisOptions(cfg *appconfig.Config) *redis.Options {
	opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// ConnectPostgres opens a pgx pool plus a database/sql view over the same pool
// for the reporting queries. An empty URL returns nils.
func ConnectPostgres(ctx context.Context, databaseURL string, logger *logging.Logger) (*pgxpool.Pool, *sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, nil, nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	logger.Info("postgres connected")
	return pool, stdlib.OpenDBFromPool(pool), nil
}

// BuildStore returns the Postgres store, or the in-memory store when no pool is given.
func BuildStore(pool *pgxpool.Pool, logger *logging.Logger) storage.Store {
	if pool == nil {
		logger.Warn("no DATABASE_URL configured, using in-memory storage")
		return memory.New()
	}
	return postgres.New(pool)
}

// BuildSettings loads the clinic settings file and layers the Redis store on
// top of it so admin edits survive restarts. Without Redis, settings are read-only.
func BuildSettings(cfg *appconfig.Config, redisClient *redis.Client) (clinic.Provider, *clinic.Store, error) {
	base, err := clinic.LoadFile(cfg.ClinicSettingsFile)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: clinic settings: %w", err)
	}
	if redisClient != nil {
		store := clinic.NewStore(redisClient, base)
		return store, store, nil
	}
	static, err := clinic.NewStaticProvider(base)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: clinic settings: %w", err)
	}
	return static, nil, nil
}
