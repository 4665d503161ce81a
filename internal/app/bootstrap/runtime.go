package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/hospital-bed-platform/internal/alerts"
	"github.com/wolfman30/hospital-bed-platform/internal/beds"
	appconfig "github.com/wolfman30/hospital-bed-platform/internal/config"
	"github.com/wolfman30/hospital-bed-platform/pkg/logging"
)

// BuildRedisClient returns a client for cfg.RedisAddr, or nil when Redis is
// not configured. The address may be host:port or a redis:// / rediss:// URL.
// With verify set, an unreachable server also yields nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	opts, err := redisOptions(cfg)
	if err != nil {
		logger.Warn("invalid redis address; continuing without redis", "error", err)
		return nil
	}
	client := redis.NewClient(opts)
	if !verify {
		return client
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not available; sweep lease and event fan-out disabled", "addr", opts.Addr, "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

func redisOptions(cfg *appconfig.Config) (*redis.Options, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, err
		}
		if cfg.RedisPassword != "" && opts.Password == "" {
			opts.Password = cfg.RedisPassword
		}
		return opts, nil
	}
	opts := &redis.Options{Addr: addr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

// BuildInventory returns the Postgres inventory, or a seeded in-memory one
// when no pool is available or the memory store is forced.
func BuildInventory(cfg *appconfig.Config, pool *pgxpool.Pool, logger *logging.Logger) beds.Inventory {
	if logger == nil {
		logger = logging.Default()
	}
	if pool == nil || (cfg != nil && cfg.UseMemoryStore) {
		seed, roster := beds.DefaultSeed()
		logger.Info("using in-memory bed inventory", "beds", len(seed), "wards", len(roster))
		return beds.NewMemoryInventory(seed, roster)
	}
	return beds.NewPostgresInventory(pool)
}

// BuildAlertStore mirrors BuildInventory for the alert store.
func BuildAlertStore(cfg *appconfig.Config, pool *pgxpool.Pool) alerts.Store {
	if pool == nil || (cfg != nil && cfg.UseMemoryStore) {
		return alerts.NewMemoryStore()
	}
	return alerts.NewPostgresStore(pool)
}
