package database

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"storefront/internal/config"
)

// NewRedis connects to Redis for the ledger balance cache. Returns nil when
// no address is configured; the cache is optional everywhere it is used.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) *redis.Client {
	if cfg.Addr == "" {
		logger.Info().Msg("redis disabled, ledger balances served from database sums")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Addr).
			Msg("redis unreachable, continuing without balance cache")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Addr).Msg("redis balance cache connected")
	return client
}
