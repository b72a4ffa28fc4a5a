package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"storefront/internal/model"
)

// balance cache keys: balance:{kind}:{user_id}
const keyBalance = "balance:%s:%d"

var ttlBalance = 5 * time.Minute

// BalanceCache is an optional Redis read cache in front of the ledger
// account balances. It is purely a read optimisation: the database remains
// the source of truth and every cached value is re-derivable by replay.
// A nil client disables it.
type BalanceCache struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewBalanceCache creates a balance cache; client may be nil.
func NewBalanceCache(client *redis.Client, logger zerolog.Logger) *BalanceCache {
	return &BalanceCache{
		client: client,
		logger: logger.With().Str("component", "balance-cache").Logger(),
	}
}

// Get returns the cached balance and whether it was present.
func (c *BalanceCache) Get(ctx context.Context, userID int64, kind model.LedgerKind) (int64, bool) {
	if c == nil || c.client == nil {
		return 0, false
	}

	val, err := c.client.Get(ctx, fmt.Sprintf(keyBalance, kind, userID)).Result()
	if err != nil {
		return 0, false
	}

	balance, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false
	}

	return balance, true
}

// Set stores a balance; failures are logged, never fatal.
func (c *BalanceCache) Set(ctx context.Context, userID int64, kind model.LedgerKind, balance int64) {
	if c == nil || c.client == nil {
		return
	}

	key := fmt.Sprintf(keyBalance, kind, userID)
	if err := c.client.Set(ctx, key, strconv.FormatInt(balance, 10), ttlBalance).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to cache balance")
	}
}

// Invalidate drops a cached balance after the owning transaction commits.
func (c *BalanceCache) Invalidate(ctx context.Context, userID int64, kind model.LedgerKind) {
	if c == nil || c.client == nil {
		return
	}

	key := fmt.Sprintf(keyBalance, kind, userID)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to invalidate balance")
	}
}
