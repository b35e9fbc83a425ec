package customer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	platformredis "till/internal/platform/redis"
)

const loyaltyKeyPrefix = "loyalty:balance:"

// CachedLedger is a read-through Redis cache in front of a LoyaltyLedger.
// Balances are hot during checkout (every attach and redemption preview reads
// one); writes go straight through and drop the cached value.
type CachedLedger struct {
	ledger LoyaltyLedger
	redis  *platformredis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedLedger(ledger LoyaltyLedger, redisClient *platformredis.Client, ttl time.Duration, logger *slog.Logger) *CachedLedger {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CachedLedger{
		ledger: ledger,
		redis:  redisClient,
		ttl:    ttl,
		logger: logger,
	}
}

func loyaltyKey(customerID string) string {
	return loyaltyKeyPrefix + customerID
}

func (c *CachedLedger) Balance(ctx context.Context, customerID string) (int64, error) {
	key := loyaltyKey(customerID)

	cached, err := c.redis.Get(ctx, key).Result()
	if err == nil {
		balance, parseErr := strconv.ParseInt(cached, 10, 64)
		if parseErr == nil {
			return balance, nil
		}
		// Unreadable entry: fall through to the ledger and rewrite it.
	} else if !errors.Is(err, redis.Nil) {
		// Cache trouble is not a checkout failure; read the ledger directly.
		c.logger.WarnContext(ctx, "loyalty cache read failed",
			"customer_id", customerID,
			"error", err,
		)
	}

	balance, err := c.ledger.Balance(ctx, customerID)
	if err != nil {
		return 0, err
	}

	if err := c.redis.Set(ctx, key, strconv.FormatInt(balance, 10), c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "loyalty cache write failed",
			"customer_id", customerID,
			"error", err,
		)
	}
	return balance, nil
}

func (c *CachedLedger) Accrue(ctx context.Context, customerID string, points int64) error {
	if err := c.ledger.Accrue(ctx, customerID, points); err != nil {
		return err
	}
	return c.invalidate(ctx, customerID)
}

func (c *CachedLedger) Redeem(ctx context.Context, customerID string, points int64) error {
	if err := c.ledger.Redeem(ctx, customerID, points); err != nil {
		return err
	}
	return c.invalidate(ctx, customerID)
}

func (c *CachedLedger) invalidate(ctx context.Context, customerID string) error {
	if err := c.redis.Del(ctx, loyaltyKey(customerID)).Err(); err != nil {
		return fmt.Errorf("invalidate loyalty cache: %w", err)
	}
	return nil
}
