package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"example.com/backstage/services/ledger/config"
)

// RedisCache caches read-model balances. All methods are safe on a disabled
// cache; the service degrades to direct read-model lookups without one.
type RedisCache struct {
	client  *redis.Client
	ttl     time.Duration
	enabled bool
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(cfg config.Config) (*RedisCache, error) {
	if !cfg.RedisEnabled {
		return &RedisCache{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return &RedisCache{client: client, ttl: cfg.BalanceTTL, enabled: true}, nil
}

func balanceKey(accountID string) string {
	return "ledger:balance:" + accountID
}

// GetBalance returns the cached balance and whether it was present.
func (c *RedisCache) GetBalance(ctx context.Context, accountID string) (float64, bool) {
	if c == nil || !c.enabled {
		return 0, false
	}

	val, err := c.client.Get(ctx, balanceKey(accountID)).Result()
	if err != nil {
		return 0, false
	}
	balance, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false
	}
	return balance, true
}

// SetBalance stores the account's balance with the configured TTL.
func (c *RedisCache) SetBalance(ctx context.Context, accountID string, balance float64) error {
	if c == nil || !c.enabled {
		return nil
	}

	val := strconv.FormatFloat(balance, 'f', -1, 64)
	if err := c.client.Set(ctx, balanceKey(accountID), val, c.ttl).Err(); err != nil {
		return errors.Wrap(err, "failed to cache balance")
	}
	return nil
}

// InvalidateBalance drops the account's cached balance.
func (c *RedisCache) InvalidateBalance(ctx context.Context, accountID string) error {
	if c == nil || !c.enabled {
		return nil
	}

	if err := c.client.Del(ctx, balanceKey(accountID)).Err(); err != nil {
		return errors.Wrap(err, "failed to invalidate balance")
	}
	return nil
}
