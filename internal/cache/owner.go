// Package cache holds the Redis-backed device owner cache.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// OwnerCache stores device ownership in Redis. Ownership is immutable, so the
// TTL only bounds memory use.
type OwnerCache struct {
	client *redis.Client
	ttl    time.Duration
}

// Options holds Redis connection settings
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewOwnerCache creates the cache. It returns nil without error when Addr is
// empty, which disables caching.
func NewOwnerCache(lc fx.Lifecycle, logger *zap.Logger, opts Options) (*OwnerCache, error) {
	if opts.Addr == "" {
		logger.Info("REDIS_ADDR not set, owner cache disabled")
		return nil, nil
	}

	c := New(redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), opts.TTL)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := c.client.Ping(ctx).Err(); err != nil {
				// The cache is optional: lookups fall through to the database
				logger.Warn("redis not reachable, owner lookups will hit the database",
					zap.String("addr", opts.Addr), zap.Error(err))
				return nil
			}
			logger.Info("redis connection established successfully", zap.String("addr", opts.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return c.Close()
		},
	})

	return c, nil
}

// New wraps an existing client
func New(client *redis.Client, ttl time.Duration) *OwnerCache {
	return &OwnerCache{client: client, ttl: ttl}
}

// GetOwner returns the cached owner of deviceID. ok is false on a miss.
func (c *OwnerCache) GetOwner(ctx context.Context, deviceID string) (string, bool, error) {
	owner, err := c.client.Get(ctx, ownerKey(deviceID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get owner from redis: %w", err)
	}
	return owner, true, nil
}

// SetOwner caches the owner of deviceID
func (c *OwnerCache) SetOwner(ctx context.Context, deviceID, ownerID string) error {
	if err := c.client.Set(ctx, ownerKey(deviceID), ownerID, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set owner in redis: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (c *OwnerCache) Close() error {
	return c.client.Close()
}

func ownerKey(deviceID string) string {
	return fmt.Sprintf("device:%s:owner", deviceID)
}
