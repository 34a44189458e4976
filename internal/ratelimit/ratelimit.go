// Package ratelimit provides a Redis-backed request counter for the API
// rate limiter.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter increments a key with an expiry window and returns the new count.
type Counter interface {
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RedisCounter implements Counter using go-redis/v9.
type RedisCounter struct {
	client *redis.Client
}

// NewRedis creates a RedisCounter from a Redis URL.
func NewRedis(redisURL string) (*RedisCounter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisCounter{client: redis.NewClient(opts)}, nil
}

// Ping verifies connectivity.
func (c *RedisCounter) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// IncrWithExpiry increments key and refreshes its TTL in one pipeline.
func (c *RedisCounter) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	return incr.Val(), nil
}

// Close releases the Redis client.
func (c *RedisCounter) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}

// Key builds the per-user rate limit key.
func Key(userID string) string {
	return fmt.Sprintf("ratelimit:%s", userID)
}
