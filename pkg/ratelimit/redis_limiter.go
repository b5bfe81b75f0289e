package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter implements Limiter on a shared Redis instance so the limit
// holds across service instances. INCR is atomic, so concurrent requests
// against the same key observe distinct counts.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	config Config
}

// NewRedisLimiter creates a Redis-backed fixed-window limiter. The prefix
// is the route identifier, keeping windows of different routes independent.
func NewRedisLimiter(client *redis.Client, prefix string, config Config) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		config: config,
	}
}

func (l *RedisLimiter) key(key string) string {
	return "ratelimit:" + l.prefix + ":" + key
}

// Allow records a request for the key and checks it against the limit
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	k := l.key(key)

	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	// First hit starts the window
	if count == 1 {
		if err := l.client.PExpire(ctx, k, l.config.Window).Err(); err != nil {
			return Decision{}, fmt.Errorf("failed to start rate limit window: %w", err)
		}
	}

	ttl, err := l.client.PTTL(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("failed to read rate limit window: %w", err)
	}
	if ttl < 0 {
		ttl = l.config.Window
	}
	reset := time.Now().Add(ttl)

	if int(count) > l.config.Limit {
		return Decision{
			Allowed:    false,
			Limit:      l.config.Limit,
			Remaining:  0,
			RetryAfter: ttl,
			Reset:      reset,
		}, nil
	}

	remaining := l.config.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   true,
		Limit:     l.config.Limit,
		Remaining: remaining,
		Reset:     reset,
	}, nil
}
