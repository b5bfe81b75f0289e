package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisLimiter(t *testing.T, config Config) (*RedisLimiter, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLimiter(client, "login", config), mr
}

func TestRedisLimiter_DeniesOverLimit(t *testing.T) {
	ctx := context.Background()
	limiter, _ := setupRedisLimiter(t, Config{Limit: 5, Window: time.Minute})

	for i := 0; i < 5; i++ {
		decision, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, decision.Allowed, "attempt %d should be allowed", i+1)
	}

	decision, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Greater(t, decision.RetryAfter, time.Duration(0))
}

func TestRedisLimiter_WindowElapses(t *testing.T) {
	ctx := context.Background()
	limiter, mr := setupRedisLimiter(t, Config{Limit: 1, Window: time.Minute})

	decision, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	decision, err = limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	mr.FastForward(time.Minute + time.Second)

	decision, err = limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestRedisLimiter_PrefixesSeparateRoutes(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	loginLimiter := NewRedisLimiter(client, "login", Config{Limit: 1, Window: time.Minute})
	apiLimiter := NewRedisLimiter(client, "api", Config{Limit: 1, Window: time.Minute})

	decision, err := loginLimiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	// Exhausting the login window leaves the api window untouched
	decision, err = loginLimiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	decision, err = apiLimiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}
