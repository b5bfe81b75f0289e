package ratelimit

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemLimiter_DeniesOverLimit(t *testing.T) {
	ctx := context.Background()
	limiter := NewInMemLimiter(Config{Limit: 5, Window: time.Minute})
	defer limiter.Close()

	for i := 0; i < 5; i++ {
		decision, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, decision.Allowed, "attempt %d should be allowed", i+1)
		assert.Equal(t, 5, decision.Limit)
		assert.Equal(t, 5-(i+1), decision.Remaining)
	}

	decision, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 0, decision.Remaining)
	assert.Greater(t, decision.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, decision.RetryAfter, time.Minute)
}

func TestInMemLimiter_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	limiter := NewInMemLimiter(Config{Limit: 1, Window: time.Minute})
	defer limiter.Close()

	decision, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	decision, err = limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	// A different client gets a fresh window
	decision, err = limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestInMemLimiter_WindowElapses(t *testing.T) {
	ctx := context.Background()
	limiter := NewInMemLimiter(Config{Limit: 2, Window: time.Minute})
	defer limiter.Close()

	current := time.Now()
	limiter.now = func() time.Time { return current }

	for i := 0; i < 2; i++ {
		decision, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
	}

	decision, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	current = current.Add(time.Minute + time.Second)

	decision, err = limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 1, decision.Remaining)
}

func TestInMemLimiter_CloseStopsSweeper(t *testing.T) {
	before := runtime.NumGoroutine()

	limiter := NewInMemLimiter(Config{Limit: 1, Window: time.Minute})
	limiter.Close()
	limiter.Close() // safe to call twice

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, 2*time.Second, 10*time.Millisecond, "sweeper goroutine should exit after Close")

	// Allow keeps working without the sweeper
	decision, err := limiter.Allow(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}
