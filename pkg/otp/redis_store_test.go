package otp

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStore_SingleUse(t *testing.T) {
	ctx := context.Background()
	store, _ := setupRedisStore(t)

	require.NoError(t, store.Store(ctx, "subject-1", "123456", time.Minute))

	valid, err := store.Verify(ctx, "subject-1", "123456")
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = store.Verify(ctx, "subject-1", "123456")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestRedisStore_MismatchRetainsCode(t *testing.T) {
	ctx := context.Background()
	store, _ := setupRedisStore(t)

	require.NoError(t, store.Store(ctx, "subject-1", "123456", time.Minute))

	valid, err := store.Verify(ctx, "subject-1", "000000")
	require.NoError(t, err)
	assert.False(t, valid)

	valid, err = store.Verify(ctx, "subject-1", "123456")
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestRedisStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store, mr := setupRedisStore(t)

	require.NoError(t, store.Store(ctx, "subject-1", "123456", 10*time.Minute))

	mr.FastForward(10*time.Minute + time.Second)

	valid, err := store.Verify(ctx, "subject-1", "123456")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestRedisStore_OverwritesPriorCode(t *testing.T) {
	ctx := context.Background()
	store, _ := setupRedisStore(t)

	require.NoError(t, store.Store(ctx, "subject-1", "111111", time.Minute))
	require.NoError(t, store.Store(ctx, "subject-1", "222222", time.Minute))

	valid, err := store.Verify(ctx, "subject-1", "222222")
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestRedisStore_Clear(t *testing.T) {
	ctx := context.Background()
	store, _ := setupRedisStore(t)

	require.NoError(t, store.Store(ctx, "subject-1", "123456", time.Minute))
	require.NoError(t, store.Clear(ctx, "subject-1"))

	valid, err := store.Verify(ctx, "subject-1", "123456")
	require.NoError(t, err)
	assert.False(t, valid)
}
