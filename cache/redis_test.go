package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kianwoon/promptops-sub000/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	r := cache.NewRedisStore(cache.RedisConfig{Addr: mr.Addr()})

	require.NoError(t, r.Ping(ctx))

	_, err := r.Get(ctx, "key")
	assert.True(t, errors.Is(err, cache.ErrNotFound))

	require.NoError(t, r.Set(ctx, "key", "value", time.Minute))

	val, err := r.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "value", val)

	ok, err := r.Exists(ctx, "key")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Delete(ctx, "key")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Delete(ctx, "key")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_expiration(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	r := cache.NewRedisStore(cache.RedisConfig{Addr: mr.Addr()})

	require.NoError(t, r.Set(ctx, "key", "value", 100*time.Millisecond))

	mr.FastForward(150 * time.Millisecond)

	_, err := r.Get(ctx, "key")
	assert.True(t, errors.Is(err, cache.ErrNotFound), "store expiration delegated to Redis TTL")
}

func TestRedisStore_keysFlush(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	r := cache.NewRedisStore(cache.RedisConfig{Addr: mr.Addr()})

	require.NoError(t, r.Set(ctx, "a:1", "1", time.Minute))
	require.NoError(t, r.Set(ctx, "a:2", "2", time.Minute))
	require.NoError(t, r.Set(ctx, "b:1", "3", time.Minute))

	keys, err := r.Keys(ctx, "a:*")
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	keys, err = r.Keys(ctx, "")
	require.NoError(t, err)
	assert.Len(t, keys, 3)

	require.NoError(t, r.Flush(ctx))

	keys, err = r.Keys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestRedisStore_unreachable(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	r := cache.NewRedisStore(cache.RedisConfig{Addr: addr})

	assert.Error(t, r.Ping(ctx))

	_, err := r.Get(ctx, "key")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, cache.ErrNotFound), "transport errors are not misses")
}
