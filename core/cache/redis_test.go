package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()})), mr
}

func TestGetDelIsSingleUse(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))

	val, err := c.GetDel(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	_, err = c.GetDel(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestSetExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestLockIsExclusive(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	token, ok, err := c.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = c.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Unlock(ctx, "lock", "someone-else"))
	_, ok, _ = c.TryLock(ctx, "lock", time.Minute)
	assert.False(t, ok, "foreign token must not release the lock")

	require.NoError(t, c.Unlock(ctx, "lock", token))
	_, ok, _ = c.TryLock(ctx, "lock", time.Minute)
	assert.True(t, ok)
}

func TestSetMembers(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SAdd(ctx, "idx", time.Minute, "a", "b"))
	require.NoError(t, c.SRem(ctx, "idx", "a"))

	members, err := c.SMembers(ctx, "idx")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b"}, members)
}
