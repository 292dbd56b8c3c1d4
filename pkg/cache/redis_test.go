package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authzkit/authzkit/pkg/cache"
)

func newRedis(t *testing.T) (*cache.Redis, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	c := cache.NewRedis(client)
	t.Cleanup(func() { _ = c.Close() })
	return c, srv
}

func TestRedis_SetGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newRedis(t)

	require.NoError(t, c.Set(ctx, "k1", []byte("v1")))

	got, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	_, err = c.Get(ctx, "absent")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestRedis_TTLExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, srv := newRedis(t)

	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), cache.WithTTL(time.Minute)))

	srv.FastForward(2 * time.Minute)

	_, err := c.Get(ctx, "k1")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestRedis_SlidingTTLRefreshesOnRead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, srv := newRedis(t)

	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), cache.WithTTL(time.Minute), cache.WithSliding()))

	srv.FastForward(45 * time.Second)

	_, err := c.Get(ctx, "k1")
	require.NoError(t, err)

	// The read pushed the expiry out by a full TTL.
	srv.FastForward(45 * time.Second)

	_, err = c.Get(ctx, "k1")
	assert.NoError(t, err)
}

func TestRedis_DeleteExists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newRedis(t)

	require.NoError(t, c.Set(ctx, "k1", []byte("v1")))

	ok, err := c.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, "k1"))
	require.NoError(t, c.Delete(ctx, "k1"))

	ok, err = c.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_DeletePattern(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newRedis(t)

	require.NoError(t, c.Set(ctx, "rbac:user:u1", []byte("a")))
	require.NoError(t, c.Set(ctx, "rbac:user:u2", []byte("b")))
	require.NoError(t, c.Set(ctx, "rbac:role:r1", []byte("c")))

	n, err := c.DeletePattern(ctx, "rbac:user:*")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ok, err := c.Exists(ctx, "rbac:role:r1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedis_DeleteByTags(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newRedis(t)

	require.NoError(t, c.Set(ctx, "k1", []byte("a"), cache.WithTags("user:u1")))
	require.NoError(t, c.Set(ctx, "k2", []byte("b"), cache.WithTags("user:u1", "org:o1")))
	require.NoError(t, c.Set(ctx, "k3", []byte("c"), cache.WithTags("org:o1")))

	n, err := c.DeleteByTags(ctx, "user:u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ok, err := c.Exists(ctx, "k3")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err = c.DeleteByTags(ctx, "user:u1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedis_GetManySetMany(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newRedis(t)

	require.NoError(t, c.SetMany(ctx, map[string][]byte{
		"k1": []byte("a"),
		"k2": []byte("b"),
	}))

	got, err := c.GetMany(ctx, []string{"k1", "k2", "absent"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, []byte("b"), got["k2"])
}

func TestRedis_GetOrSet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newRedis(t)

	calls := 0
	factory := func(context.Context) ([]byte, error) {
		calls++
		return []byte("computed"), nil
	}

	got, err := c.GetOrSet(ctx, "k1", factory)
	require.NoError(t, err)
	assert.Equal(t, []byte("computed"), got)

	_, err = c.GetOrSet(ctx, "k1", factory)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRedis_Lock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newRedis(t)

	unlock, acquired, err := c.Lock(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	_, again, err := c.Lock(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.False(t, again)

	unlock()

	_, acquired, err = c.Lock(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestRedis_Clear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newRedis(t)

	require.NoError(t, c.Set(ctx, "k1", []byte("a")))
	require.NoError(t, c.Clear(ctx))

	_, err := c.Get(ctx, "k1")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestHealthcheck(t *testing.T) {
	t.Parallel()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	check := cache.Healthcheck(client)
	require.NoError(t, check(context.Background()))

	srv.Close()
	assert.ErrorIs(t, check(context.Background()), cache.ErrHealthcheckFailed)
}
