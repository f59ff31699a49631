package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisCache(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, ttl), mr
}

func TestRedisCache_GetSet(t *testing.T) {
	c, mr := newTestRedisCache(t, time.Hour)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, -15.6, -56.1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, Entry{Latitude: -15.6, Longitude: -56.1, Location: cuiaba, Raw: []byte(`{"features":[]}`)}))

	got, ok, err := c.Get(ctx, -15.6, -56.1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cuiaba, got)

	assert.True(t, mr.Exists(keyPrefix+"-15.600000,-56.100000"))
	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"-15.600000,-56.100000"))
}

func TestRedisCache_Expiry(t *testing.T) {
	c, mr := newTestRedisCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, Entry{Latitude: 1, Longitude: 2, Location: cuiaba}))
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_CorruptValue(t *testing.T) {
	c, mr := newTestRedisCache(t, time.Minute)
	require.NoError(t, mr.Set(keyPrefix+Key(1, 2), "not json"))

	_, ok, err := c.Get(context.Background(), 1, 2)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestRedisCache_PingAndUnavailable(t *testing.T) {
	c, mr := newTestRedisCache(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, c.Ping(ctx))

	mr.Close()
	assert.Error(t, c.Ping(ctx))
	_, _, err := c.Get(ctx, 1, 2)
	assert.Error(t, err)
	assert.Error(t, c.Set(ctx, Entry{Latitude: 1, Longitude: 2, Location: cuiaba}))
}
