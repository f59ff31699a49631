package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/kjstillabower/hotspot-location-service/internal/models"
)

// RedisCache implements Cache on a Redis string key per coordinate with a
// native TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps an existing client. ttl <= 0 uses DefaultTTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Get implements Cache.Get.
func (c *RedisCache) Get(ctx context.Context, lat, lng float64) (models.Location, bool, error) {
	data, err := c.client.Get(ctx, keyPrefix+Key(lat, lng)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Location{}, false, nil
	}
	if err != nil {
		return models.Location{}, false, eris.Wrap(err, "redis get")
	}
	loc, err := decodeRecord(data)
	if err != nil {
		return models.Location{}, false, eris.Wrap(err, "redis decode")
	}
	return loc, true, nil
}

// Set implements Cache.Set.
func (c *RedisCache) Set(ctx context.Context, e Entry) error {
	raw, err := encodeRecord(e)
	if err != nil {
		return eris.Wrap(err, "redis encode")
	}
	if err := c.client.Set(ctx, keyPrefix+Key(e.Latitude, e.Longitude), raw, c.ttl).Err(); err != nil {
		return eris.Wrap(err, "redis set")
	}
	return nil
}

// Ping checks if Redis is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
