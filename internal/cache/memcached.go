package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/rotisserie/eris"

	"github.com/kjstillabower/hotspot-location-service/internal/models"
)

const keyPrefix = "hotspot:loc:"

// memcached treats expirations above 30 days as absolute unix timestamps.
const maxRelativeExp = 30 * 24 * 60 * 60

// MemcachedCache implements Cache using memcached.
type MemcachedCache struct {
	client *memcache.Client
	ttl    time.Duration
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedCache(addrs string, ttl, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemcachedCache{client: client, ttl: ttl}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Get implements Cache.Get.
func (c *MemcachedCache) Get(ctx context.Context, lat, lng float64) (models.Location, bool, error) {
	if ctx.Err() != nil {
		return models.Location{}, false, ctx.Err()
	}
	item, err := c.client.Get(keyPrefix + Key(lat, lng))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return models.Location{}, false, nil
		}
		return models.Location{}, false, eris.Wrap(err, "memcached get")
	}
	loc, err := decodeRecord(item.Value)
	if err != nil {
		return models.Location{}, false, eris.Wrap(err, "memcached decode")
	}
	return loc, true, nil
}

// Set implements Cache.Set.
func (c *MemcachedCache) Set(ctx context.Context, e Entry) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := encodeRecord(e)
	if err != nil {
		return eris.Wrap(err, "memcached encode")
	}
	if err := c.client.Set(&memcache.Item{
		Key:        keyPrefix + Key(e.Latitude, e.Longitude),
		Value:      raw,
		Expiration: expiration(c.ttl, time.Now()),
	}); err != nil {
		return eris.Wrap(err, "memcached set")
	}
	return nil
}

func expiration(ttl time.Duration, now time.Time) int32 {
	sec := int64(ttl.Seconds())
	if sec <= 0 {
		return 0
	}
	if sec > maxRelativeExp {
		return int32(now.Add(ttl).Unix())
	}
	return int32(sec)
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping(ctx context.Context) error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
