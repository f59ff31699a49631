// Package cache stores resolved locations keyed by coordinate so repeated
// hotspots skip the spatial and remote tiers.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/kjstillabower/hotspot-location-service/internal/models"
)

// DefaultTTL is how long a resolved location stays cached.
const DefaultTTL = 30 * 24 * time.Hour

// Entry is a cache write: the coordinate, its location and the provider
// payload it came from (empty for spatial-tier results).
type Entry struct {
	Latitude  float64
	Longitude float64
	Location  models.Location
	Raw       json.RawMessage
}

// Cache defines the interface for location caching implementations.
// Get returns (location, true, nil) on a hit and (zero, false, nil) on a miss.
type Cache interface {
	Get(ctx context.Context, lat, lng float64) (models.Location, bool, error)
	Set(ctx context.Context, entry Entry) error
}

// Pinger is implemented by backends that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Key canonicalizes a coordinate to six decimal places (about 0.1 m).
// Values that round to zero map to "0.000000" regardless of sign.
func Key(lat, lng float64) string {
	return fmt.Sprintf("%.6f,%.6f", roundMicro(lat), roundMicro(lng))
}

func roundMicro(v float64) float64 {
	v = math.Round(v*1e6) / 1e6
	if v == 0 {
		return 0
	}
	return v
}

// record is the serialized form used by the remote backends.
type record struct {
	Location models.Location `json:"location"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

func encodeRecord(e Entry) ([]byte, error) {
	return json.Marshal(record{Location: e.Location, Raw: e.Raw})
}

func decodeRecord(data []byte) (models.Location, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return models.Location{}, err
	}
	return r.Location, nil
}

// InMemoryCache implements Cache using a map with TTL-based expiration.
// Expired entries are removed on access. Safe for concurrent use.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
	ttl  time.Duration
	now  func() time.Time
}

type cacheEntry struct {
	value     models.Location
	expiresAt time.Time
}

// NewInMemoryCache creates an in-memory cache. ttl <= 0 uses DefaultTTL.
func NewInMemoryCache(ttl time.Duration) *InMemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Get implements Cache.
func (c *InMemoryCache) Get(ctx context.Context, lat, lng float64) (models.Location, bool, error) {
	key := Key(lat, lng)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return models.Location{}, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.data, key)
		return models.Location{}, false, nil
	}
	return entry.value, true, nil
}

// Set implements Cache.
func (c *InMemoryCache) Set(ctx context.Context, e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[Key(e.Latitude, e.Longitude)] = cacheEntry{
		value:     e.Location,
		expiresAt: c.now().Add(c.ttl),
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
