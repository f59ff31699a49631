package service

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/kjstillabower/hotspot-location-service/internal/cache"
	"github.com/kjstillabower/hotspot-location-service/internal/models"
)

// recordingCache wraps InMemoryCache and records every call.
type recordingCache struct {
	*cache.InMemoryCache
	mu     sync.Mutex
	gets   int
	sets   []cache.Entry
	getErr error
	setErr error
}

func newRecordingCache() *recordingCache {
	return &recordingCache{InMemoryCache: cache.NewInMemoryCache(0)}
}

func (c *recordingCache) Get(ctx context.Context, lat, lng float64) (models.Location, bool, error) {
	c.mu.Lock()
	c.gets++
	err := c.getErr
	c.mu.Unlock()
	if err != nil {
		return models.Location{}, false, err
	}
	return c.InMemoryCache.Get(ctx, lat, lng)
}

func (c *recordingCache) Set(ctx context.Context, e cache.Entry) error {
	c.mu.Lock()
	c.sets = append(c.sets, e)
	err := c.setErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.InMemoryCache.Set(ctx, e)
}

func (c *recordingCache) setKeys() map[string]models.Location {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]models.Location, len(c.sets))
	for _, e := range c.sets {
		out[cache.Key(e.Latitude, e.Longitude)] = e.Location
	}
	return out
}

// funcMatcher is a spatial.Matcher driven by a per-point function.
type funcMatcher struct {
	calls  atomic.Int32
	points atomic.Int32
	locate func(p models.Point) *models.Location
	err    error
}

func (m *funcMatcher) BatchLocate(ctx context.Context, points []models.Point) ([]models.EnrichedPoint, error) {
	m.calls.Add(1)
	m.points.Add(int32(len(points)))
	if m.err != nil {
		return nil, m.err
	}
	out := make([]models.EnrichedPoint, len(points))
	for i, p := range points {
		out[i] = models.EnrichedPoint{Point: p, Location: m.locate(p)}
	}
	return out, nil
}

// funcGeocoder is a Geocoder driven by a per-point function.
type funcGeocoder struct {
	calls   atomic.Int32
	reverse func(lat, lng float64) (*models.Location, error)
}

func (g *funcGeocoder) Reverse(ctx context.Context, lat, lng float64) (*models.Location, json.RawMessage, error) {
	g.calls.Add(1)
	loc, err := g.reverse(lat, lng)
	if err != nil {
		return nil, nil, err
	}
	return loc, json.RawMessage(`{"features":[]}`), nil
}

// countingLimiter never blocks.
type countingLimiter struct{ n atomic.Int32 }

func (l *countingLimiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.n.Add(1)
	return nil
}
