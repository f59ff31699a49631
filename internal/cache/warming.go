package cache

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/hotspot-location-service/internal/models"
	"github.com/kjstillabower/hotspot-location-service/internal/observability"
)

const defaultWarmConcurrency = 8

// Warmer seeds a Cache from previously enriched points, e.g. the output of an
// earlier enrich run, so a fresh backend does not re-geocode known hotspots.
type Warmer struct {
	cache       Cache
	concurrency int
	logger      *zap.Logger
}

// NewWarmer creates a Warmer writing to c. concurrency <= 0 uses 8.
func NewWarmer(c Cache, concurrency int, logger *zap.Logger) *Warmer {
	if concurrency <= 0 {
		concurrency = defaultWarmConcurrency
	}
	return &Warmer{cache: c, concurrency: concurrency, logger: observability.LoggerOrNop(logger)}
}

// Warm writes every cacheable location in points and returns how many were
// written. Points without a location, or with an invalid or sentinel one, are
// skipped. The first write error stops the run.
func (w *Warmer) Warm(ctx context.Context, points []models.EnrichedPoint) (int, error) {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("points", len(points)))

	var written atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, p := range points {
		if !p.Location.Cacheable() {
			observability.CacheWritesTotal.WithLabelValues("skipped").Inc()
			continue
		}
		p := p
		g.Go(func() error {
			err := w.cache.Set(gctx, Entry{Latitude: p.Latitude, Longitude: p.Longitude, Location: *p.Location})
			if err != nil {
				observability.CacheWritesTotal.WithLabelValues("error").Inc()
				return err
			}
			observability.CacheWritesTotal.WithLabelValues("success").Inc()
			written.Add(1)
			return nil
		})
	}
	err := g.Wait()

	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("cache warming complete",
		zap.Int("points", len(points)),
		zap.Int64("written", written.Load()),
		zap.Float64("duration_seconds", duration),
		zap.Error(err))
	return int(written.Load()), err
}
