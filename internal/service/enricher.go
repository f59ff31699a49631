// Package service implements the location-enrichment pipeline: cache, then
// offline spatial match, then the remote geocoding provider.
package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/hotspot-location-service/internal/cache"
	"github.com/kjstillabower/hotspot-location-service/internal/client"
	"github.com/kjstillabower/hotspot-location-service/internal/models"
	"github.com/kjstillabower/hotspot-location-service/internal/observability"
	"github.com/kjstillabower/hotspot-location-service/internal/retry"
	"github.com/kjstillabower/hotspot-location-service/internal/scheduler"
	"github.com/kjstillabower/hotspot-location-service/internal/spatial"
)

// cacheConcurrency bounds parallel cache lookups and write-backs per run.
const cacheConcurrency = 16

// Geocoder is the remote tier. A nil location means the provider found
// nothing for the coordinate.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lng float64) (*models.Location, json.RawMessage, error)
}

// Limiter gates every outbound provider request.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Deps are the collaborators of an Enricher. Matcher may be nil, in which
// case every uncached point goes straight to the provider.
type Deps struct {
	Cache     cache.Cache
	Matcher   spatial.Matcher
	Geocoder  Geocoder
	Limiter   Limiter
	Retry     *retry.Policy
	Scheduler *scheduler.Scheduler
}

// Options switch the pipeline between the legacy behavior (zero value) and
// the alternatives.
type Options struct {
	// KeepUnresolved returns points whose remote lookup failed with a nil
	// location instead of leaving them out of the result.
	KeepUnresolved bool
	// EscalateUnresolvedOnly keeps the spatial matches of an incomplete
	// spatial run and sends only the unmatched points to the provider.
	EscalateUnresolvedOnly bool
	// Coalesce collapses concurrent lookups of the same coordinate.
	Coalesce bool
}

// Report summarizes one Enrich call.
type Report struct {
	Input     int
	CacheHits int
	Spatial   int
	Remote    int
	// Dropped counts points the provider could not resolve, whether or
	// not KeepUnresolved returns them.
	Dropped    int
	Escalated  int
	Unresolved int
	Duration   time.Duration
}

// Output is the number of points in the result.
func (r Report) Output() int {
	return r.CacheHits + r.Spatial + r.Remote + r.Unresolved
}

// Enricher attaches a Location to hotspot points.
type Enricher struct {
	cache     cache.Cache
	matcher   spatial.Matcher
	geocoder  Geocoder
	limiter   Limiter
	retry     *retry.Policy
	scheduler *scheduler.Scheduler
	coalescer *requestCoalescer
	opts      Options
	logger    *zap.Logger
}

// NewEnricher validates deps and returns an Enricher.
func NewEnricher(deps Deps, opts Options, logger *zap.Logger) (*Enricher, error) {
	switch {
	case deps.Cache == nil:
		return nil, eris.New("service: cache is required")
	case deps.Geocoder == nil:
		return nil, eris.New("service: geocoder is required")
	case deps.Limiter == nil:
		return nil, eris.New("service: rate limiter is required")
	}
	logger = observability.LoggerOrNop(logger)
	if deps.Retry == nil {
		deps.Retry = retry.New(retry.Config{}, logger)
	}
	if deps.Scheduler == nil {
		deps.Scheduler = scheduler.New(scheduler.Config{}, logger)
	}
	e := &Enricher{
		cache:     deps.Cache,
		matcher:   deps.Matcher,
		geocoder:  deps.Geocoder,
		limiter:   deps.Limiter,
		retry:     deps.Retry,
		scheduler: deps.Scheduler,
		opts:      opts,
		logger:    logger,
	}
	if opts.Coalesce {
		e.coalescer = newRequestCoalescer()
	}
	return e, nil
}

// Enrich resolves a location for every point. Cache hits are returned as is;
// the rest go through the spatial tier and, when it leaves any point without
// a municipality, the remote tier. Valid, non-sentinel results are written
// back to the cache.
//
// Points whose remote lookup fails are left out (or kept with a nil location
// under Options.KeepUnresolved). Only cache or spatial failures and ctx
// cancellation fail the call; nothing is written back after cancellation.
// The result is not in input order.
func (e *Enricher) Enrich(ctx context.Context, points []models.Point) ([]models.EnrichedPoint, Report, error) {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx, e.logger)
	report := Report{Input: len(points)}
	observability.EnrichBatchSize.Observe(float64(len(points)))

	hits, uncached, err := e.splitCached(ctx, points)
	if err != nil {
		return nil, report, err
	}
	report.CacheHits = len(hits)
	observability.TierResolutionsTotal.WithLabelValues(observability.TierCache).Add(float64(len(hits)))

	result := make([]models.EnrichedPoint, 0, len(points))
	result = append(result, hits...)
	if len(uncached) == 0 {
		report.Duration = time.Since(start)
		e.logRun(logger, report)
		return result, report, nil
	}

	escalate := uncached
	var writes []cache.Entry
	if e.matcher != nil {
		located, err := e.matcher.BatchLocate(ctx, uncached)
		if err != nil {
			return nil, report, eris.Wrap(err, "service: spatial match")
		}
		if len(located) != len(uncached) {
			return nil, report, eris.Errorf("service: spatial matcher returned %d points for %d", len(located), len(uncached))
		}

		matched, unmatched := splitMatched(located)
		switch {
		case len(unmatched) == 0:
			escalate = nil
		case e.opts.EscalateUnresolvedOnly:
			escalate = unmatched
		default:
			matched = nil
		}
		if len(unmatched) > 0 {
			observability.SpatialEscalationsTotal.Inc()
		}
		for _, ep := range matched {
			writes = append(writes, cache.Entry{Latitude: ep.Latitude, Longitude: ep.Longitude, Location: *ep.Location})
		}
		result = append(result, matched...)
		report.Spatial = len(matched)
		observability.TierResolutionsTotal.WithLabelValues(observability.TierSpatial).Add(float64(len(matched)))
	}

	if len(escalate) > 0 {
		report.Escalated = len(escalate)
		resolved, dropped, err := e.scheduler.Run(ctx, escalate, e.resolveOne)
		if err != nil {
			return nil, report, err
		}
		for _, out := range resolved {
			writes = append(writes, cache.Entry{
				Latitude:  out.Latitude,
				Longitude: out.Longitude,
				Location:  *out.Location,
				Raw:       out.Raw,
			})
			result = append(result, out.EnrichedPoint)
		}
		report.Remote = len(resolved)
		report.Dropped = len(dropped)
		observability.TierResolutionsTotal.WithLabelValues(observability.TierRemote).Add(float64(len(resolved)))

		if e.opts.KeepUnresolved {
			for _, p := range dropped {
				result = append(result, models.EnrichedPoint{Point: p})
			}
			report.Unresolved = len(dropped)
		}
	}

	if err := e.writeBack(ctx, writes); err != nil {
		return nil, report, err
	}

	report.Duration = time.Since(start)
	e.logRun(logger, report)
	return result, report, nil
}

// splitCached looks every point up in the cache. Lookups run concurrently;
// hits keep input order among themselves, as do misses.
func (e *Enricher) splitCached(ctx context.Context, points []models.Point) ([]models.EnrichedPoint, []models.Point, error) {
	found := make([]*models.Location, len(points))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cacheConcurrency)
	for i, p := range points {
		i, p := i, p
		g.Go(func() error {
			loc, ok, err := e.cache.Get(gctx, p.Latitude, p.Longitude)
			if err != nil {
				observability.CacheLookupsTotal.WithLabelValues("error").Inc()
				return eris.Wrapf(err, "service: cache lookup %s", cache.Key(p.Latitude, p.Longitude))
			}
			if !ok {
				observability.CacheLookupsTotal.WithLabelValues("miss").Inc()
				return nil
			}
			observability.CacheLookupsTotal.WithLabelValues("hit").Inc()
			found[i] = &loc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return nil, nil, err
	}

	var hits []models.EnrichedPoint
	var misses []models.Point
	for i, p := range points {
		if found[i] != nil {
			hits = append(hits, models.EnrichedPoint{Point: p, Location: found[i]})
			continue
		}
		misses = append(misses, p)
	}
	return hits, misses, nil
}

// splitMatched separates spatial results with a usable municipality from
// unmatched ones, returning the latter as plain points.
func splitMatched(located []models.EnrichedPoint) ([]models.EnrichedPoint, []models.Point) {
	var matched []models.EnrichedPoint
	var unmatched []models.Point
	for _, ep := range located {
		if ep.Location.HasMunicipality() {
			matched = append(matched, ep)
			continue
		}
		unmatched = append(unmatched, ep.Point)
	}
	return matched, unmatched
}

// resolveOne runs the retry sequence for one point. Every attempt takes a
// rate-limiter slot before calling the provider.
func (e *Enricher) resolveOne(ctx context.Context, p models.Point) (scheduler.Resolution, error) {
	lookup := func(ctx context.Context) (scheduler.Resolution, error) {
		var raw json.RawMessage
		loc, err := e.retry.Execute(ctx, func(ctx context.Context) (*models.Location, error) {
			if err := e.limiter.Acquire(ctx); err != nil {
				return nil, err
			}
			l, r, err := e.geocoder.Reverse(ctx, p.Latitude, p.Longitude)
			raw = r
			return l, err
		})
		if err != nil {
			if ctx.Err() == nil {
				observability.ProviderErrorsTotal.WithLabelValues(string(client.CategorizeError(err))).Inc()
			}
			return scheduler.Resolution{}, err
		}
		return scheduler.Resolution{Location: loc, Raw: raw}, nil
	}

	if e.coalescer == nil {
		return lookup(ctx)
	}
	res, shared, err := e.coalescer.GetOrDo(ctx, cache.Key(p.Latitude, p.Longitude), lookup)
	if shared {
		observability.CoalescedLookupsTotal.Inc()
	}
	return res, err
}

// writeBack stores cacheable entries. Invalid and sentinel locations are
// skipped so later runs retry them.
func (e *Enricher) writeBack(ctx context.Context, writes []cache.Entry) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cacheConcurrency)
	for _, w := range writes {
		if !w.Location.Cacheable() {
			observability.CacheWritesTotal.WithLabelValues("skipped").Inc()
			continue
		}
		w := w
		g.Go(func() error {
			if err := e.cache.Set(gctx, w); err != nil {
				observability.CacheWritesTotal.WithLabelValues("error").Inc()
				return eris.Wrapf(err, "service: cache write %s", cache.Key(w.Latitude, w.Longitude))
			}
			observability.CacheWritesTotal.WithLabelValues("success").Inc()
			return nil
		})
	}
	return g.Wait()
}

func (e *Enricher) logRun(logger *zap.Logger, r Report) {
	logger.Info("enrichment complete",
		zap.Int("input", r.Input),
		zap.Int("output", r.Output()),
		zap.Int("cache_hits", r.CacheHits),
		zap.Int("spatial", r.Spatial),
		zap.Int("remote", r.Remote),
		zap.Int("escalated", r.Escalated),
		zap.Int("dropped", r.Dropped),
		zap.Int("unresolved", r.Unresolved),
		zap.Duration("duration", r.Duration))
}
