// Package scheduler resolves points in fixed-size batches, running a bounded
// number of batches at a time.
package scheduler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/hotspot-location-service/internal/models"
	"github.com/kjstillabower/hotspot-location-service/internal/observability"
)

const (
	DefaultBatchSize            = 55
	DefaultMaxConcurrentBatches = 6
)

// Resolution is a successful lookup: the mapped location and the raw
// provider payload it came from.
type Resolution struct {
	Location models.Location
	Raw      json.RawMessage
}

// ResolveFunc resolves a single point. Implementations take care of rate
// limiting and retries; an error means the point is given up on.
type ResolveFunc func(ctx context.Context, p models.Point) (Resolution, error)

// Outcome is a resolved point.
type Outcome struct {
	models.EnrichedPoint
	Raw json.RawMessage
}

// Config sizes the batches and waves.
type Config struct {
	BatchSize            int
	MaxConcurrentBatches int
}

// Scheduler partitions points into batches and processes them in waves.
type Scheduler struct {
	batchSize  int
	maxBatches int
	logger     *zap.Logger
}

// New returns a Scheduler; zero values fall back to 55 points per batch and
// 6 concurrent batches.
func New(cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxConcurrentBatches <= 0 {
		cfg.MaxConcurrentBatches = DefaultMaxConcurrentBatches
	}
	return &Scheduler{
		batchSize:  cfg.BatchSize,
		maxBatches: cfg.MaxConcurrentBatches,
		logger:     observability.LoggerOrNop(logger),
	}
}

// Run resolves every point. Batches of a wave run concurrently and every
// point of a batch is resolved concurrently; the next wave starts once the
// current one has finished. Points whose resolution fails are logged and
// returned in dropped instead of resolved. resolved is ordered by wave, then
// batch, then position in the batch.
//
// Run only fails when ctx is done; pending waves are then abandoned.
func (s *Scheduler) Run(ctx context.Context, points []models.Point, resolve ResolveFunc) (resolved []Outcome, dropped []models.Point, err error) {
	batches := partition(points, s.batchSize)
	resolved = make([]Outcome, 0, len(points))

	for start := 0; start < len(batches); start += s.maxBatches {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		end := min(start+s.maxBatches, len(batches))
		wave := batches[start:end]

		results := make([][]*Outcome, len(wave))
		g, gctx := errgroup.WithContext(ctx)
		for i, batch := range wave {
			i, batch := i, batch
			g.Go(func() error {
				results[i] = s.runBatch(gctx, batch, resolve)
				return nil
			})
		}
		_ = g.Wait()
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		for i, batch := range wave {
			for j, out := range results[i] {
				if out == nil {
					dropped = append(dropped, batch[j])
					continue
				}
				resolved = append(resolved, *out)
			}
		}
		s.logger.Debug("geocode wave complete",
			zap.Int("wave", start/s.maxBatches+1),
			zap.Int("batches", len(wave)),
			zap.Int("resolved", len(resolved)),
			zap.Int("dropped", len(dropped)))
	}
	return resolved, dropped, nil
}

// runBatch resolves all points of one batch concurrently. A nil entry marks
// a point that could not be resolved.
func (s *Scheduler) runBatch(ctx context.Context, batch []models.Point, resolve ResolveFunc) []*Outcome {
	out := make([]*Outcome, len(batch))
	var g errgroup.Group
	for i, p := range batch {
		i, p := i, p
		g.Go(func() error {
			res, err := resolve(ctx, p)
			if err != nil {
				if ctx.Err() == nil {
					observability.DroppedPointsTotal.Inc()
					s.logger.Warn("geocode failed, dropping point",
						zap.Float64("latitude", p.Latitude),
						zap.Float64("longitude", p.Longitude),
						zap.Error(err))
				}
				return nil
			}
			loc := res.Location
			out[i] = &Outcome{
				EnrichedPoint: models.EnrichedPoint{Point: p, Location: &loc},
				Raw:           res.Raw,
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// partition splits points into consecutive chunks of at most size.
func partition(points []models.Point, size int) [][]models.Point {
	if len(points) == 0 {
		return nil
	}
	batches := make([][]models.Point, 0, (len(points)+size-1)/size)
	for start := 0; start < len(points); start += size {
		end := min(start+size, len(points))
		batches = append(batches, points[start:end])
	}
	return batches
}
