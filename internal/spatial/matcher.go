// Package spatial resolves hotspots offline against municipality boundaries.
// Every input point yields exactly one output point, in order; points outside
// every boundary carry the sentinel municipality instead of an error.
package spatial

import (
	"context"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/kjstillabower/hotspot-location-service/internal/models"
	"github.com/kjstillabower/hotspot-location-service/internal/observability"
)

// Matcher is the offline tier of the pipeline.
type Matcher interface {
	BatchLocate(ctx context.Context, points []models.Point) ([]models.EnrichedPoint, error)
}

// Boundary is one municipality: its attributes and polygons in lon/lat.
type Boundary struct {
	City     string
	State    string
	Region   string
	Country  string
	Polygons []*geom.Polygon

	bounds *geom.Bounds
}

// NewBoundary builds a Boundary and precomputes its bounding box.
func NewBoundary(city, state, region, country string, polygons ...*geom.Polygon) Boundary {
	b := Boundary{City: city, State: state, Region: region, Country: country, Polygons: polygons}
	b.bounds = geom.NewBounds(geom.XY)
	for _, p := range polygons {
		b.bounds.Extend(p)
	}
	return b
}

// Contains reports whether the lon/lat coordinate lies inside one of the
// boundary's polygons and outside its holes.
func (b Boundary) Contains(lng, lat float64) bool {
	c := geom.Coord{lng, lat}
	if b.bounds != nil && !b.bounds.OverlapsPoint(geom.XY, c) {
		return false
	}
	for _, p := range b.Polygons {
		if polygonContains(p, c) {
			return true
		}
	}
	return false
}

func polygonContains(p *geom.Polygon, c geom.Coord) bool {
	n := p.NumLinearRings()
	if n == 0 {
		return false
	}
	if !xy.IsPointInRing(p.Layout(), c, p.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < n; i++ {
		if xy.IsPointInRing(p.Layout(), c, p.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}

func (b Boundary) location() *models.Location {
	return &models.Location{City: b.City, State: b.State, Region: b.Region, Country: b.Country}
}

// PolygonMatcher holds boundaries in memory and matches points by
// bounding-box filter then point-in-polygon.
type PolygonMatcher struct {
	boundaries []Boundary
	logger     *zap.Logger
}

// NewPolygonMatcher returns a matcher over boundaries. The first boundary
// containing a point wins.
func NewPolygonMatcher(boundaries []Boundary, logger *zap.Logger) *PolygonMatcher {
	return &PolygonMatcher{boundaries: boundaries, logger: observability.LoggerOrNop(logger)}
}

// Len returns the number of loaded boundaries.
func (m *PolygonMatcher) Len() int {
	return len(m.boundaries)
}

// BatchLocate implements Matcher.
func (m *PolygonMatcher) BatchLocate(ctx context.Context, points []models.Point) ([]models.EnrichedPoint, error) {
	out := make([]models.EnrichedPoint, len(points))
	unmatched := 0
	for i, p := range points {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out[i] = models.EnrichedPoint{Point: p, Location: m.locate(p)}
		if !out[i].Location.HasMunicipality() {
			unmatched++
		}
	}
	m.logger.Debug("spatial batch located",
		zap.Int("points", len(points)),
		zap.Int("unmatched", unmatched))
	return out, nil
}

func (m *PolygonMatcher) locate(p models.Point) *models.Location {
	for _, b := range m.boundaries {
		if b.Contains(p.Longitude, p.Latitude) {
			return b.location()
		}
	}
	return &models.Location{City: models.SentinelMunicipality}
}
