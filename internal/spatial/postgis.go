package spatial

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kjstillabower/hotspot-location-service/internal/models"
	"github.com/kjstillabower/hotspot-location-service/internal/observability"
)

// Pool is the subset of *pgxpool.Pool used by PostGISMatcher.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

var _ Pool = (*pgxpool.Pool)(nil)

// PostGISConfig names the boundary table and its columns.
type PostGISConfig struct {
	Table        string
	GeomColumn   string
	NameColumn   string
	StateColumn  string
	RegionColumn string
	Country      string
}

func (c PostGISConfig) withDefaults() PostGISConfig {
	if c.Table == "" {
		c.Table = "municipios"
	}
	if c.GeomColumn == "" {
		c.GeomColumn = "geom"
	}
	if c.NameColumn == "" {
		c.NameColumn = "nm_mun"
	}
	if c.StateColumn == "" {
		c.StateColumn = "sigla_uf"
	}
	return c
}

// PostGISMatcher resolves a whole batch with one query: the coordinates are
// unnested WITH ORDINALITY and left-joined to the first containing boundary.
type PostGISMatcher struct {
	pool   Pool
	cfg    PostGISConfig
	query  string
	logger *zap.Logger
}

// NewPostGISMatcher builds the batch query for cfg.
func NewPostGISMatcher(pool Pool, cfg PostGISConfig, logger *zap.Logger) *PostGISMatcher {
	cfg = cfg.withDefaults()
	return &PostGISMatcher{
		pool:   pool,
		cfg:    cfg,
		query:  buildLocateQuery(cfg),
		logger: observability.LoggerOrNop(logger),
	}
}

func buildLocateQuery(cfg PostGISConfig) string {
	region := "NULL::text"
	if cfg.RegionColumn != "" {
		region = "b." + pgx.Identifier{cfg.RegionColumn}.Sanitize()
	}
	return fmt.Sprintf(`SELECT p.ord, m.name, m.state, m.region
FROM unnest($1::float8[], $2::float8[]) WITH ORDINALITY AS p(lng, lat, ord)
LEFT JOIN LATERAL (
	SELECT b.%s AS name, b.%s AS state, %s AS region
	FROM %s b
	WHERE ST_Contains(b.%s, ST_SetSRID(ST_MakePoint(p.lng, p.lat), 4326))
	LIMIT 1
) m ON true
ORDER BY p.ord`,
		pgx.Identifier{cfg.NameColumn}.Sanitize(),
		pgx.Identifier{cfg.StateColumn}.Sanitize(),
		region,
		pgx.Identifier{cfg.Table}.Sanitize(),
		pgx.Identifier{cfg.GeomColumn}.Sanitize(),
	)
}

// BatchLocate implements Matcher.
func (m *PostGISMatcher) BatchLocate(ctx context.Context, points []models.Point) ([]models.EnrichedPoint, error) {
	out := make([]models.EnrichedPoint, len(points))
	if len(points) == 0 {
		return out, nil
	}
	lngs := make([]float64, len(points))
	lats := make([]float64, len(points))
	for i, p := range points {
		out[i] = models.EnrichedPoint{Point: p, Location: &models.Location{City: models.SentinelMunicipality}}
		lngs[i] = p.Longitude
		lats[i] = p.Latitude
	}

	rows, err := m.pool.Query(ctx, m.query, lngs, lats)
	if err != nil {
		return nil, eris.Wrap(err, "spatial: postgis locate")
	}
	defer rows.Close()

	matched := 0
	for rows.Next() {
		var (
			ord                 int64
			name, state, region *string
		)
		if err := rows.Scan(&ord, &name, &state, &region); err != nil {
			return nil, eris.Wrap(err, "spatial: scan postgis row")
		}
		idx := int(ord) - 1
		if idx < 0 || idx >= len(out) || name == nil || *name == "" {
			continue
		}
		out[idx].Location = &models.Location{
			City:    normalizeName(*name),
			State:   normalizeName(deref(state)),
			Region:  deref(region),
			Country: m.cfg.Country,
		}
		matched++
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "spatial: iterate postgis rows")
	}

	m.logger.Debug("postgis batch located",
		zap.Int("points", len(points)),
		zap.Int("unmatched", len(points)-matched))
	return out, nil
}

// Ping checks the database connection.
func (m *PostGISMatcher) Ping(ctx context.Context) error {
	return m.pool.Ping(ctx)
}

// Close releases the pool.
func (m *PostGISMatcher) Close() {
	m.pool.Close()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
