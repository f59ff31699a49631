package spatial

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// IBGE municipality mesh attribute names.
const (
	DefaultNameField  = "NM_MUN"
	DefaultStateField = "SIGLA_UF"
)

// LoadOptions names the attributes read from each boundary record. Empty
// fields fall back to the IBGE defaults; an empty RegionField skips region.
type LoadOptions struct {
	NameField   string
	StateField  string
	RegionField string
	// Country is stamped on every boundary when set.
	Country string
}

func (o LoadOptions) withDefaults() LoadOptions {
	if o.NameField == "" {
		o.NameField = DefaultNameField
	}
	if o.StateField == "" {
		o.StateField = DefaultStateField
	}
	return o
}

// Load picks the loader by file extension (.shp, .geojson or .json).
func Load(path string, opts LoadOptions, logger *zap.Logger) ([]Boundary, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return LoadShapefile(path, opts, logger)
	case ".geojson", ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "spatial: open %s", path)
		}
		defer f.Close()
		return LoadGeoJSON(f, opts)
	default:
		return nil, eris.Errorf("spatial: unsupported boundary file %q", path)
	}
}

// LoadShapefile reads polygon shapes and their DBF attributes. Rings wound
// counter-clockwise are holes of the preceding outer ring.
func LoadShapefile(path string, opts LoadOptions, logger *zap.Logger) ([]Boundary, error) {
	opts = opts.withDefaults()
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "spatial: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fieldIdx := make(map[string]int)
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToUpper(name)] = i
	}
	attr := func(field string) string {
		if field == "" {
			return ""
		}
		idx, ok := fieldIdx[strings.ToUpper(field)]
		if !ok {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
	}
	if _, ok := fieldIdx[strings.ToUpper(opts.NameField)]; !ok {
		return nil, eris.Errorf("spatial: shapefile %s has no %s field", path, opts.NameField)
	}

	var out []Boundary
	skipped := 0
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil {
			skipped++
			continue
		}
		polygons := shapePolygons(poly)
		if len(polygons) == 0 {
			skipped++
			continue
		}
		out = append(out, NewBoundary(
			normalizeName(attr(opts.NameField)),
			normalizeName(attr(opts.StateField)),
			attr(opts.RegionField),
			opts.Country,
			polygons...,
		))
	}
	if skipped > 0 && logger != nil {
		logger.Debug("spatial: skipped shapefile records", zap.String("path", path), zap.Int("skipped", skipped))
	}
	return out, nil
}

func shapePolygons(p *shp.Polygon) []*geom.Polygon {
	var polygons []*geom.Polygon
	var current *geom.Polygon
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 4 {
			continue
		}
		flat := make([]float64, 0, 2*(end-start))
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)

		if current != nil && xy.IsRingCounterClockwise(geom.XY, flat) {
			if err := current.Push(ring); err == nil {
				continue
			}
		}
		current = geom.NewPolygon(geom.XY)
		if err := current.Push(ring); err != nil {
			current = nil
			continue
		}
		polygons = append(polygons, current)
	}
	return polygons
}

// LoadGeoJSON reads a FeatureCollection of Polygon or MultiPolygon features.
// Features with other geometries are skipped.
func LoadGeoJSON(r io.Reader, opts LoadOptions) ([]Boundary, error) {
	opts = opts.withDefaults()
	var fc geojson.FeatureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, eris.Wrap(err, "spatial: decode geojson")
	}

	out := make([]Boundary, 0, len(fc.Features))
	for _, f := range fc.Features {
		var polygons []*geom.Polygon
		switch g := f.Geometry.(type) {
		case *geom.Polygon:
			polygons = []*geom.Polygon{g}
		case *geom.MultiPolygon:
			for i := 0; i < g.NumPolygons(); i++ {
				polygons = append(polygons, g.Polygon(i))
			}
		default:
			continue
		}
		out = append(out, NewBoundary(
			normalizeName(stringProperty(f.Properties, opts.NameField)),
			normalizeName(stringProperty(f.Properties, opts.StateField)),
			stringProperty(f.Properties, opts.RegionField),
			opts.Country,
			polygons...,
		))
	}
	return out, nil
}

func stringProperty(props map[string]interface{}, key string) string {
	if key == "" {
		return ""
	}
	if v, ok := props[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// normalizeName uppercases with Portuguese casing rules so names compare
// equal to the provider's and the downstream reports' spelling.
func normalizeName(s string) string {
	return cases.Upper(language.BrazilianPortuguese).String(strings.TrimSpace(s))
}
