package models

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// LocationField is the key under which the resolved location is attached to
// an enriched record.
const LocationField = "localizacao"

// ErrMissingCoordinates is returned when a record lacks latitude or longitude.
var ErrMissingCoordinates = errors.New("record missing latitude/longitude")

// Point is a hotspot detection. Payload holds the original record and is
// carried through the pipeline untouched.
type Point struct {
	Latitude  float64
	Longitude float64
	Payload   map[string]any
}

// EnrichedPoint is a Point with the resolved location attached. A nil
// Location means the point could not be resolved.
type EnrichedPoint struct {
	Point
	Location *Location
}

// PointFromRecord builds a Point from a decoded JSON object. latitude and
// longitude may be JSON numbers or numeric strings.
func PointFromRecord(record map[string]any) (Point, error) {
	lat, okLat := coordinate(record["latitude"])
	lng, okLng := coordinate(record["longitude"])
	if !okLat || !okLng {
		return Point{}, ErrMissingCoordinates
	}
	return Point{Latitude: lat, Longitude: lng, Payload: record}, nil
}

// UnmarshalJSON decodes a hotspot record, keeping every field as payload.
func (p *Point) UnmarshalJSON(data []byte) error {
	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		return eris.Wrap(err, "decode point")
	}
	pt, err := PointFromRecord(record)
	if err != nil {
		return err
	}
	*p = pt
	return nil
}

// MarshalJSON emits the original payload plus the localizacao field
// (null when unresolved).
func (e EnrichedPoint) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Payload)+3)
	for k, v := range e.Payload {
		out[k] = v
	}
	if _, ok := out["latitude"]; !ok {
		out["latitude"] = e.Latitude
	}
	if _, ok := out["longitude"]; !ok {
		out["longitude"] = e.Longitude
	}
	if e.Location != nil {
		out[LocationField] = e.Location
	} else {
		out[LocationField] = nil
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a previously enriched record. The localizacao field is
// lifted out of the payload into Location.
func (e *EnrichedPoint) UnmarshalJSON(data []byte) error {
	var record map[string]json.RawMessage
	if err := json.Unmarshal(data, &record); err != nil {
		return eris.Wrap(err, "decode enriched point")
	}

	var loc *Location
	if raw, ok := record[LocationField]; ok {
		if err := json.Unmarshal(raw, &loc); err != nil {
			return eris.Wrapf(err, "decode %s", LocationField)
		}
		delete(record, LocationField)
	}

	stripped, err := json.Marshal(record)
	if err != nil {
		return err
	}
	var pt Point
	if err := json.Unmarshal(stripped, &pt); err != nil {
		return err
	}
	*e = EnrichedPoint{Point: pt, Location: loc}
	return nil
}

func coordinate(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
