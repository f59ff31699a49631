// Package validation checks hotspot coordinates before they enter the
// enrichment pipeline.
package validation

import (
	"errors"
	"fmt"
	"math"

	"github.com/kjstillabower/hotspot-location-service/internal/models"
)

var (
	// ErrLatitudeOutOfRange is returned when latitude is outside [-90, 90].
	ErrLatitudeOutOfRange = errors.New("latitude out of range")

	// ErrLongitudeOutOfRange is returned when longitude is outside [-180, 180].
	ErrLongitudeOutOfRange = errors.New("longitude out of range")

	// ErrNotFinite is returned for NaN or infinite coordinates.
	ErrNotFinite = errors.New("coordinate is not a finite number")

	// ErrTooManyPoints is returned when a batch exceeds the configured maximum.
	ErrTooManyPoints = errors.New("too many points")
)

// PointError ties a validation failure to the index of the offending record.
type PointError struct {
	Index int
	Err   error
}

func (e *PointError) Error() string {
	return fmt.Sprintf("point %d: %v", e.Index, e.Err)
}

func (e *PointError) Unwrap() error {
	return e.Err
}

// ValidateCoordinates checks that lat/lng are finite and inside WGS84 bounds.
func ValidateCoordinates(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return ErrNotFinite
	}
	if lat < -90 || lat > 90 {
		return ErrLatitudeOutOfRange
	}
	if lng < -180 || lng > 180 {
		return ErrLongitudeOutOfRange
	}
	return nil
}

// ValidatePoints checks every point and the batch size. maxPoints <= 0
// disables the size check. The first failure is returned as *PointError.
func ValidatePoints(points []models.Point, maxPoints int) error {
	if maxPoints > 0 && len(points) > maxPoints {
		return fmt.Errorf("%w: %d > %d", ErrTooManyPoints, len(points), maxPoints)
	}
	for i, p := range points {
		if err := ValidateCoordinates(p.Latitude, p.Longitude); err != nil {
			return &PointError{Index: i, Err: err}
		}
	}
	return nil
}
