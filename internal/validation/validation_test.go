package validation

import (
	"errors"
	"math"
	"testing"

	"github.com/kjstillabower/hotspot-location-service/internal/models"
)

func TestValidateCoordinates(t *testing.T) {
	tests := []struct {
		name    string
		lat     float64
		lng     float64
		wantErr error
	}{
		{"cuiaba", -15.6, -56.1, nil},
		{"origin", 0, 0, nil},
		{"poles and antimeridian", 90, -180, nil},
		{"south pole", -90, 180, nil},
		{"lat too high", 90.0001, 0, ErrLatitudeOutOfRange},
		{"lat too low", -91, 0, ErrLatitudeOutOfRange},
		{"lng too high", 0, 180.5, ErrLongitudeOutOfRange},
		{"lng too low", 0, -181, ErrLongitudeOutOfRange},
		{"nan", math.NaN(), 0, ErrNotFinite},
		{"inf", 0, math.Inf(1), ErrNotFinite},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateCoordinates(tc.lat, tc.lng)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("ValidateCoordinates(%v, %v) = %v, want %v", tc.lat, tc.lng, err, tc.wantErr)
			}
		})
	}
}

func TestValidatePoints_ReportsIndex(t *testing.T) {
	points := []models.Point{
		{Latitude: -15.6, Longitude: -56.1},
		{Latitude: -15.6, Longitude: -56.1},
		{Latitude: 120, Longitude: -56.1},
	}
	err := ValidatePoints(points, 0)
	var pe *PointError
	if !errors.As(err, &pe) {
		t.Fatalf("ValidatePoints() error = %v, want *PointError", err)
	}
	if pe.Index != 2 {
		t.Errorf("PointError.Index = %d, want 2", pe.Index)
	}
	if !errors.Is(err, ErrLatitudeOutOfRange) {
		t.Errorf("error = %v, want ErrLatitudeOutOfRange", err)
	}
}

func TestValidatePoints_MaxPoints(t *testing.T) {
	points := make([]models.Point, 3)
	if err := ValidatePoints(points, 3); err != nil {
		t.Errorf("ValidatePoints() at limit = %v, want nil", err)
	}
	if err := ValidatePoints(points, 2); !errors.Is(err, ErrTooManyPoints) {
		t.Errorf("ValidatePoints() over limit = %v, want ErrTooManyPoints", err)
	}
	if err := ValidatePoints(nil, 2); err != nil {
		t.Errorf("ValidatePoints(nil) = %v, want nil", err)
	}
}
