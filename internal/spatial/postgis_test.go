package spatial

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/hotspot-location-service/internal/models"
)

func strPtr(s string) *string { return &s }

func TestBuildLocateQuery(t *testing.T) {
	q := buildLocateQuery(PostGISConfig{}.withDefaults())
	assert.Contains(t, q, `unnest($1::float8[], $2::float8[]) WITH ORDINALITY`)
	assert.Contains(t, q, `FROM "municipios" b`)
	assert.Contains(t, q, `ST_Contains(b."geom"`)
	assert.Contains(t, q, `NULL::text AS region`)
	assert.Contains(t, q, `ORDER BY p.ord`)

	q = buildLocateQuery(PostGISConfig{Table: "bad\"name", RegionColumn: "comando_regional"}.withDefaults())
	assert.Contains(t, q, `FROM "bad""name" b`)
	assert.Contains(t, q, `b."comando_regional" AS region`)
}

func TestPostGISMatcher_BatchLocate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	points := []models.Point{
		{Latitude: -15.6, Longitude: -56.1},
		{Latitude: 0, Longitude: 0},
		{Latitude: -15.65, Longitude: -56.15},
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT p.ord, m.name, m.state, m.region")).
		WithArgs([]float64{-56.1, 0, -56.15}, []float64{-15.6, 0, -15.65}).
		WillReturnRows(pgxmock.NewRows([]string{"ord", "name", "state", "region"}).
			AddRow(int64(1), strPtr("Cuiabá"), strPtr("MT"), strPtr("CR I")).
			AddRow(int64(2), (*string)(nil), (*string)(nil), (*string)(nil)).
			AddRow(int64(3), strPtr("Cuiabá"), strPtr("MT"), (*string)(nil)))

	m := NewPostGISMatcher(mock, PostGISConfig{Country: "Brasil"}, nil)
	got, err := m.BatchLocate(context.Background(), points)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, &models.Location{City: "CUIABÁ", State: "MT", Region: "CR I", Country: "Brasil"}, got[0].Location)
	assert.Equal(t, models.SentinelMunicipality, got[1].Location.City)
	assert.Equal(t, "CUIABÁ", got[2].Location.City)
	assert.Equal(t, "", got[2].Location.Region)
	for i := range points {
		assert.Equal(t, points[i], got[i].Point)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGISMatcher_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT p.ord").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("relation does not exist"))

	m := NewPostGISMatcher(mock, PostGISConfig{}, nil)
	_, err = m.BatchLocate(context.Background(), []models.Point{{Latitude: 1, Longitude: 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relation does not exist")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGISMatcher_EmptyBatchSkipsQuery(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	got, err := NewPostGISMatcher(mock, PostGISConfig{}, nil).BatchLocate(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
