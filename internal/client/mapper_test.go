package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/hotspot-location-service/internal/models"
)

func TestMapResult_FirstFeature(t *testing.T) {
	loc, err := MapResult([]byte(cuiabaResponse))
	require.NoError(t, err)
	require.NotNil(t, loc)

	assert.Equal(t, models.Location{
		Type:         "street",
		Name:         "Avenida Fernando Corrêa da Costa",
		Address:      "Avenida Fernando Corrêa da Costa, Cuiabá - Mato Grosso, 78060, Brasil",
		Neighborhood: "Boa Esperança",
		City:         "Cuiabá",
		State:        "Mato Grosso",
		Country:      "Brasil",
		Postcode:     "78060",
	}, *loc)
}

func TestMapResult_NoFeatures(t *testing.T) {
	for _, body := range []string{emptyResponse, `{}`, `{"features":null}`} {
		loc, err := MapResult([]byte(body))
		require.NoError(t, err, body)
		assert.Nil(t, loc, body)
	}
}

func TestMapResult_MissingSegments(t *testing.T) {
	tests := []struct {
		name string
		body string
		want models.Location
	}{
		{
			name: "no context",
			body: `{"features":[{"properties":{"name":"Rio Cuiabá","feature_type":"poi"}}]}`,
			want: models.Location{Type: "poi", Name: "Rio Cuiabá"},
		},
		{
			name: "context is not an object",
			body: `{"features":[{"properties":{"context":"n/a","name":"x"}}]}`,
			want: models.Location{Name: "x"},
		},
		{
			name: "place without name",
			body: `{"features":[{"properties":{"context":{"place":{},"region":{"name":"Mato Grosso"}}}}]}`,
			want: models.Location{State: "Mato Grosso"},
		},
		{
			name: "numeric postcode",
			body: `{"features":[{"properties":{"context":{"postcode":{"name":78060}}}}]}`,
			want: models.Location{Postcode: "78060"},
		},
		{
			name: "non-string names",
			body: `{"features":[{"properties":{"name":{"pt":"Cuiabá"},"feature_type":["poi"],"full_address":true,"context":{"place":{"name":null},"region":"MT","country":{"name":"Brasil"}}}}]}`,
			want: models.Location{Address: "true", Country: "Brasil"},
		},
		{
			name: "null segments",
			body: `{"features":[{"properties":{"name":null,"context":{"neighborhood":null,"postcode":{"name":78060.5}}}}]}`,
			want: models.Location{Postcode: "78060.5"},
		},
		{
			name: "no properties",
			body: `{"features":[{}]}`,
			want: models.Location{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := MapResult([]byte(tt.body))
			require.NoError(t, err)
			require.NotNil(t, loc)
			assert.Equal(t, tt.want, *loc)
		})
	}
}

func TestMapResult_InvalidJSON(t *testing.T) {
	_, err := MapResult([]byte(`{"features":[`))
	require.Error(t, err)
	assert.Equal(t, ErrorCategoryParsing, CategorizeError(err))
}
