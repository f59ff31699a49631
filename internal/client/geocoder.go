package client

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"

	"github.com/kjstillabower/hotspot-location-service/internal/models"
)

const (
	DefaultReversePath = "/search/geocode/v6/reverse"
	DefaultLanguage    = "pt-BR"
)

// ReverseGeocoder resolves a coordinate through a Provider and maps the
// response with MapResult.
type ReverseGeocoder struct {
	provider Provider
	path     string
	language string
}

// NewReverseGeocoder returns a geocoder for provider. An empty path or
// language falls back to the defaults; an unparseable language tag is an error.
func NewReverseGeocoder(provider Provider, path, lang string) (*ReverseGeocoder, error) {
	if provider == nil {
		return nil, eris.New("provider is required")
	}
	if path == "" {
		path = DefaultReversePath
	}
	if lang == "" {
		lang = DefaultLanguage
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid provider language %q", lang)
	}
	return &ReverseGeocoder{provider: provider, path: path, language: tag.String()}, nil
}

// Language returns the canonical BCP 47 tag sent to the provider.
func (g *ReverseGeocoder) Language() string {
	return g.language
}

// Reverse performs one lookup. The returned location is nil when the provider
// found no feature; raw is the provider body as received.
func (g *ReverseGeocoder) Reverse(ctx context.Context, lat, lng float64) (*models.Location, json.RawMessage, error) {
	body, err := g.provider.Get(ctx, g.path, Params{Latitude: lat, Longitude: lng, Language: g.language})
	if err != nil {
		return nil, nil, err
	}
	loc, err := MapResult(body)
	if err != nil {
		return nil, nil, err
	}
	return loc, json.RawMessage(body), nil
}
