package client

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/kjstillabower/hotspot-location-service/internal/models"
)

// featureCollection is the part of the provider response the mapper reads.
type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	Properties properties `json:"properties"`
}

type properties struct {
	FeatureType textValue      `json:"feature_type"`
	Name        textValue      `json:"name"`
	FullAddress textValue      `json:"full_address"`
	Context     featureContext `json:"context"`
}

// featureContext holds the administrative hierarchy around a feature. Any
// segment may be absent.
type featureContext struct {
	Neighborhood *namedPart `json:"neighborhood"`
	Place        *namedPart `json:"place"`
	Region       *namedPart `json:"region"`
	Country      *namedPart `json:"country"`
	Postcode     *namedPart `json:"postcode"`
}

type namedPart struct {
	Name textValue `json:"name"`
}

// UnmarshalJSON leaves the context empty when the provider sends something
// other than an object.
func (c *featureContext) UnmarshalJSON(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 || bytes.TrimSpace(data)[0] != '{' {
		*c = featureContext{}
		return nil
	}
	type plain featureContext
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = featureContext(p)
	return nil
}

// UnmarshalJSON leaves the part empty when it is not an object.
func (n *namedPart) UnmarshalJSON(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 || bytes.TrimSpace(data)[0] != '{' {
		*n = namedPart{}
		return nil
	}
	type plain namedPart
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*n = namedPart(p)
	return nil
}

// textValue accepts strings, numbers and booleans. Other shapes decode as "".
type textValue string

func (v *textValue) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case string:
		*v = textValue(t)
	case json.Number:
		*v = textValue(t.String())
	case bool:
		if t {
			*v = "true"
		} else {
			*v = "false"
		}
	default:
		*v = ""
	}
	return nil
}

func (n *namedPart) text() string {
	if n == nil {
		return ""
	}
	return string(n.Name)
}

// MapResult maps the first feature of a provider response to a Location.
// It returns nil without error when the response has no features.
func MapResult(raw []byte) (*models.Location, error) {
	var fc featureCollection
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, eris.Wrap(err, "parse provider response")
	}
	if len(fc.Features) == 0 {
		return nil, nil
	}

	props := fc.Features[0].Properties
	return &models.Location{
		Type:         string(props.FeatureType),
		Name:         string(props.Name),
		Address:      string(props.FullAddress),
		Neighborhood: props.Context.Neighborhood.text(),
		City:         props.Context.Place.text(),
		State:        props.Context.Region.text(),
		Country:      props.Context.Country.text(),
		Postcode:     props.Context.Postcode.text(),
	}, nil
}
