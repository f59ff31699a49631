package models

import "strings"

// SentinelMunicipality marks a point the spatial matcher could not place
// inside any boundary.
const SentinelMunicipality = "N/A"

// Location is the administrative context attached to a hotspot. All fields are
// optional; JSON keys follow the downstream aggregation schema.
type Location struct {
	Type         string `json:"tipo,omitempty"`
	Name         string `json:"nome,omitempty"`
	Address      string `json:"endereco,omitempty"`
	Neighborhood string `json:"bairro,omitempty"`
	City         string `json:"cidade,omitempty"`
	State        string `json:"estado,omitempty"`
	Country      string `json:"pais,omitempty"`
	Postcode     string `json:"cep,omitempty"`
	// Region is the reporting region (Comando Regional) assigned by the
	// spatial matcher. Carried through, never inspected by the pipeline.
	Region string `json:"comandoRegional,omitempty"`
}

// Valid reports whether the location names a city or a state.
func (l *Location) Valid() bool {
	if l == nil {
		return false
	}
	return strings.TrimSpace(l.City) != "" || strings.TrimSpace(l.State) != ""
}

// HasMunicipality reports whether the location carries a usable municipality,
// i.e. a non-empty city that is not the sentinel.
func (l *Location) HasMunicipality() bool {
	if l == nil {
		return false
	}
	city := strings.TrimSpace(l.City)
	return city != "" && city != SentinelMunicipality
}

// Cacheable reports whether the location may be written back to the cache.
// Invalid and sentinel results are never cached so later runs retry them.
func (l *Location) Cacheable() bool {
	return l.Valid() && strings.TrimSpace(l.City) != SentinelMunicipality
}
