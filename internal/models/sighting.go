package models

import (
	"fmt"
	"strings"
	"time"
)

type Source string

const (
	SourceEDDMapS     Source = "EDDMapS"
	SourceNAS         Source = "NAS"
	SourceINaturalist Source = "iNaturalist"
	SourceManual      Source = "Manual"
)

// ParseSource accepts the canonical names case-insensitively, plus the
// "USGS_NAS" spelling older rows were stored under.
func ParseSource(s string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "eddmaps":
		return SourceEDDMapS, nil
	case "nas", "usgs_nas":
		return SourceNAS, nil
	case "inaturalist":
		return SourceINaturalist, nil
	case "manual":
		return SourceManual, nil
	default:
		return "", fmt.Errorf("unknown source %q", s)
	}
}

type Sighting struct {
	ID         int64      // storage key, assigned by the store
	Source     Source
	ObservedAt *time.Time // nil when the source date was missing or unparseable
	Latitude   *float64
	Longitude  *float64
	Region     *string // county or free-form place name
	Note       string
	CreatedAt  time.Time // when we ingested it
}

// Geolocated reports whether both coordinates are present. Only geolocated
// sightings take part in clustering.
func (s *Sighting) Geolocated() bool {
	return s.Latitude != nil && s.Longitude != nil
}

type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Coordinates returns the point and false when the sighting is not geolocated.
func (s *Sighting) Coordinates() (Coordinates, bool) {
	if !s.Geolocated() {
		return Coordinates{}, false
	}
	return Coordinates{
		Latitude:  *s.Latitude,
		Longitude: *s.Longitude,
	}, true
}
