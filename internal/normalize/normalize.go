// Package normalize turns per-source raw records into canonical sightings.
//
// Every field is parsed independently. A field that fails to parse, or a
// coordinate outside its valid range, becomes nil on the sighting; the rest
// of the record is kept. Coordinates are never clamped.
package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/mr1hm/go-hotspot-patrol/internal/geo"
	"github.com/mr1hm/go-hotspot-patrol/internal/models"
)

// RawRecord is the uniform shape every source fetcher produces. Values are
// the source's text as received; empty means absent.
type RawRecord struct {
	Date      string `json:"date"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
	Region    string `json:"region"`
	Note      string `json:"note"`
}

// Field names a RawRecord field that was present but rejected.
type Field string

const (
	FieldDate      Field = "date"
	FieldLatitude  Field = "latitude"
	FieldLongitude Field = "longitude"
)

// Normalize converts raw into a sighting from source. It never fails.
func Normalize(raw RawRecord, source models.Source) models.Sighting {
	s, _ := Inspect(raw, source)
	return s
}

// Inspect is Normalize plus the list of fields that were supplied but could
// not be used.
func Inspect(raw RawRecord, source models.Source) (models.Sighting, []Field) {
	var rejected []Field

	s := models.Sighting{
		Source: source,
		Note:   strings.TrimSpace(raw.Note),
	}

	if v := strings.TrimSpace(raw.Date); v != "" {
		if t, ok := parseDate(v); ok {
			s.ObservedAt = &t
		} else {
			rejected = append(rejected, FieldDate)
		}
	}

	if v := strings.TrimSpace(raw.Latitude); v != "" {
		if lat, ok := parseCoordinate(v, geo.ValidLatitude); ok {
			s.Latitude = &lat
		} else {
			rejected = append(rejected, FieldLatitude)
		}
	}

	if v := strings.TrimSpace(raw.Longitude); v != "" {
		if lng, ok := parseCoordinate(v, geo.ValidLongitude); ok {
			s.Longitude = &lng
		} else {
			rejected = append(rejected, FieldLongitude)
		}
	}

	if v := strings.TrimSpace(raw.Region); v != "" {
		s.Region = &v
	}

	return s, rejected
}

func parseCoordinate(v string, valid func(float64) bool) (float64, bool) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsInf(f, 0) || !valid(f) {
		return 0, false
	}
	return f, true
}

// parseDate accepts whatever the sources send (ISO dates, US month-first
// dates, RFC 3339 timestamps) and returns it in UTC.
func parseDate(v string) (time.Time, bool) {
	t, err := dateparse.ParseIn(v, time.UTC)
	if err != nil || t.IsZero() {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// FormatFloat renders a decoded numeric coordinate for a RawRecord.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
