package api

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mr1hm/go-hotspot-patrol/internal/geo"
	"github.com/mr1hm/go-hotspot-patrol/internal/models"
)

const geoJSONContentType = "application/geo+json"

// hotspotsToGeoJSON renders each hotspot as a Point at its center. Clients
// draw the radius themselves.
func hotspotsToGeoJSON(clusters []models.ClusterSummary) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	centers := make([]orb.Point, 0, len(clusters))

	for _, c := range clusters {
		p := geo.Point(c.CenterLatitude, c.CenterLongitude)
		centers = append(centers, p)

		f := geojson.NewFeature(p)
		f.Properties["cluster_id"] = c.ClusterID
		f.Properties["count"] = c.MemberCount
		f.Properties["radius_m"] = c.RadiusMeters
		fc.Append(f)
	}

	if len(centers) > 0 {
		fc.BBox = geojson.NewBBox(geo.Bound(centers))
	}
	return fc
}

// sightingsToGeoJSON skips sightings without both coordinates.
func sightingsToGeoJSON(sightings []models.Sighting) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, s := range sightings {
		c, ok := s.Coordinates()
		if !ok {
			continue
		}
		f := geojson.NewFeature(geo.Point(c.Latitude, c.Longitude))
		f.ID = s.ID
		f.Properties["source"] = string(s.Source)
		f.Properties["date"] = formatDate(s.ObservedAt)
		f.Properties["county"] = s.Region
		if s.Note != "" {
			f.Properties["note"] = s.Note
		}
		fc.Append(f)
	}

	return fc
}
