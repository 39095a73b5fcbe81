package cluster

import (
	"math"
	"sort"

	"github.com/paulmach/orb"

	"github.com/mr1hm/go-hotspot-patrol/internal/geo"
	"github.com/mr1hm/go-hotspot-patrol/internal/models"
)

// Summarize builds one summary per cluster label in a, ordered by label.
// Noise and points missing from a are skipped.
//
// The radius is the largest haversine distance from the mean center to a
// member, floored to whole meters. It bounds the members but is not the
// minimal enclosing circle.
func Summarize(points []Point, a Assignment) []models.ClusterSummary {
	members := make(map[int][]orb.Point)
	for _, p := range points {
		label, ok := a[p.ID]
		if !ok || label == Noise {
			continue
		}
		members[label] = append(members[label], geo.Point(p.Lat, p.Lng))
	}

	labels := make([]int, 0, len(members))
	for label := range members {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	summaries := make([]models.ClusterSummary, 0, len(labels))
	for _, label := range labels {
		pts := members[label]
		center := geo.Centroid(pts)

		var maxDist float64
		for _, p := range pts {
			if d := geo.Haversine(center, p); d > maxDist {
				maxDist = d
			}
		}

		summaries = append(summaries, models.ClusterSummary{
			ClusterID:       label,
			MemberCount:     len(pts),
			CenterLatitude:  center.Lat(),
			CenterLongitude: center.Lon(),
			RadiusMeters:    int(math.Floor(maxDist)),
		})
	}

	return summaries
}
