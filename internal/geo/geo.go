// Package geo holds the spherical helpers shared by the clustering engine and
// the summarizer. Points are orb.Point values, which store longitude first.
package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// EarthRadiusMeters is the mean Earth radius used for every geodesic
// computation in this module.
const EarthRadiusMeters = 6371000.0

func Point(lat, lng float64) orb.Point {
	return orb.Point{lng, lat}
}

func ValidLatitude(lat float64) bool {
	return !math.IsNaN(lat) && lat >= -90 && lat <= 90
}

func ValidLongitude(lng float64) bool {
	return !math.IsNaN(lng) && lng >= -180 && lng <= 180
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Haversine returns the great-circle distance between a and b in meters.
func Haversine(a, b orb.Point) float64 {
	return EarthRadiusMeters * angularDistance(a, b)
}

// angularDistance is the central angle between a and b in radians.
func angularDistance(a, b orb.Point) float64 {
	lat1, lat2 := radians(a.Lat()), radians(b.Lat())
	dLat := lat2 - lat1
	dLng := radians(b.Lon() - a.Lon())

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// rounding can push h a hair past 1 for antipodal points
	h = math.Min(1, math.Max(0, h))
	return 2 * math.Asin(math.Sqrt(h))
}

// AngularRadius converts a distance in meters to radians on the sphere.
func AngularRadius(meters float64) float64 {
	return meters / EarthRadiusMeters
}

// Within reports whether b lies within radiusRad (radians) of a.
func Within(a, b orb.Point, radiusRad float64) bool {
	return angularDistance(a, b) <= radiusRad
}

// Centroid returns the arithmetic mean of the latitudes and of the longitudes.
// It is not the spherical centroid; that difference only matters near the
// poles or across the antimeridian.
func Centroid(points []orb.Point) orb.Point {
	if len(points) == 0 {
		return orb.Point{}
	}
	var sumLat, sumLng float64
	for _, p := range points {
		sumLat += p.Lat()
		sumLng += p.Lon()
	}
	n := float64(len(points))
	return Point(sumLat/n, sumLng/n)
}

// Bound returns the lat/lng bounding box of points.
func Bound(points []orb.Point) orb.Bound {
	return orb.MultiPoint(points).Bound()
}
