// Package cluster groups geolocated sightings into density-based hotspots
// under the great-circle metric and summarizes each hotspot's extent.
//
// Run and Summarize are pure: they read their inputs and return new values.
package cluster

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/mr1hm/go-hotspot-patrol/internal/geo"
)

const (
	DefaultEpsilonMeters = 10000.0
	DefaultMinSamples    = 4

	// Noise labels a point that belongs to no cluster.
	Noise = -1
)

var ErrInvalidParameters = errors.New("invalid clustering parameters")

type Params struct {
	EpsilonMeters float64
	MinSamples    int
}

func DefaultParams() Params {
	return Params{
		EpsilonMeters: DefaultEpsilonMeters,
		MinSamples:    DefaultMinSamples,
	}
}

func (p Params) Validate() error {
	if math.IsNaN(p.EpsilonMeters) || math.IsInf(p.EpsilonMeters, 0) || p.EpsilonMeters <= 0 {
		return fmt.Errorf("%w: epsilon must be a positive distance in meters, got %v", ErrInvalidParameters, p.EpsilonMeters)
	}
	if p.MinSamples < 1 {
		return fmt.Errorf("%w: min samples must be at least 1, got %d", ErrInvalidParameters, p.MinSamples)
	}
	return nil
}

// Point is one engine input. ID is the sighting's storage key.
type Point struct {
	ID  int64
	Lat float64
	Lng float64
}

// Assignment maps each input point's ID to a zero-based cluster label or
// Noise. Labels are dense within one run and carry no meaning across runs.
type Assignment map[int64]int

// Clusters returns the number of distinct labels.
func (a Assignment) Clusters() int {
	n := 0
	for _, label := range a {
		if label+1 > n {
			n = label + 1
		}
	}
	return n
}

// NoiseCount returns the number of unassigned points.
func (a Assignment) NoiseCount() int {
	n := 0
	for _, label := range a {
		if label == Noise {
			n++
		}
	}
	return n
}

const unvisited = -2

// Run clusters points with DBSCAN using haversine distance. Labels follow
// input order: cluster 0 is seeded by the first core point, and a border
// point reachable from two clusters joins the one that reaches it first.
func Run(points []Point, params Params) (Assignment, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	assignment := make(Assignment, len(points))
	if len(points) == 0 {
		return assignment, nil
	}

	coords := make([]orb.Point, len(points))
	for i, p := range points {
		coords[i] = geo.Point(p.Lat, p.Lng)
	}

	labels := make([]int, len(points))
	if len(points) < params.MinSamples {
		for i := range labels {
			labels[i] = Noise
		}
		return toAssignment(assignment, points, labels), nil
	}

	index := geo.NewLatIndex(coords)
	radius := geo.AngularRadius(params.EpsilonMeters)
	for i := range labels {
		labels[i] = unvisited
	}

	var (
		next      int
		neighbors []int
		queue     []int
	)
	for i := range points {
		if labels[i] != unvisited {
			continue
		}

		neighbors = index.Radius(neighbors[:0], i, radius)
		if len(neighbors) < params.MinSamples {
			// may still become a border point of a later cluster
			labels[i] = Noise
			continue
		}

		label := next
		next++
		labels[i] = label

		queue = append(queue[:0], neighbors...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]

			switch labels[j] {
			case Noise:
				labels[j] = label
				continue
			case unvisited:
				labels[j] = label
			default:
				continue
			}

			neighbors = index.Radius(neighbors[:0], j, radius)
			if len(neighbors) >= params.MinSamples {
				queue = append(queue, neighbors...)
			}
		}
	}

	return toAssignment(assignment, points, labels), nil
}

func toAssignment(a Assignment, points []Point, labels []int) Assignment {
	for i, p := range points {
		a[p.ID] = labels[i]
	}
	return a
}
