package geo

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// LatIndex answers radius queries over a fixed point set. Points are sorted by
// latitude; any point within r of a query lies within r (as an angle) of its
// latitude, so a binary-searched latitude band bounds the candidates and the
// exact haversine test filters them. The band is valid across the
// antimeridian and at the poles, unlike a lng/lat grid.
type LatIndex struct {
	points []orb.Point
	order  []int     // indices into points, ascending by latitude
	lats   []float64 // latitudes in order
}

func NewLatIndex(points []orb.Point) *LatIndex {
	order := make([]int, len(points))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return points[order[a]].Lat() < points[order[b]].Lat()
	})

	lats := make([]float64, len(order))
	for i, idx := range order {
		lats[i] = points[idx].Lat()
	}

	return &LatIndex{
		points: points,
		order:  order,
		lats:   lats,
	}
}

// Radius appends to dst the indices of every point within radiusRad radians
// of points[i], including i itself, in ascending index order.
func (x *LatIndex) Radius(dst []int, i int, radiusRad float64) []int {
	center := x.points[i]
	// widened slightly so rounding never drops a boundary candidate
	band := radiusRad*180/math.Pi + 1e-9

	lo := sort.SearchFloat64s(x.lats, center.Lat()-band)
	start := len(dst)
	for k := lo; k < len(x.lats) && x.lats[k] <= center.Lat()+band; k++ {
		j := x.order[k]
		if Within(center, x.points[j], radiusRad) {
			dst = append(dst, j)
		}
	}
	sort.Ints(dst[start:])
	return dst
}
