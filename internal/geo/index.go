package geo

import (
	"math"

	"github.com/mmcloughlin/geohash"

	"github.com/smartcity/trafficops/internal/domain"
)

const maxHashBits = 52

// PointIndex buckets heatmap points by integer geohash so a nearest lookup
// only inspects the cell of the query and its eight neighbours. The precision
// is chosen so a cell is at least tolerance wide in both axes, which keeps
// every in-range point inside that 3x3 block.
type PointIndex struct {
	points    []domain.HeatmapPoint
	tolerance float64
	bits      uint
	cells     map[uint64][]int
}

// NewPointIndex builds an index over points. Points with invalid coordinates
// are left out.
func NewPointIndex(points []domain.HeatmapPoint, tolerance float64) *PointIndex {
	idx := &PointIndex{
		points:    points,
		tolerance: tolerance,
		bits:      bitsForTolerance(tolerance),
		cells:     make(map[uint64][]int),
	}
	if idx.bits == 0 {
		return idx
	}
	for i, p := range points {
		pos := p.Position()
		if !pos.Valid() {
			continue
		}
		h := geohash.EncodeIntWithPrecision(pos.Lat, pos.Lng, idx.bits)
		idx.cells[h] = append(idx.cells[h], i)
	}
	return idx
}

// Nearest behaves like the package-level Nearest over the indexed points
func (idx *PointIndex) Nearest(at domain.LatLng) (int, bool) {
	if !at.Valid() {
		return -1, false
	}
	if idx.bits == 0 {
		return Nearest(at, idx.points, idx.tolerance)
	}

	h := geohash.EncodeIntWithPrecision(at.Lat, at.Lng, idx.bits)
	cells := append([]uint64{h}, geohash.NeighborsIntWithPrecision(h, idx.bits)...)

	best, bestDist := -1, math.Inf(1)
	visited := make(map[uint64]bool, len(cells))
	for _, c := range cells {
		if visited[c] {
			continue
		}
		visited[c] = true
		for _, i := range idx.cells[c] {
			d := DegreeDistance(at, idx.points[i].Position())
			if d > idx.tolerance {
				continue
			}
			if d < bestDist || (d == bestDist && i < best) {
				best, bestDist = i, d
			}
		}
	}
	return best, best >= 0
}

// bitsForTolerance returns the largest geohash bit depth whose cells span at
// least tolerance degrees in latitude and longitude. Zero means the tolerance
// is too wide to benefit from bucketing.
func bitsForTolerance(tolerance float64) uint {
	if tolerance <= 0 || math.IsNaN(tolerance) {
		return maxHashBits
	}
	for bits := uint(maxHashBits); bits >= 2; bits-- {
		latSpan := 180 / math.Pow(2, float64(bits/2))
		lngSpan := 360 / math.Pow(2, float64(bits-bits/2))
		if latSpan >= tolerance && lngSpan >= tolerance {
			return bits
		}
	}
	return 0
}
