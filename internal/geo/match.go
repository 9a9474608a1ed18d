// Package geo matches cameras against traffic samples and viewports.
//
// Distances used for matching are Euclidean in degree space. One degree of
// longitude shrinks with latitude, so the effective tolerance is narrower
// east-west than north-south away from the equator.
package geo

import (
	"math"

	"github.com/smartcity/trafficops/internal/domain"
	"github.com/smartcity/trafficops/pkg/utils"
)

// DefaultTolerance is the match radius in degrees (~100m north-south)
const DefaultTolerance = 0.001

// Match is the nearest heatmap point found for a camera
type Match struct {
	CameraID       string  `json:"camera_id"`
	PointIndex     int     `json:"point_index"`
	VehicleCount   int     `json:"vehicle_count"`
	Distance       float64 `json:"distance_deg"`
	DistanceMeters float64 `json:"distance_m"`
}

// DegreeDistance is the Euclidean distance between a and b in degrees
func DegreeDistance(a, b domain.LatLng) float64 {
	return math.Hypot(a.Lat-b.Lat, a.Lng-b.Lng)
}

// Nearest returns the index of the point closest to at whose distance does not
// exceed tolerance. Ties go to the lower index. Invalid points are skipped.
func Nearest(at domain.LatLng, points []domain.HeatmapPoint, tolerance float64) (int, bool) {
	if !at.Valid() {
		return -1, false
	}
	best, bestDist := -1, math.Inf(1)
	for i, p := range points {
		pos := p.Position()
		if !pos.Valid() {
			continue
		}
		d := DegreeDistance(at, pos)
		if d <= tolerance && d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, best >= 0
}

// CorrelateVehicleCount sums, for every camera, the vehicle count of its
// nearest point within tolerance. Cameras without a location or without a
// point in range contribute zero; several cameras may share one point.
func CorrelateVehicleCount(cameras []domain.CameraFeed, points []domain.HeatmapPoint, tolerance float64) int {
	total := 0
	for _, m := range MatchCameras(cameras, points, tolerance) {
		total += m.VehicleCount
	}
	return total
}

// MatchCameras returns one Match per camera that has a point within tolerance
func MatchCameras(cameras []domain.CameraFeed, points []domain.HeatmapPoint, tolerance float64) []Match {
	if len(cameras) == 0 || len(points) == 0 {
		return nil
	}
	idx := NewPointIndex(points, tolerance)

	matches := make([]Match, 0, len(cameras))
	for _, cam := range cameras {
		if cam.Location == nil {
			continue
		}
		i, ok := idx.Nearest(*cam.Location)
		if !ok {
			continue
		}
		p := points[i]
		matches = append(matches, Match{
			CameraID:       cam.ID,
			PointIndex:     i,
			VehicleCount:   p.VehicleCount,
			Distance:       DegreeDistance(*cam.Location, p.Position()),
			DistanceMeters: utils.DistanceMeters(cam.Location.Lat, cam.Location.Lng, p.Latitude, p.Longitude),
		})
	}
	return matches
}
