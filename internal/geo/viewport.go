package geo

import (
	"github.com/golang/geo/r1"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"

	"github.com/smartcity/trafficops/internal/domain"
)

// Rect converts viewport bounds into an s2 rectangle. A south-west longitude
// greater than the north-east one yields a rectangle that wraps the antimeridian.
func Rect(b domain.ViewportBounds) s2.Rect {
	return s2.Rect{
		Lat: r1.Interval{Lo: radians(b.SouthWest.Lat), Hi: radians(b.NorthEast.Lat)},
		Lng: s1.IntervalFromEndpoints(radians(b.SouthWest.Lng), radians(b.NorthEast.Lng)),
	}
}

// radians converts the same way s2.LatLngFromDegrees does so edges compare exactly
func radians(deg float64) float64 {
	return (s1.Angle(deg) * s1.Degree).Radians()
}

// Contains reports whether p lies within b, edges included
func Contains(b domain.ViewportBounds, p domain.LatLng) bool {
	if !b.Valid() || !p.Valid() {
		return false
	}
	return Rect(b).ContainsLatLng(s2.LatLngFromDegrees(p.Lat, p.Lng))
}

// ComputeVisible returns the cameras whose location lies within bounds, in
// input order. Nil or invalid bounds and cameras without a valid location
// produce no match.
func ComputeVisible(bounds *domain.ViewportBounds, cameras []domain.CameraFeed) []domain.CameraFeed {
	visible := []domain.CameraFeed{}
	if bounds == nil || !bounds.Valid() {
		return visible
	}
	rect := Rect(*bounds)
	for _, cam := range cameras {
		if cam.Location == nil || !cam.Location.Valid() {
			continue
		}
		if rect.ContainsLatLng(s2.LatLngFromDegrees(cam.Location.Lat, cam.Location.Lng)) {
			visible = append(visible, cam)
		}
	}
	return visible
}
