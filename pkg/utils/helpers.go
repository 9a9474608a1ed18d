// Package utils holds small numeric helpers shared by the density pipeline.
package utils

import (
	"cmp"
	"math"

	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean Earth radius
const EarthRadiusMeters = 6371008.8

// DistanceMeters returns the great-circle distance between two coordinates
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	a := s2.LatLngFromDegrees(lat1, lng1)
	b := s2.LatLngFromDegrees(lat2, lng2)
	return a.Distance(b).Radians() * EarthRadiusMeters
}

// Clamp limits v to [lo, hi]
func Clamp[T cmp.Ordered](v, lo, hi T) T {
	return max(lo, min(v, hi))
}

// Unit clamps an intensity-like value to [0, 1]. NaN becomes 0.
func Unit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return Clamp(v, 0, 1)
}

// Weight maps a count onto [0, 1] relative to the largest count of a set.
// A non-positive peak gives 0.
func Weight(count, peak int) float64 {
	if peak <= 0 {
		return 0
	}
	return Unit(float64(count) / float64(peak))
}

// RoundTo rounds v to places decimals
func RoundTo(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}

// Lerp interpolates between a and b; t is not clamped
func Lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}
