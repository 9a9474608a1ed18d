package domain

import (
	"math"
	"time"
)

// LatLng is a WGS84 coordinate pair in degrees
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinate can take part in spatial matching
func (p LatLng) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// HeatmapPoint represents a single traffic-density sample
type HeatmapPoint struct {
	Latitude     float64   `json:"lat"`
	Longitude    float64   `json:"lon"`
	VehicleCount int       `json:"vehicle_count"`
	Intensity    float64   `json:"intensity"` // normalized 0-1
	Timestamp    time.Time `json:"timestamp"`
}

// Position returns the point coordinates
func (p HeatmapPoint) Position() LatLng {
	return LatLng{Lat: p.Latitude, Lng: p.Longitude}
}

// TrafficDensityAnalysis is derived from exactly one point set
type TrafficDensityAnalysis struct {
	TotalVehicles int            `json:"total_vehicles"`
	RiskAreas     []HeatmapPoint `json:"risk_areas"`
	PeakIntensity float64        `json:"peak_intensity"`
}

// DensitySnapshot pairs a point set with the analysis computed from it.
// Published as one value; never mutated after publication.
type DensitySnapshot struct {
	Points    []HeatmapPoint         `json:"points"`
	Analysis  TrafficDensityAnalysis `json:"analysis"`
	Timestamp time.Time              `json:"timestamp"`
	IsMock    bool                   `json:"is_mock"`
}

// AnalyzeDensity computes the analysis for a point set.
// Points with intensity strictly above riskCutoff are risk areas.
func AnalyzeDensity(points []HeatmapPoint, riskCutoff float64) TrafficDensityAnalysis {
	analysis := TrafficDensityAnalysis{RiskAreas: []HeatmapPoint{}}
	for i, p := range points {
		analysis.TotalVehicles += p.VehicleCount
		if i == 0 || p.Intensity > analysis.PeakIntensity {
			analysis.PeakIntensity = p.Intensity
		}
		if p.Intensity > riskCutoff {
			analysis.RiskAreas = append(analysis.RiskAreas, p)
		}
	}
	return analysis
}

// IsStale reports whether the snapshot is older than maxAge at now.
// A snapshot that was never produced is not stale, it is absent.
func IsStale(produced time.Time, maxAge time.Duration, now time.Time) bool {
	if produced.IsZero() || maxAge <= 0 {
		return false
	}
	return now.Sub(produced) > maxAge
}
