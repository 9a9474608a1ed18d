package domain

import (
	"math"
	"testing"
	"time"
)

func TestLatLngValid(t *testing.T) {
	tests := []struct {
		name string
		p    LatLng
		want bool
	}{
		{"origin", LatLng{0, 0}, true},
		{"corners", LatLng{-90, 180}, true},
		{"lat too high", LatLng{90.1, 0}, false},
		{"lng too low", LatLng{0, -180.5}, false},
		{"nan", LatLng{math.NaN(), 0}, false},
		{"inf", LatLng{0, math.Inf(1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAnalyzeDensity(t *testing.T) {
	points := []HeatmapPoint{
		{VehicleCount: 4, Intensity: 0.3},
		{VehicleCount: 10, Intensity: 0.7},
		{VehicleCount: 6, Intensity: 0.95},
	}
	a := AnalyzeDensity(points, 0.7)
	if a.TotalVehicles != 20 {
		t.Errorf("TotalVehicles = %d", a.TotalVehicles)
	}
	// the cutoff itself is not a risk
	if len(a.RiskAreas) != 1 || a.RiskAreas[0].VehicleCount != 6 {
		t.Errorf("RiskAreas = %+v", a.RiskAreas)
	}
	if a.PeakIntensity != 0.95 {
		t.Errorf("PeakIntensity = %v", a.PeakIntensity)
	}

	empty := AnalyzeDensity(nil, 0.7)
	if empty.TotalVehicles != 0 || empty.RiskAreas == nil || len(empty.RiskAreas) != 0 {
		t.Errorf("empty analysis = %+v", empty)
	}
}

func TestAnalyzeClosures(t *testing.T) {
	a := AnalyzeClosures([]LaneClosure{
		{Status: StatusActive, Severity: SeverityHigh},
		{Status: StatusActive, Severity: SeverityLow},
		{Status: StatusUpcoming, Severity: SeverityHigh},
		{Status: StatusCompleted, Severity: SeverityHigh},
	})
	want := LaneClosureAnalysis{ActiveClosures: 2, HighSeverityClosures: 3, UpcomingClosures: 1}
	if a != want {
		t.Errorf("AnalyzeClosures = %+v, want %+v", a, want)
	}
}

func TestDeriveStatus(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	before, after := now.Add(-time.Hour), now.Add(time.Hour)

	tests := []struct {
		name   string
		starts *time.Time
		ends   *time.Time
		want   ClosureStatus
	}{
		{"no window", nil, nil, StatusActive},
		{"in window", &before, &after, StatusActive},
		{"not started", &after, nil, StatusUpcoming},
		{"ended", nil, &before, StatusCompleted},
		{"starts now", &now, nil, StatusActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := LaneClosure{StartsAt: tt.starts, EndsAt: tt.ends}
			if got := c.DeriveStatus(now); got != tt.want {
				t.Errorf("DeriveStatus = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseFilters(t *testing.T) {
	if s, ok := ParseClosureStatus("upcoming"); !ok || s != StatusUpcoming {
		t.Errorf("ParseClosureStatus(upcoming) = %q %v", s, ok)
	}
	if _, ok := ParseClosureStatus("Active"); ok {
		t.Error("status parsing should be exact")
	}
	if s, ok := ParseClosureSeverity("high"); !ok || s != SeverityHigh {
		t.Errorf("ParseClosureSeverity(high) = %q %v", s, ok)
	}
	if _, ok := ParseClosureSeverity("critical"); ok {
		t.Error("unknown severity accepted")
	}
}

func TestIsStale(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if IsStale(time.Time{}, time.Minute, now) {
		t.Error("zero time reported stale")
	}
	if IsStale(now.Add(-time.Minute), time.Minute, now) {
		t.Error("exactly max age reported stale")
	}
	if !IsStale(now.Add(-61*time.Second), time.Minute, now) {
		t.Error("older than max age not stale")
	}
	if IsStale(now.Add(-time.Hour), 0, now) {
		t.Error("disabled max age reported stale")
	}
}

func TestViewportBoundsValid(t *testing.T) {
	ok := ViewportBounds{SouthWest: LatLng{1, 170}, NorthEast: LatLng{2, -170}}
	if !ok.Valid() {
		t.Error("antimeridian viewport rejected")
	}
	inverted := ViewportBounds{SouthWest: LatLng{3, 0}, NorthEast: LatLng{2, 1}}
	if inverted.Valid() {
		t.Error("inverted latitude accepted")
	}
}
