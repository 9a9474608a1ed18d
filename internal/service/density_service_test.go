package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/smartcity/trafficops/internal/domain"
)

func newTestDensity(src DensitySource) (*DensityService, *manualTicker) {
	mt := newManualTicker()
	svc := NewDensityService(src, DensityOptions{
		Interval:   time.Second,
		RiskCutoff: 0.7,
		StaleAfter: time.Minute,
	}, nil)
	svc.poller.newTicker = mt.factory
	return svc, mt
}

func TestDensityRefreshPublishesPairedAnalysis(t *testing.T) {
	src := &fakeDensitySource{rounds: [][]domain.HeatmapPoint{
		{
			{Latitude: 43.25, Longitude: 76.92, VehicleCount: 5, Intensity: 0.2},
			{Latitude: 43.26, Longitude: 76.93, VehicleCount: 7, Intensity: 0.9},
		},
		{
			{Latitude: 43.25, Longitude: 76.92, VehicleCount: 11, Intensity: 0.75},
		},
	}}
	svc, _ := newTestDensity(src)

	var (
		mu   sync.Mutex
		seen []domain.DensitySnapshot
	)
	svc.Subscribe(func(s domain.DensitySnapshot) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	for i := 0; i < 2; i++ {
		if err := svc.Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh %d: %v", i, err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(seen))
	}
	for i, snap := range seen {
		sum := 0
		for _, p := range snap.Points {
			sum += p.VehicleCount
		}
		if snap.Analysis.TotalVehicles != sum {
			t.Errorf("snapshot %d: total %d does not match points sum %d", i, snap.Analysis.TotalVehicles, sum)
		}
		if snap.IsMock {
			t.Errorf("snapshot %d marked as mock", i)
		}
	}
	if got := len(seen[0].Analysis.RiskAreas); got != 1 {
		t.Errorf("expected 1 risk area in first snapshot, got %d", got)
	}
	if got := svc.Analysis().TotalVehicles; got != 11 {
		t.Errorf("Analysis().TotalVehicles = %d, want 11", got)
	}
	if svc.State() != DensityIdle {
		t.Errorf("state = %s, want idle", svc.State())
	}
}

func TestDensityFailureKeepsPreviousSnapshot(t *testing.T) {
	boom := errors.New("connection refused")
	src := &fakeDensitySource{
		rounds: [][]domain.HeatmapPoint{{{Latitude: 1, Longitude: 1, VehicleCount: 3}}},
		errs:   []error{nil, boom},
	}
	svc, _ := newTestDensity(src)

	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("first Refresh: %v", err)
	}
	before, _ := svc.Snapshot()

	if err := svc.Refresh(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	after, ok := svc.Snapshot()
	if !ok || !after.Timestamp.Equal(before.Timestamp) || after.Analysis.TotalVehicles != 3 {
		t.Errorf("snapshot changed after failed refresh: %+v", after)
	}
	if !errors.Is(svc.LastError(), boom) {
		t.Errorf("LastError = %v", svc.LastError())
	}

	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("third Refresh: %v", err)
	}
	if svc.LastError() != nil {
		t.Errorf("LastError not cleared after success: %v", svc.LastError())
	}
}

func TestDensityAuthErrorDoesNotStopTimer(t *testing.T) {
	src := &fakeDensitySource{
		rounds: [][]domain.HeatmapPoint{{{Latitude: 1, Longitude: 1, VehicleCount: 4}}},
		errs:   []error{ErrUnauthorized, ErrMissingAPIKey},
	}
	svc, mt := newTestDensity(src)
	svc.Start(context.Background())
	defer svc.Stop()

	if !waitUntil(func() bool { return src.Calls() == 1 }) {
		t.Fatal("no immediate fetch on start")
	}
	mt.tick()
	if !waitUntil(func() bool { return src.Calls() == 2 }) {
		t.Fatal("timer stopped after auth error")
	}
	if !waitUntil(func() bool { return IsAuthError(svc.LastError()) }) {
		t.Errorf("expected auth error, got %v", svc.LastError())
	}
	if _, ok := svc.Snapshot(); ok {
		t.Error("no snapshot should exist after auth failures")
	}

	mt.tick()
	if !waitUntil(func() bool { _, ok := svc.Snapshot(); return ok }) {
		t.Fatal("expected snapshot after the key was accepted")
	}
	if !svc.Running() {
		t.Error("service stopped running")
	}
}

func TestDensityRestartKeepsSingleTimer(t *testing.T) {
	src := &fakeDensitySource{}
	svc, mt := newTestDensity(src)

	svc.Start(context.Background())
	svc.Start(context.Background())
	if mt.live() != 1 {
		t.Fatalf("expected 1 live timer, got %d", mt.live())
	}
	svc.Stop()
	svc.Start(context.Background())
	if mt.live() != 1 {
		t.Fatalf("expected 1 live timer after restart, got %d", mt.live())
	}
	svc.Stop()
	if mt.live() != 0 {
		t.Fatalf("expected no timers after stop, got %d", mt.live())
	}
}

func TestDensitySanitizesPoints(t *testing.T) {
	src := &fakeDensitySource{rounds: [][]domain.HeatmapPoint{{
		{Latitude: 1, Longitude: 1, VehicleCount: -4, Intensity: 1.7},
		{Latitude: 2, Longitude: 2, VehicleCount: 2, Intensity: math.NaN()},
		{Latitude: math.NaN(), Longitude: 2, VehicleCount: 6, Intensity: -0.3},
	}}}
	svc, _ := newTestDensity(src)
	fixed := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	points := svc.CurrentPoints()
	if len(points) != 3 {
		t.Fatalf("expected malformed points kept, got %d", len(points))
	}
	if points[0].VehicleCount != 0 || points[0].Intensity != 1 {
		t.Errorf("point 0 not clamped: %+v", points[0])
	}
	if points[1].Intensity != 0 || points[2].Intensity != 0 {
		t.Errorf("intensities not clamped: %v %v", points[1].Intensity, points[2].Intensity)
	}
	if !points[0].Timestamp.Equal(fixed) {
		t.Errorf("missing timestamp not filled: %v", points[0].Timestamp)
	}
	if svc.Analysis().TotalVehicles != 8 {
		t.Errorf("TotalVehicles = %d, want 8", svc.Analysis().TotalVehicles)
	}

	points[0].VehicleCount = 1000
	if svc.CurrentPoints()[0].VehicleCount != 0 {
		t.Error("CurrentPoints exposed internal state")
	}
}

func TestDensityStale(t *testing.T) {
	src := &fakeDensitySource{rounds: [][]domain.HeatmapPoint{{}}}
	svc, _ := newTestDensity(src)
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	if svc.Stale() {
		t.Error("absent snapshot reported as stale")
	}
	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if svc.Stale() {
		t.Error("fresh snapshot reported as stale")
	}
	now = now.Add(2 * time.Minute)
	if !svc.Stale() {
		t.Error("old snapshot not reported as stale")
	}
}

func TestDensityEmptyBeforeFirstPublish(t *testing.T) {
	svc, _ := newTestDensity(&fakeDensitySource{})
	if got := svc.CurrentPoints(); got == nil || len(got) != 0 {
		t.Errorf("CurrentPoints = %v, want empty slice", got)
	}
	a := svc.Analysis()
	if a.TotalVehicles != 0 || a.RiskAreas == nil {
		t.Errorf("unexpected empty analysis: %+v", a)
	}
}

func TestSimulatedSourceMarksMock(t *testing.T) {
	src := NewSimulatedSource(42)
	src.now = func() time.Time { return time.Date(2024, 5, 6, 8, 30, 0, 0, time.UTC) } // Monday rush

	svc, _ := newTestDensity(src)
	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	snap, _ := svc.Snapshot()
	if !snap.IsMock {
		t.Error("simulated snapshot not marked as mock")
	}
	if len(snap.Points) < len(almatyHotspots)*5 {
		t.Errorf("expected at least 5 points per hotspot, got %d", len(snap.Points))
	}
	for _, p := range snap.Points {
		if p.Intensity < 0 || p.Intensity > 1 {
			t.Fatalf("intensity out of range: %v", p.Intensity)
		}
		if p.VehicleCount < 0 || p.VehicleCount > maxVehiclesPerPoint {
			t.Fatalf("vehicle count out of range: %d", p.VehicleCount)
		}
		if !p.Position().Valid() {
			t.Fatalf("invalid position %+v", p.Position())
		}
	}
}
