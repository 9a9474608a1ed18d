package service

import (
	"context"
	"sync"
	"time"

	"github.com/smartcity/trafficops/internal/domain"
)

type fakeDensitySource struct {
	mu     sync.Mutex
	rounds [][]domain.HeatmapPoint
	errs   []error
	calls  int
}

func (f *fakeDensitySource) FetchHeatmap(ctx context.Context) ([]domain.HeatmapPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if len(f.rounds) == 0 {
		return nil, nil
	}
	if i >= len(f.rounds) {
		i = len(f.rounds) - 1
	}
	return f.rounds[i], nil
}

func (f *fakeDensitySource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeClosureSource struct {
	mu       sync.Mutex
	closures []domain.LaneClosure
	err      error
	calls    int
}

func (f *fakeClosureSource) FetchLaneClosures(ctx context.Context) ([]domain.LaneClosure, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.closures, nil
}

func (f *fakeClosureSource) set(closures []domain.LaneClosure, err error) {
	f.mu.Lock()
	f.closures, f.err = closures, err
	f.mu.Unlock()
}

type fakeCameraRepo struct {
	mu      sync.Mutex
	cameras []domain.CameraFeed
	err     error
}

func (f *fakeCameraRepo) ListCameras(ctx context.Context) ([]domain.CameraFeed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.CameraFeed(nil), f.cameras...), nil
}

func (f *fakeCameraRepo) Health(ctx context.Context) error { return nil }

// manualTicker replaces time.NewTicker and counts live timers
type manualTicker struct {
	mu      sync.Mutex
	ch      chan time.Time
	created int
	stopped int
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time)}
}

func (m *manualTicker) factory(time.Duration) (<-chan time.Time, func()) {
	m.mu.Lock()
	m.created++
	m.mu.Unlock()
	return m.ch, func() {
		m.mu.Lock()
		m.stopped++
		m.mu.Unlock()
	}
}

func (m *manualTicker) live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created - m.stopped
}

func (m *manualTicker) tick() {
	m.ch <- time.Now()
}

func at(lat, lng float64) *domain.LatLng {
	return &domain.LatLng{Lat: lat, Lng: lng}
}

// waitUntil polls cond for up to two seconds
func waitUntil(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
