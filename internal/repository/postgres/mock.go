package postgres

import (
	"context"
	"sync"

	"github.com/smartcity/trafficops/internal/domain"
)

// MockRepository implements domain.CameraRepository in memory for demo mode
type MockRepository struct {
	mu      sync.RWMutex
	cameras []domain.CameraFeed
}

// NewMockRepository creates an in-memory registry. Without cameras it is
// seeded with the demo set.
func NewMockRepository(cameras ...domain.CameraFeed) *MockRepository {
	if len(cameras) == 0 {
		cameras = demoCameras()
	}
	r := &MockRepository{}
	r.Replace(cameras)
	return r
}

// ListCameras returns a copy of the registry
func (r *MockRepository) ListCameras(ctx context.Context) ([]domain.CameraFeed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.CameraFeed, len(r.cameras))
	copy(out, r.cameras)
	return out, nil
}

// Replace swaps the registry contents
func (r *MockRepository) Replace(cameras []domain.CameraFeed) {
	list := make([]domain.CameraFeed, len(cameras))
	copy(list, cameras)
	r.mu.Lock()
	r.cameras = list
	r.mu.Unlock()
}

// Health always returns nil in mock mode
func (r *MockRepository) Health(ctx context.Context) error {
	return nil
}

func demoCameras() []domain.CameraFeed {
	at := func(lat, lng float64) *domain.LatLng { return &domain.LatLng{Lat: lat, Lng: lng} }
	return []domain.CameraFeed{
		{ID: "cam-001", Name: "Al-Farabi / Dostyk", Location: at(43.2567, 76.9286), Status: domain.CameraOnline},
		{ID: "cam-002", Name: "Mega Center", Location: at(43.2380, 76.9450), Status: domain.CameraOnline},
		{ID: "cam-003", Name: "Baraholka Market", Location: at(43.2220, 76.8510), Status: domain.CameraOnline},
		{ID: "cam-004", Name: "City Center", Location: at(43.2389, 76.8897), Status: domain.CameraOnline},
		{ID: "cam-005", Name: "Airport Road", Location: at(43.2150, 76.9200), Status: domain.CameraOffline},
		{ID: "cam-006", Name: "Almaty-1 Station", Location: at(43.2800, 76.8800), Status: domain.CameraLoading},
		{ID: "cam-007", Name: "Medeu Road (unplaced)", Status: domain.CameraOffline},
	}
}
