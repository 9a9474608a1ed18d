package service

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/smartcity/trafficops/internal/domain"
	"github.com/smartcity/trafficops/pkg/utils"
)

// maxVehiclesPerPoint is the vehicle count of a fully congested sample
const maxVehiclesPerPoint = 40

type hotspot struct {
	lat, lon float64
	name     string
	weight   float64
}

// Key areas in Almaty with higher traffic
var almatyHotspots = []hotspot{
	{43.2567, 76.9286, "Al-Farabi/Dostyk", 1.2},
	{43.2380, 76.9450, "Mega Center", 1.1},
	{43.2700, 76.9500, "Alatau", 0.9},
	{43.2220, 76.8510, "Baraholka", 1.3},
	{43.2389, 76.8897, "City Center", 1.0},
	{43.2600, 76.9100, "Medeu Direction", 0.8},
	{43.2150, 76.9200, "Airport Road", 1.1},
	{43.2800, 76.8800, "Almaty-1 Station", 0.9},
}

// SimulatedSource produces demo density samples clustered around city hotspots.
// It is only used when explicitly configured and marks every snapshot as mock.
type SimulatedSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
	now func() time.Time
}

// NewSimulatedSource creates a simulated density source
func NewSimulatedSource(seed int64) *SimulatedSource {
	return &SimulatedSource{
		rnd: rand.New(rand.NewSource(seed)),
		now: time.Now,
	}
}

// IsMock marks snapshots built from this source
func (s *SimulatedSource) IsMock() bool { return true }

// FetchHeatmap generates one round of samples
func (s *SimulatedSource) FetchHeatmap(ctx context.Context) ([]domain.HeatmapPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	congestion := s.congestionIndex(now.Hour(), now.Weekday())

	points := make([]domain.HeatmapPoint, 0, len(almatyHotspots)*12)
	for _, spot := range almatyHotspots {
		n := 5 + s.rnd.Intn(8)
		for i := 0; i < n; i++ {
			// ~1km around the hotspot
			latOffset := (s.rnd.Float64() - 0.5) * 0.02
			lonOffset := (s.rnd.Float64() - 0.5) * 0.02

			intensity := (congestion / 100) * spot.weight * utils.Lerp(0.5, 1, s.rnd.Float64())
			intensity = utils.RoundTo(utils.Unit(intensity), 2)

			points = append(points, domain.HeatmapPoint{
				Latitude:     spot.lat + latOffset,
				Longitude:    spot.lon + lonOffset,
				VehicleCount: int(utils.Lerp(0, maxVehiclesPerPoint, intensity)),
				Intensity:    intensity,
				Timestamp:    now,
			})
		}
	}
	return points, nil
}

// congestionIndex returns 0-100 based on time patterns
func (s *SimulatedSource) congestionIndex(hour int, weekday time.Weekday) float64 {
	if weekday == time.Saturday || weekday == time.Sunday {
		return 25 + s.rnd.Float64()*20
	}

	switch {
	case hour >= 7 && hour <= 9: // morning rush
		return 70 + s.rnd.Float64()*25
	case hour >= 17 && hour <= 19: // evening rush
		return 75 + s.rnd.Float64()*20
	case hour >= 12 && hour <= 14:
		return 50 + s.rnd.Float64()*15
	case hour >= 22 || hour <= 5: // night
		return 10 + s.rnd.Float64()*10
	default:
		return 35 + s.rnd.Float64()*20
	}
}
