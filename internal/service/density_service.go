package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartcity/trafficops/internal/broadcast"
	"github.com/smartcity/trafficops/internal/domain"
	"github.com/smartcity/trafficops/pkg/utils"
)

// DensitySource supplies raw traffic density samples
type DensitySource interface {
	FetchHeatmap(ctx context.Context) ([]domain.HeatmapPoint, error)
}

// DensityState is the phase of the density refresh cycle
type DensityState string

const (
	DensityIdle      DensityState = "idle"
	DensityFetching  DensityState = "fetching"
	DensityPublished DensityState = "published"
)

// DensityOptions configures a DensityService
type DensityOptions struct {
	Interval   time.Duration
	RiskCutoff float64
	StaleAfter time.Duration
}

// DensityService owns the current traffic density snapshot. Points and their
// analysis are published together so subscribers never see a mixed pair.
type DensityService struct {
	source DensitySource
	opts   DensityOptions
	log    *logrus.Entry
	feed   *broadcast.Channel[domain.DensitySnapshot]
	poller *Poller
	now    func() time.Time

	refreshMu sync.Mutex // one fetch at a time

	mu      sync.RWMutex
	state   DensityState
	lastErr error
}

// NewDensityService creates a density service around source
func NewDensityService(source DensitySource, opts DensityOptions, log *logrus.Entry) *DensityService {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "density")
	return &DensityService{
		source: source,
		opts:   opts,
		log:    log,
		feed:   broadcast.New[domain.DensitySnapshot]("density", log),
		poller: NewPoller(),
		now:    time.Now,
		state:  DensityIdle,
	}
}

// Subscribe registers fn for every published snapshot
func (s *DensityService) Subscribe(fn func(domain.DensitySnapshot)) broadcast.Unsubscribe {
	return s.feed.Subscribe(fn)
}

// Snapshot returns the last published snapshot
func (s *DensityService) Snapshot() (domain.DensitySnapshot, bool) {
	return s.feed.Current()
}

// CurrentPoints returns a copy of the last published point set
func (s *DensityService) CurrentPoints() []domain.HeatmapPoint {
	snap, ok := s.feed.Current()
	if !ok {
		return []domain.HeatmapPoint{}
	}
	points := make([]domain.HeatmapPoint, len(snap.Points))
	copy(points, snap.Points)
	return points
}

// Analysis returns the analysis of the last published point set
func (s *DensityService) Analysis() domain.TrafficDensityAnalysis {
	snap, ok := s.feed.Current()
	if !ok {
		return domain.AnalyzeDensity(nil, s.opts.RiskCutoff)
	}
	return snap.Analysis
}

// State returns the current refresh phase
func (s *DensityService) State() DensityState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastError returns the error of the most recent failed refresh, nil after a success
func (s *DensityService) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Stale reports whether the published snapshot is older than the configured age
func (s *DensityService) Stale() bool {
	snap, ok := s.feed.Current()
	if !ok {
		return false
	}
	return domain.IsStale(snap.Timestamp, s.opts.StaleAfter, s.now())
}

// Refresh fetches one point set and publishes it with its analysis.
// On failure the previous snapshot stays current and the error is returned.
func (s *DensityService) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.setState(DensityFetching, nil)

	points, err := s.source.FetchHeatmap(ctx)
	if err != nil {
		entry := s.log.WithError(err)
		if IsAuthError(err) {
			entry.Error("Density fetch rejected, check the backend API key")
		} else {
			entry.Warn("Density fetch failed, keeping previous snapshot")
		}
		s.setState(DensityIdle, err)
		return err
	}

	now := s.now()
	points = sanitizePoints(points, now)
	snap := domain.DensitySnapshot{
		Points:    points,
		Analysis:  domain.AnalyzeDensity(points, s.opts.RiskCutoff),
		Timestamp: now,
		IsMock:    isMock(s.source),
	}

	s.setState(DensityPublished, nil)
	s.feed.Publish(snap)
	s.setState(DensityIdle, nil)

	s.log.WithFields(logrus.Fields{
		"points":         len(points),
		"total_vehicles": snap.Analysis.TotalVehicles,
		"risk_areas":     len(snap.Analysis.RiskAreas),
	}).Debug("Density snapshot published")
	return nil
}

// Start begins periodic refreshes. Calling Start while running does nothing.
func (s *DensityService) Start(ctx context.Context) {
	if s.opts.Interval <= 0 {
		s.log.WithField("interval", s.opts.Interval).Warn("Density updates need a positive interval")
		return
	}
	if !s.poller.Start(ctx, s.opts.Interval, s.tick) {
		s.log.Debug("Density updates already running")
		return
	}
	s.log.WithField("interval", s.opts.Interval).Info("Density updates started")
}

// Stop ends periodic refreshes and waits for an in-flight tick
func (s *DensityService) Stop() {
	s.poller.Stop()
}

// Running reports whether periodic refreshes are active
func (s *DensityService) Running() bool {
	return s.poller.Running()
}

func (s *DensityService) tick(ctx context.Context) {
	// errors are logged and kept in LastError; the timer keeps running
	_ = s.Refresh(ctx)
}

func (s *DensityService) setState(state DensityState, err error) {
	s.mu.Lock()
	s.state = state
	if state != DensityFetching {
		s.lastErr = err
	}
	s.mu.Unlock()
}

// sanitizePoints clamps values into their documented ranges. Points with
// unusable coordinates are kept; spatial matching skips them.
func sanitizePoints(points []domain.HeatmapPoint, fetchedAt time.Time) []domain.HeatmapPoint {
	out := make([]domain.HeatmapPoint, len(points))
	for i, p := range points {
		if p.VehicleCount < 0 {
			p.VehicleCount = 0
		}
		p.Intensity = utils.Unit(p.Intensity)
		if p.Timestamp.IsZero() {
			p.Timestamp = fetchedAt
		}
		out[i] = p
	}
	return out
}

func isMock(source interface{}) bool {
	m, ok := source.(interface{ IsMock() bool })
	return ok && m.IsMock()
}
