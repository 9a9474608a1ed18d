package service

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartcity/trafficops/internal/broadcast"
	"github.com/smartcity/trafficops/internal/domain"
	"github.com/smartcity/trafficops/internal/geo"
)

// ErrInvalidBounds is returned for viewports with bad corners or south above north
var ErrInvalidBounds = errors.New("viewport: invalid bounds")

// DensityFeed is the read side of the density service used by the correlator
type DensityFeed interface {
	Subscribe(fn func(domain.DensitySnapshot)) broadcast.Unsubscribe
}

// ViewportCorrelator recomputes the visible cameras and their vehicle count
// whenever the viewport, the camera list or the density snapshot changes.
// It only reads density snapshots and never triggers fetches.
// Summary subscribers may call SetBounds, ClearBounds or SetCameras; the
// nested summary is published after the one being delivered.
type ViewportCorrelator struct {
	density   DensityFeed
	tolerance float64
	log       *logrus.Entry
	feed      *broadcast.Channel[domain.ViewportSummary]
	queue     *publishQueue[domain.ViewportSummary]
	now       func() time.Time

	mu      sync.RWMutex
	bounds  *domain.ViewportBounds
	cameras []domain.CameraFeed
	snap    domain.DensitySnapshot
	summary domain.ViewportSummary

	unsubMu sync.Mutex
	unsub   broadcast.Unsubscribe
}

// NewViewportCorrelator creates a correlator; a non-positive tolerance uses geo.DefaultTolerance
func NewViewportCorrelator(density DensityFeed, tolerance float64, log *logrus.Entry) *ViewportCorrelator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if tolerance <= 0 {
		tolerance = geo.DefaultTolerance
	}
	log = log.WithField("component", "viewport")
	feed := broadcast.New[domain.ViewportSummary]("viewport", log)
	return &ViewportCorrelator{
		density:   density,
		tolerance: tolerance,
		log:       log,
		feed:      feed,
		queue:     newPublishQueue(feed),
		now:       time.Now,
		summary:   domain.ViewportSummary{VisibleCameras: []domain.CameraFeed{}},
	}
}

// Start follows the density feed. Calling it twice keeps a single subscription.
func (v *ViewportCorrelator) Start() {
	v.unsubMu.Lock()
	defer v.unsubMu.Unlock()
	if v.unsub != nil {
		return
	}
	v.unsub = v.density.Subscribe(v.onDensity)
}

// Stop detaches from the density feed
func (v *ViewportCorrelator) Stop() {
	v.unsubMu.Lock()
	unsub := v.unsub
	v.unsub = nil
	v.unsubMu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Subscribe registers fn for every recomputed summary
func (v *ViewportCorrelator) Subscribe(fn func(domain.ViewportSummary)) broadcast.Unsubscribe {
	return v.feed.Subscribe(fn)
}

// Summary returns the most recent summary
func (v *ViewportCorrelator) Summary() domain.ViewportSummary {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return copySummary(v.summary)
}

// Bounds returns the current viewport, nil when none is set
func (v *ViewportCorrelator) Bounds() *domain.ViewportBounds {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.bounds == nil {
		return nil
	}
	b := *v.bounds
	return &b
}

// SetBounds replaces the viewport and recomputes
func (v *ViewportCorrelator) SetBounds(b domain.ViewportBounds) (domain.ViewportSummary, error) {
	if !b.Valid() {
		return domain.ViewportSummary{}, ErrInvalidBounds
	}
	return v.update(func() { v.bounds = &b }), nil
}

// ClearBounds removes the viewport; nothing is visible until a new one is set
func (v *ViewportCorrelator) ClearBounds() domain.ViewportSummary {
	return v.update(func() { v.bounds = nil })
}

// SetCameras replaces the camera list and recomputes
func (v *ViewportCorrelator) SetCameras(cameras []domain.CameraFeed) domain.ViewportSummary {
	list := make([]domain.CameraFeed, len(cameras))
	copy(list, cameras)
	return v.update(func() { v.cameras = list })
}

// Matches returns the nearest density point of every visible camera
func (v *ViewportCorrelator) Matches() []geo.Match {
	v.mu.RLock()
	defer v.mu.RUnlock()
	matches := geo.MatchCameras(v.summary.VisibleCameras, v.snap.Points, v.tolerance)
	if matches == nil {
		matches = []geo.Match{}
	}
	return matches
}

func (v *ViewportCorrelator) onDensity(snap domain.DensitySnapshot) {
	v.update(func() { v.snap = snap })
}

func (v *ViewportCorrelator) update(mutate func()) domain.ViewportSummary {
	v.mu.Lock()
	mutate()
	visible := geo.ComputeVisible(v.bounds, v.cameras)
	v.summary = domain.ViewportSummary{
		VisibleCameras:   visible,
		VehicleCount:     geo.CorrelateVehicleCount(visible, v.snap.Points, v.tolerance),
		DensityTimestamp: v.snap.Timestamp,
		ComputedAt:       v.now(),
	}
	if v.bounds != nil {
		b := *v.bounds
		v.summary.Bounds = &b
	}
	summary := copySummary(v.summary)
	drain := v.queue.enqueue(copySummary(summary))
	v.mu.Unlock()

	if drain {
		v.queue.flush()
	}

	v.log.WithFields(logrus.Fields{
		"visible":  len(summary.VisibleCameras),
		"vehicles": summary.VehicleCount,
	}).Debug("Viewport summary recomputed")
	return copySummary(summary)
}

func copySummary(s domain.ViewportSummary) domain.ViewportSummary {
	cams := make([]domain.CameraFeed, len(s.VisibleCameras))
	copy(cams, s.VisibleCameras)
	s.VisibleCameras = cams
	if s.Bounds != nil {
		b := *s.Bounds
		s.Bounds = &b
	}
	return s
}
