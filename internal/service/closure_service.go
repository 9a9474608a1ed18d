package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartcity/trafficops/internal/broadcast"
	"github.com/smartcity/trafficops/internal/domain"
)

// ClosureSource supplies lane closures
type ClosureSource interface {
	FetchLaneClosures(ctx context.Context) ([]domain.LaneClosure, error)
}

// ClosureService owns the current lane-closure snapshot and its analysis
type ClosureService struct {
	source     ClosureSource
	staleAfter time.Duration
	log        *logrus.Entry
	feed       *broadcast.Channel[domain.ClosureSnapshot]
	poller     *Poller
	now        func() time.Time

	refreshMu sync.Mutex

	mu      sync.RWMutex
	lastErr error
}

// ClosureQuery selects closures; a zero field matches every value
type ClosureQuery struct {
	Status   domain.ClosureStatus
	Severity domain.ClosureSeverity
}

// ClosureView is a filtered closure list with the analysis, timestamp and
// staleness of the snapshot it was cut from
type ClosureView struct {
	Closures  []domain.LaneClosure
	Analysis  domain.LaneClosureAnalysis
	Timestamp time.Time
	Stale     bool
}

// NewClosureService creates a closure service around source
func NewClosureService(source ClosureSource, staleAfter time.Duration, log *logrus.Entry) *ClosureService {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "closures")
	return &ClosureService{
		source:     source,
		staleAfter: staleAfter,
		log:        log,
		feed:       broadcast.New[domain.ClosureSnapshot]("closures", log),
		poller:     NewPoller(),
		now:        time.Now,
	}
}

// Subscribe registers fn for every published snapshot
func (s *ClosureService) Subscribe(fn func(domain.ClosureSnapshot)) broadcast.Unsubscribe {
	return s.feed.Subscribe(fn)
}

// Snapshot returns the last published snapshot
func (s *ClosureService) Snapshot() (domain.ClosureSnapshot, bool) {
	return s.feed.Current()
}

// Closures returns a copy of the current closure list
func (s *ClosureService) Closures() []domain.LaneClosure {
	return s.filter(func(domain.LaneClosure) bool { return true })
}

// Query filters the current snapshot. The list and the analysis always come
// from the same snapshot, even while refreshes are publishing.
func (s *ClosureService) Query(q ClosureQuery) ClosureView {
	snap, ok := s.feed.Current()
	if !ok {
		return ClosureView{
			Closures: []domain.LaneClosure{},
			Analysis: domain.AnalyzeClosures(nil),
		}
	}
	return ClosureView{
		Closures: filterClosures(snap, func(c domain.LaneClosure) bool {
			return (q.Status == "" || c.Status == q.Status) &&
				(q.Severity == "" || c.Severity == q.Severity)
		}),
		Analysis:  snap.Analysis,
		Timestamp: snap.Timestamp,
		Stale:     domain.IsStale(snap.Timestamp, s.staleAfter, s.now()),
	}
}

// Analysis returns the analysis of the current closure list
func (s *ClosureService) Analysis() domain.LaneClosureAnalysis {
	snap, ok := s.feed.Current()
	if !ok {
		return domain.AnalyzeClosures(nil)
	}
	return snap.Analysis
}

// FilterByStatus returns the current closures in the given status
func (s *ClosureService) FilterByStatus(status domain.ClosureStatus) []domain.LaneClosure {
	return s.filter(func(c domain.LaneClosure) bool { return c.Status == status })
}

// FilterBySeverity returns the current closures with the given severity
func (s *ClosureService) FilterBySeverity(severity domain.ClosureSeverity) []domain.LaneClosure {
	return s.filter(func(c domain.LaneClosure) bool { return c.Severity == severity })
}

func (s *ClosureService) filter(keep func(domain.LaneClosure) bool) []domain.LaneClosure {
	snap, ok := s.feed.Current()
	if !ok {
		return []domain.LaneClosure{}
	}
	return filterClosures(snap, keep)
}

func filterClosures(snap domain.ClosureSnapshot, keep func(domain.LaneClosure) bool) []domain.LaneClosure {
	out := []domain.LaneClosure{}
	for _, c := range snap.Closures {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// LastError returns the error of the most recent failed refresh
func (s *ClosureService) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Stale reports whether the published snapshot is older than the configured age
func (s *ClosureService) Stale() bool {
	snap, ok := s.feed.Current()
	if !ok {
		return false
	}
	return domain.IsStale(snap.Timestamp, s.staleAfter, s.now())
}

// Refresh fetches the closure list and publishes it with its analysis.
// On failure the previous snapshot stays current.
func (s *ClosureService) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	closures, err := s.source.FetchLaneClosures(ctx)
	if err != nil {
		entry := s.log.WithError(err)
		if IsAuthError(err) {
			entry.Error("Lane closure fetch rejected, check the backend API key")
		} else {
			entry.Warn("Lane closure fetch failed, keeping previous snapshot")
		}
		s.setErr(err)
		return err
	}

	now := s.now()
	list := make([]domain.LaneClosure, len(closures))
	for i, c := range closures {
		if _, ok := domain.ParseClosureStatus(string(c.Status)); !ok {
			c.Status = c.DeriveStatus(now)
		}
		list[i] = c
	}

	snap := domain.ClosureSnapshot{
		Closures:  list,
		Analysis:  domain.AnalyzeClosures(list),
		Timestamp: now,
	}
	s.feed.Publish(snap)
	s.setErr(nil)

	s.log.WithFields(logrus.Fields{
		"closures": len(list),
		"active":   snap.Analysis.ActiveClosures,
		"high":     snap.Analysis.HighSeverityClosures,
	}).Debug("Lane closure snapshot published")
	return nil
}

// StartPeriodicUpdates refreshes immediately and then every interval.
// A second call while running is ignored, so timers never stack.
func (s *ClosureService) StartPeriodicUpdates(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.log.WithField("interval", interval).Warn("Lane closure updates need a positive interval")
		return
	}
	if !s.poller.Start(ctx, interval, s.tick) {
		s.log.Debug("Lane closure updates already running")
		return
	}
	s.log.WithField("interval", interval).Info("Lane closure updates started")
}

// StopPeriodicUpdates cancels the timer and waits for an in-flight refresh
func (s *ClosureService) StopPeriodicUpdates() {
	s.poller.Stop()
}

// Running reports whether periodic refreshes are active
func (s *ClosureService) Running() bool {
	return s.poller.Running()
}

func (s *ClosureService) tick(ctx context.Context) {
	_ = s.Refresh(ctx)
}

func (s *ClosureService) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}
