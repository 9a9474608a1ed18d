package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartcity/trafficops/internal/domain"
)

// DashboardOptions configures the services owned by a Dashboard
type DashboardOptions struct {
	DensityInterval  time.Duration
	RiskCutoff       float64
	ClosureInterval  time.Duration
	CameraInterval   time.Duration
	StaleAfterFactor int
	MatchTolerance   float64
	AlertBufferSize  int
}

// Dashboard constructs and owns every live-data service. Start and Stop take
// effect once; later calls are no-ops.
type Dashboard struct {
	Density  *DensityService
	Closures *ClosureService
	Alerts   *AlertChannel
	Viewport *ViewportCorrelator

	cameras      CameraRepository
	cameraPoller *Poller
	opts         DashboardOptions
	log          *logrus.Entry

	mu          sync.Mutex
	started     bool
	stopped     bool
	cameraCount int
	done        chan struct{}
}

// NewDashboard wires the services together
func NewDashboard(
	density DensitySource,
	closures ClosureSource,
	transport AlertTransport,
	cameras CameraRepository,
	opts DashboardOptions,
	log *logrus.Entry,
) *Dashboard {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.StaleAfterFactor <= 0 {
		opts.StaleAfterFactor = 3
	}
	factor := time.Duration(opts.StaleAfterFactor)

	densitySvc := NewDensityService(density, DensityOptions{
		Interval:   opts.DensityInterval,
		RiskCutoff: opts.RiskCutoff,
		StaleAfter: factor * opts.DensityInterval,
	}, log)

	return &Dashboard{
		Density:      densitySvc,
		Closures:     NewClosureService(closures, factor*opts.ClosureInterval, log),
		Alerts:       NewAlertChannel(transport, opts.AlertBufferSize, log),
		Viewport:     NewViewportCorrelator(densitySvc, opts.MatchTolerance, log),
		cameras:      cameras,
		cameraPoller: NewPoller(),
		opts:         opts,
		log:          log.WithField("component", "dashboard"),
		done:         make(chan struct{}),
	}
}

// Start launches the pollers, the correlator and the alert transport
func (d *Dashboard) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started || d.stopped {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	// correlator first so the first density publication is not missed
	d.Viewport.Start()
	if !d.cameraPoller.Start(ctx, d.opts.CameraInterval, func(ctx context.Context) {
		_ = d.ReloadCameras(ctx)
	}) {
		d.log.WithField("interval", d.opts.CameraInterval).Warn("Camera reload needs a positive interval, loading once")
		_ = d.ReloadCameras(ctx)
	}
	d.Density.Start(ctx)
	d.Closures.StartPeriodicUpdates(ctx, d.opts.ClosureInterval)
	d.Alerts.Connect(ctx)

	d.log.Info("Dashboard started")
}

// Stop halts every service and waits for in-flight work
func (d *Dashboard) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	close(d.done)
	d.Alerts.Disconnect()
	d.Closures.StopPeriodicUpdates()
	d.Density.Stop()
	d.cameraPoller.Stop()
	d.Viewport.Stop()

	d.log.Info("Dashboard stopped")
}

// Done is closed when Stop is called
func (d *Dashboard) Done() <-chan struct{} {
	return d.done
}

// ReloadCameras re-reads the camera registry and hands it to the correlator.
// On failure the previous camera list stays in effect.
func (d *Dashboard) ReloadCameras(ctx context.Context) error {
	cams, err := d.cameras.ListCameras(ctx)
	if err != nil {
		d.log.WithError(err).Warn("Camera registry reload failed")
		return err
	}
	d.mu.Lock()
	d.cameraCount = len(cams)
	d.mu.Unlock()

	d.Viewport.SetCameras(cams)
	return nil
}

// Health checks the camera registry
func (d *Dashboard) Health(ctx context.Context) error {
	return d.cameras.Health(ctx)
}

// GetDashboardData returns the current snapshot of every feed
func (d *Dashboard) GetDashboardData() domain.DashboardData {
	data := domain.DashboardData{
		Alerts:    d.Alerts.State(),
		Viewport:  d.Viewport.Summary(),
		Timestamp: time.Now(),
	}
	if snap, ok := d.Density.Snapshot(); ok {
		data.Density = &snap
		data.DensityStale = d.Density.Stale()
	}
	if snap, ok := d.Closures.Snapshot(); ok {
		data.Closures = &snap
		data.ClosuresStale = d.Closures.Stale()
	}

	d.mu.Lock()
	data.CameraCount = d.cameraCount
	d.mu.Unlock()

	return data
}
