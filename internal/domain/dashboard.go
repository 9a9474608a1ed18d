package domain

import "time"

// DashboardData aggregates every live feed for one response
type DashboardData struct {
	Density       *DensitySnapshot `json:"density"`
	DensityStale  bool             `json:"density_stale"`
	Closures      *ClosureSnapshot `json:"closures"`
	ClosuresStale bool             `json:"closures_stale"`
	Alerts        AlertState       `json:"alerts"`
	Viewport      ViewportSummary  `json:"viewport"`
	CameraCount   int              `json:"camera_count"`
	Timestamp     time.Time        `json:"timestamp"`
}
