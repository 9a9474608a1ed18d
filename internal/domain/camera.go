package domain

import (
	"context"
	"time"
)

// CameraStatus is the operational state reported for a camera
type CameraStatus string

const (
	CameraOnline  CameraStatus = "Online"
	CameraOffline CameraStatus = "Offline"
	CameraLoading CameraStatus = "Loading"
)

// CameraFeed is a traffic camera known to the map surface
type CameraFeed struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Location *LatLng      `json:"location,omitempty"`
	Status   CameraStatus `json:"status"`
}

// ViewportBounds is the rectangle currently shown by a map surface.
// SouthWest.Lng greater than NorthEast.Lng means the viewport crosses the antimeridian.
type ViewportBounds struct {
	SouthWest LatLng `json:"south_west"`
	NorthEast LatLng `json:"north_east"`
}

// ViewportSummary is the correlator output for the current viewport
type ViewportSummary struct {
	Bounds           *ViewportBounds `json:"bounds,omitempty"`
	VisibleCameras   []CameraFeed    `json:"visible_cameras"`
	VehicleCount     int             `json:"vehicle_count"`
	DensityTimestamp time.Time       `json:"density_timestamp"`
	ComputedAt       time.Time       `json:"computed_at"`
}

// CameraRepository defines the source of camera entities
type CameraRepository interface {
	// ListCameras returns every known camera
	ListCameras(ctx context.Context) ([]CameraFeed, error)

	// Health checks the backing store
	Health(ctx context.Context) error
}

// Valid reports whether both corners are valid and south is not above north
func (b ViewportBounds) Valid() bool {
	return b.SouthWest.Valid() && b.NorthEast.Valid() && b.SouthWest.Lat <= b.NorthEast.Lat
}
