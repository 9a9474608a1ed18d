package domain

import "time"

// ClosureSeverity grades the impact of a lane closure
type ClosureSeverity string

const (
	SeverityLow    ClosureSeverity = "low"
	SeverityMedium ClosureSeverity = "medium"
	SeverityHigh   ClosureSeverity = "high"
)

// ClosureStatus is the lifecycle phase of a lane closure
type ClosureStatus string

const (
	StatusActive    ClosureStatus = "active"
	StatusUpcoming  ClosureStatus = "upcoming"
	StatusCompleted ClosureStatus = "completed"
)

// ParseClosureSeverity validates a severity filter value
func ParseClosureSeverity(s string) (ClosureSeverity, bool) {
	switch v := ClosureSeverity(s); v {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return v, true
	}
	return "", false
}

// ParseClosureStatus validates a status filter value
func ParseClosureStatus(s string) (ClosureStatus, bool) {
	switch v := ClosureStatus(s); v {
	case StatusActive, StatusUpcoming, StatusCompleted:
		return v, true
	}
	return "", false
}

// LaneClosure represents a reported road-segment obstruction
type LaneClosure struct {
	ID            string          `json:"id"`
	Route         string          `json:"route"`
	Begin         LatLng          `json:"begin"`
	End           LatLng          `json:"end"`
	Severity      ClosureSeverity `json:"severity"`
	Status        ClosureStatus   `json:"status"`
	LanesClosed   int             `json:"lanes_closed"`
	LanesExisting int             `json:"lanes_existing"`
	ClosureType   string          `json:"closure_type"` // "full", "lane", "shoulder"
	WorkType      string          `json:"work_type"`
	StartsAt      *time.Time      `json:"starts_at,omitempty"`
	EndsAt        *time.Time      `json:"ends_at,omitempty"`
}

// DeriveStatus infers the lifecycle phase from the closure window.
// Closures without any window are treated as active.
func (c LaneClosure) DeriveStatus(now time.Time) ClosureStatus {
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return StatusUpcoming
	}
	if c.EndsAt != nil && now.After(*c.EndsAt) {
		return StatusCompleted
	}
	return StatusActive
}

// LaneClosureAnalysis counts closures by phase and severity
type LaneClosureAnalysis struct {
	ActiveClosures       int `json:"active_closures"`
	HighSeverityClosures int `json:"high_severity_closures"`
	UpcomingClosures     int `json:"upcoming_closures"`
}

// ClosureSnapshot pairs a closure set with its analysis
type ClosureSnapshot struct {
	Closures  []LaneClosure       `json:"closures"`
	Analysis  LaneClosureAnalysis `json:"analysis"`
	Timestamp time.Time           `json:"timestamp"`
}

// AnalyzeClosures derives the counts for a closure set
func AnalyzeClosures(closures []LaneClosure) LaneClosureAnalysis {
	var a LaneClosureAnalysis
	for _, c := range closures {
		switch c.Status {
		case StatusActive:
			a.ActiveClosures++
		case StatusUpcoming:
			a.UpcomingClosures++
		}
		if c.Severity == SeverityHigh {
			a.HighSeverityClosures++
		}
	}
	return a
}
