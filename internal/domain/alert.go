package domain

import "time"

// IncidentSnapshot is the incident state embedded in an alert at receipt time
type IncidentSnapshot struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Severity    string `json:"severity"` // "low", "medium", "high", "critical"
	Status      string `json:"status"`
	Location    LatLng `json:"location"`
	Description string `json:"description"`
	Reporter    string `json:"reporter"`
}

// AlertEvent is one received alert and its acknowledgment flag
type AlertEvent struct {
	ID           string           `json:"id"`
	Incident     IncidentSnapshot `json:"incident"`
	ReceivedAt   time.Time        `json:"received_at"`
	Acknowledged bool             `json:"acknowledged"`
}

// AlertState is what alert subscribers observe after every mutation
type AlertState struct {
	Alerts      []AlertEvent `json:"alerts"` // most recent first
	UnreadCount int          `json:"unread_count"`
	Connected   bool         `json:"connected"`
}
