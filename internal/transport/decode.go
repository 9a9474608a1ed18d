// Package transport delivers pushed incident alerts from the operations
// backend over a websocket or a redis pub/sub channel.
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smartcity/trafficops/internal/domain"
)

var (
	// ErrIgnoredMessage marks frames that are valid but carry no alert
	ErrIgnoredMessage = errors.New("transport: not an alert message")
	// ErrEmptyAlert marks alert frames without incident data
	ErrEmptyAlert = errors.New("transport: alert without incident")
)

type alertMessage struct {
	Type      string                  `json:"type"`
	ID        string                  `json:"id"`
	Incident  domain.IncidentSnapshot `json:"incident"`
	Timestamp time.Time               `json:"timestamp"`
}

// DecodeAlert parses one alert frame. Frames without an ID take one derived
// from the incident, so a resent incident deduplicates; failing that a random one.
func DecodeAlert(data []byte, receivedAt time.Time) (domain.AlertEvent, error) {
	var msg alertMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.AlertEvent{}, fmt.Errorf("transport: failed to decode alert: %w", err)
	}
	if msg.Type != "" && msg.Type != "alert" {
		return domain.AlertEvent{}, ErrIgnoredMessage
	}
	if msg.Incident.ID == "" && msg.Incident.Title == "" {
		return domain.AlertEvent{}, ErrEmptyAlert
	}

	id := msg.ID
	switch {
	case id != "":
	case msg.Incident.ID != "":
		id = "incident-" + msg.Incident.ID
	default:
		id = uuid.NewString()
	}

	at := receivedAt
	if !msg.Timestamp.IsZero() {
		at = msg.Timestamp
	}

	return domain.AlertEvent{
		ID:         id,
		Incident:   msg.Incident,
		ReceivedAt: at,
	}, nil
}
