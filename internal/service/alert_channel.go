package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/smartcity/trafficops/internal/broadcast"
	"github.com/smartcity/trafficops/internal/domain"
)

// DefaultAlertBufferSize bounds the number of alerts kept in memory
const DefaultAlertBufferSize = 200

// AlertTransport delivers pushed alerts until ctx is cancelled.
// Implementations reconnect on their own and report connectivity through status.
type AlertTransport interface {
	Run(ctx context.Context, deliver func(domain.AlertEvent), status func(connected bool)) error
}

// AlertChannel keeps the received alerts, most recent first, and publishes
// the full state after every mutation.
//
// Subscribers may call the mutators from inside their callback. The nested
// change is applied at once and its state is published after the state
// being delivered, so every subscriber still sees states in order.
type AlertChannel struct {
	transport AlertTransport
	capacity  int
	log       *logrus.Entry
	feed      *broadcast.Channel[domain.AlertState]
	queue     *publishQueue[domain.AlertState]
	now       func() time.Time

	mu        sync.RWMutex
	alerts    []domain.AlertEvent
	ids       map[string]struct{}
	connected bool

	connMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAlertChannel creates an alert channel. transport may be nil, in which
// case alerts can only arrive through OnAlert.
func NewAlertChannel(transport AlertTransport, capacity int, log *logrus.Entry) *AlertChannel {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if capacity <= 0 {
		capacity = DefaultAlertBufferSize
	}
	log = log.WithField("component", "alerts")
	feed := broadcast.New[domain.AlertState]("alerts", log)
	return &AlertChannel{
		transport: transport,
		capacity:  capacity,
		log:       log,
		feed:      feed,
		queue:     newPublishQueue(feed),
		now:       time.Now,
		alerts:    []domain.AlertEvent{},
		ids:       make(map[string]struct{}),
	}
}

// Subscribe registers fn for every state change; the current state is replayed
// once something has been published.
func (a *AlertChannel) Subscribe(fn func(domain.AlertState)) broadcast.Unsubscribe {
	return a.feed.Subscribe(fn)
}

// State returns a copy of the current state
func (a *AlertChannel) State() domain.AlertState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stateLocked()
}

// Alerts returns a copy of the alert list, most recent first
func (a *AlertChannel) Alerts() []domain.AlertEvent {
	return a.State().Alerts
}

// UnreadCount returns the number of unacknowledged alerts
func (a *AlertChannel) UnreadCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return unread(a.alerts)
}

// Connected reports whether the transport currently holds a live connection
func (a *AlertChannel) Connected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected
}

// Connect starts the transport in the background. Calling it while connected does nothing.
func (a *AlertChannel) Connect(ctx context.Context) {
	if a.transport == nil {
		a.log.Warn("No alert transport configured, push alerts disabled")
		return
	}

	a.connMu.Lock()
	defer a.connMu.Unlock()
	if a.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	a.cancel, a.done = cancel, done

	go func() {
		defer close(done)
		err := a.transport.Run(ctx, func(ev domain.AlertEvent) { a.OnAlert(ev) }, a.setConnected)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.WithError(err).Error("Alert transport stopped")
		}
	}()
	a.log.Info("Alert transport started")
}

// Disconnect stops the transport and waits for it to exit
func (a *AlertChannel) Disconnect() {
	a.connMu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.connMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	a.setConnected(false)
	a.log.Info("Alert transport stopped")
}

// OnAlert records an incoming alert. Alerts whose ID is already held are
// dropped; it reports whether the alert was added.
func (a *AlertChannel) OnAlert(ev domain.AlertEvent) bool {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = a.now()
	}
	ev.Acknowledged = false

	return a.mutate(func() bool {
		if _, dup := a.ids[ev.ID]; dup {
			return false
		}
		a.alerts = append([]domain.AlertEvent{ev}, a.alerts...)
		a.ids[ev.ID] = struct{}{}
		for len(a.alerts) > a.capacity {
			evicted := a.alerts[len(a.alerts)-1]
			a.alerts = a.alerts[:len(a.alerts)-1]
			delete(a.ids, evicted.ID)
		}
		return true
	})
}

// Acknowledge marks one alert as read. It reports whether the alert exists;
// acknowledging twice changes nothing the second time.
func (a *AlertChannel) Acknowledge(id string) bool {
	found := false
	a.mutate(func() bool {
		for i := range a.alerts {
			if a.alerts[i].ID != id {
				continue
			}
			found = true
			if a.alerts[i].Acknowledged {
				return false
			}
			a.alerts[i].Acknowledged = true
			return true
		}
		return false
	})
	return found
}

// MarkAllAsRead acknowledges every alert
func (a *AlertChannel) MarkAllAsRead() {
	a.mutate(func() bool {
		changed := false
		for i := range a.alerts {
			if !a.alerts[i].Acknowledged {
				a.alerts[i].Acknowledged = true
				changed = true
			}
		}
		return changed
	})
}

// ClearAll drops every alert; previously seen IDs are accepted again afterwards
func (a *AlertChannel) ClearAll() {
	a.mutate(func() bool {
		if len(a.alerts) == 0 {
			return false
		}
		a.alerts = []domain.AlertEvent{}
		a.ids = make(map[string]struct{})
		return true
	})
}

func (a *AlertChannel) setConnected(connected bool) {
	changed := a.mutate(func() bool {
		if a.connected == connected {
			return false
		}
		a.connected = connected
		return true
	})
	if changed {
		a.log.WithField("connected", connected).Info("Alert transport connectivity changed")
	}
}

// mutate applies fn under the state lock and publishes when it reports a change
func (a *AlertChannel) mutate(fn func() bool) bool {
	a.mu.Lock()
	changed := fn()
	drain := changed && a.queue.enqueue(a.stateLocked())
	a.mu.Unlock()

	if drain {
		a.queue.flush()
	}
	return changed
}

func (a *AlertChannel) stateLocked() domain.AlertState {
	alerts := make([]domain.AlertEvent, len(a.alerts))
	copy(alerts, a.alerts)
	return domain.AlertState{
		Alerts:      alerts,
		UnreadCount: unread(a.alerts),
		Connected:   a.connected,
	}
}

func unread(alerts []domain.AlertEvent) int {
	n := 0
	for _, ev := range alerts {
		if !ev.Acknowledged {
			n++
		}
	}
	return n
}
