package http

import (
	"bufio"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/smartcity/trafficops/internal/broadcast"
	"github.com/smartcity/trafficops/internal/domain"
)

type sseEvent struct {
	name    string
	payload interface{}
}

// mailbox holds at most one pending payload per event name. Every payload is
// a full state, so a newer one replaces the unsent older one.
type mailbox struct {
	notify chan struct{}

	mu      sync.Mutex
	order   []string
	pending map[string]interface{}
}

func newMailbox() *mailbox {
	return &mailbox{
		notify:  make(chan struct{}, 1),
		pending: make(map[string]interface{}),
	}
}

// put never blocks the publisher
func (m *mailbox) put(name string, payload interface{}) {
	m.mu.Lock()
	if _, ok := m.pending[name]; !ok {
		m.order = append(m.order, name)
	}
	m.pending[name] = payload
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// take empties the mailbox, oldest name first
func (m *mailbox) take() []sseEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := make([]sseEvent, 0, len(m.order))
	for _, name := range m.order {
		events = append(events, sseEvent{name: name, payload: m.pending[name]})
		delete(m.pending, name)
	}
	m.order = m.order[:0]
	return events
}

// Stream pushes feed publications to the client as server-sent events.
// A slow client skips intermediate states and receives the latest of each feed.
func (h *Handler) Stream(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(h.stream))
	return nil
}

func (h *Handler) stream(w *bufio.Writer) {
	box := newMailbox()
	unsubs := []broadcast.Unsubscribe{
		h.dash.Density.Subscribe(func(s domain.DensitySnapshot) { box.put("density", s) }),
		h.dash.Closures.Subscribe(func(s domain.ClosureSnapshot) { box.put("closures", s) }),
		h.dash.Alerts.Subscribe(func(s domain.AlertState) { box.put("alerts", s) }),
		h.dash.Viewport.Subscribe(func(s domain.ViewportSummary) { box.put("viewport", s) }),
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	flush := func() error {
		for _, ev := range box.take() {
			if err := writeEvent(w, ev); err != nil {
				return err
			}
		}
		return nil
	}

	for {
		select {
		case <-box.notify:
			if err := flush(); err != nil {
				h.log.WithError(err).Debug("Stream client gone")
				return
			}
		case <-keepAlive.C:
			if _, err := w.WriteString(": keep-alive\n\n"); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		case <-h.dash.Done():
			_ = flush()
			return
		}
	}
}

func writeEvent(w *bufio.Writer, ev sseEvent) error {
	data, err := json.Marshal(ev.payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, data); err != nil {
		return err
	}
	return w.Flush()
}
