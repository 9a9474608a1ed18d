package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/smartcity/trafficops/internal/domain"
)

func TestDecodeAlert(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	sent := time.Date(2024, 3, 1, 11, 59, 0, 0, time.UTC)

	tests := []struct {
		name      string
		payload   string
		wantID    string
		wantAt    time.Time
		wantErr   error
		anyErr    bool
		randomID  bool
		wantTitle string
	}{
		{
			name:      "explicit id",
			payload:   `{"type":"alert","id":"a-1","incident":{"id":"inc-9","title":"Crash"}}`,
			wantID:    "a-1",
			wantAt:    now,
			wantTitle: "Crash",
		},
		{
			name:    "id derived from incident",
			payload: `{"incident":{"id":"inc-9","title":"Crash"},"timestamp":"2024-03-01T11:59:00Z"}`,
			wantID:  "incident-inc-9",
			wantAt:  sent,
		},
		{
			name:     "random id without incident id",
			payload:  `{"incident":{"title":"Debris"}}`,
			randomID: true,
			wantAt:   now,
		},
		{
			name:    "other message type",
			payload: `{"type":"ping"}`,
			wantErr: ErrIgnoredMessage,
		},
		{
			name:    "no incident",
			payload: `{"type":"alert","id":"x"}`,
			wantErr: ErrEmptyAlert,
		},
		{
			name:    "malformed json",
			payload: `{"incident":`,
			anyErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeAlert([]byte(tt.payload), now)
			if tt.wantErr != nil || tt.anyErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", ev)
				}
				if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.randomID {
				if ev.ID == "" {
					t.Error("expected generated id")
				}
			} else if ev.ID != tt.wantID {
				t.Errorf("id = %q, want %q", ev.ID, tt.wantID)
			}
			if !ev.ReceivedAt.Equal(tt.wantAt) {
				t.Errorf("received at = %v, want %v", ev.ReceivedAt, tt.wantAt)
			}
			if tt.wantTitle != "" && ev.Incident.Title != tt.wantTitle {
				t.Errorf("title = %q, want %q", ev.Incident.Title, tt.wantTitle)
			}
		})
	}
}

type recorder struct {
	mu     sync.Mutex
	alerts []domain.AlertEvent
	status []bool
	got    chan struct{}
}

func newRecorder() *recorder {
	return &recorder{got: make(chan struct{}, 16)}
}

func (r *recorder) deliver(ev domain.AlertEvent) {
	r.mu.Lock()
	r.alerts = append(r.alerts, ev)
	r.mu.Unlock()
	r.got <- struct{}{}
}

func (r *recorder) setStatus(c bool) {
	r.mu.Lock()
	r.status = append(r.status, c)
	r.mu.Unlock()
	r.got <- struct{}{}
}

func (r *recorder) snapshot() ([]domain.AlertEvent, []bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AlertEvent(nil), r.alerts...), append([]bool(nil), r.status...)
}

func (r *recorder) waitFor(t *testing.T, cond func([]domain.AlertEvent, []bool) bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if cond(r.snapshot()) {
			return
		}
		select {
		case <-r.got:
		case <-deadline:
			a, s := r.snapshot()
			t.Fatalf("condition not met: alerts=%+v status=%v", a, s)
		}
	}
}

func TestWebSocketTransportDeliversAndReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var (
		mu    sync.Mutex
		conns int
		keys  []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		conns++
		n := conns
		keys = append(keys, r.Header.Get("X-API-Key"))
		mu.Unlock()

		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		if n == 1 {
			_ = c.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
			_ = c.WriteMessage(websocket.TextMessage, []byte(`not json`))
			_ = c.WriteMessage(websocket.TextMessage, []byte(`{"id":"a-1","incident":{"id":"1","title":"Crash"}}`))
			// drop the connection to force a reconnect
			return
		}
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"id":"a-2","incident":{"id":"2","title":"Stall"}}`))
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	tr := NewWebSocketTransport(url, "secret", nil)
	tr.backoff = newBackoff(10*time.Millisecond, 20*time.Millisecond)

	rec := newRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx, rec.deliver, rec.setStatus) }()

	rec.waitFor(t, func(a []domain.AlertEvent, s []bool) bool { return len(a) == 2 })
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	alerts, status := rec.snapshot()
	if alerts[0].ID != "a-1" || alerts[1].ID != "a-2" {
		t.Errorf("unexpected alerts: %+v", alerts)
	}
	want := []bool{true, false, true, false}
	if len(status) != len(want) {
		t.Fatalf("status = %v, want %v", status, want)
	}
	for i := range want {
		if status[i] != want[i] {
			t.Errorf("status = %v, want %v", status, want)
			break
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for _, k := range keys {
		if k != "secret" {
			t.Errorf("expected X-API-Key header on every dial, got %q", k)
		}
	}
}

func TestWebSocketTransportStopsWhileDialing(t *testing.T) {
	tr := NewWebSocketTransport("ws://127.0.0.1:1/unreachable", "", nil)
	tr.backoff = newBackoff(time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx, func(domain.AlertEvent) {}, func(bool) {}) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestBackoffDoublesToCap(t *testing.T) {
	b := newBackoff(time.Millisecond, 4*time.Millisecond)
	ctx := context.Background()
	var seen []time.Duration
	for i := 0; i < 4; i++ {
		seen = append(seen, b.next)
		b.Wait(ctx)
	}
	want := []time.Duration{1, 2, 4, 4}
	for i := range want {
		if seen[i] != want[i]*time.Millisecond {
			t.Fatalf("delays = %v", seen)
		}
	}
	b.Reset()
	if b.next != time.Millisecond {
		t.Errorf("Reset left next at %v", b.next)
	}
}

func TestNewRedisTransportRejectsBadURL(t *testing.T) {
	if _, err := NewRedisTransport("not-a-url://", "alerts", nil); err == nil {
		t.Error("expected error for invalid redis url")
	}
	tr, err := NewRedisTransport("redis://localhost:6379/0", "alerts", nil)
	if err != nil {
		t.Fatalf("NewRedisTransport: %v", err)
	}
	_ = tr.Close()
}
