package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/smartcity/trafficops/internal/domain"
)

// WebSocketTransport reads alert frames from a websocket endpoint and
// reconnects with exponential backoff when the connection drops.
type WebSocketTransport struct {
	url     string
	header  http.Header
	dialer  *websocket.Dialer
	log     *logrus.Entry
	backoff *backoff
}

// NewWebSocketTransport creates a transport for url; a non-empty apiKey is sent as X-API-Key
func NewWebSocketTransport(url, apiKey string, log *logrus.Entry) *WebSocketTransport {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	header := http.Header{}
	if apiKey != "" {
		header.Set("X-API-Key", apiKey)
	}
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	return &WebSocketTransport{
		url:     url,
		header:  header,
		dialer:  &dialer,
		log:     log.WithFields(logrus.Fields{"transport": "websocket", "url": url}),
		backoff: newBackoff(minBackoff, maxBackoff),
	}
}

// Run keeps a connection open until ctx ends, delivering every decoded alert
func (t *WebSocketTransport) Run(ctx context.Context, deliver func(domain.AlertEvent), status func(bool)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		t.log.Debug("Connecting to alert websocket")
		conn, _, err := t.dialer.DialContext(ctx, t.url, t.header)
		if err != nil {
			t.log.WithError(err).Warn("Alert websocket dial failed, retrying")
			if !t.backoff.Wait(ctx) {
				return ctx.Err()
			}
			continue
		}
		t.backoff.Reset()

		status(true)
		err = t.read(ctx, conn, deliver)
		status(false)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.log.WithError(err).Warn("Alert websocket read failed, reconnecting")
		if !t.backoff.Wait(ctx) {
			return ctx.Err()
		}
	}
}

func (t *WebSocketTransport) read(ctx context.Context, conn *websocket.Conn, deliver func(domain.AlertEvent)) error {
	defer conn.Close()

	// unblock ReadMessage on shutdown
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ev, err := DecodeAlert(message, time.Now())
		if err != nil {
			if !errors.Is(err, ErrIgnoredMessage) {
				t.log.WithError(err).Warn("Dropping malformed alert frame")
			}
			continue
		}
		deliver(ev)
	}
}
