package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/smartcity/trafficops/internal/domain"
)

// RedisTransport receives alerts published on a redis pub/sub channel
type RedisTransport struct {
	client  *redis.Client
	channel string
	log     *logrus.Entry
	backoff *backoff
}

// NewRedisTransport parses a redis:// URL and creates the client. The
// connection is opened lazily by Run.
func NewRedisTransport(url, channel string, log *logrus.Entry) (*RedisTransport, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("transport: failed to parse redis url: %w", err)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RedisTransport{
		client:  redis.NewClient(opts),
		channel: channel,
		log:     log.WithFields(logrus.Fields{"transport": "redis", "channel": channel}),
		backoff: newBackoff(minBackoff, maxBackoff),
	}, nil
}

// Close releases the redis client
func (t *RedisTransport) Close() error {
	return t.client.Close()
}

// Run subscribes to the alert channel until ctx ends. go-redis resubscribes
// after a dropped connection; the next subscription confirmation reports it.
func (t *RedisTransport) Run(ctx context.Context, deliver func(domain.AlertEvent), status func(bool)) error {
	pubsub := t.client.Subscribe(ctx, t.channel)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			pubsub.Close()
		case <-stop:
		}
	}()

	connected := false
	setStatus := func(c bool) {
		if c != connected {
			connected = c
			status(c)
		}
	}
	defer setStatus(false)

	for {
		msg, err := pubsub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, redis.ErrClosed) {
				return err
			}
			setStatus(false)
			t.log.WithError(err).Warn("Alert subscription interrupted, retrying")
			if !t.backoff.Wait(ctx) {
				return ctx.Err()
			}
			continue
		}

		switch m := msg.(type) {
		case *redis.Subscription:
			if m.Kind == "subscribe" {
				t.backoff.Reset()
				setStatus(true)
			}
		case *redis.Message:
			ev, err := DecodeAlert([]byte(m.Payload), time.Now())
			if err != nil {
				if !errors.Is(err, ErrIgnoredMessage) {
					t.log.WithError(err).Warn("Dropping malformed alert payload")
				}
				continue
			}
			deliver(ev)
		}
	}
}
