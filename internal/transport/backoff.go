package transport

import (
	"context"
	"time"
)

const (
	minBackoff = 1 * time.Second
	maxBackoff = 60 * time.Second
)

// backoff doubles the reconnect delay up to a cap
type backoff struct {
	min, max time.Duration
	next     time.Duration
}

func newBackoff(min, max time.Duration) *backoff {
	return &backoff{min: min, max: max, next: min}
}

// Wait sleeps for the current delay and doubles it. It returns false when ctx ends first.
func (b *backoff) Wait(ctx context.Context) bool {
	d := b.next
	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (b *backoff) Reset() {
	b.next = b.min
}
