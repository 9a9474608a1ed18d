package service

import (
	"sync"

	"github.com/smartcity/trafficops/internal/broadcast"
)

// publishQueue orders the states a component publishes. The goroutine that
// finds the queue idle becomes the drainer and publishes everything queued,
// including states queued by subscriber callbacks while it is publishing.
// Mutators therefore never block on their own feed.
type publishQueue[T any] struct {
	feed *broadcast.Channel[T]

	mu       sync.Mutex
	pending  []T
	draining bool
}

func newPublishQueue[T any](feed *broadcast.Channel[T]) *publishQueue[T] {
	return &publishQueue[T]{feed: feed}
}

// enqueue appends payload. Call it while holding the lock that guards the
// state payload was taken from, so queue order matches mutation order.
// It reports whether the caller must call flush.
func (q *publishQueue[T]) enqueue(payload T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, payload)
	if q.draining {
		return false
	}
	q.draining = true
	return true
}

// flush publishes queued payloads until the queue is empty
func (q *publishQueue[T]) flush() {
	q.mu.Lock()
	for len(q.pending) > 0 {
		next := q.pending[0]
		var zero T
		q.pending[0] = zero
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.feed.Publish(next)

		q.mu.Lock()
	}
	q.pending = nil
	q.draining = false
	q.mu.Unlock()
}
