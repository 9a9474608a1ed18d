// Package broadcast provides an in-process publish/subscribe primitive that
// keeps the last published value and replays it to late subscribers.
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Unsubscribe removes a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

type subscription[T any] struct {
	id     uint64
	fn     func(T)
	active atomic.Bool

	mu   sync.Mutex // serializes deliveries to this subscriber
	seen uint64     // version of the last payload delivered
}

// Channel holds the last published payload of type T and delivers every
// publish synchronously to all registered callbacks in subscription order.
//
// Callbacks may call Unsubscribe, Subscribe and Current on the same channel.
// They must not call Publish on the channel that is delivering to them.
type Channel[T any] struct {
	name string
	log  *logrus.Entry

	publishMu sync.Mutex

	mu      sync.Mutex
	subs    []*subscription[T]
	current T
	version uint64
	nextID  uint64
}

// New creates a channel; name is used in log fields only
func New[T any](name string, log *logrus.Entry) *Channel[T] {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Channel[T]{
		name: name,
		log:  log.WithField("channel", name),
	}
}

// Subscribe registers fn. If a payload was already published, fn receives it
// before Subscribe returns.
func (c *Channel[T]) Subscribe(fn func(T)) Unsubscribe {
	c.mu.Lock()
	c.nextID++
	sub := &subscription[T]{id: c.nextID, fn: fn}
	sub.active.Store(true)
	c.subs = append(c.subs, sub)
	current, version := c.current, c.version
	c.mu.Unlock()

	if version > 0 {
		c.deliver(sub, version, current)
	}

	var once sync.Once
	return func() {
		once.Do(func() { c.remove(sub) })
	}
}

// Publish swaps the current payload and notifies every subscriber registered
// at the time of the swap.
func (c *Channel[T]) Publish(payload T) {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	c.mu.Lock()
	c.version++
	c.current = payload
	version := c.version
	subs := make([]*subscription[T], len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, sub := range subs {
		c.deliver(sub, version, payload)
	}
}

// Current returns the last published payload, if any
func (c *Channel[T]) Current() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.version > 0
}

// Len returns the number of live subscriptions
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *Channel[T]) remove(sub *subscription[T]) {
	sub.active.Store(false)

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
			return
		}
	}
}

// deliver hands payload to sub unless sub already saw a newer version or was
// removed in the meantime.
func (c *Channel[T]) deliver(sub *subscription[T], version uint64, payload T) {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if !sub.active.Load() || version <= sub.seen {
		return
	}
	sub.seen = version
	c.invoke(sub, payload)
}

func (c *Channel[T]) invoke(sub *subscription[T], payload T) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithFields(logrus.Fields{
				"subscriber": sub.id,
				"panic":      r,
			}).Error("subscriber callback panicked")
		}
	}()
	sub.fn(payload)
}
