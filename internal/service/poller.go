package service

import (
	"context"
	"sync"
	"time"
)

// tickerFunc creates a tick source and its stop function
type tickerFunc func(d time.Duration) (<-chan time.Time, func())

func newTimeTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Poller runs a function once on start and then on every tick until stopped.
// A running poller ignores further Start calls, so at most one timer exists.
// fn must not call Stop on its own poller.
type Poller struct {
	newTicker tickerFunc

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a stopped poller
func NewPoller() *Poller {
	return &Poller{newTicker: newTimeTicker}
}

// Start launches the loop. It returns false without starting when the poller
// is already running or interval is not positive.
func (p *Poller) Start(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) bool {
	if interval <= 0 {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done

	ticks, stop := p.newTicker(interval)
	go func() {
		defer close(done)
		defer stop()

		fn(ctx)
		for {
			select {
			case <-ticks:
				fn(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	return true
}

// Stop cancels the loop and waits for it to exit. Stopping a stopped poller is a no-op.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is active
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}
