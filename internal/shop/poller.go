package shop

import (
	"context"
	"sync"
	"time"
)

// Poller calls fn every interval until stopped. The next call is scheduled
// only after the previous one returns, so calls never overlap.
type Poller struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// StartPoller starts polling in a goroutine. The first call happens after one
// interval.
func StartPoller(parent context.Context, interval time.Duration, fn func(ctx context.Context)) *Poller {
	ctx, cancel := context.WithCancel(parent)
	p := &Poller{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(p.done)
		timer := time.NewTimer(interval)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			fn(ctx)
			if ctx.Err() != nil {
				return
			}
			timer.Reset(interval)
		}
	}()
	return p
}

// Stop cancels the pending timer and waits for an in-flight call to return.
// After Stop returns fn is never called again. Stop is idempotent.
func (p *Poller) Stop() {
	p.once.Do(p.cancel)
	<-p.done
}
