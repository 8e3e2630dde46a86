// Package tasktracker implements the process-wide cancellation and
// shutdown sequencing from spec §5: a single hierarchical cancellation
// token, a tracker for every long-lived task, and a bounded grace period
// after which an unresponsive shutdown is a hard abort rather than an
// indefinite hang. Modeled on coordinator/coordinator.go's
// ctx/cancel/sync.WaitGroup lifecycle fields, generalized from one
// WebSocket connection's goroutines to an arbitrary set of subsystem
// tasks.
package tasktracker

import (
	"context"
	"sync"
	"time"
)

// Tracker owns the process's cancellation token and tracks every
// long-lived task spawned against it.
type Tracker struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Tracker whose Context is cancelled by Shutdown.
func New() *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{ctx: ctx, cancel: cancel}
}

// Context is the hierarchical cancellation token every tracked task
// should select on at its suspension points.
func (t *Tracker) Context() context.Context {
	return t.ctx
}

// Go runs fn in a new goroutine tracked by Wait/Shutdown.
func (t *Tracker) Go(fn func(ctx context.Context)) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		fn(t.ctx)
	}()
}

// Shutdown cancels the token and waits for every tracked task to return,
// up to gracePeriod. It returns false if the grace period elapsed first
// (spec §5 "exceeding it results in hard abort" — the caller is
// responsible for performing that abort; this just reports the timeout).
func (t *Tracker) Shutdown(gracePeriod time.Duration) bool {
	t.cancel()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(gracePeriod):
		return false
	}
}
