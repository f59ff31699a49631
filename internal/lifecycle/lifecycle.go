// Package lifecycle tracks process shutdown so the health endpoint can take
// the instance out of rotation while in-flight enrichments drain.
package lifecycle

import (
	"sync"
	"sync/atomic"
)

// Lifecycle is a one-way shutdown latch. The zero value is not usable; use New.
type Lifecycle struct {
	shuttingDown atomic.Bool
	once         sync.Once
	draining     chan struct{}
}

// New returns a Lifecycle in the running state.
func New() *Lifecycle {
	return &Lifecycle{draining: make(chan struct{})}
}

// BeginShutdown flips the latch. Call when SIGTERM/SIGINT is received; the
// health handler reports shutting-down from then on. Safe to call repeatedly.
func (l *Lifecycle) BeginShutdown() {
	l.once.Do(func() {
		l.shuttingDown.Store(true)
		close(l.draining)
	})
}

// ShuttingDown reports whether BeginShutdown has been called.
func (l *Lifecycle) ShuttingDown() bool {
	return l.shuttingDown.Load()
}

// Draining is closed once shutdown begins.
func (l *Lifecycle) Draining() <-chan struct{} {
	return l.draining
}
