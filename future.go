package clawless

import (
	"context"
	"sync"
)

// future is a single-flight completion signal: many callers can Await the
// same one, and exactly one settle (resolve or reject) ever happens. It
// backs ensureSession's initInFlight and the live-message manager's
// single-flight startLiveMessage guard.
type future struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

// settle resolves the future. Only the first call has any effect.
func (f *future) settle(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Await blocks until settled or ctx is cancelled.
func (f *future) Await(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.done:
		return f.err
	}
}
