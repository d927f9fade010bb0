package agent

import (
	"context"
	"sync"
	"sync/atomic"
)

// CancelFlag is a shared, set-once cancellation signal. Setting it is
// idempotent and it never resets; use a new flag per turn.
type CancelFlag struct {
	set  atomic.Bool
	once sync.Once
	done chan struct{}
}

// NewCancelFlag returns an unset flag.
func NewCancelFlag() *CancelFlag {
	return &CancelFlag{done: make(chan struct{})}
}

// Cancel sets the flag.
func (f *CancelFlag) Cancel() {
	f.once.Do(func() {
		f.set.Store(true)
		close(f.done)
	})
}

// IsSet reports whether Cancel was called.
func (f *CancelFlag) IsSet() bool {
	return f.set.Load()
}

// Done is closed once the flag is set.
func (f *CancelFlag) Done() <-chan struct{} {
	return f.done
}

// Context derives a context from parent that is cancelled when the flag is
// set.
func (f *CancelFlag) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-f.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
