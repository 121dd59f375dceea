// Package shutdown provides the cooperative cancellation flag shared by the
// flow runner, its executors and the UI.
//
// A Flag is set once and stays set. Setting it never depends on anyone
// listening: a receiver created after Set still observes it, which is why the
// flag is backed by a context rather than a broadcast channel of messages.
package shutdown

import (
	"context"
	"errors"
)

// ErrSignaled is returned by operations that stopped because the flag was set.
var ErrSignaled = errors.New("shutdown signaled")

// Flag is a one-way cancellation flag. The zero value is not usable; create
// flags with New.
type Flag struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// New returns an unset flag.
func New() *Flag {
	ctx, cancel := context.WithCancel(context.Background())
	return &Flag{ctx: ctx, cancel: cancel}
}

// Set raises the flag. It is safe to call from any goroutine, any number of times.
func (f *Flag) Set() {
	f.cancel()
}

// IsSet reports whether Set has been called.
func (f *Flag) IsSet() bool {
	return f.ctx.Err() != nil
}

// Done returns a channel that is closed once the flag is set.
func (f *Flag) Done() <-chan struct{} {
	return f.ctx.Done()
}

// Context returns a context that is cancelled when the flag is set.
func (f *Flag) Context() context.Context {
	return f.ctx
}
