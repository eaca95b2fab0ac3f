package embedded

import (
	"context"
	"sync"
)

// Outcome is the eventual result of a Start or Stop.
//
// It is resolved exactly once; every reader observes the same error value.
// Waiting never cancels the underlying work.
type Outcome struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newOutcome() *Outcome {
	return &Outcome{done: make(chan struct{})}
}

func resolvedOutcome(err error) *Outcome {
	o := newOutcome()
	o.resolve(err)
	return o
}

// resolve assigns the result. Only the first call has an effect.
func (o *Outcome) resolve(err error) bool {
	resolved := false
	o.once.Do(func() {
		o.err = err
		close(o.done)
		resolved = true
	})
	return resolved
}

// Done returns a channel closed once the outcome is resolved.
func (o *Outcome) Done() <-chan struct{} {
	return o.done
}

// Resolved reports whether the outcome has been assigned.
func (o *Outcome) Resolved() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}

// Err returns the resolved error, or nil while the outcome is pending.
// A nil result only means success after Done is closed; use Wait otherwise.
func (o *Outcome) Err() error {
	select {
	case <-o.done:
		return o.err
	default:
		return nil
	}
}

// Wait blocks until the outcome is resolved or ctx is done.
// A ctx error is returned only when ctx ends first.
func (o *Outcome) Wait(ctx context.Context) error {
	select {
	case <-o.done:
		return o.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
