// Package task provides a cancellable handle for a single asynchronous call.
package task

import (
	"context"
	"sync"
)

// Task is the handle of one asynchronous call producing a T. It completes
// exactly once.
type Task[T any] struct {
	cancel context.CancelFunc
	done   chan struct{}

	once  sync.Once
	value T
	err   error
}

// Go runs fn on a new goroutine with a context derived from parent. Cancel
// cancels that context.
func Go[T any](parent context.Context, fn func(ctx context.Context) (T, error)) *Task[T] {
	ctx, cancel := context.WithCancel(parent)
	t := &Task[T]{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer cancel()
		v, err := fn(ctx)
		t.complete(v, err)
	}()
	return t
}

// Done returns a value already resolved.
func Done[T any](v T, err error) *Task[T] {
	t := &Task[T]{cancel: func() {}, done: make(chan struct{})}
	t.complete(v, err)
	return t
}

func (t *Task[T]) complete(v T, err error) {
	t.once.Do(func() {
		t.value, t.err = v, err
		close(t.done)
	})
}

// Done returns a channel closed when the task completes.
func (t *Task[T]) Done() <-chan struct{} { return t.done }

// Cancel requests cancellation. The task still completes, typically with an
// error wrapping [context.Canceled].
func (t *Task[T]) Cancel() { t.cancel() }

// Wait blocks until the task completes or ctx ends. A ctx that ends first
// does not cancel the task.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
