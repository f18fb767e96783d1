package capture

import (
	"context"
	"sync"
)

// Take is the completion handle of one recording lifecycle. It completes
// exactly once: on a clean stop, on an engine failure, or immediately when
// the take could not be started.
type Take struct {
	done chan struct{}
	once sync.Once
	rec  Recording
	ok   bool
}

func newTake() *Take {
	return &Take{done: make(chan struct{})}
}

func (t *Take) finish(rec Recording, ok bool) {
	t.once.Do(func() {
		t.rec = rec
		t.ok = ok
		close(t.done)
	})
}

// Done returns a channel that is closed when the take completes.
func (t *Take) Done() <-chan struct{} { return t.done }

// Result returns the finalized recording. ok is true only for a clean stop
// whose file was read back. Before completion Result returns a zero
// Recording and false.
func (t *Take) Result() (Recording, bool) {
	select {
	case <-t.done:
		return t.rec, t.ok
	default:
		return Recording{}, false
	}
}

// Wait blocks until the take completes or ctx ends.
func (t *Take) Wait(ctx context.Context) (Recording, bool, error) {
	select {
	case <-t.done:
		return t.rec, t.ok, nil
	case <-ctx.Done():
		return Recording{}, false, ctx.Err()
	}
}
