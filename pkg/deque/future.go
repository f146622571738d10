package deque

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rzbill/flodq/internal/poll"
)

// Result is a completed poll. Found is false when the deadline passed
// without an element; Value then holds the zero V. Cancelled marks a poll
// withdrawn by Cancel or by its context; that is not an error.
type Result[V any] struct {
	Value     V
	Queue     string
	Found     bool
	Cancelled bool
}

// Future is the pending result of one poll. It completes exactly once.
type Future[V any] struct {
	req  *poll.Request
	done chan struct{}

	mu        sync.Mutex
	res       Result[V]
	err       error
	completed bool
	callbacks []func(Result[V], error)
}

func failedFuture[V any](err error) *Future[V] {
	f := &Future[V]{done: make(chan struct{})}
	f.complete(Result[V]{}, err)
	return f
}

func newFuture[V any](req *poll.Request, codec Codec[V]) *Future[V] {
	f := &Future[V]{req: req, done: make(chan struct{})}
	go f.resolve(codec)
	return f
}

func (f *Future[V]) resolve(codec Codec[V]) {
	<-f.req.Done()
	o := f.req.Outcome()
	switch o.Kind {
	case poll.OutcomeElement:
		v, err := codec.Decode(o.Value)
		if err != nil {
			f.complete(Result[V]{Queue: o.Queue}, fmt.Errorf("%w from %s: %w", ErrDecode, o.Queue, err))
			return
		}
		f.complete(Result[V]{Value: v, Queue: o.Queue, Found: true}, nil)
	case poll.OutcomeEmpty:
		f.complete(Result[V]{}, nil)
	case poll.OutcomeCancelled:
		f.complete(Result[V]{Cancelled: true}, nil)
	default:
		err := o.Err
		if err == nil {
			err = errors.New("deque: request failed")
		}
		f.complete(Result[V]{}, err)
	}
}

func (f *Future[V]) complete(res Result[V], err error) {
	f.mu.Lock()
	f.res, f.err, f.completed = res, err, true
	callbacks := f.callbacks
	f.callbacks = nil
	f.mu.Unlock()
	close(f.done)
	for _, fn := range callbacks {
		fn(res, err)
	}
}

// Done is closed when the result is available.
func (f *Future[V]) Done() <-chan struct{} { return f.done }

// Await blocks until the result is available or ctx ends. Leaving early
// does not cancel the poll; call Cancel for that.
func (f *Future[V]) Await(ctx context.Context) (Result[V], error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.res, f.err
	case <-ctx.Done():
		return Result[V]{}, ctx.Err()
	}
}

// Cancel withdraws the poll; the future completes with Result.Cancelled.
// Queues are left untouched unless an element was already claimed, in which
// case the future still completes with it.
func (f *Future[V]) Cancel() {
	if f.req != nil {
		f.req.Cancel()
	}
}

// OnComplete registers fn to run once with the result, on the goroutine
// that completes the future, or right away if it is already complete.
func (f *Future[V]) OnComplete(fn func(Result[V], error)) {
	f.mu.Lock()
	if !f.completed {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	res, err := f.res, f.err
	f.mu.Unlock()
	fn(res, err)
}

// ID identifies the underlying request in logs; empty for a future that
// failed validation.
func (f *Future[V]) ID() string {
	if f.req == nil {
		return ""
	}
	return f.req.ID.String()
}
