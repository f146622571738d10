package deque

import (
	"context"
	"errors"
	"fmt"

	"github.com/rzbill/flodq/internal/poll"
	"github.com/rzbill/flodq/pkg/log"
)

var (
	ErrInvalidArgument   = poll.ErrInvalidArgument
	ErrConnectionFailure = poll.ErrConnectionFailure
	ErrLostElement       = poll.ErrLostElement

	// ErrCancelled is the coordinator's cancellation cause. Futures report
	// cancellation as Result.Cancelled instead.
	ErrCancelled = poll.ErrCancelled
	// ErrDecode marks an element that was taken from its queue but could not
	// be decoded.
	ErrDecode = errors.New("deque: decode element")
)

// Option configures a BlockingDeque.
type Option[V any] func(*BlockingDeque[V])

// WithCodec replaces the JSON codec.
func WithCodec[V any](c Codec[V]) Option[V] {
	return func(d *BlockingDeque[V]) { d.codec = c }
}

// WithLogger sets the logger used by the deque and its coordinator.
func WithLogger[V any](l log.Logger) Option[V] {
	return func(d *BlockingDeque[V]) { d.logger = l }
}

// CoordinatorOption tunes the coordinator New builds for a deque.
type CoordinatorOption = poll.Option

// OnLostElement is called for every element that left its queue without
// reaching a caller.
func OnLostElement(fn func(*LostElementError)) CoordinatorOption {
	return poll.WithLostElementHandler(fn)
}

// RecordInto sends poll outcomes and ticket counts to m.
func RecordInto(m *Metrics) CoordinatorOption { return poll.WithRecorder(m) }

// WithCoordinatorOptions passes extra options to the coordinator built by
// New. Deques from Get share their client's coordinator and ignore them.
func WithCoordinatorOptions[V any](opts ...CoordinatorOption) Option[V] {
	return func(d *BlockingDeque[V]) { d.coordOpts = append(d.coordOpts, opts...) }
}

func withCoordinator[V any](c *poll.Coordinator) Option[V] {
	return func(d *BlockingDeque[V]) { d.coord = c }
}

// BlockingDeque is a named remote deque with blocking reads. Every poll
// returns a Future at once; waiting happens in the store proxy.
type BlockingDeque[V any] struct {
	name      string
	store     poll.Store
	coord     *poll.Coordinator
	codec     Codec[V]
	logger    log.Logger
	coordOpts []poll.Option
}

// New returns the deque called name on store.
func New[V any](name string, store poll.Store, opts ...Option[V]) (*BlockingDeque[V], error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty deque name", ErrInvalidArgument)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidArgument)
	}
	d := &BlockingDeque[V]{name: name, store: store}
	for _, o := range opts {
		o(d)
	}
	if d.codec == nil {
		d.codec = JSONCodec[V]{}
	}
	if d.logger == nil {
		d.logger = log.NewNopLogger()
	}
	d.logger = d.logger.With(log.Component("deque"), log.Queue(name))
	if d.coord == nil {
		d.coord = poll.NewCoordinator(store, append([]poll.Option{poll.WithLogger(d.logger)}, d.coordOpts...)...)
	}
	return d, nil
}

// Name returns the deque's own queue name.
func (d *BlockingDeque[V]) Name() string { return d.name }

func (d *BlockingDeque[V]) deadline(timeout int64, unit TimeUnit) (poll.Deadline, error) {
	if timeout < 0 {
		return poll.Deadline{}, fmt.Errorf("%w: negative timeout %d%s", ErrInvalidArgument, timeout, unit)
	}
	if !unit.valid() {
		return poll.Deadline{}, fmt.Errorf("%w: %s", ErrInvalidArgument, unit)
	}
	dur, ok := unit.Duration(timeout)
	if !ok {
		// past the range of time.Time arithmetic; nothing can tell it apart
		return poll.Infinite(), nil
	}
	return poll.After(dur), nil
}

func (d *BlockingDeque[V]) poll(ctx context.Context, names []string, end poll.End, deadline poll.Deadline) *Future[V] {
	req := d.coord.PollFromAny(ctx, names, end, deadline)
	d.logger.Debug("poll issued",
		log.Str("request", req.ID.Short()),
		log.Str("end", end.String()),
		log.Int("queues", len(req.Queues)),
		log.Str("deadline", deadline.String()))
	return newFuture(req, d.codec)
}

func (d *BlockingDeque[V]) fromAny(ctx context.Context, end poll.End, timeout int64, unit TimeUnit, others []string) *Future[V] {
	deadline, err := d.deadline(timeout, unit)
	if err != nil {
		return failedFuture[V](err)
	}
	names := make([]string, 0, len(others)+1)
	names = append(names, d.name)
	names = append(names, others...)
	return d.poll(ctx, names, end, deadline)
}

// PollFirstFromAny takes the head element of whichever queue, this one
// included and consulted first, yields one before the timeout. Duplicate
// names are collapsed.
func (d *BlockingDeque[V]) PollFirstFromAny(ctx context.Context, timeout int64, unit TimeUnit, queueNames ...string) *Future[V] {
	return d.fromAny(ctx, poll.Head, timeout, unit, queueNames)
}

// PollLastFromAny is PollFirstFromAny from the tail.
func (d *BlockingDeque[V]) PollLastFromAny(ctx context.Context, timeout int64, unit TimeUnit, queueNames ...string) *Future[V] {
	return d.fromAny(ctx, poll.Tail, timeout, unit, queueNames)
}

// PollFirst takes the head element, waiting up to timeout. A zero timeout
// checks once.
func (d *BlockingDeque[V]) PollFirst(ctx context.Context, timeout int64, unit TimeUnit) *Future[V] {
	return d.fromAny(ctx, poll.Head, timeout, unit, nil)
}

// PollLast takes the tail element, waiting up to timeout.
func (d *BlockingDeque[V]) PollLast(ctx context.Context, timeout int64, unit TimeUnit) *Future[V] {
	return d.fromAny(ctx, poll.Tail, timeout, unit, nil)
}

// TakeFirst waits without limit for the head element.
func (d *BlockingDeque[V]) TakeFirst(ctx context.Context) *Future[V] {
	return d.poll(ctx, []string{d.name}, poll.Head, poll.Infinite())
}

// TakeLast waits without limit for the tail element.
func (d *BlockingDeque[V]) TakeLast(ctx context.Context) *Future[V] {
	return d.poll(ctx, []string{d.name}, poll.Tail, poll.Infinite())
}

func (d *BlockingDeque[V]) put(ctx context.Context, end poll.End, v V) error {
	b, err := d.codec.Encode(v)
	if err != nil {
		return fmt.Errorf("deque: encode: %w", err)
	}
	return d.store.Push(ctx, d.name, end, b)
}

// PutFirst pushes v at the head.
func (d *BlockingDeque[V]) PutFirst(ctx context.Context, v V) error { return d.put(ctx, poll.Head, v) }

// PutLast pushes v at the tail.
func (d *BlockingDeque[V]) PutLast(ctx context.Context, v V) error { return d.put(ctx, poll.Tail, v) }

// Len returns the number of elements in this queue.
func (d *BlockingDeque[V]) Len(ctx context.Context) (int, error) { return d.store.Len(ctx, d.name) }
