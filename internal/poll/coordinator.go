package poll

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rzbill/flodq/pkg/id"
	"github.com/rzbill/flodq/pkg/log"
)

// RequestState is the lifecycle of a poll request.
type RequestState int32

const (
	RequestCreated RequestState = iota
	RequestWaiting
	RequestFulfilled
	RequestTimedOut
	RequestCancelled
	RequestFailed
)

func (s RequestState) String() string {
	switch s {
	case RequestCreated:
		return "CREATED"
	case RequestWaiting:
		return "WAITING"
	case RequestFulfilled:
		return "FULFILLED"
	case RequestTimedOut:
		return "TIMED_OUT"
	case RequestCancelled:
		return "CANCELLED"
	case RequestFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// Terminal reports whether s is final.
func (s RequestState) Terminal() bool { return s >= RequestFulfilled }

// Recorder observes coordinator activity.
type Recorder interface {
	ObserveOutcome(kind OutcomeKind, elapsed time.Duration)
	TicketIssued(queue string)
	TicketCancelled(queue string)
	ElementRequeued(queue string)
	ElementLost(queue string)
}

type noopRecorder struct{}

func (noopRecorder) ObserveOutcome(OutcomeKind, time.Duration) {}
func (noopRecorder) TicketIssued(string)                       {}
func (noopRecorder) TicketCancelled(string)                    {}
func (noopRecorder) ElementRequeued(string)                    {}
func (noopRecorder) ElementLost(string)                        {}

// Coordinator races waits across queues through a Proxy.
type Coordinator struct {
	proxy    Proxy
	logger   log.Logger
	recorder Recorder
	ids      *id.Generator
	onLost   func(*LostElementError)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithLogger(l log.Logger) Option { return func(c *Coordinator) { c.logger = l } }

func WithRecorder(r Recorder) Option { return func(c *Coordinator) { c.recorder = r } }

// WithLostElementHandler is called for every element that could not be
// returned to its queue, after it has been logged.
func WithLostElementHandler(fn func(*LostElementError)) Option {
	return func(c *Coordinator) { c.onLost = fn }
}

// NewCoordinator returns a Coordinator over proxy.
func NewCoordinator(proxy Proxy, opts ...Option) *Coordinator {
	c := &Coordinator{
		proxy:    proxy,
		logger:   log.NewNopLogger(),
		recorder: noopRecorder{},
		ids:      id.NewGenerator(),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.WithComponent("poll")
	return c
}

// Request is one pollFromAny call. Its Outcome is available once Done is
// closed.
type Request struct {
	ID       id.ID
	Queues   []string
	End      End
	Deadline Deadline

	state   atomic.Int32
	tickets []*Ticket
	outcome Outcome
	done    chan struct{}
	cancel  context.CancelCauseFunc
	started time.Time
}

// State returns the current state.
func (r *Request) State() RequestState { return RequestState(r.state.Load()) }

// Done is closed once the outcome is set.
func (r *Request) Done() <-chan struct{} { return r.done }

// Outcome returns the result. It is only meaningful after Done.
func (r *Request) Outcome() Outcome { return r.outcome }

// Wait blocks until the outcome is set or ctx ends; ctx ending does not
// cancel the request.
func (r *Request) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-r.done:
		return r.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Cancel withdraws the request. Pending waits are cancelled without
// touching the queues; if a ticket already claimed an element the request
// still completes with it.
func (r *Request) Cancel() { r.cancel(ErrCancelled) }

// Tickets returns the tickets issued so far. For inspection only.
func (r *Request) Tickets() []*Ticket { return r.tickets }

// dedupe collapses duplicates and keeps first-seen order.
func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// PollFromAny starts a request for the next element at end of whichever
// queue produces one first, bounded by deadline. It never blocks. Invalid
// arguments complete the request with ErrInvalidArgument.
func (c *Coordinator) PollFromAny(ctx context.Context, queues []string, end End, deadline Deadline) *Request {
	rctx, cancel := context.WithCancelCause(ctx)
	r := &Request{
		ID:       c.ids.Next(),
		Queues:   dedupe(queues),
		End:      end,
		Deadline: deadline,
		done:     make(chan struct{}),
		cancel:   cancel,
		started:  time.Now(),
	}

	if err := validate(r.Queues, end); err != nil {
		c.complete(r, RequestFailed, errorOutcome(err))
		cancel(nil)
		return r
	}

	if deadline.Expired(r.started) {
		go c.tryOnce(rctx, r)
	} else {
		go c.run(rctx, r)
	}
	return r
}

func validate(queues []string, end End) error {
	if len(queues) == 0 {
		return fmt.Errorf("%w: no queue names", ErrInvalidArgument)
	}
	for _, q := range queues {
		if q == "" {
			return fmt.Errorf("%w: empty queue name", ErrInvalidArgument)
		}
	}
	if end != Head && end != Tail {
		return fmt.Errorf("%w: unknown end %d", ErrInvalidArgument, end)
	}
	return nil
}

func (c *Coordinator) complete(r *Request, state RequestState, o Outcome) {
	r.outcome = o
	r.state.Store(int32(state))
	c.recorder.ObserveOutcome(o.Kind, time.Since(r.started))
	if o.Kind == OutcomeError {
		c.logger.Warn("poll failed", log.Str("request", r.ID.Short()), log.Err(o.Err))
	} else {
		c.logger.Debug("poll complete", log.Str("request", r.ID.Short()), log.Str("outcome", o.String()))
	}
	close(r.done)
}

// tryOnce checks each queue once, in order, without registering waits.
func (c *Coordinator) tryOnce(ctx context.Context, r *Request) {
	defer r.cancel(nil)
	r.state.Store(int32(RequestWaiting))
	for _, q := range r.Queues {
		if err := ctx.Err(); err != nil {
			c.complete(r, RequestCancelled, cancelledOutcome(context.Cause(ctx)))
			return
		}
		v, ok, err := c.proxy.TryPoll(ctx, q, r.End)
		if err != nil {
			c.complete(r, RequestFailed, errorOutcome(err))
			return
		}
		if ok {
			c.complete(r, RequestFulfilled, elementOutcome(v, q))
			return
		}
	}
	c.complete(r, RequestTimedOut, emptyOutcome())
}

func (c *Coordinator) handleLost(le *LostElementError) {
	c.recorder.ElementLost(le.Queue)
	c.logger.Error("element lost",
		log.Queue(le.Queue),
		log.Str("request", le.RequestID.String()),
		log.Str("end", le.End.String()),
		log.Int("bytes", len(le.Payload)),
		log.Err(le.Cause))
	if c.onLost != nil {
		c.onLost(le)
	}
}

func (c *Coordinator) run(ctx context.Context, r *Request) {
	defer r.cancel(nil)

	g := newGroup(r.ID, len(r.Queues))
	g.lost = c.handleLost
	g.requeued = func(t *Ticket) {
		c.recorder.ElementRequeued(t.Queue)
		c.logger.Debug("element requeued", log.Queue(t.Queue), log.Str("request", r.ID.Short()))
	}

	for _, q := range r.Queues {
		t := newTicket(g, c.ids.Next(), q, r.End)
		r.tickets = append(r.tickets, t)
		if g.winner.Load() != nil {
			// decided during registration; nothing left to wait for
			t.Cancel()
			continue
		}
		c.recorder.TicketIssued(q)
		if err := c.proxy.BeginWait(ctx, t); err != nil {
			t.Fail(err)
		}
	}
	r.state.Store(int32(RequestWaiting))

	var timeout <-chan time.Time
	if !r.Deadline.IsInfinite() {
		timer := time.NewTimer(r.Deadline.Remaining(time.Now()))
		defer timer.Stop()
		timeout = timer.C
	}
	cancelled := ctx.Done()

	// Once a ticket holds the claim, timeout and cancellation are ignored
	// until it delivers or fails.
	for {
		select {
		case ev := <-g.events:
			switch ev.kind {
			case eventFulfilled:
				c.cancelTickets(r, ev.ticket)
				c.complete(r, RequestFulfilled, elementOutcome(ev.payload, ev.ticket.Queue))
				return
			case eventFailed:
				if g.close() || g.winner.Load() == ev.ticket {
					c.cancelTickets(r, ev.ticket)
					c.complete(r, RequestFailed, errorOutcome(ev.err))
					return
				}
				// a loser failed after the claim was taken
				c.logger.Debug("losing ticket failed", log.Queue(ev.ticket.Queue), log.Err(ev.err))
			}
		case <-timeout:
			timeout = nil
			if g.close() {
				c.cancelTickets(r, nil)
				c.complete(r, RequestTimedOut, emptyOutcome())
				return
			}
			cancelled = nil
		case <-cancelled:
			cancelled = nil
			if g.close() {
				c.cancelTickets(r, nil)
				c.complete(r, RequestCancelled, cancelledOutcome(causeOf(ctx)))
				return
			}
			timeout = nil
		}
	}
}

func causeOf(ctx context.Context) error {
	cause := context.Cause(ctx)
	if errors.Is(cause, ErrCancelled) {
		return nil
	}
	return cause
}

// cancelTickets drives every ticket except keep to a terminal state and
// releases its wait.
func (c *Coordinator) cancelTickets(r *Request, keep *Ticket) {
	for _, t := range r.tickets {
		if t == keep {
			continue
		}
		if t.Cancel() {
			c.recorder.TicketCancelled(t.Queue)
		}
		c.proxy.CancelWait(t)
	}
}
