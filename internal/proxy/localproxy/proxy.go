// Package localproxy serves poll tickets from an in-process store engine.
// The claim is evaluated by the engine right before it pops, so an element
// is never removed for a ticket that lost its request.
package localproxy

import (
	"context"
	"sync"

	"github.com/rzbill/flodq/internal/poll"
	"github.com/rzbill/flodq/internal/store"
	"github.com/rzbill/flodq/pkg/log"
)

// Proxy implements poll.Store over a *store.Engine.
type Proxy struct {
	engine *store.Engine
	logger log.Logger

	mu      sync.Mutex
	handles map[*poll.Ticket]*store.WaitHandle
}

var _ poll.Store = (*Proxy)(nil)

// New returns a Proxy over engine. The engine stays owned by the caller.
func New(engine *store.Engine, logger log.Logger) *Proxy {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Proxy{
		engine:  engine,
		logger:  logger.WithComponent("proxy.local"),
		handles: make(map[*poll.Ticket]*store.WaitHandle),
	}
}

// ToStoreEnd maps a poll end onto the engine's.
func ToStoreEnd(e poll.End) store.End {
	if e == poll.Tail {
		return store.Tail
	}
	return store.Head
}

func (p *Proxy) forget(t *poll.Ticket) *store.WaitHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := p.handles[t]
	delete(p.handles, t)
	return h
}

func (p *Proxy) BeginWait(ctx context.Context, t *poll.Ticket) error {
	h, err := p.engine.Wait(ctx, t.Queue, store.Waiter{
		End:   ToStoreEnd(t.End),
		Claim: t.TryClaim,
		Deliver: func(el store.Element) {
			p.forget(t)
			t.Deliver(el.Payload)
		},
		Fail: func(err error) {
			p.forget(t)
			t.Fail(err)
		},
	})
	if err != nil {
		return err
	}
	if t.State() != poll.TicketPending {
		// served or cancelled while registering
		p.engine.Unwait(h)
		return nil
	}
	p.mu.Lock()
	p.handles[t] = h
	p.mu.Unlock()
	// the ticket may have been served or cancelled before the insert
	if t.State() != poll.TicketPending {
		if h := p.forget(t); h != nil {
			p.engine.Unwait(h)
		}
	}
	return nil
}

func (p *Proxy) CancelWait(t *poll.Ticket) {
	t.Cancel()
	if h := p.forget(t); h != nil {
		p.engine.Unwait(h)
	}
}

func (p *Proxy) TryPoll(ctx context.Context, queue string, end poll.End) ([]byte, bool, error) {
	el, ok, err := p.engine.TryPop(ctx, queue, ToStoreEnd(end))
	if err != nil || !ok {
		return nil, false, err
	}
	return el.Payload, true, nil
}

func (p *Proxy) Push(ctx context.Context, queue string, end poll.End, payload []byte) error {
	return p.engine.Push(ctx, queue, ToStoreEnd(end), payload)
}

func (p *Proxy) Len(_ context.Context, queue string) (int, error) {
	return p.engine.Len(queue)
}

// Close releases waits still registered through this proxy.
func (p *Proxy) Close() error {
	p.mu.Lock()
	handles := p.handles
	p.handles = make(map[*poll.Ticket]*store.WaitHandle)
	p.mu.Unlock()
	for t, h := range handles {
		if p.engine.Unwait(h) {
			t.Fail(store.ErrClosed)
		}
	}
	return nil
}
