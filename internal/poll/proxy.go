package poll

import "context"

// Proxy issues single-queue waits against a remote store.
//
// BeginWait registers t and returns without blocking; completion arrives
// through the ticket (TryClaim, then Deliver or Fail). It must tolerate
// CancelWait arriving before the store has acknowledged the registration.
// CancelWait is idempotent: it cancels a pending ticket and releases what
// the store holds for it without removing any element. It is a no-op for a
// ticket that is already terminal.
type Proxy interface {
	BeginWait(ctx context.Context, t *Ticket) error
	CancelWait(t *Ticket)
	// TryPoll removes the element at end of queue if one is present, without
	// waiting.
	TryPoll(ctx context.Context, queue string, end End) ([]byte, bool, error)
}

// Store is a Proxy that can also push.
type Store interface {
	Proxy
	Push(ctx context.Context, queue string, end End, payload []byte) error
	Len(ctx context.Context, queue string) (int, error)
	Close() error
}
