package poll

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rzbill/flodq/pkg/id"
)

// End selects the head or tail of a deque.
type End uint8

const (
	Head End = iota
	Tail
)

func (e End) String() string {
	if e == Tail {
		return "tail"
	}
	return "head"
}

// ParseEnd accepts "head"/"first" and "tail"/"last".
func ParseEnd(s string) (End, bool) {
	switch s {
	case "head", "first", "":
		return Head, true
	case "tail", "last":
		return Tail, true
	}
	return Head, false
}

// TicketState is the lifecycle of one wait.
type TicketState int32

const (
	TicketPending TicketState = iota
	TicketFulfilled
	TicketCancelled
	TicketFailed
)

func (s TicketState) String() string {
	switch s {
	case TicketPending:
		return "PENDING"
	case TicketFulfilled:
		return "FULFILLED"
	case TicketCancelled:
		return "CANCELLED"
	case TicketFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

type eventKind uint8

const (
	eventFulfilled eventKind = iota
	eventFailed
)

type event struct {
	kind    eventKind
	ticket  *Ticket
	payload []byte
	err     error
}

// group is shared by the tickets of one request. winner is the claim guard:
// the first successful CompareAndSwap from nil decides the request. The
// coordinator stores closedGroup to decide it without a winner.
type group struct {
	requestID id.ID
	winner    atomic.Pointer[Ticket]
	events    chan event
	lost      func(*LostElementError)
	requeued  func(*Ticket)
}

var closedGroup = &Ticket{}

func newGroup(requestID id.ID, size int) *group {
	return &group{requestID: requestID, events: make(chan event, size)}
}

// close decides the group without a winner. It fails if a ticket already
// claimed it.
func (g *group) close() bool {
	return g.winner.CompareAndSwap(nil, closedGroup)
}

// Ticket is one in-flight wait on one queue, owned by a Request. Proxies
// drive it: TryClaim before removing an element, then exactly one of
// Deliver or Fail. An element removed without a successful claim goes back
// to the store, or to ReportLost when that is impossible.
type Ticket struct {
	ID        id.ID
	Queue     string
	End       End
	CreatedAt time.Time

	state    atomic.Int32
	group    *group
	done     chan struct{}
	doneOnce sync.Once
}

func newTicket(g *group, ticketID id.ID, queue string, end End) *Ticket {
	return &Ticket{
		ID:        ticketID,
		Queue:     queue,
		End:       end,
		CreatedAt: time.Now(),
		group:     g,
		done:      make(chan struct{}),
	}
}

// State returns the current state.
func (t *Ticket) State() TicketState { return TicketState(t.state.Load()) }

// Done is closed once the ticket reaches a terminal state.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// RequestID returns the owning request's ID.
func (t *Ticket) RequestID() id.ID { return t.group.requestID }

func (t *Ticket) finish(to TicketState) bool {
	if !t.state.CompareAndSwap(int32(TicketPending), int32(to)) {
		return false
	}
	t.doneOnce.Do(func() { close(t.done) })
	return true
}

// TryClaim makes t the winner of its request. It succeeds at most once per
// request; repeated calls by the winner keep returning true until it leaves
// PENDING.
func (t *Ticket) TryClaim() bool {
	if t.State() != TicketPending {
		return false
	}
	if t.group.winner.CompareAndSwap(nil, t) {
		return true
	}
	return t.group.winner.Load() == t
}

// Claimed reports whether t holds its request's claim.
func (t *Ticket) Claimed() bool { return t.group.winner.Load() == t }

// Deliver fulfills a claimed ticket with payload. It never blocks.
func (t *Ticket) Deliver(payload []byte) bool {
	if !t.Claimed() || !t.finish(TicketFulfilled) {
		return false
	}
	t.group.events <- event{kind: eventFulfilled, ticket: t, payload: payload}
	return true
}

// Fail moves a pending ticket to FAILED. It never blocks.
func (t *Ticket) Fail(err error) bool {
	if !t.finish(TicketFailed) {
		return false
	}
	t.group.events <- event{kind: eventFailed, ticket: t, err: err}
	return true
}

// Cancel moves a pending, unclaimed ticket to CANCELLED. It is idempotent
// and reports whether this call made the transition. A claimed ticket
// cannot be cancelled; its element is already on the way.
func (t *Ticket) Cancel() bool {
	if t.Claimed() {
		return false
	}
	return t.finish(TicketCancelled)
}

// ReportRequeued records that an element removed for t went back to its
// queue.
func (t *Ticket) ReportRequeued() {
	if t.group.requeued != nil {
		t.group.requeued(t)
	}
}

// ReportLost surfaces an element removed for t that could not be returned.
func (t *Ticket) ReportLost(payload []byte, cause error) {
	if t.group.lost == nil {
		return
	}
	t.group.lost(&LostElementError{
		RequestID: t.group.requestID,
		Queue:     t.Queue,
		End:       t.End,
		Payload:   payload,
		Cause:     cause,
	})
}
