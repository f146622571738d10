package poll

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeProxy is an in-memory store with FIFO waiters, enough to drive the
// coordinator through every exit path.
type fakeProxy struct {
	mu         sync.Mutex
	queues     map[string][][]byte
	waiting    map[string][]*Ticket
	begun      []*Ticket
	beginErr   map[string]error
	tryErr     error
	requeueErr error
}

func newFakeProxy() *fakeProxy {
	return &fakeProxy{
		queues:   make(map[string][][]byte),
		waiting:  make(map[string][]*Ticket),
		beginErr: make(map[string]error),
	}
}

func (f *fakeProxy) BeginWait(_ context.Context, t *Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.beginErr[t.Queue]; err != nil {
		return err
	}
	f.begun = append(f.begun, t)
	if len(f.waiting[t.Queue]) == 0 && len(f.queues[t.Queue]) > 0 {
		if t.TryClaim() {
			t.Deliver(f.popLocked(t.Queue, t.End))
		}
		return nil
	}
	f.waiting[t.Queue] = append(f.waiting[t.Queue], t)
	return nil
}

func (f *fakeProxy) CancelWait(t *Ticket) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.Cancel()
	ws := f.waiting[t.Queue]
	for i, w := range ws {
		if w == t {
			f.waiting[t.Queue] = append(ws[:i:i], ws[i+1:]...)
			return
		}
	}
}

func (f *fakeProxy) TryPoll(_ context.Context, queue string, end End) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tryErr != nil {
		return nil, false, f.tryErr
	}
	if len(f.queues[queue]) == 0 {
		return nil, false, nil
	}
	return f.popLocked(queue, end), true, nil
}

func (f *fakeProxy) popLocked(queue string, end End) []byte {
	q := f.queues[queue]
	var v []byte
	if end == Tail {
		v, f.queues[queue] = q[len(q)-1], q[:len(q)-1]
	} else {
		v, f.queues[queue] = q[0], q[1:]
	}
	return v
}

func (f *fakeProxy) push(queue string, v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues[queue] = append(f.queues[queue], []byte(v))
	for len(f.queues[queue]) > 0 && len(f.waiting[queue]) > 0 {
		t := f.waiting[queue][0]
		f.waiting[queue] = f.waiting[queue][1:]
		if t.TryClaim() {
			t.Deliver(f.popLocked(queue, t.End))
		}
	}
}

// popUnclaimed removes an element for the first waiter on queue before
// asking for the claim, the way a store without server-side claims does.
func (f *fakeProxy) popUnclaimed(queue string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.waiting[queue][0]
	f.waiting[queue] = f.waiting[queue][1:]
	v := f.popLocked(queue, t.End)
	if t.TryClaim() {
		t.Deliver(v)
		return
	}
	if f.requeueErr != nil {
		t.ReportLost(v, f.requeueErr)
		return
	}
	f.queues[queue] = append([][]byte{v}, f.queues[queue]...)
	t.ReportRequeued()
}

// claimFirst claims for the first waiter on queue without delivering.
func (f *fakeProxy) claimFirst(queue string) *Ticket {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.waiting[queue][0]
	f.waiting[queue] = f.waiting[queue][1:]
	if !t.TryClaim() {
		return nil
	}
	return t
}

func (f *fakeProxy) fail(queue string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.waiting[queue][0]
	f.waiting[queue] = f.waiting[queue][1:]
	t.Fail(err)
}

func (f *fakeProxy) len(queue string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queues[queue])
}

func (f *fakeProxy) waiters(queue string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiting[queue])
}

func (f *fakeProxy) seed(queue string, vs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range vs {
		f.queues[queue] = append(f.queues[queue], []byte(v))
	}
}

type countingRecorder struct {
	mu                                        sync.Mutex
	outcomes                                  map[OutcomeKind]int
	issued, cancelled, requeued, lost         int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{outcomes: make(map[OutcomeKind]int)}
}

func (r *countingRecorder) ObserveOutcome(k OutcomeKind, _ time.Duration) {
	r.mu.Lock()
	r.outcomes[k]++
	r.mu.Unlock()
}
func (r *countingRecorder) TicketIssued(string)    { r.mu.Lock(); r.issued++; r.mu.Unlock() }
func (r *countingRecorder) TicketCancelled(string) { r.mu.Lock(); r.cancelled++; r.mu.Unlock() }
func (r *countingRecorder) ElementRequeued(string) { r.mu.Lock(); r.requeued++; r.mu.Unlock() }
func (r *countingRecorder) ElementLost(string)     { r.mu.Lock(); r.lost++; r.mu.Unlock() }

var errBoom = errors.New("boom")
