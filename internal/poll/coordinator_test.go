package poll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func await(t *testing.T, r *Request) Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	o, err := r.Wait(ctx)
	require.NoError(t, err, "request did not complete")
	return o
}

func waitRegistered(t *testing.T, f *fakeProxy, queues ...string) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, q := range queues {
			if f.waiters(q) == 0 {
				return false
			}
		}
		return true
	}, 2*time.Second, time.Millisecond)
}

func TestRejectsEmptyQueueList(t *testing.T) {
	c := NewCoordinator(newFakeProxy())
	o := await(t, c.PollFromAny(context.Background(), nil, Head, Infinite()))
	assert.Equal(t, OutcomeError, o.Kind)
	assert.ErrorIs(t, o.Err, ErrInvalidArgument)

	o = await(t, c.PollFromAny(context.Background(), []string{"a", ""}, Head, Infinite()))
	assert.ErrorIs(t, o.Err, ErrInvalidArgument)
}

func TestElementFromOnlyNonEmptyQueue(t *testing.T) {
	f := newFakeProxy()
	f.seed("A", "x")
	c := NewCoordinator(f)

	r := c.PollFromAny(context.Background(), []string{"A", "B"}, Head, After(time.Second))
	o := await(t, r)
	require.Equal(t, OutcomeElement, o.Kind)
	assert.Equal(t, "x", string(o.Value))
	assert.Equal(t, "A", o.Queue)
	assert.Equal(t, RequestFulfilled, r.State())

	assert.Zero(t, f.len("B"))
	assert.Zero(t, f.waiters("B"), "losing wait must be withdrawn")
	for _, tk := range r.Tickets() {
		if tk.Queue == "B" {
			assert.Equal(t, TicketCancelled, tk.State())
		}
	}
}

func TestTryOnceOnEmptyReturnsEmpty(t *testing.T) {
	f := newFakeProxy()
	c := NewCoordinator(f)
	start := time.Now()
	r := c.PollFromAny(context.Background(), []string{"A"}, Head, After(0))
	o := await(t, r)
	assert.Equal(t, OutcomeEmpty, o.Kind)
	assert.Equal(t, RequestTimedOut, r.State())
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, f.begun, "try-once must not register waits")
}

func TestTryOnceChecksEveryQueue(t *testing.T) {
	f := newFakeProxy()
	f.seed("C", "c1", "c2")
	c := NewCoordinator(f)
	o := await(t, c.PollFromAny(context.Background(), []string{"A", "B", "C"}, Tail, At(time.Now().Add(-time.Second))))
	require.Equal(t, OutcomeElement, o.Kind)
	assert.Equal(t, "c2", string(o.Value))
	assert.Equal(t, "C", o.Queue)
}

func TestTryOnceError(t *testing.T) {
	f := newFakeProxy()
	f.tryErr = ConnectionFailure(errBoom)
	o := await(t, NewCoordinator(f).PollFromAny(context.Background(), []string{"A"}, Head, After(0)))
	assert.Equal(t, OutcomeError, o.Kind)
	assert.ErrorIs(t, o.Err, ErrConnectionFailure)
}

func TestTimeoutYieldsEmptyAndWithdrawsWaits(t *testing.T) {
	f := newFakeProxy()
	rec := newCountingRecorder()
	c := NewCoordinator(f, WithRecorder(rec))
	r := c.PollFromAny(context.Background(), []string{"A", "B"}, Head, After(30*time.Millisecond))
	o := await(t, r)
	assert.Equal(t, OutcomeEmpty, o.Kind)
	assert.NoError(t, o.Err)
	assert.Equal(t, RequestTimedOut, r.State())
	assert.Zero(t, f.waiters("A"))
	assert.Zero(t, f.waiters("B"))
	assert.Equal(t, 2, rec.issued)
	assert.Equal(t, 2, rec.cancelled)
	assert.Equal(t, 1, rec.outcomes[OutcomeEmpty])
}

func TestObservesPushBeforeDeadline(t *testing.T) {
	f := newFakeProxy()
	c := NewCoordinator(f)
	r := c.PollFromAny(context.Background(), []string{"A"}, Head, After(time.Second))
	waitRegistered(t, f, "A")
	time.Sleep(20 * time.Millisecond)
	f.push("A", "late")
	o := await(t, r)
	require.Equal(t, OutcomeElement, o.Kind)
	assert.Equal(t, "late", string(o.Value))
}

func TestSimultaneousPushesYieldOneWinner(t *testing.T) {
	for i := 0; i < 50; i++ {
		f := newFakeProxy()
		c := NewCoordinator(f)
		r := c.PollFromAny(context.Background(), []string{"A", "B", "C"}, Head, Infinite())
		waitRegistered(t, f, "A", "B", "C")

		var wg sync.WaitGroup
		for _, q := range []string{"A", "B"} {
			wg.Add(1)
			go func(q string) {
				defer wg.Done()
				f.push(q, "v-"+q)
			}(q)
		}
		wg.Wait()

		o := await(t, r)
		require.Equal(t, OutcomeElement, o.Kind)
		loser := "B"
		if o.Queue == "B" {
			loser = "A"
		}
		assert.Zero(t, f.len(o.Queue))
		assert.Equal(t, 1, f.len(loser), "losing element must remain")
		assert.Zero(t, f.len("C"))
	}
}

func TestCancelLeavesQueuesUntouched(t *testing.T) {
	f := newFakeProxy()
	f.seed("Z", "keep")
	c := NewCoordinator(f)
	r := c.PollFromAny(context.Background(), []string{"A", "B"}, Head, Infinite())
	waitRegistered(t, f, "A", "B")

	r.Cancel()
	o := await(t, r)
	assert.Equal(t, OutcomeCancelled, o.Kind)
	assert.ErrorIs(t, o.Err, ErrCancelled)
	assert.Equal(t, RequestCancelled, r.State())
	for _, tk := range r.Tickets() {
		assert.Equal(t, TicketCancelled, tk.State())
	}
	assert.Zero(t, f.waiters("A"))
	assert.Zero(t, f.waiters("B"))

	// a push after cancellation stays in the queue
	f.push("A", "after")
	assert.Equal(t, 1, f.len("A"))
	assert.Equal(t, 1, f.len("Z"))
}

func TestParentContextCancels(t *testing.T) {
	f := newFakeProxy()
	ctx, cancel := context.WithCancel(context.Background())
	r := NewCoordinator(f).PollFromAny(ctx, []string{"A"}, Head, Infinite())
	waitRegistered(t, f, "A")
	cancel()
	o := await(t, r)
	assert.Equal(t, OutcomeCancelled, o.Kind)
	assert.ErrorIs(t, o.Err, ErrCancelled)
	assert.ErrorIs(t, o.Err, context.Canceled)
}

func TestConnectionFailureTerminatesRequest(t *testing.T) {
	f := newFakeProxy()
	r := NewCoordinator(f).PollFromAny(context.Background(), []string{"A", "B"}, Head, Infinite())
	waitRegistered(t, f, "A", "B")
	f.fail("A", ConnectionFailure(errBoom))

	o := await(t, r)
	assert.Equal(t, OutcomeError, o.Kind)
	assert.ErrorIs(t, o.Err, ErrConnectionFailure)
	assert.ErrorIs(t, o.Err, errBoom)
	assert.Equal(t, RequestFailed, r.State())
	assert.Zero(t, f.waiters("B"))

	f.push("B", "x")
	assert.Equal(t, 1, f.len("B"), "element pushed after failure stays queued")
}

func TestBeginWaitErrorFailsRequest(t *testing.T) {
	f := newFakeProxy()
	f.beginErr["B"] = ConnectionFailure(errBoom)
	r := NewCoordinator(f).PollFromAny(context.Background(), []string{"A", "B"}, Head, Infinite())
	o := await(t, r)
	assert.ErrorIs(t, o.Err, ErrConnectionFailure)
	assert.Zero(t, f.waiters("A"))
}

func TestLoserElementIsRequeued(t *testing.T) {
	f := newFakeProxy()
	rec := newCountingRecorder()
	r := NewCoordinator(f, WithRecorder(rec)).PollFromAny(context.Background(), []string{"A", "B"}, Head, Infinite())
	waitRegistered(t, f, "A", "B")

	f.seed("B", "b")
	winner := f.claimFirst("A")
	require.NotNil(t, winner)
	f.popUnclaimed("B")
	winner.Deliver([]byte("a"))

	o := await(t, r)
	assert.Equal(t, "A", o.Queue)
	assert.Equal(t, 1, f.len("B"))
	assert.Equal(t, 1, rec.requeued)
	assert.Zero(t, rec.lost)
}

func TestFailedRequeueSurfacesLostElement(t *testing.T) {
	f := newFakeProxy()
	f.requeueErr = errBoom
	rec := newCountingRecorder()
	var lost []*LostElementError
	var mu sync.Mutex
	c := NewCoordinator(f, WithRecorder(rec), WithLostElementHandler(func(le *LostElementError) {
		mu.Lock()
		lost = append(lost, le)
		mu.Unlock()
	}))
	r := c.PollFromAny(context.Background(), []string{"A", "B"}, Head, Infinite())
	waitRegistered(t, f, "A", "B")

	f.seed("B", "b")
	winner := f.claimFirst("A")
	f.popUnclaimed("B")
	winner.Deliver([]byte("a"))
	await(t, r)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, lost, 1)
	assert.Equal(t, "B", lost[0].Queue)
	assert.Equal(t, "b", string(lost[0].Payload))
	assert.Equal(t, r.ID, lost[0].RequestID)
	assert.True(t, errors.Is(lost[0], ErrLostElement))
	assert.True(t, errors.Is(lost[0], errBoom))
	assert.Equal(t, 1, rec.lost)
}

func TestClaimedWinnerOutlivesTimeout(t *testing.T) {
	f := newFakeProxy()
	r := NewCoordinator(f).PollFromAny(context.Background(), []string{"A"}, Head, After(20*time.Millisecond))
	waitRegistered(t, f, "A")
	tk := f.claimFirst("A")
	require.NotNil(t, tk)
	time.Sleep(60 * time.Millisecond)
	select {
	case <-r.Done():
		t.Fatal("request completed while a claimed element was in flight")
	default:
	}
	tk.Deliver([]byte("slow"))
	o := await(t, r)
	assert.Equal(t, OutcomeElement, o.Kind)
	assert.Equal(t, "slow", string(o.Value))
}

func TestClaimedWinnerOutlivesCancel(t *testing.T) {
	f := newFakeProxy()
	r := NewCoordinator(f).PollFromAny(context.Background(), []string{"A", "B"}, Head, Infinite())
	waitRegistered(t, f, "A", "B")
	tk := f.claimFirst("B")
	r.Cancel()
	assert.False(t, tk.Cancel())
	tk.Deliver([]byte("b"))
	o := await(t, r)
	assert.Equal(t, OutcomeElement, o.Kind)
	assert.Equal(t, "B", o.Queue)
}

func TestDuplicateNamesCollapse(t *testing.T) {
	f := newFakeProxy()
	r := NewCoordinator(f).PollFromAny(context.Background(), []string{"A", "B", "A"}, Head, After(10*time.Millisecond))
	await(t, r)
	assert.Equal(t, []string{"A", "B"}, r.Queues)
	assert.Len(t, r.Tickets(), 2)
}

func TestImmediateWinnerSkipsRemainingRegistrations(t *testing.T) {
	f := newFakeProxy()
	f.seed("A", "x")
	r := NewCoordinator(f).PollFromAny(context.Background(), []string{"A", "B", "C"}, Head, Infinite())
	o := await(t, r)
	assert.Equal(t, "A", o.Queue)
	assert.Len(t, f.begun, 1)
	for _, tk := range r.Tickets()[1:] {
		assert.Equal(t, TicketCancelled, tk.State())
	}
}

func TestFIFOAcrossRequests(t *testing.T) {
	f := newFakeProxy()
	c := NewCoordinator(f)
	var reqs []*Request
	for i := 0; i < 3; i++ {
		reqs = append(reqs, c.PollFromAny(context.Background(), []string{"A"}, Head, Infinite()))
		require.Eventually(t, func() bool { return f.waiters("A") == i+1 }, time.Second, time.Millisecond)
	}
	f.push("A", "one")
	o := await(t, reqs[0])
	assert.Equal(t, "one", string(o.Value))
	for _, r := range reqs[1:] {
		select {
		case <-r.Done():
			t.Fatal("one push unblocked more than one waiter")
		default:
		}
	}
	for _, r := range reqs[1:] {
		r.Cancel()
		await(t, r)
	}
}
