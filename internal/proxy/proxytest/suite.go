// Package proxytest is a conformance suite for poll.Store implementations.
// Every test drives the store through a poll.Coordinator and checks queue
// contents directly afterwards.
package proxytest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/flodq/internal/poll"
)

// Factory creates a store and returns a cleanup function.
type Factory func(t *testing.T) (store poll.Store, cleanup func())

// Suite runs the conformance tests against stores built by a Factory.
type Suite struct {
	factory Factory
	// Settle is how long to wait for a blocking registration to reach the
	// store before pushing. Stores that register synchronously can leave it
	// at zero.
	Settle time.Duration
}

// New returns a Suite for factory.
func New(factory Factory) *Suite { return &Suite{factory: factory} }

// RunAll runs every test as a subtest.
func (s *Suite) RunAll(t *testing.T) {
	t.Run("PushAndTryPollBothEnds", s.TestPushAndTryPollBothEnds)
	t.Run("ElementFromOnlyNonEmptyQueue", s.TestElementFromOnlyNonEmptyQueue)
	t.Run("ZeroTimeoutOnEmptyIsImmediate", s.TestZeroTimeoutOnEmptyIsImmediate)
	t.Run("ObservesPushBeforeDeadline", s.TestObservesPushBeforeDeadline)
	t.Run("TimeoutIsEmpty", s.TestTimeoutIsEmpty)
	t.Run("SimultaneousPushesOneWinner", s.TestSimultaneousPushesOneWinner)
	t.Run("CancelLeavesQueuesUnchanged", s.TestCancelLeavesQueuesUnchanged)
	t.Run("CancelRightAfterStart", s.TestCancelRightAfterStart)
	t.Run("TakeIsFIFOPerQueue", s.TestTakeIsFIFOPerQueue)
	t.Run("LongWaiterKeepsItsPlace", s.TestLongWaiterKeepsItsPlace)
}

func queueName(prefix string) string { return prefix + "-" + uuid.NewString()[:8] }

func (s *Suite) settle() {
	if s.Settle > 0 {
		time.Sleep(s.Settle)
	}
}

func await(t *testing.T, r *poll.Request) poll.Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	o, err := r.Wait(ctx)
	require.NoError(t, err, "request did not complete")
	return o
}

func drain(t *testing.T, st poll.Store, queue string) []string {
	t.Helper()
	var out []string
	for {
		v, ok, err := st.TryPoll(context.Background(), queue, poll.Head)
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, string(v))
	}
}

func (s *Suite) TestPushAndTryPollBothEnds(t *testing.T) {
	ctx := context.Background()
	st, cleanup := s.factory(t)
	defer cleanup()
	q := queueName("ends")

	require.NoError(t, st.Push(ctx, q, poll.Tail, []byte("b")))
	require.NoError(t, st.Push(ctx, q, poll.Tail, []byte("c")))
	require.NoError(t, st.Push(ctx, q, poll.Head, []byte("a")))

	n, err := st.Len(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	v, ok, err := st.TryPoll(ctx, q, poll.Tail)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c", string(v))
	assert.Equal(t, []string{"a", "b"}, drain(t, st, q))
}

func (s *Suite) TestElementFromOnlyNonEmptyQueue(t *testing.T) {
	ctx := context.Background()
	st, cleanup := s.factory(t)
	defer cleanup()
	a, b := queueName("a"), queueName("b")
	require.NoError(t, st.Push(ctx, a, poll.Tail, []byte("x")))

	c := poll.NewCoordinator(st)
	o := await(t, c.PollFromAny(ctx, []string{a, b}, poll.Head, poll.After(time.Second)))
	require.Equal(t, poll.OutcomeElement, o.Kind, "outcome %s", o)
	assert.Equal(t, "x", string(o.Value))
	assert.Equal(t, a, o.Queue)

	_, ok, err := st.TryPoll(ctx, b, poll.Head)
	require.NoError(t, err)
	assert.False(t, ok)
}

func (s *Suite) TestZeroTimeoutOnEmptyIsImmediate(t *testing.T) {
	st, cleanup := s.factory(t)
	defer cleanup()
	start := time.Now()
	o := await(t, poll.NewCoordinator(st).PollFromAny(context.Background(), []string{queueName("empty")}, poll.Head, poll.After(0)))
	assert.Equal(t, poll.OutcomeEmpty, o.Kind)
	assert.Less(t, time.Since(start), time.Second)
}

func (s *Suite) TestObservesPushBeforeDeadline(t *testing.T) {
	ctx := context.Background()
	st, cleanup := s.factory(t)
	defer cleanup()
	q := queueName("late")

	r := poll.NewCoordinator(st).PollFromAny(ctx, []string{q}, poll.Head, poll.After(100*time.Millisecond+s.Settle))
	time.Sleep(50*time.Millisecond + s.Settle)
	require.NoError(t, st.Push(ctx, q, poll.Head, []byte("v")))
	o := await(t, r)
	require.Equal(t, poll.OutcomeElement, o.Kind, "outcome %s", o)
	assert.Equal(t, "v", string(o.Value))
}

func (s *Suite) TestTimeoutIsEmpty(t *testing.T) {
	st, cleanup := s.factory(t)
	defer cleanup()
	q := queueName("timeout")
	o := await(t, poll.NewCoordinator(st).PollFromAny(context.Background(), []string{q}, poll.Tail, poll.After(50*time.Millisecond)))
	assert.Equal(t, poll.OutcomeEmpty, o.Kind)
	assert.NoError(t, o.Err)

	// a push after the timeout stays queued
	require.NoError(t, st.Push(context.Background(), q, poll.Tail, []byte("kept")))
	s.settle()
	assert.Equal(t, []string{"kept"}, drain(t, st, q))
}

func (s *Suite) TestSimultaneousPushesOneWinner(t *testing.T) {
	ctx := context.Background()
	st, cleanup := s.factory(t)
	defer cleanup()
	a, b, c := queueName("a"), queueName("b"), queueName("c")

	r := poll.NewCoordinator(st).PollFromAny(ctx, []string{a, b, c}, poll.Head, poll.Infinite())
	s.settle()
	time.Sleep(10 * time.Millisecond)

	var wg sync.WaitGroup
	for _, q := range []string{a, b} {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			assert.NoError(t, st.Push(ctx, q, poll.Tail, []byte("v-"+q)))
		}(q)
	}
	wg.Wait()

	o := await(t, r)
	require.Equal(t, poll.OutcomeElement, o.Kind, "outcome %s", o)
	loser := b
	if o.Queue == b {
		loser = a
	}
	assert.Equal(t, "v-"+o.Queue, string(o.Value))

	require.Eventually(t, func() bool {
		n, err := st.Len(ctx, loser)
		return err == nil && n == 1
	}, 5*time.Second, 10*time.Millisecond, "losing element must stay available")
	assert.Empty(t, drain(t, st, o.Queue))
	assert.Equal(t, []string{"v-" + loser}, drain(t, st, loser))
	assert.Empty(t, drain(t, st, c))
}

func (s *Suite) TestCancelLeavesQueuesUnchanged(t *testing.T) {
	ctx := context.Background()
	st, cleanup := s.factory(t)
	defer cleanup()
	a, b := queueName("a"), queueName("b")

	r := poll.NewCoordinator(st).PollFromAny(ctx, []string{a, b}, poll.Head, poll.Infinite())
	s.settle()
	time.Sleep(10 * time.Millisecond)
	r.Cancel()
	o := await(t, r)
	assert.Equal(t, poll.OutcomeCancelled, o.Kind)
	for _, tk := range r.Tickets() {
		assert.Equal(t, poll.TicketCancelled, tk.State())
	}

	s.settle()
	require.NoError(t, st.Push(ctx, a, poll.Tail, []byte("one")))
	require.NoError(t, st.Push(ctx, b, poll.Tail, []byte("two")))
	s.settle()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"one"}, drain(t, st, a))
	assert.Equal(t, []string{"two"}, drain(t, st, b))
}

func (s *Suite) TestCancelRightAfterStart(t *testing.T) {
	ctx := context.Background()
	st, cleanup := s.factory(t)
	defer cleanup()
	q := queueName("race")

	r := poll.NewCoordinator(st).PollFromAny(ctx, []string{q}, poll.Head, poll.Infinite())
	r.Cancel()
	o := await(t, r)
	assert.Equal(t, poll.OutcomeCancelled, o.Kind)

	s.settle()
	require.NoError(t, st.Push(ctx, q, poll.Tail, []byte("v")))
	s.settle()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"v"}, drain(t, st, q))
}

func (s *Suite) TestTakeIsFIFOPerQueue(t *testing.T) {
	ctx := context.Background()
	st, cleanup := s.factory(t)
	defer cleanup()
	q := queueName("fifo")
	c := poll.NewCoordinator(st)

	var reqs []*poll.Request
	for i := 0; i < 3; i++ {
		reqs = append(reqs, c.PollFromAny(ctx, []string{q}, poll.Head, poll.Infinite()))
		s.settle()
		time.Sleep(10 * time.Millisecond)
	}

	for i, v := range []string{"first", "second", "third"} {
		require.NoError(t, st.Push(ctx, q, poll.Tail, []byte(v)))
		o := await(t, reqs[i])
		require.Equal(t, poll.OutcomeElement, o.Kind, "outcome %s", o)
		assert.Equal(t, v, string(o.Value), "waiter %d", i)
		for _, later := range reqs[i+1:] {
			select {
			case <-later.Done():
				t.Fatalf("one push released more than one waiter")
			default:
			}
		}
	}
}

// TestLongWaiterKeepsItsPlace registers a second waiter well after the
// first and checks the first is still served first.
func (s *Suite) TestLongWaiterKeepsItsPlace(t *testing.T) {
	ctx := context.Background()
	st, cleanup := s.factory(t)
	defer cleanup()
	q := queueName("patient")
	c := poll.NewCoordinator(st)

	first := c.PollFromAny(ctx, []string{q}, poll.Head, poll.Infinite())
	s.settle()
	time.Sleep(1500 * time.Millisecond)
	second := c.PollFromAny(ctx, []string{q}, poll.Head, poll.Infinite())
	s.settle()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, st.Push(ctx, q, poll.Tail, []byte("x")))
	o := await(t, first)
	require.Equal(t, poll.OutcomeElement, o.Kind, "outcome %s", o)
	assert.Equal(t, "x", string(o.Value))
	select {
	case <-second.Done():
		t.Fatalf("later waiter completed: %s", second.Outcome())
	default:
	}

	second.Cancel()
	assert.Equal(t, poll.OutcomeCancelled, await(t, second).Kind)
}
