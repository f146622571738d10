package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pebblestore "github.com/rzbill/flodq/internal/storage/pebble"
)

func openTestDB(t *testing.T, dir string) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeNever})
	require.NoError(t, err)
	return db
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	db := openTestDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	e, err := Open(db, "default", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func payloads(els []Element) []string {
	out := make([]string, len(els))
	for i, el := range els {
		out[i] = string(el.Payload)
	}
	return out
}

func TestPushPopBothEnds(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	require.NoError(t, e.PushLast(ctx, "q", []byte("b"), []byte("c")))
	require.NoError(t, e.PushFirst(ctx, "q", []byte("a")))

	all, err := e.Range("q", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, payloads(all))

	el, ok, err := e.PopLast(ctx, "q")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c", string(el.Payload))

	el, ok, err = e.PopFirst(ctx, "q")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", string(el.Payload))

	n, err := e.Len("q")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPushFirstManyReversesOrder(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	require.NoError(t, e.PushFirst(ctx, "q", []byte("1"), []byte("2"), []byte("3")))
	all, err := e.Range("q", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2", "1"}, payloads(all))
}

func TestPopEmpty(t *testing.T) {
	e := newTestEngine(t)
	_, ok, err := e.TryPop(context.Background(), "nothing", Head)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidNamesAndLimits(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, WithLimits(4, 3))
	assert.ErrorIs(t, e.PushLast(ctx, "", []byte("x")), ErrInvalidName)
	assert.ErrorIs(t, e.PushLast(ctx, "a/b", []byte("x")), ErrInvalidName)
	assert.ErrorIs(t, e.PushLast(ctx, "toolong", []byte("x")), ErrInvalidName)
	assert.ErrorIs(t, e.PushLast(ctx, "q", []byte("four")), ErrPayloadTooLarge)
}

func TestReopenRestoresState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	db := openTestDB(t, dir)
	e, err := Open(db, "default")
	require.NoError(t, err)
	require.NoError(t, e.PushLast(ctx, "q", []byte("x"), []byte("y")))
	require.NoError(t, e.PushFirst(ctx, "q", []byte("w")))
	require.NoError(t, db.Close())

	db = openTestDB(t, dir)
	defer db.Close()
	e, err = Open(db, "default")
	require.NoError(t, err)
	all, err := e.Range("q", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"w", "x", "y"}, payloads(all))
}

func TestRangeOffsetLimit(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	require.NoError(t, e.PushLast(ctx, "q", []byte("0"), []byte("1"), []byte("2"), []byte("3")))
	got, err := e.Range("q", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, payloads(got))

	got, err = e.Range("q", 10, 2)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQueuesListsNonEmptyAndWaiting(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	require.NoError(t, e.PushLast(ctx, "a", []byte("1")))
	require.NoError(t, e.PushLast(ctx, "ab", []byte("1"), []byte("2")))
	require.NoError(t, e.PushLast(ctx, "gone", []byte("1")))
	_, _, err := e.PopFirst(ctx, "gone")
	require.NoError(t, err)
	_, err = e.Wait(ctx, "idle", Waiter{Deliver: func(Element) {}})
	require.NoError(t, err)

	infos, err := e.Queues()
	require.NoError(t, err)
	byName := map[string]QueueInfo{}
	for _, qi := range infos {
		byName[qi.Name] = qi
	}
	assert.Equal(t, 1, byName["a"].Len)
	assert.Equal(t, 2, byName["ab"].Len)
	assert.Equal(t, 1, byName["idle"].Waiters)
	assert.NotContains(t, byName, "gone")
}

func TestWaitServedImmediately(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	require.NoError(t, e.PushLast(ctx, "q", []byte("a"), []byte("b")))

	var got string
	_, err := e.Wait(ctx, "q", Waiter{End: Tail, Deliver: func(el Element) { got = string(el.Payload) }})
	require.NoError(t, err)
	assert.Equal(t, "b", got)
}

func TestWaitersServedInRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	var order []string
	for _, id := range []string{"w1", "w2", "w3"} {
		id := id
		_, err := e.Wait(ctx, "q", Waiter{Deliver: func(el Element) { order = append(order, id+"="+string(el.Payload)) }})
		require.NoError(t, err)
	}
	require.NoError(t, e.PushLast(ctx, "q", []byte("x")))
	assert.Equal(t, []string{"w1=x"}, order)

	require.NoError(t, e.PushLast(ctx, "q", []byte("y"), []byte("z")))
	assert.Equal(t, []string{"w1=x", "w2=y", "w3=z"}, order)

	n, err := e.Len("q")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRefusedClaimLeavesElement(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	var second string
	_, err := e.Wait(ctx, "q", Waiter{Claim: func() bool { return false }, Deliver: func(Element) { t.Fatal("refused waiter delivered") }})
	require.NoError(t, err)
	_, err = e.Wait(ctx, "q", Waiter{Deliver: func(el Element) { second = string(el.Payload) }})
	require.NoError(t, err)

	require.NoError(t, e.PushLast(ctx, "q", []byte("x")))
	assert.Equal(t, "x", second)
}

func TestUnwaitHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	h, err := e.Wait(ctx, "q", Waiter{Deliver: func(Element) { t.Fatal("withdrawn waiter delivered") }})
	require.NoError(t, err)
	assert.True(t, e.Unwait(h))
	assert.False(t, e.Unwait(h))

	require.NoError(t, e.PushLast(ctx, "q", []byte("x")))
	n, err := e.Len("q")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUnwaitAfterServeReportsFalse(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	delivered := false
	h, err := e.Wait(ctx, "q", Waiter{Deliver: func(Element) { delivered = true }})
	require.NoError(t, err)
	require.NoError(t, e.PushLast(ctx, "q", []byte("x")))
	assert.True(t, delivered)
	assert.False(t, e.Unwait(h))
}

func TestRequeueRestoresEnd(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	require.NoError(t, e.PushLast(ctx, "q", []byte("a"), []byte("b"), []byte("c")))

	first, _, err := e.PopFirst(ctx, "q")
	require.NoError(t, err)
	last, _, err := e.PopLast(ctx, "q")
	require.NoError(t, err)

	require.NoError(t, e.Requeue(ctx, "q", Head, first.Payload))
	require.NoError(t, e.Requeue(ctx, "q", Tail, last.Payload))

	all, err := e.Range("q", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, payloads(all))
}

func TestCloseFailsWaiters(t *testing.T) {
	e := newTestEngine(t)
	var failed error
	_, err := e.Wait(context.Background(), "q", Waiter{Deliver: func(Element) {}, Fail: func(err error) { failed = err }})
	require.NoError(t, err)
	require.NoError(t, e.Close())
	assert.True(t, errors.Is(failed, ErrClosed))
	assert.ErrorIs(t, e.PushLast(context.Background(), "q", []byte("x")), ErrClosed)
}

type countingObserver struct {
	pushes, pops, blockedPops int
	waiters                   map[string]int
}

func (c *countingObserver) ObservePush(_ string, n int) { c.pushes += n }
func (c *countingObserver) ObservePop(_ string, blocked bool) {
	c.pops++
	if blocked {
		c.blockedPops++
	}
}
func (c *countingObserver) ObserveWaiters(q string, n int) { c.waiters[q] = n }

func TestObserver(t *testing.T) {
	ctx := context.Background()
	obs := &countingObserver{waiters: map[string]int{}}
	e := newTestEngine(t, WithObserver(obs))

	_, err := e.Wait(ctx, "q", Waiter{Deliver: func(Element) {}})
	require.NoError(t, err)
	assert.Equal(t, 1, obs.waiters["q"])

	require.NoError(t, e.PushLast(ctx, "q", []byte("x"), []byte("y")))
	_, _, err = e.PopFirst(ctx, "q")
	require.NoError(t, err)

	assert.Equal(t, 2, obs.pushes)
	assert.Equal(t, 2, obs.pops)
	assert.Equal(t, 1, obs.blockedPops)
	assert.Equal(t, 0, obs.waiters["q"])
}

func TestPushedAtRecorded(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	before := time.Now().UnixMilli()
	require.NoError(t, e.PushLast(ctx, "q", []byte("x")))
	el, ok, err := e.PopFirst(ctx, "q")
	require.NoError(t, err)
	require.True(t, ok)
	assert.GreaterOrEqual(t, el.PushedAtMs, before)
}
