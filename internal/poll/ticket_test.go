package poll

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rzbill/flodq/pkg/id"
)

func TestSingleClaimUnderContention(t *testing.T) {
	ids := id.NewGenerator()
	for round := 0; round < 100; round++ {
		g := newGroup(ids.Next(), 16)
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			tk := newTicket(g, ids.Next(), "q", Head)
			wg.Add(1)
			go func() {
				defer wg.Done()
				if tk.TryClaim() {
					wins.Add(1)
					tk.Deliver([]byte("x"))
				}
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, wins.Load())
		assert.Len(t, g.events, 1)
	}
}

func TestTicketTerminalStatesAreFinal(t *testing.T) {
	ids := id.NewGenerator()
	g := newGroup(ids.Next(), 2)
	a := newTicket(g, ids.Next(), "a", Head)
	b := newTicket(g, ids.Next(), "b", Tail)

	assert.False(t, a.Deliver([]byte("x")), "deliver requires a claim")
	assert.True(t, a.TryClaim())
	assert.True(t, a.TryClaim(), "winner keeps its claim")
	assert.False(t, a.Cancel(), "claimed ticket cannot be cancelled")
	assert.True(t, a.Deliver([]byte("x")))
	assert.False(t, a.Fail(errBoom))
	assert.Equal(t, TicketFulfilled, a.State())

	assert.False(t, b.TryClaim())
	assert.True(t, b.Cancel())
	assert.False(t, b.Cancel())
	assert.False(t, b.Fail(errBoom))
	assert.Equal(t, TicketCancelled, b.State())

	select {
	case <-b.Done():
	case <-time.After(time.Second):
		t.Fatal("cancelled ticket should be done")
	}
}

func TestClosedGroupRefusesClaims(t *testing.T) {
	ids := id.NewGenerator()
	g := newGroup(ids.Next(), 1)
	tk := newTicket(g, ids.Next(), "q", Head)
	assert.True(t, g.close())
	assert.False(t, tk.TryClaim())
	assert.True(t, tk.Cancel())
}

func TestParseEnd(t *testing.T) {
	for in, want := range map[string]End{"head": Head, "first": Head, "tail": Tail, "last": Tail} {
		got, ok := ParseEnd(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseEnd("middle")
	assert.False(t, ok)
}

func TestDeadline(t *testing.T) {
	now := time.Now()
	assert.True(t, Infinite().IsInfinite())
	assert.False(t, Infinite().Expired(now))
	assert.True(t, After(0).Expired(time.Now()))
	assert.True(t, After(-time.Second).Expired(time.Now()))

	d := At(now.Add(time.Second))
	assert.False(t, d.Expired(now))
	assert.Equal(t, time.Second, d.Remaining(now))
	assert.Zero(t, d.Remaining(now.Add(2*time.Second)))
	assert.Equal(t, "infinite", Infinite().String())
}
