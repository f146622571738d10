package grpcproxy

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	cfgpkg "github.com/rzbill/flodq/internal/config"
	"github.com/rzbill/flodq/internal/poll"
	"github.com/rzbill/flodq/internal/proxy/proxytest"
	"github.com/rzbill/flodq/internal/runtime"
	grpcserver "github.com/rzbill/flodq/internal/server/grpc"
	pebblestore "github.com/rzbill/flodq/internal/storage/pebble"
)

func startServer(t *testing.T) (*grpc.ClientConn, *runtime.Runtime, func()) {
	t.Helper()
	rt, err := runtime.Open(runtime.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever, Config: cfgpkg.Default()})
	require.NoError(t, err)
	srv := grpcserver.New(rt)
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.GRPC().Serve(lis) }()
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	return conn, rt, func() {
		_ = conn.Close()
		srv.GRPC().Stop()
		_ = rt.Close()
	}
}

func TestConformance(t *testing.T) {
	suite := proxytest.New(func(t *testing.T) (poll.Store, func()) {
		conn, _, stop := startServer(t)
		p := New(conn)
		return p, func() {
			_ = p.Close()
			stop()
		}
	})
	suite.Settle = 50 * time.Millisecond
	suite.RunAll(t)
}

func TestInvalidQueueFailsTicket(t *testing.T) {
	conn, _, stop := startServer(t)
	defer stop()
	p := New(conn)
	defer p.Close()

	r := poll.NewCoordinator(p).PollFromAny(context.Background(), []string{"bad/name"}, poll.Head, poll.After(time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	o, err := r.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, poll.OutcomeError, o.Kind)
	assert.ErrorIs(t, o.Err, poll.ErrInvalidArgument)
}

func TestCloseFailsOpenWaits(t *testing.T) {
	conn, _, stop := startServer(t)
	defer stop()
	p := New(conn)

	r := poll.NewCoordinator(p).PollFromAny(context.Background(), []string{"idle"}, poll.Head, poll.Infinite())
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, p.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	o, err := r.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, poll.OutcomeError, o.Kind)
	assert.ErrorIs(t, o.Err, poll.ErrConnectionFailure)

	assert.ErrorIs(t, p.BeginWait(context.Background(), r.Tickets()[0]), poll.ErrConnectionFailure)
}

func TestUnreachableServerIsConnectionFailure(t *testing.T) {
	p, err := Dial("127.0.0.1:1")
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err = p.TryPoll(ctx, "q", poll.Head)
	assert.ErrorIs(t, err, poll.ErrConnectionFailure)
}

func TestLosingElementReturnsToItsEnd(t *testing.T) {
	conn, rt, stop := startServer(t)
	defer stop()
	p := New(conn)
	defer p.Close()
	e, err := rt.Engine("")
	require.NoError(t, err)

	c := poll.NewCoordinator(p)
	r := c.PollFromAny(context.Background(), []string{"left", "right"}, poll.Tail, poll.Infinite())
	time.Sleep(80 * time.Millisecond)
	require.NoError(t, e.PushLast(context.Background(), "left", []byte("l1"), []byte("l2")))
	require.NoError(t, e.PushLast(context.Background(), "right", []byte("r1"), []byte("r2")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	o, err := r.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, poll.OutcomeElement, o.Kind)

	total := func() int {
		l, _ := e.Len("left")
		rr, _ := e.Len("right")
		return l + rr
	}
	require.Eventually(t, func() bool { return total() == 3 }, 2*time.Second, 10*time.Millisecond)
	for _, q := range []string{"left", "right"} {
		if q == o.Queue {
			continue
		}
		all, err := e.Range(q, 0, 0)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, q[:1]+"2", string(all[1].Payload))
	}
}
