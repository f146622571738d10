// Package grpcproxy serves poll tickets from a remote flodq server over the
// flodq.v1.Deque Wait stream.
//
// Each ticket owns one stream. The server holds the popped element until
// the proxy answers: Ack when the ticket won its claim, Reject otherwise, in
// which case the server pushes it back at the end it came from. Delivery is
// at-least-once: an Ack lost together with the connection leaves the element
// with both sides.
package grpcproxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	flodqv1 "github.com/rzbill/flodq/internal/api/flodqv1"
	"github.com/rzbill/flodq/internal/poll"
	"github.com/rzbill/flodq/pkg/log"
)

// ErrClosed fails waits still open when the proxy closes.
var ErrClosed = errors.New("grpcproxy: closed")

var errProtocol = errors.New("grpcproxy: unexpected wait message")

// Option configures a Proxy.
type Option func(*Proxy)

// WithNamespace selects the server namespace; empty means the server default.
func WithNamespace(ns string) Option { return func(p *Proxy) { p.namespace = ns } }

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option { return func(p *Proxy) { p.logger = l } }

// Proxy implements poll.Store against a remote Deque service.
type Proxy struct {
	client    flodqv1.DequeClient
	conn      *grpc.ClientConn
	namespace string
	logger    log.Logger

	mu     sync.Mutex
	waits  map[*poll.Ticket]context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

var _ poll.Store = (*Proxy)(nil)

// New returns a Proxy over an existing connection, which stays owned by the
// caller.
func New(cc grpc.ClientConnInterface, opts ...Option) *Proxy {
	p := &Proxy{
		client: flodqv1.NewDequeClient(cc),
		waits:  make(map[*poll.Ticket]context.CancelFunc),
	}
	for _, o := range opts {
		o(p)
	}
	if p.logger == nil {
		p.logger = log.NewNopLogger()
	}
	p.logger = p.logger.WithComponent("proxy.grpc")
	return p
}

// Dial connects to addr without transport security. Close releases the
// connection.
func Dial(addr string, opts ...Option) (*Proxy, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, poll.ConnectionFailure(err)
	}
	p := New(conn, opts...)
	p.conn = conn
	return p, nil
}

// mapErr translates a call error into the poll error vocabulary.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return poll.ConnectionFailure(err)
	}
	switch st.Code() {
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", poll.ErrInvalidArgument, st.Message())
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	case codes.Internal:
		return fmt.Errorf("grpcproxy: server: %s", st.Message())
	default:
		return poll.ConnectionFailure(err)
	}
}

func wireEnd(e poll.End) string {
	if e == poll.Tail {
		return flodqv1.EndTail
	}
	return flodqv1.EndHead
}

func (p *Proxy) forget(t *poll.Ticket) context.CancelFunc {
	p.mu.Lock()
	defer p.mu.Unlock()
	cancel := p.waits[t]
	delete(p.waits, t)
	return cancel
}

// BeginWait opens the ticket's stream in the background.
func (p *Proxy) BeginWait(_ context.Context, t *poll.Ticket) error {
	// the stream outlives the caller's context; CancelWait ends it
	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel()
		return poll.ConnectionFailure(ErrClosed)
	}
	p.waits[t] = cancel
	p.wg.Add(1)
	p.mu.Unlock()

	go p.run(ctx, t)
	return nil
}

func (p *Proxy) run(ctx context.Context, t *poll.Ticket) {
	defer p.wg.Done()
	defer func() {
		if cancel := p.forget(t); cancel != nil {
			cancel()
		}
	}()
	waitID := uuid.NewString()
	logger := p.logger.With(log.Queue(t.Queue), log.Str("wait", waitID), log.Str("ticket", t.ID.Short()))

	stream, err := p.client.Wait(ctx)
	if err != nil {
		p.fail(t, err)
		return
	}
	open := &flodqv1.WaitOpen{WaitID: waitID, Namespace: p.namespace, Queue: t.Queue, End: wireEnd(t.End)}
	if err := stream.Send(&flodqv1.WaitRequest{Open: open}); err != nil {
		p.fail(t, err)
		return
	}
	msg, err := stream.Recv()
	if err != nil {
		p.fail(t, err)
		return
	}
	if msg.Registered == nil {
		p.fail(t, errProtocol)
		return
	}
	logger.Debug("wait registered")

	msg, err = stream.Recv()
	if err != nil {
		p.fail(t, err)
		return
	}
	el := msg.Element
	if el == nil {
		p.fail(t, errProtocol)
		return
	}

	if t.TryClaim() {
		if err := stream.Send(&flodqv1.WaitRequest{Ack: &flodqv1.WaitAck{}}); err != nil {
			// the server requeues on a broken stream
			logger.Warn("ack failed", log.Err(err))
			t.Fail(poll.ConnectionFailure(err))
			return
		}
		_ = stream.CloseSend()
		t.Deliver(el.Payload)
		// hold the stream open until the server has read the ack
		if _, err := stream.Recv(); err != nil && !errors.Is(err, io.EOF) {
			logger.Warn("ack unconfirmed, element may be delivered twice", log.Err(err))
		}
		return
	}

	if err := stream.Send(&flodqv1.WaitRequest{Reject: &flodqv1.WaitReject{}}); err != nil {
		logger.Warn("reject not sent, relying on server requeue", log.Err(err))
		return
	}
	msg, err = stream.Recv()
	switch {
	case err != nil:
		logger.Warn("requeue unconfirmed", log.Err(err))
	case msg.Requeued == nil:
		logger.Warn("requeue unconfirmed", log.Err(errProtocol))
	case msg.Requeued.Error != "":
		t.ReportLost(el.Payload, errors.New(msg.Requeued.Error))
	default:
		t.ReportRequeued()
	}
}

// fail ends a pending ticket. A ticket already cancelled or claimed keeps
// its state.
func (p *Proxy) fail(t *poll.Ticket, err error) {
	if t.State() != poll.TicketPending {
		return
	}
	if errors.Is(err, io.EOF) || errors.Is(err, errProtocol) {
		t.Fail(poll.ConnectionFailure(err))
		return
	}
	mapped := mapErr(err)
	if errors.Is(mapped, context.Canceled) {
		p.mu.Lock()
		closed := p.closed
		p.mu.Unlock()
		if !closed {
			// withdrawn by CancelWait
			return
		}
		mapped = poll.ConnectionFailure(ErrClosed)
	}
	t.Fail(mapped)
}

// CancelWait ends the ticket's stream. The server withdraws the wait, or
// requeues an element that was already on its way.
func (p *Proxy) CancelWait(t *poll.Ticket) {
	if !t.Cancel() && t.Claimed() {
		return
	}
	if cancel := p.forget(t); cancel != nil {
		cancel()
	}
}

func (p *Proxy) TryPoll(ctx context.Context, queue string, end poll.End) ([]byte, bool, error) {
	res, err := p.client.TryPop(ctx, &flodqv1.TryPopRequest{Namespace: p.namespace, Queue: queue, End: wireEnd(end)})
	if err != nil {
		return nil, false, mapErr(err)
	}
	if !res.Found {
		return nil, false, nil
	}
	return res.Payload, true, nil
}

func (p *Proxy) Push(ctx context.Context, queue string, end poll.End, payload []byte) error {
	_, err := p.client.Push(ctx, &flodqv1.PushRequest{
		Namespace: p.namespace,
		Queue:     queue,
		End:       wireEnd(end),
		Payloads:  [][]byte{payload},
	})
	return mapErr(err)
}

func (p *Proxy) Len(ctx context.Context, queue string) (int, error) {
	res, err := p.client.Len(ctx, &flodqv1.LenRequest{Namespace: p.namespace, Queue: queue})
	if err != nil {
		return 0, mapErr(err)
	}
	return res.Len, nil
}

// Close ends every open stream, failing their tickets, and closes a
// connection made by Dial.
func (p *Proxy) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	waits := p.waits
	p.waits = make(map[*poll.Ticket]context.CancelFunc)
	p.mu.Unlock()

	for _, cancel := range waits {
		cancel()
	}
	p.wg.Wait()
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
