package grpcserver

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	flodqv1 "github.com/rzbill/flodq/internal/api/flodqv1"
	"github.com/rzbill/flodq/internal/namespace"
	"github.com/rzbill/flodq/internal/runtime"
	"github.com/rzbill/flodq/internal/store"
	"github.com/rzbill/flodq/pkg/log"
)

type dequeSvc struct {
	flodqv1.UnimplementedDequeServer
	rt     *runtime.Runtime
	logger log.Logger
}

func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrInvalidName),
		errors.Is(err, store.ErrPayloadTooLarge),
		errors.Is(err, namespace.ErrInvalidName):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, store.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func parseEnd(s string) (store.End, error) {
	switch s {
	case flodqv1.EndHead, "":
		return store.Head, nil
	case flodqv1.EndTail:
		return store.Tail, nil
	}
	return store.Head, status.Errorf(codes.InvalidArgument, "unknown end %q", s)
}

func (d *dequeSvc) Health(ctx context.Context, _ *flodqv1.HealthCheckRequest) (*flodqv1.HealthCheckResponse, error) {
	if err := d.rt.CheckHealth(ctx); err != nil {
		return &flodqv1.HealthCheckResponse{Status: "not_serving"}, nil
	}
	return &flodqv1.HealthCheckResponse{Status: "ok"}, nil
}

func (d *dequeSvc) Push(ctx context.Context, req *flodqv1.PushRequest) (*flodqv1.PushResponse, error) {
	end, err := parseEnd(req.End)
	if err != nil {
		return nil, err
	}
	e, err := d.rt.Engine(req.Namespace)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := e.Push(ctx, req.Queue, end, req.Payloads...); err != nil {
		return nil, toStatus(err)
	}
	n, err := e.Len(req.Queue)
	if err != nil {
		return nil, toStatus(err)
	}
	return &flodqv1.PushResponse{Len: n}, nil
}

func (d *dequeSvc) TryPop(ctx context.Context, req *flodqv1.TryPopRequest) (*flodqv1.TryPopResponse, error) {
	end, err := parseEnd(req.End)
	if err != nil {
		return nil, err
	}
	e, err := d.rt.Engine(req.Namespace)
	if err != nil {
		return nil, toStatus(err)
	}
	el, ok, err := e.TryPop(ctx, req.Queue, end)
	if err != nil {
		return nil, toStatus(err)
	}
	if !ok {
		return &flodqv1.TryPopResponse{}, nil
	}
	return &flodqv1.TryPopResponse{Found: true, Payload: el.Payload, PushedAtMs: el.PushedAtMs}, nil
}

func (d *dequeSvc) Len(_ context.Context, req *flodqv1.LenRequest) (*flodqv1.LenResponse, error) {
	e, err := d.rt.Engine(req.Namespace)
	if err != nil {
		return nil, toStatus(err)
	}
	n, err := e.Len(req.Queue)
	if err != nil {
		return nil, toStatus(err)
	}
	return &flodqv1.LenResponse{Len: n}, nil
}

type waitResult struct {
	el  store.Element
	err error
}

// Wait serves one blocked pop per stream. The element is held for the
// client until it answers: Ack consumes it, Reject or a broken stream puts
// it back at the end it was taken from.
func (d *dequeSvc) Wait(stream grpc.BidiStreamingServer[flodqv1.WaitRequest, flodqv1.WaitResponse]) error {
	ctx := stream.Context()
	first, err := stream.Recv()
	if err != nil {
		return err
	}
	open := first.Open
	if open == nil {
		return status.Error(codes.InvalidArgument, "first wait message must be open")
	}
	end, err := parseEnd(open.End)
	if err != nil {
		return err
	}
	e, err := d.rt.Engine(open.Namespace)
	if err != nil {
		return toStatus(err)
	}
	logger := d.logger.With(log.Queue(open.Queue), log.Str("wait", open.WaitID))

	results := make(chan waitResult, 1)
	h, err := e.Wait(ctx, open.Queue, store.Waiter{
		End:     end,
		Deliver: func(el store.Element) { results <- waitResult{el: el} },
		Fail:    func(err error) { results <- waitResult{err: err} },
	})
	if err != nil {
		return toStatus(err)
	}
	if err := stream.Send(&flodqv1.WaitResponse{Registered: &flodqv1.WaitRegistered{WaitID: open.WaitID}}); err != nil {
		if !e.Unwait(h) {
			d.settle(e, open.Queue, end, results, logger)
		}
		return err
	}

	var res waitResult
	select {
	case res = <-results:
	case <-ctx.Done():
		if e.Unwait(h) {
			logger.Debug("wait withdrawn")
			return status.FromContextError(ctx.Err()).Err()
		}
		// served while the client was leaving
		d.settle(e, open.Queue, end, results, logger)
		return status.FromContextError(ctx.Err()).Err()
	}
	if res.err != nil {
		return toStatus(res.err)
	}

	if err := stream.Send(&flodqv1.WaitResponse{Element: &flodqv1.WaitElement{Payload: res.el.Payload, PushedAtMs: res.el.PushedAtMs}}); err != nil {
		d.requeue(e, open.Queue, end, res.el.Payload, logger)
		return err
	}
	reply, err := stream.Recv()
	switch {
	case err == nil && reply.Ack != nil:
		return nil
	case err == nil && reply.Reject != nil:
		rq := &flodqv1.WaitRequeued{}
		if rerr := d.requeue(e, open.Queue, end, res.el.Payload, logger); rerr != nil {
			rq.Error = rerr.Error()
		}
		return stream.Send(&flodqv1.WaitResponse{Requeued: rq})
	default:
		d.requeue(e, open.Queue, end, res.el.Payload, logger)
		if err == nil || errors.Is(err, io.EOF) {
			return status.Error(codes.InvalidArgument, "expected ack or reject")
		}
		return err
	}
}

// settle returns an element that was delivered after the client left.
func (d *dequeSvc) settle(e *store.Engine, queue string, end store.End, results <-chan waitResult, logger log.Logger) {
	res := <-results
	if res.err == nil {
		d.requeue(e, queue, end, res.el.Payload, logger)
	}
}

func (d *dequeSvc) requeue(e *store.Engine, queue string, end store.End, payload []byte, logger log.Logger) error {
	if err := e.Requeue(context.Background(), queue, end, payload); err != nil {
		d.rt.Metrics().ElementLost(queue)
		logger.Error("element lost: requeue failed", log.Int("bytes", len(payload)), log.Err(err))
		return err
	}
	d.rt.Metrics().ElementRequeued(queue)
	return nil
}
