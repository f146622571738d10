package grpcserver

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"

	flodqv1 "github.com/rzbill/flodq/internal/api/flodqv1"
	"github.com/rzbill/flodq/internal/runtime"
	"github.com/rzbill/flodq/pkg/log"
)

const shutdownGrace = 5 * time.Second

// Server owns the gRPC server instance and runtime.
type Server struct {
	rt     *runtime.Runtime
	grpc   *grpc.Server
	lis    net.Listener
	logger log.Logger
}

// New constructs a gRPC server and registers the Deque service.
func New(rt *runtime.Runtime, opts ...grpc.ServerOption) *Server {
	logger := rt.Logger().WithComponent("server.grpc")
	// Stop returns only after Wait handlers have put back held elements
	opts = append([]grpc.ServerOption{grpc.WaitForHandlers(true)}, opts...)
	s := &Server{rt: rt, grpc: grpc.NewServer(opts...), logger: logger}
	flodqv1.RegisterDequeServer(s.grpc, &dequeSvc{rt: rt, logger: logger})
	return s
}

// GRPC exposes the underlying server, for serving on custom listeners.
func (s *Server) GRPC() *grpc.Server { return s.grpc }

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.logger.Info("grpc listening", log.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(l) }()
	select {
	case <-ctx.Done():
		s.stop()
		return nil
	case err := <-errCh:
		return err
	}
}

// stop drains in-flight calls, cutting open Wait streams after
// shutdownGrace.
func (s *Server) stop() {
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		s.logger.Warn("graceful stop timed out, closing open streams")
		s.grpc.Stop()
		<-done
	}
}

// Close stops the server and closes the listener.
func (s *Server) Close() {
	if s.grpc != nil {
		s.stop()
	}
	if s.lis != nil {
		_ = s.lis.Close()
	}
}
