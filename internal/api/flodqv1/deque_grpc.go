package flodqv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	Deque_Push_FullMethodName   = "/flodq.v1.Deque/Push"
	Deque_TryPop_FullMethodName = "/flodq.v1.Deque/TryPop"
	Deque_Len_FullMethodName    = "/flodq.v1.Deque/Len"
	Deque_Health_FullMethodName = "/flodq.v1.Deque/Health"
	Deque_Wait_FullMethodName   = "/flodq.v1.Deque/Wait"
)

// DequeClient is the client API for the Deque service.
type DequeClient interface {
	Push(ctx context.Context, in *PushRequest, opts ...grpc.CallOption) (*PushResponse, error)
	TryPop(ctx context.Context, in *TryPopRequest, opts ...grpc.CallOption) (*TryPopResponse, error)
	Len(ctx context.Context, in *LenRequest, opts ...grpc.CallOption) (*LenResponse, error)
	Health(ctx context.Context, in *HealthCheckRequest, opts ...grpc.CallOption) (*HealthCheckResponse, error)
	Wait(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[WaitRequest, WaitResponse], error)
}

type dequeClient struct {
	cc grpc.ClientConnInterface
}

// NewDequeClient binds a client to cc. Calls always carry the JSON codec.
func NewDequeClient(cc grpc.ClientConnInterface) DequeClient {
	return &dequeClient{cc}
}

func callOpts(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.StaticMethod(), CallOption()}, opts...)
}

func (c *dequeClient) Push(ctx context.Context, in *PushRequest, opts ...grpc.CallOption) (*PushResponse, error) {
	out := new(PushResponse)
	if err := c.cc.Invoke(ctx, Deque_Push_FullMethodName, in, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *dequeClient) TryPop(ctx context.Context, in *TryPopRequest, opts ...grpc.CallOption) (*TryPopResponse, error) {
	out := new(TryPopResponse)
	if err := c.cc.Invoke(ctx, Deque_TryPop_FullMethodName, in, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *dequeClient) Len(ctx context.Context, in *LenRequest, opts ...grpc.CallOption) (*LenResponse, error) {
	out := new(LenResponse)
	if err := c.cc.Invoke(ctx, Deque_Len_FullMethodName, in, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *dequeClient) Health(ctx context.Context, in *HealthCheckRequest, opts ...grpc.CallOption) (*HealthCheckResponse, error) {
	out := new(HealthCheckResponse)
	if err := c.cc.Invoke(ctx, Deque_Health_FullMethodName, in, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *dequeClient) Wait(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[WaitRequest, WaitResponse], error) {
	stream, err := c.cc.NewStream(ctx, &Deque_ServiceDesc.Streams[0], Deque_Wait_FullMethodName, callOpts(opts)...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[WaitRequest, WaitResponse]{ClientStream: stream}, nil
}

// DequeServer is the server API for the Deque service.
type DequeServer interface {
	Push(context.Context, *PushRequest) (*PushResponse, error)
	TryPop(context.Context, *TryPopRequest) (*TryPopResponse, error)
	Len(context.Context, *LenRequest) (*LenResponse, error)
	Health(context.Context, *HealthCheckRequest) (*HealthCheckResponse, error)
	Wait(grpc.BidiStreamingServer[WaitRequest, WaitResponse]) error
}

// UnimplementedDequeServer can be embedded for forward compatibility.
type UnimplementedDequeServer struct{}

func (UnimplementedDequeServer) Push(context.Context, *PushRequest) (*PushResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Push not implemented")
}
func (UnimplementedDequeServer) TryPop(context.Context, *TryPopRequest) (*TryPopResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method TryPop not implemented")
}
func (UnimplementedDequeServer) Len(context.Context, *LenRequest) (*LenResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Len not implemented")
}
func (UnimplementedDequeServer) Health(context.Context, *HealthCheckRequest) (*HealthCheckResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Health not implemented")
}
func (UnimplementedDequeServer) Wait(grpc.BidiStreamingServer[WaitRequest, WaitResponse]) error {
	return status.Errorf(codes.Unimplemented, "method Wait not implemented")
}

// RegisterDequeServer registers srv on s.
func RegisterDequeServer(s grpc.ServiceRegistrar, srv DequeServer) {
	s.RegisterService(&Deque_ServiceDesc, srv)
}

func unaryHandler[Req any, Res any](method string, call func(DequeServer, context.Context, *Req) (*Res, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DequeServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(DequeServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func _Deque_Wait_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(DequeServer).Wait(&grpc.GenericServerStream[WaitRequest, WaitResponse]{ServerStream: stream})
}

// Deque_ServiceDesc is the grpc.ServiceDesc for the Deque service.
var Deque_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "flodq.v1.Deque",
	HandlerType: (*DequeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Push", Handler: unaryHandler(Deque_Push_FullMethodName, DequeServer.Push)},
		{MethodName: "TryPop", Handler: unaryHandler(Deque_TryPop_FullMethodName, DequeServer.TryPop)},
		{MethodName: "Len", Handler: unaryHandler(Deque_Len_FullMethodName, DequeServer.Len)},
		{MethodName: "Health", Handler: unaryHandler(Deque_Health_FullMethodName, DequeServer.Health)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Wait",
			Handler:       _Deque_Wait_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "flodq/v1/deque.proto",
}
