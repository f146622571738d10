// Package grpcserver hosts the flodq.v1.Deque gRPC service over a runtime.
// Push, TryPop and Len map onto the namespace's deque engine; Wait holds a
// blocked pop per stream and keeps a served element until the client acks
// or rejects it.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Config: config.Default()})
//	s := grpcserver.New(rt)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":50061")
package grpcserver
