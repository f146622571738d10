// Package serverrun exposes the Run entrypoint the CLI uses to start a
// flodq server: the runtime plus its gRPC and HTTP servers, with shutdown on
// signal or context cancellation.
//
// Example:
//
//	opts := serverrun.Options{DataDir: "./data", GRPCAddr: ":50061", HTTPAddr: ":8080", Fsync: pebblestore.FsyncModeAlways, Config: config.Default()}
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, opts)
package serverrun
