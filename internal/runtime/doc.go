// Package runtime wires storage, config, metrics and the per-namespace deque
// engines into a single-node flodq instance.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
//	engine, _ := rt.Engine("default")
//	_ = engine.PushLast(ctx, "jobs", []byte("hello"))
//	coord, _ := rt.Coordinator("default")
//	req := coord.PollFromAny(ctx, []string{"jobs"}, poll.Head, poll.After(time.Second))
package runtime
