// Package httpserver provides the REST gateway of a flodq server: health,
// namespaces, deque inspection and pushes, poll-from-any and Prometheus
// metrics.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: config.Default()})
//	s := httpserver.New(rt, nil)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
