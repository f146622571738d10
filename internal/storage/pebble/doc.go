// Package pebblestore wraps Pebble with an fsync policy, batches, snapshots
// and a metrics hook. The deque engine in internal/store is its only writer.
//
//	mode, _ := pebblestore.ParseFsyncMode(cfg.Fsync)
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: cfg.DataDir,
//	    Fsync:   mode,
//	    Metrics: metrics.NewStorageHook(reg),
//	    Logger:  logger,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	b := db.NewBatch()
//	_ = b.Set([]byte("k"), []byte("v"), nil)
//	_ = db.CommitBatch(ctx, b)
//	b.Close()
package pebblestore
