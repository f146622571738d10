package pebblestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/rzbill/flodq/pkg/log"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = pebble.ErrNotFound

// FsyncMode defines durability behavior for write operations.
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways requests a WAL fsync on each committed batch/write.
	FsyncModeAlways
	// FsyncModeInterval enables group-commit by allowing Pebble to coalesce WAL
	// syncs for operations within the configured interval.
	FsyncModeInterval
	// FsyncModeNever avoids forcing WAL syncs from the application.
	FsyncModeNever
)

func (m FsyncMode) String() string {
	switch m {
	case FsyncModeAlways:
		return "always"
	case FsyncModeInterval:
		return "interval"
	case FsyncModeNever:
		return "never"
	default:
		return "unspecified"
	}
}

// ParseFsyncMode maps a config/flag string onto an FsyncMode. The empty
// string selects the interval default.
func ParseFsyncMode(s string) (FsyncMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "interval":
		return FsyncModeInterval, nil
	case "always":
		return FsyncModeAlways, nil
	case "never":
		return FsyncModeNever, nil
	default:
		return FsyncModeUnspecified, fmt.Errorf("pebble: unknown fsync mode %q", s)
	}
}

// Options configures the Pebble store wrapper.
type Options struct {
	// DataDir is the path to the Pebble database directory.
	DataDir string
	// Fsync determines when to sync the WAL.
	Fsync FsyncMode
	// FsyncInterval controls group-commit when Fsync=FsyncModeInterval.
	FsyncInterval time.Duration
	// PebbleOptions allows advanced tuning of Pebble. If nil, sensible defaults are used.
	PebbleOptions *pebble.Options
	// Metrics allows observing read/write/commit latencies and sizes. Optional.
	Metrics MetricsHook
	// Logger receives Pebble's own diagnostics. Optional.
	Logger log.Logger
}

// MetricsHook is a minimal hook surface for storage observations.
type MetricsHook interface {
	ObserveWrite(elapsed time.Duration, bytes int)
	ObserveRead(elapsed time.Duration, bytes int)
	ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int)
}

// NoopMetrics is used when no metrics hook is provided.
type NoopMetrics struct{}

func (NoopMetrics) ObserveWrite(time.Duration, int)            {}
func (NoopMetrics) ObserveRead(time.Duration, int)             {}
func (NoopMetrics) ObserveBatchCommit(time.Duration, int, int) {}

// pebbleLogger satisfies pebble.Logger on top of the facade.
type pebbleLogger struct{ l log.Logger }

func (p pebbleLogger) Infof(format string, args ...interface{}) {
	p.l.Debug(fmt.Sprintf(format, args...))
}

func (p pebbleLogger) Errorf(format string, args ...interface{}) {
	p.l.Error(fmt.Sprintf(format, args...))
}

func (p pebbleLogger) Fatalf(format string, args ...interface{}) {
	p.l.Fatal(fmt.Sprintf(format, args...))
}

// DB wraps a Pebble database instance with fsync policy and basic helpers.
type DB struct {
	inner     *pebble.DB
	writeSync bool
	metrics   MetricsHook
}

// Open creates or opens a Pebble database with the provided options.
func Open(opts Options) (*DB, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebble: Options.DataDir is required")
	}

	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}
	if opts.Logger != nil && po.Logger == nil {
		po.Logger = pebbleLogger{l: opts.Logger.WithComponent("pebble")}
	}

	switch opts.Fsync {
	case FsyncModeAlways:
		// Sync is passed on every commit instead.
	case FsyncModeInterval:
		if opts.FsyncInterval <= 0 {
			opts.FsyncInterval = 5 * time.Millisecond
		}
		interval := opts.FsyncInterval
		po.WALMinSyncInterval = func() time.Duration { return interval }
	case FsyncModeNever:
	default:
		po.WALMinSyncInterval = func() time.Duration { return 5 * time.Millisecond }
	}

	inner, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, fmt.Errorf("pebble: open %s: %w", opts.DataDir, err)
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}

	return &DB{
		inner:     inner,
		writeSync: opts.Fsync == FsyncModeAlways,
		metrics:   metrics,
	}, nil
}

// Close closes the Pebble database.
func (db *DB) Close() error {
	if db == nil || db.inner == nil {
		return nil
	}
	return db.inner.Close()
}

// NewBatch creates a new batch for atomic multi-key updates.
func (db *DB) NewBatch() *pebble.Batch {
	return db.inner.NewBatch()
}

// CommitBatch commits the provided batch with the configured fsync policy.
func (db *DB) CommitBatch(ctx context.Context, b *pebble.Batch) error {
	if b == nil {
		return errors.New("pebble: nil batch")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	ops, size := int(b.Count()), b.Len()

	syncMode := pebble.NoSync
	if db.writeSync {
		syncMode = pebble.Sync
	}
	err := b.Commit(syncMode)
	db.metrics.ObserveBatchCommit(time.Since(start), ops, size)
	return err
}

// Set sets a key to a value using a small internal batch respecting fsync policy.
func (db *DB) Set(key, value []byte) error {
	start := time.Now()
	b := db.inner.NewBatch()
	defer b.Close()
	if err := b.Set(key, value, nil); err != nil {
		return err
	}
	if err := db.CommitBatch(context.Background(), b); err != nil {
		return err
	}
	db.metrics.ObserveWrite(time.Since(start), len(key)+len(value))
	return nil
}

// Delete removes a key using a small internal batch respecting fsync policy.
func (db *DB) Delete(key []byte) error {
	b := db.inner.NewBatch()
	defer b.Close()
	if err := b.Delete(key, nil); err != nil {
		return err
	}
	return db.CommitBatch(context.Background(), b)
}

// Get copies the value for the given key. A missing key yields ErrNotFound.
func (db *DB) Get(key []byte) ([]byte, error) {
	start := time.Now()
	val, closer, err := db.inner.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	buf := append([]byte(nil), val...)
	db.metrics.ObserveRead(time.Since(start), len(buf))
	return buf, nil
}

// IsNotFound reports whether err means the key was absent.
func IsNotFound(err error) bool { return errors.Is(err, pebble.ErrNotFound) }

// NewIter creates a raw Pebble iterator with the provided options.
func (db *DB) NewIter(opts *pebble.IterOptions) (*pebble.Iterator, error) {
	return db.inner.NewIter(opts)
}
