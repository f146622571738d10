package runtime

import (
	"context"
	"errors"
	"sync"
	"time"

	cfgpkg "github.com/rzbill/flodq/internal/config"
	"github.com/rzbill/flodq/internal/metrics"
	"github.com/rzbill/flodq/internal/namespace"
	"github.com/rzbill/flodq/internal/poll"
	"github.com/rzbill/flodq/internal/proxy/localproxy"
	pebblestore "github.com/rzbill/flodq/internal/storage/pebble"
	"github.com/rzbill/flodq/internal/store"
	"github.com/rzbill/flodq/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	Logger        log.Logger
	// Metrics defaults to a fresh registry.
	Metrics *metrics.Metrics
}

type nsHandle struct {
	engine *store.Engine
	proxy  *localproxy.Proxy
	coord  *poll.Coordinator
}

// Runtime wires storage, config and the per-namespace deque engines of a
// single-node instance.
type Runtime struct {
	db        *pebblestore.DB
	config    cfgpkg.Config
	logger    log.Logger
	metrics   *metrics.Metrics
	validator *namespace.Validator

	mu     sync.Mutex
	spaces map[string]*nsHandle
	closed bool
}

// Open initializes the underlying storage and the default namespace.
func Open(opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	cfg := opts.Config
	if cfg.DefaultNamespaceName == "" {
		cfg = cfgpkg.Default()
	}
	validator, err := namespace.NewValidator(cfg.NamespaceNameRegex)
	if err != nil {
		return nil, err
	}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Metrics:       m,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	rt := &Runtime{
		db:        db,
		config:    cfg,
		logger:    logger.WithComponent("runtime"),
		metrics:   m,
		validator: validator,
		spaces:    make(map[string]*nsHandle),
	}
	if _, err := rt.EnsureNamespace(cfg.DefaultNamespaceName); err != nil {
		_ = db.Close()
		return nil, err
	}
	return rt, nil
}

// Close fails outstanding waits and closes storage.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	spaces := r.spaces
	r.spaces = nil
	r.mu.Unlock()

	for _, h := range spaces {
		_ = h.proxy.Close()
		_ = h.engine.Close()
	}
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// EnsureNamespace validates name and creates its record if absent.
func (r *Runtime) EnsureNamespace(name string) (namespace.Meta, error) {
	if err := r.validator.Validate(name); err != nil {
		return namespace.Meta{}, err
	}
	defaults := namespace.Defaults()
	if r.config.QueueNameMaxBytes > 0 {
		defaults.QueueNameMaxBytes = r.config.QueueNameMaxBytes
	}
	if r.config.PayloadMaxBytes > 0 {
		defaults.PayloadMaxBytes = r.config.PayloadMaxBytes
	}
	return namespace.EnsureNamespace(r.db, name, defaults)
}

// Namespaces lists known namespaces.
func (r *Runtime) Namespaces() ([]namespace.Meta, error) { return namespace.List(r.db) }

func (r *Runtime) space(ns string) (*nsHandle, error) {
	if ns == "" {
		ns = r.config.DefaultNamespaceName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, store.ErrClosed
	}
	if h, ok := r.spaces[ns]; ok {
		return h, nil
	}
	meta, err := r.EnsureNamespace(ns)
	if err != nil {
		return nil, err
	}
	engine, err := store.Open(r.db, ns,
		store.WithLogger(r.logger),
		store.WithObserver(r.metrics),
		store.WithLimits(meta.QueueNameMaxBytes, meta.PayloadMaxBytes))
	if err != nil {
		return nil, err
	}
	proxy := localproxy.New(engine, r.logger)
	h := &nsHandle{
		engine: engine,
		proxy:  proxy,
		coord: poll.NewCoordinator(proxy,
			poll.WithLogger(r.logger),
			poll.WithRecorder(r.metrics)),
	}
	r.spaces[ns] = h
	r.logger.Info("namespace opened", log.Str("namespace", ns))
	return h, nil
}

// Engine returns the deque engine for ns; "" selects the default namespace.
func (r *Runtime) Engine(ns string) (*store.Engine, error) {
	h, err := r.space(ns)
	if err != nil {
		return nil, err
	}
	return h.engine, nil
}

// Proxy returns the in-process poll.Store for ns.
func (r *Runtime) Proxy(ns string) (*localproxy.Proxy, error) {
	h, err := r.space(ns)
	if err != nil {
		return nil, err
	}
	return h.proxy, nil
}

// Coordinator returns the poll coordinator serving ns.
func (r *Runtime) Coordinator(ns string) (*poll.Coordinator, error) {
	h, err := r.space(ns)
	if err != nil {
		return nil, err
	}
	return h.coord, nil
}

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Logger returns the runtime's logger.
func (r *Runtime) Logger() log.Logger { return r.logger }

// Metrics returns the collectors the runtime reports to.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }
