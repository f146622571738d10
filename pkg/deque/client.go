package deque

import (
	"context"
	"fmt"

	"github.com/rzbill/flodq/internal/config"
	"github.com/rzbill/flodq/internal/metrics"
	"github.com/rzbill/flodq/internal/poll"
	"github.com/rzbill/flodq/internal/proxy/grpcproxy"
	"github.com/rzbill/flodq/internal/proxy/redisproxy"
	"github.com/rzbill/flodq/internal/runtime"
	pebblestore "github.com/rzbill/flodq/internal/storage/pebble"
	"github.com/rzbill/flodq/pkg/log"
)

// Aliases for the types Open and Get accept, so callers outside this module
// can name them.
type (
	Config           = config.Config
	Backend          = config.Backend
	Store            = poll.Store
	End              = poll.End
	Metrics          = metrics.Metrics
	LostElementError = poll.LostElementError
)

const (
	BackendLocal = config.BackendLocal
	BackendRedis = config.BackendRedis
	BackendGRPC  = config.BackendGRPC

	Head = poll.Head
	Tail = poll.Tail
)

// DefaultConfig returns the local-backend defaults, with FLODQ_* environment
// overrides applied.
func DefaultConfig() Config {
	cfg := config.Default()
	config.FromEnv(&cfg)
	return cfg
}

// NewMetrics returns collectors on a private registry.
func NewMetrics() *Metrics { return metrics.New() }

// Client owns a connection to the configured store. Deques obtained from
// it share one coordinator.
type Client struct {
	store   poll.Store
	coord   *poll.Coordinator
	logger  log.Logger
	metrics *metrics.Metrics
	closers []func() error
}

// ClientOption configures Open.
type ClientOption func(*clientOptions)

type clientOptions struct {
	logger  log.Logger
	metrics *metrics.Metrics
	onLost  func(*poll.LostElementError)
}

// WithClientLogger sets the logger handed to the store and coordinator.
func WithClientLogger(l log.Logger) ClientOption {
	return func(o *clientOptions) { o.logger = l }
}

// WithMetrics records poll and store metrics into m.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(o *clientOptions) { o.metrics = m }
}

// WithLostElementHandler is called for every element that left its queue
// without reaching a caller.
func WithLostElementHandler(fn func(*poll.LostElementError)) ClientOption {
	return func(o *clientOptions) { o.onLost = fn }
}

// Open connects to the backend cfg selects: an embedded Pebble store, a
// Redis server or a flodq server over gRPC.
func Open(ctx context.Context, cfg config.Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := clientOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.NewNopLogger()
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}
	c := &Client{logger: o.logger, metrics: o.metrics}

	switch cfg.Backend {
	case config.BackendLocal:
		fsync, err := pebblestore.ParseFsyncMode(cfg.Fsync)
		if err != nil {
			return nil, err
		}
		dir := cfg.DataDir
		if dir == "" {
			dir = config.DefaultDataDir()
		}
		rt, err := runtime.Open(runtime.Options{
			DataDir:       dir,
			Fsync:         fsync,
			FsyncInterval: cfg.FsyncInterval,
			Config:        cfg,
			Logger:        o.logger,
			Metrics:       o.metrics,
		})
		if err != nil {
			return nil, err
		}
		p, err := rt.Proxy("")
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		c.store = p
		c.closers = append(c.closers, rt.Close)
	case config.BackendRedis:
		p, err := redisproxy.Dial(ctx, cfg.Redis,
			redisproxy.WithLogger(o.logger),
			redisproxy.WithLostElementPolicy(cfg.LostElementPolicy))
		if err != nil {
			return nil, err
		}
		c.store = p
		c.closers = append(c.closers, p.Close)
	case config.BackendGRPC:
		p, err := grpcproxy.Dial(cfg.GRPC.Addr,
			grpcproxy.WithLogger(o.logger),
			grpcproxy.WithNamespace(cfg.DefaultNamespaceName))
		if err != nil {
			return nil, err
		}
		c.store = p
		c.closers = append(c.closers, p.Close)
	default:
		return nil, fmt.Errorf("%w: backend %q", ErrInvalidArgument, cfg.Backend)
	}

	copts := []poll.Option{poll.WithLogger(o.logger), poll.WithRecorder(o.metrics)}
	if o.onLost != nil {
		copts = append(copts, poll.WithLostElementHandler(o.onLost))
	}
	c.coord = poll.NewCoordinator(c.store, copts...)
	c.logger.Debug("deque client opened", log.Str("backend", string(cfg.Backend)))
	return c, nil
}

// Store returns the underlying store proxy.
func (c *Client) Store() poll.Store { return c.store }

// Metrics returns the collectors the client records into.
func (c *Client) Metrics() *metrics.Metrics { return c.metrics }

// Close releases the store; outstanding polls fail.
func (c *Client) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Get returns the deque called name over c's store.
func Get[V any](c *Client, name string, opts ...Option[V]) (*BlockingDeque[V], error) {
	base := []Option[V]{WithLogger[V](c.logger), withCoordinator[V](c.coord)}
	return New(name, c.store, append(base, opts...)...)
}
