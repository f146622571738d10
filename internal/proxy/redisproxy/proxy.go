// Package redisproxy serves poll tickets from a Redis-compatible server,
// one deque per list key.
//
// Every ticket blocks in BLPOP or BRPOP without a timeout on a connection of
// its own, so Redis serves waiters of one list in the order they arrived.
// Those connections come from a pool of MaxWaits kept apart from the client
// that pushes, pops without waiting and sends CLIENT UNBLOCK; a wait past
// the limit fails at once. CancelWait wakes a blocked pop with CLIENT
// UNBLOCK. Redis pops before the ticket can claim, so an element that
// reaches a ticket whose request was already won is pushed back at the end
// it came from.
package redisproxy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rzbill/flodq/internal/config"
	"github.com/rzbill/flodq/internal/poll"
	"github.com/rzbill/flodq/pkg/log"
)

// ErrClosed fails waits still open when the proxy closes.
var ErrClosed = errors.New("redisproxy: closed")

// ErrTooManyWaits fails a wait beyond MaxWaits.
var ErrTooManyWaits = errors.New("redisproxy: too many waits")

var errPushBackDisabled = errors.New("redisproxy: push-back disabled by policy")

const (
	pushBackTimeout = 5 * time.Second
	unblockRetry    = 20 * time.Millisecond
	defaultMaxWaits = 256
)

// Option configures a Proxy.
type Option func(*Proxy)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option { return func(p *Proxy) { p.logger = l } }

// WithKeyPrefix prepends prefix to every queue name.
func WithKeyPrefix(prefix string) Option { return func(p *Proxy) { p.prefix = prefix } }

// WithMaxWaits caps blocked pops in flight and sizes their pool.
func WithMaxWaits(n int) Option { return func(p *Proxy) { p.maxWaits = n } }

// WithLostElementPolicy selects what happens to an element popped for a
// losing ticket.
func WithLostElementPolicy(policy config.LostElementPolicy) Option {
	return func(p *Proxy) { p.policy = policy }
}

type wait struct {
	cancel   context.CancelFunc
	clientID atomic.Int64
	done     chan struct{}
}

// Proxy implements poll.Store over go-redis.
type Proxy struct {
	rdb      *redis.Client
	waitRDB  *redis.Client
	owned    bool
	prefix   string
	maxWaits int
	policy   config.LostElementPolicy
	logger   log.Logger

	mu     sync.Mutex
	waits  map[*poll.Ticket]*wait
	active int
	closed bool
	wg     sync.WaitGroup
}

var _ poll.Store = (*Proxy)(nil)

// New returns a Proxy over rdb, which stays owned by the caller. Blocked
// pops use a second client to the same server, owned by the Proxy.
func New(rdb *redis.Client, opts ...Option) *Proxy {
	p := &Proxy{
		rdb:      rdb,
		maxWaits: defaultMaxWaits,
		policy:   config.LostElementRequeue,
		waits:    make(map[*poll.Ticket]*wait),
	}
	for _, o := range opts {
		o(p)
	}
	if p.maxWaits <= 0 {
		p.maxWaits = defaultMaxWaits
	}
	wo := *rdb.Options()
	wo.PoolSize = p.maxWaits
	wo.MaxActiveConns = p.maxWaits
	wo.MinIdleConns = 0
	p.waitRDB = redis.NewClient(&wo)

	if p.logger == nil {
		p.logger = log.NewNopLogger()
	}
	p.logger = p.logger.WithComponent("proxy.redis")
	return p
}

// Dial builds a client from cfg and checks it with PING. Close releases it.
func Dial(ctx context.Context, cfg config.RedisConfig, opts ...Option) (*Proxy, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, poll.ConnectionFailure(err)
	}
	base := []Option{WithKeyPrefix(cfg.KeyPrefix), WithMaxWaits(cfg.MaxWaits)}
	p := New(rdb, append(base, opts...)...)
	p.owned = true
	return p, nil
}

func (p *Proxy) key(queue string) string { return p.prefix + queue }

// mapErr keeps server replies as they are and classifies everything else as
// a connection failure.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var rerr redis.Error
	if errors.As(err, &rerr) {
		return fmt.Errorf("redisproxy: %w", err)
	}
	return poll.ConnectionFailure(err)
}

func (p *Proxy) forget(t *poll.Ticket) *wait {
	p.mu.Lock()
	defer p.mu.Unlock()
	w := p.waits[t]
	delete(p.waits, t)
	return w
}

// BeginWait starts the ticket's blocking pop in the background.
func (p *Proxy) BeginWait(_ context.Context, t *poll.Ticket) error {
	ctx, cancel := context.WithCancel(context.Background())
	w := &wait{cancel: cancel, done: make(chan struct{})}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel()
		return poll.ConnectionFailure(ErrClosed)
	}
	if p.active >= p.maxWaits {
		p.mu.Unlock()
		cancel()
		return fmt.Errorf("%w: %d in flight", ErrTooManyWaits, p.maxWaits)
	}
	p.active++
	p.waits[t] = w
	p.wg.Add(1)
	p.mu.Unlock()

	go p.run(ctx, t, w)
	return nil
}

// blockingPop waits without a timeout; only an element or CLIENT UNBLOCK
// ends it. Reissuing it would put the connection behind later waiters.
func (p *Proxy) blockingPop(ctx context.Context, conn *redis.Conn, t *poll.Ticket) ([]string, error) {
	if t.End == poll.Tail {
		return conn.BRPop(ctx, 0, p.key(t.Queue)).Result()
	}
	return conn.BLPop(ctx, 0, p.key(t.Queue)).Result()
}

func (p *Proxy) run(ctx context.Context, t *poll.Ticket, w *wait) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
		close(w.done)
	}()
	defer func() {
		if w := p.forget(t); w != nil {
			w.cancel()
		}
	}()
	logger := p.logger.With(log.Queue(t.Queue), log.Str("ticket", t.ID.Short()))

	conn := p.waitRDB.Conn()
	defer conn.Close()
	id, err := conn.ClientID(ctx).Result()
	if err != nil {
		p.fail(ctx, t, err)
		return
	}
	w.clientID.Store(id)

	for {
		if t.State() != poll.TicketPending || ctx.Err() != nil {
			p.fail(ctx, t, ctx.Err())
			return
		}
		res, err := p.blockingPop(ctx, conn, t)
		if errors.Is(err, redis.Nil) {
			// CLIENT UNBLOCK
			continue
		}
		if err != nil {
			p.fail(ctx, t, err)
			return
		}
		payload := []byte(res[1])
		if t.TryClaim() {
			t.Deliver(payload)
			return
		}
		p.giveBack(t, payload, logger)
		return
	}
}

// giveBack returns an element popped for a losing ticket.
func (p *Proxy) giveBack(t *poll.Ticket, payload []byte, logger log.Logger) {
	if p.policy == config.LostElementReport {
		t.ReportLost(payload, errPushBackDisabled)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), pushBackTimeout)
	defer cancel()
	if err := p.Push(ctx, t.Queue, t.End, payload); err != nil {
		t.ReportLost(payload, err)
		return
	}
	logger.Debug("element pushed back", log.Str("end", t.End.String()))
	t.ReportRequeued()
}

func (p *Proxy) fail(ctx context.Context, t *poll.Ticket, err error) {
	if t.State() != poll.TicketPending || err == nil {
		return
	}
	if ctx.Err() != nil {
		p.mu.Lock()
		closed := p.closed
		p.mu.Unlock()
		if !closed {
			return
		}
		err = ErrClosed
	}
	t.Fail(mapErr(err))
}

// CancelWait cancels t and unblocks its connection.
func (p *Proxy) CancelWait(t *poll.Ticket) {
	if !t.Cancel() && t.Claimed() {
		return
	}
	w := p.forget(t)
	if w == nil {
		return
	}
	w.cancel()
	go p.unblock(w)
}

// unblock wakes the wait's connection. CLIENT UNBLOCK does nothing until the
// pop is blocked, so it is repeated until the wait ends.
func (p *Proxy) unblock(w *wait) {
	ctx, cancel := context.WithTimeout(context.Background(), pushBackTimeout)
	defer cancel()
	tick := time.NewTicker(unblockRetry)
	defer tick.Stop()
	for {
		if id := w.clientID.Load(); id != 0 {
			n, err := p.rdb.ClientUnblock(ctx, id).Result()
			if err != nil {
				p.logger.Debug("client unblock failed", log.Int64("client", id), log.Err(err))
			} else if n == 1 {
				return
			}
		}
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			p.logger.Warn("wait still blocked after cancel", log.Int64("client", w.clientID.Load()))
			return
		case <-tick.C:
		}
	}
}

func (p *Proxy) TryPoll(ctx context.Context, queue string, end poll.End) ([]byte, bool, error) {
	var cmd *redis.StringCmd
	if end == poll.Tail {
		cmd = p.rdb.RPop(ctx, p.key(queue))
	} else {
		cmd = p.rdb.LPop(ctx, p.key(queue))
	}
	v, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, mapErr(err)
	}
	return v, true, nil
}

func (p *Proxy) Push(ctx context.Context, queue string, end poll.End, payload []byte) error {
	if end == poll.Tail {
		return mapErr(p.rdb.RPush(ctx, p.key(queue), payload).Err())
	}
	return mapErr(p.rdb.LPush(ctx, p.key(queue), payload).Err())
}

func (p *Proxy) Len(ctx context.Context, queue string) (int, error) {
	n, err := p.rdb.LLen(ctx, p.key(queue)).Result()
	if err != nil {
		return 0, mapErr(err)
	}
	return int(n), nil
}

// Close fails open waits, closes the wait pool and, for a proxy built by
// Dial, closes the client.
func (p *Proxy) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	waits := p.waits
	p.waits = make(map[*poll.Ticket]*wait)
	p.mu.Unlock()

	for _, w := range waits {
		w.cancel()
	}
	// closing the pool breaks every blocked pop
	_ = p.waitRDB.Close()
	p.wg.Wait()
	if p.owned {
		return p.rdb.Close()
	}
	return nil
}
