package store

import (
	"bytes"
	"container/list"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/flodq/internal/storage/pebble"
	"github.com/rzbill/flodq/pkg/log"
)

// End selects one end of a deque.
type End uint8

const (
	Head End = iota
	Tail
)

func (e End) String() string {
	if e == Tail {
		return "tail"
	}
	return "head"
}

var (
	ErrInvalidName     = errors.New("store: invalid queue name")
	ErrPayloadTooLarge = errors.New("store: payload too large")
	ErrCorrupt         = errors.New("store: corrupt entry")
	ErrClosed          = errors.New("store: closed")
)

// Element is one stored value.
type Element struct {
	Payload    []byte
	PushedAtMs int64
}

// QueueInfo summarizes a deque for inspection.
type QueueInfo struct {
	Name    string `json:"name"`
	Len     int    `json:"len"`
	Waiters int    `json:"waiters"`
}

// Observer receives engine activity. Implementations must not block.
type Observer interface {
	ObservePush(queue string, n int)
	ObservePop(queue string, blocked bool)
	ObserveWaiters(queue string, n int)
}

type noopObserver struct{}

func (noopObserver) ObservePush(string, int)    {}
func (noopObserver) ObservePop(string, bool)    {}
func (noopObserver) ObserveWaiters(string, int) {}

// Waiter describes a blocked pop. Claim is consulted immediately before an
// element is popped on the waiter's behalf; returning false drops the waiter
// without touching the deque. Deliver and Fail run with the engine lock held
// and must not block or call back into the engine.
type Waiter struct {
	End     End
	Claim   func() bool
	Deliver func(Element)
	Fail    func(error)
}

// WaitHandle identifies a registered Waiter.
type WaitHandle struct {
	queue string
	w     Waiter
	elem  *list.Element
	done  bool
}

// Queue returns the deque name the handle waits on.
func (h *WaitHandle) Queue() string { return h.queue }

type dequeState struct {
	head, tail uint64
	waiters    list.List
}

func (s *dequeState) size() int { return int(s.tail - s.head) }

// Engine is a set of named deques in one namespace, persisted in Pebble.
// Blocked pops are served in registration order per deque regardless of
// which end they wait on.
type Engine struct {
	db         *pebblestore.DB
	namespace  string
	logger     log.Logger
	observer   Observer
	nowMs      func() int64
	maxName    int
	maxPayload int

	mu     sync.Mutex
	queues map[string]*dequeState
	closed bool
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l log.Logger) Option { return func(e *Engine) { e.logger = l } }

func WithObserver(o Observer) Option { return func(e *Engine) { e.observer = o } }

// WithLimits bounds queue name and payload sizes. Zero leaves a limit unset.
func WithLimits(maxNameBytes, maxPayloadBytes int) Option {
	return func(e *Engine) {
		e.maxName = maxNameBytes
		e.maxPayload = maxPayloadBytes
	}
}

// Open returns an Engine over db for namespace.
func Open(db *pebblestore.DB, namespace string, opts ...Option) (*Engine, error) {
	if db == nil {
		return nil, errors.New("store: nil db")
	}
	if namespace == "" || strings.ContainsRune(namespace, '/') {
		return nil, fmt.Errorf("store: invalid namespace %q", namespace)
	}
	e := &Engine{
		db:        db,
		namespace: namespace,
		logger:    log.NewNopLogger(),
		observer:  noopObserver{},
		nowMs:     func() int64 { return time.Now().UnixMilli() },
		queues:    make(map[string]*dequeState),
	}
	for _, o := range opts {
		o(e)
	}
	e.logger = e.logger.WithComponent("store").WithField("namespace", namespace)
	return e, nil
}

// Namespace returns the namespace the engine serves.
func (e *Engine) Namespace() string { return e.namespace }

func (e *Engine) validateName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if e.maxName > 0 && len(name) > e.maxName {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, e.maxName)
	}
	return nil
}

func (e *Engine) stateLocked(name string) (*dequeState, error) {
	if st, ok := e.queues[name]; ok {
		return st, nil
	}
	st := &dequeState{head: origin, tail: origin}
	meta, err := e.db.Get(KeyDequeMeta(e.namespace, name))
	switch {
	case err == nil:
		h, t, ok := decodeMeta(meta)
		if !ok || t < h {
			return nil, fmt.Errorf("%w: meta for %q", ErrCorrupt, name)
		}
		st.head, st.tail = h, t
	case pebblestore.IsNotFound(err):
	default:
		return nil, err
	}
	e.queues[name] = st
	return st, nil
}

// Push appends payloads at end. Pushing several values at the head leaves the
// last one first, as repeated single pushes would.
func (e *Engine) Push(ctx context.Context, name string, end End, payloads ...[]byte) error {
	if err := e.validateName(name); err != nil {
		return err
	}
	if len(payloads) == 0 {
		return nil
	}
	for _, p := range payloads {
		if e.maxPayload > 0 && len(p) > e.maxPayload {
			return fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(p), e.maxPayload)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	st, err := e.stateLocked(name)
	if err != nil {
		return err
	}

	b := e.db.NewBatch()
	defer b.Close()
	head, tail := st.head, st.tail
	now := e.nowMs()
	for _, p := range payloads {
		var pos uint64
		if end == Head {
			head--
			pos = head
		} else {
			pos = tail
			tail++
		}
		if err := b.Set(KeyDequeEntry(e.namespace, name, pos), encodeElement(now, p), nil); err != nil {
			return err
		}
	}
	if err := b.Set(KeyDequeMeta(e.namespace, name), encodeMeta(head, tail), nil); err != nil {
		return err
	}
	if err := e.db.CommitBatch(ctx, b); err != nil {
		return err
	}
	st.head, st.tail = head, tail
	e.observer.ObservePush(name, len(payloads))

	e.serveLocked(context.WithoutCancel(ctx), name, st)
	return nil
}

// PushFirst pushes payloads at the head.
func (e *Engine) PushFirst(ctx context.Context, name string, payloads ...[]byte) error {
	return e.Push(ctx, name, Head, payloads...)
}

// PushLast pushes payloads at the tail.
func (e *Engine) PushLast(ctx context.Context, name string, payloads ...[]byte) error {
	return e.Push(ctx, name, Tail, payloads...)
}

// Requeue returns an element to the end it was popped from.
func (e *Engine) Requeue(ctx context.Context, name string, end End, payload []byte) error {
	if err := e.Push(ctx, name, end, payload); err != nil {
		return fmt.Errorf("store: requeue %s/%s: %w", name, end, err)
	}
	e.logger.Debug("element requeued", log.Queue(name), log.Str("end", end.String()))
	return nil
}

// TryPop removes and returns the element at end without blocking.
func (e *Engine) TryPop(ctx context.Context, name string, end End) (Element, bool, error) {
	if err := e.validateName(name); err != nil {
		return Element{}, false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return Element{}, false, ErrClosed
	}
	st, err := e.stateLocked(name)
	if err != nil {
		return Element{}, false, err
	}
	el, ok, err := e.popLocked(ctx, name, st, end)
	if ok {
		e.observer.ObservePop(name, false)
	}
	return el, ok, err
}

// PopFirst is TryPop at the head.
func (e *Engine) PopFirst(ctx context.Context, name string) (Element, bool, error) {
	return e.TryPop(ctx, name, Head)
}

// PopLast is TryPop at the tail.
func (e *Engine) PopLast(ctx context.Context, name string) (Element, bool, error) {
	return e.TryPop(ctx, name, Tail)
}

func (e *Engine) popLocked(ctx context.Context, name string, st *dequeState, end End) (Element, bool, error) {
	if st.size() == 0 {
		return Element{}, false, nil
	}
	pos := st.head
	if end == Tail {
		pos = st.tail - 1
	}
	key := KeyDequeEntry(e.namespace, name, pos)
	raw, err := e.db.Get(key)
	if err != nil {
		if pebblestore.IsNotFound(err) {
			return Element{}, false, fmt.Errorf("%w: %s missing position %d", ErrCorrupt, name, pos)
		}
		return Element{}, false, err
	}
	el, ok := decodeElement(raw)
	if !ok {
		return Element{}, false, fmt.Errorf("%w: %s position %d", ErrCorrupt, name, pos)
	}

	head, tail := st.head, st.tail
	if end == Tail {
		tail--
	} else {
		head++
	}
	b := e.db.NewBatch()
	defer b.Close()
	if err := b.Delete(key, nil); err != nil {
		return Element{}, false, err
	}
	metaKey := KeyDequeMeta(e.namespace, name)
	if head == tail {
		head, tail = origin, origin
		err = b.Delete(metaKey, nil)
	} else {
		err = b.Set(metaKey, encodeMeta(head, tail), nil)
	}
	if err != nil {
		return Element{}, false, err
	}
	if err := e.db.CommitBatch(ctx, b); err != nil {
		return Element{}, false, err
	}
	st.head, st.tail = head, tail
	return el, true, nil
}

// Wait registers w on name. If the deque holds an element and nobody is
// queued ahead, w is served before Wait returns.
func (e *Engine) Wait(ctx context.Context, name string, w Waiter) (*WaitHandle, error) {
	if err := e.validateName(name); err != nil {
		return nil, err
	}
	if w.Deliver == nil {
		return nil, errors.New("store: waiter without Deliver")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	st, err := e.stateLocked(name)
	if err != nil {
		return nil, err
	}
	h := &WaitHandle{queue: name, w: w}
	if st.waiters.Len() == 0 && st.size() > 0 {
		e.serveOneLocked(context.WithoutCancel(ctx), name, st, h)
		return h, nil
	}
	h.elem = st.waiters.PushBack(h)
	e.observer.ObserveWaiters(name, st.waiters.Len())
	return h, nil
}

// Unwait withdraws a waiter that has not been served. It reports whether the
// waiter was still registered; false means it was already served, dropped or
// withdrawn. The deque is never modified.
func (e *Engine) Unwait(h *WaitHandle) bool {
	if h == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if h.done || h.elem == nil {
		return false
	}
	st := e.queues[h.queue]
	st.waiters.Remove(h.elem)
	h.elem = nil
	h.done = true
	e.observer.ObserveWaiters(h.queue, st.waiters.Len())
	return true
}

// serveLocked hands elements to queued waiters in registration order.
func (e *Engine) serveLocked(ctx context.Context, name string, st *dequeState) {
	served := false
	for st.size() > 0 && st.waiters.Len() > 0 {
		front := st.waiters.Front()
		h := front.Value.(*WaitHandle)
		st.waiters.Remove(front)
		h.elem = nil
		e.serveOneLocked(ctx, name, st, h)
		served = true
	}
	if served {
		e.observer.ObserveWaiters(name, st.waiters.Len())
	}
}

func (e *Engine) serveOneLocked(ctx context.Context, name string, st *dequeState, h *WaitHandle) {
	h.done = true
	if h.w.Claim != nil && !h.w.Claim() {
		return
	}
	el, ok, err := e.popLocked(ctx, name, st, h.w.End)
	if err == nil && !ok {
		err = fmt.Errorf("%w: %s empty while serving", ErrCorrupt, name)
	}
	if err != nil {
		e.logger.Error("serve waiter", log.Queue(name), log.Err(err))
		if h.w.Fail != nil {
			h.w.Fail(err)
		}
		return
	}
	e.observer.ObservePop(name, true)
	h.w.Deliver(el)
}

// Len returns the number of elements in name.
func (e *Engine) Len(name string) (int, error) {
	if err := e.validateName(name); err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.stateLocked(name)
	if err != nil {
		return 0, err
	}
	return st.size(), nil
}

// Range returns up to limit elements starting offset positions from the
// head, without removing them. limit <= 0 means all.
func (e *Engine) Range(name string, offset, limit int) ([]Element, error) {
	if err := e.validateName(name); err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, fmt.Errorf("store: negative offset %d", offset)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.stateLocked(name)
	if err != nil {
		return nil, err
	}
	if offset >= st.size() {
		return nil, nil
	}
	lo := KeyDequeEntry(e.namespace, name, st.head+uint64(offset))
	hi := KeyDequeEntry(e.namespace, name, st.tail)
	iter, err := e.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Element
	for ok := iter.First(); ok; ok = iter.Next() {
		el, valid := decodeElement(iter.Value())
		if !valid {
			return nil, fmt.Errorf("%w: %s", ErrCorrupt, name)
		}
		out = append(out, el)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iter.Error()
}

// Queues lists every non-empty deque plus any deque with registered waiters.
func (e *Engine) Queues() ([]QueueInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prefix := KeyDequePrefix(e.namespace)
	hi := append(append([]byte{}, prefix...), 0xFF)
	iter, err := e.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	seen := make(map[string]bool)
	var out []QueueInfo
	for ok := iter.First(); ok; {
		rest := iter.Key()[len(prefix):]
		i := bytes.IndexByte(rest, sep)
		if i <= 0 {
			ok = iter.Next()
			continue
		}
		name := string(rest[:i])
		st, err := e.stateLocked(name)
		if err != nil {
			return nil, err
		}
		seen[name] = true
		out = append(out, QueueInfo{Name: name, Len: st.size(), Waiters: st.waiters.Len()})
		// '0' sorts right after '/', skipping the rest of this deque's keys.
		next := append(append(append([]byte{}, prefix...), name...), '0')
		ok = iter.SeekGE(next)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	for name, st := range e.queues {
		if !seen[name] && st.waiters.Len() > 0 {
			out = append(out, QueueInfo{Name: name, Waiters: st.waiters.Len()})
		}
	}
	return out, nil
}

// Close fails every registered waiter with ErrClosed. The db is left open.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	for name, st := range e.queues {
		for el := st.waiters.Front(); el != nil; el = el.Next() {
			h := el.Value.(*WaitHandle)
			h.elem = nil
			h.done = true
			if h.w.Fail != nil {
				h.w.Fail(ErrClosed)
			}
		}
		st.waiters.Init()
		e.observer.ObserveWaiters(name, 0)
	}
	return nil
}
