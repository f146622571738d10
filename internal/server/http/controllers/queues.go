package controllers

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rzbill/flodq/internal/poll"
	"github.com/rzbill/flodq/internal/proxy/localproxy"
	"github.com/rzbill/flodq/internal/runtime"
	"github.com/rzbill/flodq/pkg/log"
)

const defaultRangeLimit = 100

// maxTimeoutMs is the longest timeout a time.Duration holds; longer ones
// wait without limit.
const maxTimeoutMs = math.MaxInt64 / int64(time.Millisecond)

// QueuesController serves deque inspection, pushes and poll-from-any.
type QueuesController struct {
	rt *runtime.Runtime
}

// NewQueuesController creates a new queues controller.
func NewQueuesController(rt *runtime.Runtime) *QueuesController {
	return &QueuesController{rt: rt}
}

// RegisterRoutes registers the /v1/queues routes with r. The namespace is
// taken from the "namespace" query parameter or body field, defaulting to
// the configured one.
func (c *QueuesController) RegisterRoutes(r chi.Router) {
	r.Route("/v1/queues", func(r chi.Router) {
		r.Get("/", c.handleList)
		r.Post("/poll", c.handlePoll)
		r.Get("/{name}", c.handleGet)
		r.Post("/{name}/push", c.handlePush)
	})
}

func (c *QueuesController) handleList(w http.ResponseWriter, r *http.Request) {
	e, err := c.rt.Engine(r.URL.Query().Get("namespace"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	list, err := e.Queues()
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, map[string]any{"queues": list})
}

type elementView struct {
	Payload    []byte `json:"payload"`
	PushedAtMs int64  `json:"pushedAtMs"`
}

// handleGet returns the length of a queue and a window of its elements,
// head first. Query: offset, limit.
func (c *QueuesController) handleGet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", defaultRangeLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	e, err := c.rt.Engine(r.URL.Query().Get("namespace"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	n, err := e.Len(name)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	els, err := e.Range(name, offset, limit)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	items := make([]elementView, 0, len(els))
	for _, el := range els {
		items = append(items, elementView{Payload: el.Payload, PushedAtMs: el.PushedAtMs})
	}
	writeJSON(w, map[string]any{"name": name, "len": n, "items": items})
}

type pushReq struct {
	Namespace string   `json:"namespace"`
	End       string   `json:"end"`
	Payloads  [][]byte `json:"payloads"`
}

func (c *QueuesController) handlePush(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req pushReq
	if !decodeBody(w, r, &req) {
		return
	}
	end, ok := poll.ParseEnd(req.End)
	if !ok || len(req.Payloads) == 0 {
		writeError(w, http.StatusBadRequest, "end must be head or tail and payloads non-empty")
		return
	}
	e, err := c.rt.Engine(req.Namespace)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if err := e.Push(r.Context(), name, localproxy.ToStoreEnd(end), req.Payloads...); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	n, err := e.Len(name)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeAccepted(w, map[string]any{"len": n})
}

type pollReq struct {
	Namespace string   `json:"namespace"`
	Queues    []string `json:"queues"`
	End       string   `json:"end"`
	// TimeoutMs bounds the wait; zero tries each queue once, absent uses the
	// configured default. Infinite, or a timeout past maxTimeoutMs, waits
	// until an element or disconnect.
	TimeoutMs *int64 `json:"timeoutMs"`
	Infinite  bool   `json:"infinite"`
}

type pollResp struct {
	Found   bool   `json:"found"`
	Queue   string `json:"queue,omitempty"`
	Payload []byte `json:"payload,omitempty"`
	Outcome string `json:"outcome"`
}

// handlePoll runs poll-from-any through the namespace's coordinator. A
// client disconnect cancels the request without touching the queues; an
// element already taken for a client that is gone goes back to its end.
func (c *QueuesController) handlePoll(w http.ResponseWriter, r *http.Request) {
	var req pollReq
	if !decodeBody(w, r, &req) {
		return
	}
	end, ok := poll.ParseEnd(req.End)
	if !ok {
		writeError(w, http.StatusBadRequest, "end must be head or tail")
		return
	}
	var deadline poll.Deadline
	switch {
	case req.Infinite, req.TimeoutMs != nil && *req.TimeoutMs > maxTimeoutMs:
		deadline = poll.Infinite()
	case req.TimeoutMs == nil:
		deadline = poll.After(c.rt.Config().DefaultTimeout)
	case *req.TimeoutMs < 0:
		writeError(w, http.StatusBadRequest, "timeoutMs must not be negative")
		return
	default:
		deadline = poll.After(time.Duration(*req.TimeoutMs) * time.Millisecond)
	}
	coord, err := c.rt.Coordinator(req.Namespace)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	pr := coord.PollFromAny(r.Context(), req.Queues, end, deadline)
	<-pr.Done()
	o := pr.Outcome()
	switch o.Kind {
	case poll.OutcomeElement:
		if err := r.Context().Err(); err != nil {
			c.giveBack(req.Namespace, o, end, err)
			return
		}
		if err := encodeJSON(w, pollResp{Found: true, Queue: o.Queue, Payload: o.Value, Outcome: o.Kind.String()}); err != nil {
			c.giveBack(req.Namespace, o, end, err)
		}
	case poll.OutcomeEmpty:
		writeJSON(w, pollResp{Outcome: o.Kind.String()})
	case poll.OutcomeCancelled:
		// the client is gone; nobody reads this
		writeError(w, http.StatusRequestTimeout, o.Err.Error())
	default:
		writeError(w, statusFor(o.Err), o.Err.Error())
	}
}

// giveBack requeues an element whose response could not be delivered.
func (c *QueuesController) giveBack(ns string, o poll.Outcome, end poll.End, cause error) {
	logger := c.rt.Logger().With(log.Component("http"), log.Queue(o.Queue))
	e, err := c.rt.Engine(ns)
	if err == nil {
		err = e.Requeue(context.Background(), o.Queue, localproxy.ToStoreEnd(end), o.Value)
	}
	if err != nil {
		c.rt.Metrics().ElementLost(o.Queue)
		logger.Error("element lost: requeue failed", log.Int("bytes", len(o.Value)), log.Err(err))
		return
	}
	c.rt.Metrics().ElementRequeued(o.Queue)
	logger.Warn("poll response undelivered, element requeued", log.Err(cause))
}
