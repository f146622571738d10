package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/flodq/internal/poll"
	pebblestore "github.com/rzbill/flodq/internal/storage/pebble"
	"github.com/rzbill/flodq/internal/store"
)

var (
	_ poll.Recorder           = (*Metrics)(nil)
	_ store.Observer          = (*Metrics)(nil)
	_ pebblestore.MetricsHook = (*Metrics)(nil)
)

func TestRecorderCounts(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	m.ObserveOutcome(poll.OutcomeElement, 3*time.Millisecond)
	m.ObserveOutcome(poll.OutcomeEmpty, time.Second)
	m.ObserveOutcome(poll.OutcomeEmpty, time.Second)
	m.ElementLost("orders")
	m.ObservePop("orders", true)
	m.ObserveWaiters("orders", 4)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.pollOutcomes.WithLabelValues("element")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.pollOutcomes.WithLabelValues("empty")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lost.WithLabelValues("orders")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.popped.WithLabelValues("orders", "blocked")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.waiters.WithLabelValues("orders")))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/v1/queues/{name}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	r.Handle("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/queues/orders", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/v1/queues/{name}", "418")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "flodq_http_requests_total")
}
