package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rzbill/flodq/internal/poll"
)

const namespace = "flodq"

// Metrics holds every flodq collector. A single value serves as the
// coordinator's poll.Recorder, the engine's store.Observer and Pebble's
// MetricsHook.
type Metrics struct {
	registry *prometheus.Registry

	pollOutcomes    *prometheus.CounterVec
	pollLatency     *prometheus.HistogramVec
	ticketsIssued   *prometheus.CounterVec
	ticketsCanceled *prometheus.CounterVec
	requeued        *prometheus.CounterVec
	lost            *prometheus.CounterVec

	pushed  *prometheus.CounterVec
	popped  *prometheus.CounterVec
	waiters *prometheus.GaugeVec

	storageOps   *prometheus.HistogramVec
	storageBytes *prometheus.CounterVec
	batchOps     prometheus.Histogram
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry that also carries the
// Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWithRegistry(reg)
}

// NewWithRegistry registers the collectors on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		pollOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "poll", Name: "outcomes_total",
			Help: "Completed poll requests by outcome.",
		}, []string{"outcome"}),
		pollLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "poll", Name: "duration_seconds",
			Help:    "Time from poll request to outcome.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"outcome"}),
		ticketsIssued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "poll", Name: "tickets_issued_total",
			Help: "Wait tickets issued per queue.",
		}, []string{"queue"}),
		ticketsCanceled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "poll", Name: "tickets_cancelled_total",
			Help: "Wait tickets cancelled per queue.",
		}, []string{"queue"}),
		requeued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "poll", Name: "elements_requeued_total",
			Help: "Elements returned to their queue after losing a race.",
		}, []string{"queue"}),
		lost: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "poll", Name: "elements_lost_total",
			Help: "Elements that could not be returned to their queue.",
		}, []string{"queue"}),
		pushed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "pushed_total",
			Help: "Elements pushed per queue.",
		}, []string{"queue"}),
		popped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "popped_total",
			Help: "Elements popped per queue, split by blocked or immediate pop.",
		}, []string{"queue", "mode"}),
		waiters: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "store", Name: "waiters",
			Help: "Registered blocked pops per queue.",
		}, []string{"queue"}),
		storageOps: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "storage", Name: "op_duration_seconds",
			Help:    "Pebble operation latency.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 10),
		}, []string{"op"}),
		storageBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "storage", Name: "bytes_total",
			Help: "Bytes moved through Pebble.",
		}, []string{"op"}),
		batchOps: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "storage", Name: "batch_ops",
			Help:    "Operations per committed batch.",
			Buckets: prometheus.LinearBuckets(1, 2, 8),
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// poll.Recorder

func (m *Metrics) ObserveOutcome(kind poll.OutcomeKind, elapsed time.Duration) {
	m.pollOutcomes.WithLabelValues(kind.String()).Inc()
	m.pollLatency.WithLabelValues(kind.String()).Observe(elapsed.Seconds())
}

func (m *Metrics) TicketIssued(queue string)    { m.ticketsIssued.WithLabelValues(queue).Inc() }
func (m *Metrics) TicketCancelled(queue string) { m.ticketsCanceled.WithLabelValues(queue).Inc() }
func (m *Metrics) ElementRequeued(queue string) { m.requeued.WithLabelValues(queue).Inc() }
func (m *Metrics) ElementLost(queue string)     { m.lost.WithLabelValues(queue).Inc() }

// store.Observer

func (m *Metrics) ObservePush(queue string, n int) { m.pushed.WithLabelValues(queue).Add(float64(n)) }

func (m *Metrics) ObservePop(queue string, blocked bool) {
	mode := "immediate"
	if blocked {
		mode = "blocked"
	}
	m.popped.WithLabelValues(queue, mode).Inc()
}

func (m *Metrics) ObserveWaiters(queue string, n int) { m.waiters.WithLabelValues(queue).Set(float64(n)) }

// pebblestore.MetricsHook

func (m *Metrics) ObserveWrite(elapsed time.Duration, bytes int) {
	m.storageOps.WithLabelValues("write").Observe(elapsed.Seconds())
	m.storageBytes.WithLabelValues("write").Add(float64(bytes))
}

func (m *Metrics) ObserveRead(elapsed time.Duration, bytes int) {
	m.storageOps.WithLabelValues("read").Observe(elapsed.Seconds())
	m.storageBytes.WithLabelValues("read").Add(float64(bytes))
}

func (m *Metrics) ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int) {
	m.storageOps.WithLabelValues("commit").Observe(elapsed.Seconds())
	m.storageBytes.WithLabelValues("commit").Add(float64(bytes))
	m.batchOps.Observe(float64(numOps))
}
