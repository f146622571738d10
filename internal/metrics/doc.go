// Package metrics exposes flodq's Prometheus collectors: poll outcomes and
// latency, ticket churn, requeued and lost elements, store push/pop and
// waiter gauges, Pebble latencies and HTTP request counters.
package metrics
