// Package metrics holds the Prometheus collectors for taskboard.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "taskboard"

// Metrics implements service.Recorder and records HTTP traffic.
//
// Metrics:
//   - taskboard_http_requests_total{method,route,status}
//   - taskboard_http_request_duration_seconds{method,route}
//   - taskboard_task_mutations_total{op}
//   - taskboard_notifications_dropped_total
//   - taskboard_realtime_publish_failures_total
type Metrics struct {
	gatherer prometheus.Gatherer

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	mutations       *prometheus.CounterVec
	dropped         prometheus.Counter
	publishFailures prometheus.Counter
}

// New registers the collectors on reg. Passing a fresh registry per test
// avoids duplicate registration panics.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		mutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "mutations_total",
			Help:      "Committed task mutations by operation (create, update, delete)",
		}, []string{"op"}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "dropped_total",
			Help:      "Notifications that could not be stored after a committed mutation",
		}),
		publishFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "publish_failures_total",
			Help:      "Realtime events that failed to publish",
		}),
	}
}

// TaskMutation counts a committed task mutation labelled by op.
func (m *Metrics) TaskMutation(op string) { m.mutations.WithLabelValues(op).Inc() }

// NotificationDropped counts a notification that could not be recorded.
func (m *Metrics) NotificationDropped() { m.dropped.Inc() }

// PublishFailed counts a realtime event that could not be published.
func (m *Metrics) PublishFailed() { m.publishFailures.Inc() }

// ObserveRequest records one served request. route is the mux pattern, not
// the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
