// Package metrics holds the Prometheus collectors for the draft server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every recorder becomes a no-op.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec

	EditsTotal        *prometheus.CounterVec
	GeneratorDuration *prometheus.HistogramVec
	UndoTotal         prometheus.Counter
	EventsPublished   *prometheus.CounterVec
	WebSocketClients  prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "blogdraft_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "blogdraft_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		StoreOperationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "blogdraft_store_operations_total",
			Help: "Total number of content store operations",
		}, []string{"operation", "status"}),
		StoreOperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "blogdraft_store_operation_duration_seconds",
			Help:    "Duration of content store operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
		EditsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "blogdraft_edits_total",
			Help: "Edit requests by outcome",
		}, []string{"outcome"}),
		GeneratorDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "blogdraft_generator_duration_seconds",
			Help:    "Latency of text generation calls",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 90, 120},
		}, []string{"provider", "model"}),
		UndoTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "blogdraft_undo_total",
			Help: "Successful undo operations",
		}),
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "blogdraft_events_published_total",
			Help: "Document change events published",
		}, []string{"type"}),
		WebSocketClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "blogdraft_websocket_clients",
			Help: "Connected websocket clients",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) RecordStoreOperation(op string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StoreOperationsTotal.WithLabelValues(op, status).Inc()
	m.StoreOperationDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) RecordEdit(outcome string) {
	if m == nil {
		return
	}
	m.EditsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordGeneration(provider, model string, d time.Duration) {
	if m == nil {
		return
	}
	m.GeneratorDuration.WithLabelValues(provider, model).Observe(d.Seconds())
}

func (m *Metrics) RecordUndo() {
	if m == nil {
		return
	}
	m.UndoTotal.Inc()
}

func (m *Metrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

func (m *Metrics) SetWebSocketClients(n int) {
	if m == nil {
		return
	}
	m.WebSocketClients.Set(float64(n))
}
