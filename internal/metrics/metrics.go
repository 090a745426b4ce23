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

// Metrics holds the Prometheus collectors of the API process.
// All methods are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	CacheLookupsTotal   *prometheus.CounterVec
	EventsPublished     *prometheus.CounterVec
	EventsConsumed      *prometheus.CounterVec
	OutboxProcessed     *prometheus.CounterVec
	WebSocketClients    prometheus.Gauge
}

// New registers all collectors on a fresh registry, including Go runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(registry)
}

func NewWithRegistry(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "todo_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "todo_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		CacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "todo_cache_lookups_total",
				Help: "Cache lookups by cache name and result",
			},
			[]string{"cache", "result"}, // result: hit, miss
		),
		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "todo_events_published_total",
				Help: "Events handed to the broker",
			},
			[]string{"topic", "status"},
		),
		EventsConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "todo_events_consumed_total",
				Help: "Events received from the broker",
			},
			[]string{"topic", "status"},
		),
		OutboxProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "todo_outbox_events_total",
				Help: "Outbox events by outcome",
			},
			[]string{"status"},
		),
		WebSocketClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "todo_websocket_clients",
				Help: "Connected websocket clients",
			},
		),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, route, code).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
}

func (m *Metrics) CacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

func (m *Metrics) EventPublished(topic string, err error) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(topic, outcome(err)).Inc()
}

func (m *Metrics) EventConsumed(topic string, err error) {
	if m == nil {
		return
	}
	m.EventsConsumed.WithLabelValues(topic, outcome(err)).Inc()
}

func (m *Metrics) OutboxEvent(status string) {
	if m == nil {
		return
	}
	m.OutboxProcessed.WithLabelValues(status).Inc()
}

func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.WebSocketClients.Inc()
}

func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.WebSocketClients.Dec()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
