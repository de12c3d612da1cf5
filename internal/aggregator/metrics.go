package aggregator

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the aggregator's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	MessagesTotal   *prometheus.CounterVec
	StoredMessages  prometheus.Gauge
	Connections     prometheus.Gauge
	Subscribers     prometheus.Gauge
	DroppedUpdates  prometheus.Counter
	PersistFailures prometheus.Counter
	ArchiveFailures prometheus.Counter
	PersistDuration prometheus.Histogram
}

// NewMetrics registers the collectors on a fresh registry, together with
// the Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phx_aggregator_messages_total",
				Help: "Captured messages by outcome (accepted, duplicate, evicted)",
			},
			[]string{"status"},
		),
		StoredMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "phx_aggregator_stored_messages",
			Help: "Messages currently retained (count)",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "phx_aggregator_connections",
			Help: "Connection records currently retained (count)",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "phx_aggregator_subscribers",
			Help: "Connected ports (count)",
		}),
		DroppedUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "phx_aggregator_dropped_updates_total",
			Help: "Updates dropped for slow subscribers (count)",
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "phx_aggregator_persist_failures_total",
			Help: "Failed writes to the local store (count)",
		}),
		ArchiveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "phx_aggregator_archive_failures_total",
			Help: "Messages the JSONL archive could not queue (count)",
		}),
		PersistDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "phx_aggregator_persist_duration_ms",
			Help:    "Duration of a full state write in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
	}
	m.registry.MustRegister(
		m.MessagesTotal,
		m.StoredMessages,
		m.Connections,
		m.Subscribers,
		m.DroppedUpdates,
		m.PersistFailures,
		m.ArchiveFailures,
		m.PersistDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) message(status string) {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) evicted(n int) {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues("evicted").Add(float64(n))
}

func (m *Metrics) stored(messages, connections int) {
	if m == nil {
		return
	}
	m.StoredMessages.Set(float64(messages))
	m.Connections.Set(float64(connections))
}

func (m *Metrics) subscribers(n int) {
	if m == nil {
		return
	}
	m.Subscribers.Set(float64(n))
}

func (m *Metrics) dropped() {
	if m == nil {
		return
	}
	m.DroppedUpdates.Inc()
}

func (m *Metrics) persistFailed() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

func (m *Metrics) archiveFailed() {
	if m == nil {
		return
	}
	m.ArchiveFailures.Inc()
}

func (m *Metrics) persisted(ms float64) {
	if m == nil {
		return
	}
	m.PersistDuration.Observe(ms)
}
