// Package metrics holds the prometheus collectors of the chat services.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeCreated    = "created"
	OutcomeSuppressed = "suppressed"
	OutcomeDuplicate  = "duplicate"
	OutcomeFailed     = "failed"
)

type Metrics struct {
	registry *prometheus.Registry

	published     *prometheus.CounterVec
	delivered     prometheus.Counter
	duplicates    prometheus.Counter
	notifications *prometheus.CounterVec
	sessions      prometheus.Gauge
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groupchat_events_published_total",
			Help: "Realtime events published to the broker, by event name.",
		}, []string{"event"}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "groupchat_events_delivered_total",
			Help: "Realtime events written to client sessions.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "groupchat_events_duplicate_total",
			Help: "Realtime events dropped because their id was already delivered.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groupchat_notifications_total",
			Help: "Notification attempts by type and outcome.",
		}, []string{"type", "outcome"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "groupchat_realtime_sessions",
			Help: "Open realtime sessions on this instance.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.published,
		m.delivered,
		m.duplicates,
		m.notifications,
		m.sessions,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) EventPublished(event string) {
	if m != nil {
		m.published.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) EventDelivered() {
	if m != nil {
		m.delivered.Inc()
	}
}

func (m *Metrics) EventDuplicate() {
	if m != nil {
		m.duplicates.Inc()
	}
}

func (m *Metrics) Notification(kind, outcome string) {
	if m != nil {
		m.notifications.WithLabelValues(kind, outcome).Inc()
	}
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.sessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.sessions.Dec()
	}
}
