package infrastructure

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry. A nil *Metrics is valid
// and records nothing, which keeps tests free of registry setup.
type Metrics struct {
	registry *prometheus.Registry

	reconciliations  *prometheus.CounterVec
	directoryLookups *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	queueWait        prometheus.Histogram
	deliveries       *prometheus.CounterVec
	webhookEvents    *prometheus.CounterVec
	droppedEvents    prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "associa_reconciliations_total",
			Help: "Patient reconciliations by sync type or error.",
		}, []string{"result"}),
		directoryLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "associa_directory_lookups_total",
			Help: "External directory lookups by outcome.",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "associa_conversation_transitions_total",
			Help: "Conversation state transitions.",
		}, []string{"from", "to"}),
		queueWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "associa_queue_wait_seconds",
			Help:    "Time spent in fila_humano before an attendant claimed the conversation.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "associa_outbound_deliveries_total",
			Help: "Outbound gateway deliveries by outcome.",
		}, []string{"outcome"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "associa_webhook_events_total",
			Help: "Inbound webhook events by result.",
		}, []string{"result"}),
		droppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "associa_notification_events_dropped_total",
			Help: "Notification events dropped because a subscriber was slow.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.reconciliations, m.directoryLookups, m.transitions, m.queueWait,
		m.deliveries, m.webhookEvents, m.droppedEvents,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Reconciled(result string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(result).Inc()
}

func (m *Metrics) DirectoryLookup(outcome string) {
	if m == nil {
		return
	}
	m.directoryLookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) QueueWait(d time.Duration) {
	if m == nil {
		return
	}
	m.queueWait.Observe(d.Seconds())
}

func (m *Metrics) Delivery(outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Webhook(result string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(result).Inc()
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.droppedEvents.Inc()
}
