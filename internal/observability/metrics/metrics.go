// Package metrics exposes Prometheus instruments for the conversation engine and transport.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "clinic_concierge"

// EngineMetrics counts conversation turns. A nil *EngineMetrics is a no-op.
type EngineMetrics struct {
	turnsTotal     *prometheus.CounterVec
	turnLatency    *prometheus.HistogramVec
	escalations    prometheus.Counter
	bookingsTotal  *prometheus.CounterVec
	failedAttempts prometheus.Counter
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "turns_total",
			Help:      "Conversation turns by resolver and intent",
		}, []string{"resolver", "intent"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "turn_latency_seconds",
			Help:      "Latency of a full conversation turn",
			Buckets:   prometheus.DefBuckets,
		}, []string{"resolver"}),
		escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "escalations_total",
			Help:      "Conversations moved to a human operator",
		}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "bookings_total",
			Help:      "Scheduling flows finished, by outcome",
		}, []string{"outcome"}),
		failedAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "failed_attempts_total",
			Help:      "Turns resolved below the confidence threshold",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.turnLatency, m.escalations, m.bookingsTotal, m.failedAttempts)
	return m
}

func (m *EngineMetrics) ObserveTurn(resolver, intent string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(resolver, intent).Inc()
	m.turnLatency.WithLabelValues(resolver).Observe(seconds)
}

func (m *EngineMetrics) ObserveEscalation() {
	if m == nil {
		return
	}
	m.escalations.Inc()
}

func (m *EngineMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *EngineMetrics) ObserveFailedAttempt() {
	if m == nil {
		return
	}
	m.failedAttempts.Inc()
}

// MessagingMetrics exposes counters/histograms for messaging flows.
type MessagingMetrics struct {
	outboundTotal  *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewMessagingMetrics(reg prometheus.Registerer) *MessagingMetrics {
	m := &MessagingMetrics{
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Total outbound sends",
		}, []string{"kind", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of Telnyx webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.outboundTotal, m.webhookLatency)
	return m
}

// ObserveOutbound records a proactive send (reminder, waitlist, nudge).
func (m *MessagingMetrics) ObserveOutbound(kind string, err error) {
	if m == nil {
		return
	}
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.outboundTotal.WithLabelValues(kind, status).Inc()
}

// ObserveWebhook satisfies messaging.WebhookObserver.
func (m *MessagingMetrics) ObserveWebhook(eventType string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(eventType).Observe(seconds)
}
