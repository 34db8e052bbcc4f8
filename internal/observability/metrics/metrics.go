package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes counters/histograms for intake and messaging flows.
type Metrics struct {
	webhookEvents  *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
	bookings       *prometheus.CounterVec
	outboundSends  *prometheus.CounterVec
	tokenVerify    *prometheus.CounterVec
	linkClicks     prometheus.Counter
	taskFailures   *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "driveflow",
			Subsystem: "messaging",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound WhatsApp webhook events",
		}, []string{"event_type", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "driveflow",
			Subsystem: "messaging",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of WhatsApp webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "driveflow",
			Subsystem: "bookings",
			Name:      "ingested_total",
			Help:      "Total booking intake requests by outcome",
		}, []string{"outcome"}),
		outboundSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "driveflow",
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Total outbound WhatsApp sends",
		}, []string{"kind", "status"}),
		tokenVerify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "driveflow",
			Subsystem: "tracking",
			Name:      "token_verifications_total",
			Help:      "Total tracking token verifications by result",
		}, []string{"result"}),
		linkClicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "driveflow",
			Subsystem: "tracking",
			Name:      "link_clicks_total",
			Help:      "Total verified tracked-link clicks",
		}),
		taskFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "driveflow",
			Subsystem: "tasks",
			Name:      "failures_total",
			Help:      "Total detached background task failures",
		}, []string{"task"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.webhookEvents, m.webhookLatency, m.bookings, m.outboundSends, m.tokenVerify, m.linkClicks, m.taskFailures)
	return m
}

func (m *Metrics) ObserveWebhookEvent(eventType, status string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, status).Inc()
}

func (m *Metrics) ObserveWebhookLatency(eventType string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(eventType).Observe(seconds)
}

func (m *Metrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveOutbound(kind, status string) {
	if m == nil {
		return
	}
	m.outboundSends.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) ObserveTokenVerification(result string) {
	if m == nil {
		return
	}
	m.tokenVerify.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveLinkClick() {
	if m == nil {
		return
	}
	m.linkClicks.Inc()
}

func (m *Metrics) ObserveTaskFailure(task string) {
	if m == nil {
		return
	}
	m.taskFailures.WithLabelValues(task).Inc()
}
