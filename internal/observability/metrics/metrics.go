package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for booking, reminder and conversation flows.
type SchedulingMetrics struct {
	bookingsTotal     *prometheus.CounterVec
	slotComputations  *prometheus.HistogramVec
	remindersTotal    *prometheus.CounterVec
	inboundTurnsTotal *prometheus.CounterVec
	webhookTotal      *prometheus.CounterVec
	webhookLatency    *prometheus.HistogramVec
	mirrorDeliveries  *prometheus.CounterVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Booking attempts by source and outcome",
		}, []string{"source", "outcome"}),
		slotComputations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "concierge",
			Subsystem: "scheduling",
			Name:      "available_slots",
			Help:      "Number of slots returned per availability computation",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 40},
		}, []string{"result"}),
		remindersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "reminders",
			Name:      "processed_total",
			Help:      "Reminder scan outcomes per appointment or practice",
		}, []string{"outcome"}),
		inboundTurnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Inbound conversation turns by routed intent and outcome",
		}, []string{"intent", "outcome"}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "webhooks",
			Name:      "requests_total",
			Help:      "Webhook requests by source and result",
		}, []string{"source", "result"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "concierge",
			Subsystem: "webhooks",
			Name:      "latency_seconds",
			Help:      "Latency of webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		mirrorDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "calendar",
			Name:      "mirror_deliveries_total",
			Help:      "Calendar mirror outbox deliveries by type and status",
		}, []string{"type", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.slotComputations, m.remindersTotal, m.inboundTurnsTotal,
		m.webhookTotal, m.webhookLatency, m.mirrorDeliveries)
	return m
}

func (m *SchedulingMetrics) ObserveBooking(source, outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(source, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveSlots(result string, count int) {
	if m == nil {
		return
	}
	m.slotComputations.WithLabelValues(result).Observe(float64(count))
}

func (m *SchedulingMetrics) ObserveReminder(outcome string) {
	if m == nil {
		return
	}
	m.remindersTotal.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveTurn(intent, outcome string) {
	if m == nil {
		return
	}
	m.inboundTurnsTotal.WithLabelValues(intent, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveWebhook(source, result string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(source, result).Inc()
}

func (m *SchedulingMetrics) ObserveWebhookLatency(source string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(source).Observe(seconds)
}

func (m *SchedulingMetrics) ObserveMirror(eventType, status string) {
	if m == nil {
		return
	}
	m.mirrorDeliveries.WithLabelValues(eventType, status).Inc()
}
