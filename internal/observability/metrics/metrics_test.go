package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestSchedulingMetricsObserve(t *testing.T) {
	m := NewSchedulingMetrics(prometheus.NewRegistry())
	m.ObserveBooking("whatsapp", "booked")
	m.ObserveSlots("open", 12)
	m.ObserveReminder("sent")
	m.ObserveTurn("book", "ok")
	m.ObserveWebhook("whatsapp", "queued")
	m.ObserveWebhookLatency("whatsapp", 0.5)
	m.ObserveMirror("calendar.create", "delivered")
}

func TestSchedulingMetricsCountsBookings(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulingMetrics(reg)
	m.ObserveBooking("whatsapp", "booked")
	m.ObserveBooking("whatsapp", "booked")
	m.ObserveBooking("website", "slot_unavailable")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var booked float64
	for _, fam := range families {
		if fam.GetName() != "concierge_scheduling_bookings_total" {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabel(metric, "source", "whatsapp") && hasLabel(metric, "outcome", "booked") {
				booked = metric.GetCounter().GetValue()
			}
		}
	}
	if booked != 2 {
		t.Fatalf("expected 2 whatsapp bookings, got %v", booked)
	}
}

func TestSchedulingMetricsNilSafe(t *testing.T) {
	var m *SchedulingMetrics
	m.ObserveBooking("manual", "booked")
	m.ObserveSlots("closed", 0)
	m.ObserveReminder("failed")
	m.ObserveTurn("unknown", "error")
	m.ObserveWebhook("reviews", "ignored")
	m.ObserveWebhookLatency("reviews", 0.1)
	m.ObserveMirror("calendar.cancel", "failed")
}

func hasLabel(metric *dto.Metric, name, value string) bool {
	for _, pair := range metric.GetLabel() {
		if pair.GetName() == name && pair.GetValue() == value {
			return true
		}
	}
	return false
}
