package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/practice-concierge/internal/appointment"
	"github.com/wolfman30/practice-concierge/internal/audit"
	"github.com/wolfman30/practice-concierge/internal/events"
	"github.com/wolfman30/practice-concierge/internal/observability/metrics"
	"github.com/wolfman30/practice-concierge/internal/practice"
	"github.com/wolfman30/practice-concierge/pkg/logging"
)

// MirrorHandler delivers calendar.create and calendar.cancel outbox entries.
// Returning an error leaves the entry in the outbox for a later retry.
type MirrorHandler struct {
	practices    practice.Repository
	appointments appointment.Repository
	mirror       Mirror
	metrics      *metrics.SchedulingMetrics
	logger       *logging.Logger
}

func NewMirrorHandler(practices practice.Repository, appointments appointment.Repository, mirror Mirror, m *metrics.SchedulingMetrics, logger *logging.Logger) *MirrorHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &MirrorHandler{practices: practices, appointments: appointments, mirror: mirror, metrics: m, logger: logger}
}

var _ events.DeliveryHandler = (*MirrorHandler)(nil)

func (h *MirrorHandler) Handle(ctx context.Context, entry events.OutboxEntry) error {
	var job MirrorJob
	if err := json.Unmarshal(entry.Payload, &job); err != nil {
		// A payload we cannot read will never succeed.
		h.logger.Error("calendar mirror payload invalid", "event_id", entry.ID, "error", err)
		return nil
	}

	var err error
	switch entry.Type {
	case EventTypeCreate:
		err = h.create(ctx, job)
	case EventTypeCancel:
		err = h.cancel(ctx, job)
	default:
		h.logger.Warn("calendar mirror ignoring unknown event type", "type", entry.Type, "event_id", entry.ID)
		return nil
	}
	if err != nil {
		h.metrics.ObserveMirror(entry.Type, "failed")
		return err
	}
	h.metrics.ObserveMirror(entry.Type, "delivered")
	return nil
}

func (h *MirrorHandler) create(ctx context.Context, job MirrorJob) error {
	appt, err := h.appointments.Get(ctx, job.PracticeID, job.AppointmentID)
	if errors.Is(err, appointment.ErrNotFound) {
		h.logger.Warn("calendar mirror appointment missing", "practice_id", job.PracticeID, "appointment_id", job.AppointmentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("calendar: load appointment: %w", err)
	}
	if !appt.Status.IsActive() || appt.CalendarEventID != "" {
		return nil
	}

	p, err := h.practices.Get(ctx, job.PracticeID)
	if err != nil {
		return fmt.Errorf("calendar: load practice: %w", err)
	}
	if p.Calendar == nil {
		return nil
	}
	calendarID := job.CalendarID
	if calendarID == "" {
		calendarID = p.Calendar.CalendarID
	}

	eventID, err := h.mirror.CreateEvent(ctx, calendarID, buildEvent(p, appt))
	if err != nil {
		return err
	}
	if err := h.appointments.SetCalendarEventID(ctx, appt.ID, eventID); err != nil {
		return fmt.Errorf("calendar: store event id: %w", err)
	}
	h.logger.Info("appointment mirrored to calendar", "practice_id", p.ID, "appointment_id", appt.ID, "calendar_event_id", eventID)
	return nil
}

func (h *MirrorHandler) cancel(ctx context.Context, job MirrorJob) error {
	appt, err := h.appointments.Get(ctx, job.PracticeID, job.AppointmentID)
	if errors.Is(err, appointment.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("calendar: load appointment: %w", err)
	}
	if appt.CalendarEventID == "" {
		// The create was skipped or never delivered.
		return nil
	}
	if err := h.mirror.DeleteEvent(ctx, job.CalendarID, appt.CalendarEventID); err != nil {
		return err
	}
	h.logger.Info("calendar event removed", "practice_id", job.PracticeID, "appointment_id", appt.ID, "calendar_event_id", appt.CalendarEventID)
	return nil
}

// DeadLetterRecorder reports mirror jobs that ran out of attempts to operators.
func DeadLetterRecorder(rec audit.Recorder, logger *logging.Logger) events.DeadLetterFunc {
	return func(ctx context.Context, entry events.OutboxEntry, cause error) {
		details := map[string]any{
			"event_id": entry.ID.String(),
			"type":     entry.Type,
			"attempts": entry.Attempts,
		}
		if cause != nil {
			details["error"] = cause.Error()
		}
		var job MirrorJob
		if err := json.Unmarshal(entry.Payload, &job); err == nil {
			details["appointment_id"] = job.AppointmentID.String()
		}
		audit.RecordQuietly(ctx, rec, logger, audit.Event{
			PracticeID: entry.PracticeID,
			Category:   audit.CategoryMirrorDeadLetter,
			Message:    "calendar mirror gave up after repeated failures",
			Details:    details,
		})
	}
}

func buildEvent(p *practice.Practice, appt *appointment.Appointment) Event {
	name := strings.TrimSpace(appt.PatientName)
	if name == "" {
		name = appt.PatientPhone
	}
	var desc strings.Builder
	fmt.Fprintf(&desc, "Patient: %s\nPhone: %s\nBooked via: %s", name, appt.PatientPhone, appt.Source)
	if appt.Reason != "" {
		fmt.Fprintf(&desc, "\nReason: %s", appt.Reason)
	}
	return Event{
		Summary:     fmt.Sprintf("%s - %s", p.Name, name),
		Description: desc.String(),
		Start:       appt.Start,
		End:         appt.End(),
		TimeZone:    p.Calendar.Timezone,
	}
}
