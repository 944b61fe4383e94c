package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/practice-concierge/internal/appointment"
	"github.com/wolfman30/practice-concierge/internal/audit"
	"github.com/wolfman30/practice-concierge/internal/events"
	"github.com/wolfman30/practice-concierge/internal/practice"
)

type stubMirror struct {
	created   []Event
	deleted   []string
	createErr error
}

func (s *stubMirror) CreateEvent(_ context.Context, _ string, event Event) (string, error) {
	if s.createErr != nil {
		return "", s.createErr
	}
	s.created = append(s.created, event)
	return "evt-1", nil
}

func (s *stubMirror) DeleteEvent(_ context.Context, _ string, eventID string) error {
	s.deleted = append(s.deleted, eventID)
	return nil
}

func setup(t *testing.T) (*practice.MemoryStore, *appointment.MemoryRepository, *appointment.Appointment) {
	t.Helper()
	practices := practice.NewMemoryStore(&practice.Practice{
		ID:     "p1",
		Name:   "Lisbon Dental",
		Active: true,
		Calendar: &practice.CalendarConfig{
			CalendarID: "cal-1",
			Timezone:   "Europe/Lisbon",
		},
	})
	appts := appointment.NewMemoryRepository()
	appt := &appointment.Appointment{
		PracticeID:      "p1",
		PatientName:     "Ana",
		PatientPhone:    "+351910000000",
		Start:           time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC),
		DurationMinutes: 30,
		Source:          appointment.SourceWhatsApp,
	}
	if err := appts.Insert(context.Background(), appt); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return practices, appts, appt
}

func entryFor(t *testing.T, eventType string, appt *appointment.Appointment) events.OutboxEntry {
	t.Helper()
	payload, err := json.Marshal(MirrorJob{AppointmentID: appt.ID, PracticeID: appt.PracticeID, CalendarID: "cal-1"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return events.OutboxEntry{ID: uuid.New(), PracticeID: appt.PracticeID, Type: eventType, Payload: payload}
}

func TestMirrorHandlerCreateStoresEventID(t *testing.T) {
	practices, appts, appt := setup(t)
	mirror := &stubMirror{}
	h := NewMirrorHandler(practices, appts, mirror, nil, nil)

	if err := h.Handle(context.Background(), entryFor(t, EventTypeCreate, appt)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(mirror.created) != 1 {
		t.Fatalf("expected one event, got %d", len(mirror.created))
	}
	if mirror.created[0].TimeZone != "Europe/Lisbon" {
		t.Fatalf("event should carry the practice timezone, got %q", mirror.created[0].TimeZone)
	}
	stored, _ := appts.Get(context.Background(), "p1", appt.ID)
	if stored.CalendarEventID != "evt-1" {
		t.Fatalf("expected event id to be stored, got %q", stored.CalendarEventID)
	}

	// Redelivery is a no-op once mirrored.
	if err := h.Handle(context.Background(), entryFor(t, EventTypeCreate, appt)); err != nil {
		t.Fatalf("redeliver: %v", err)
	}
	if len(mirror.created) != 1 {
		t.Fatalf("expected no duplicate event")
	}
}

func TestMirrorHandlerCreateFailureIsRetryable(t *testing.T) {
	practices, appts, appt := setup(t)
	mirror := &stubMirror{createErr: ErrMirrorFailed}
	h := NewMirrorHandler(practices, appts, mirror, nil, nil)

	err := h.Handle(context.Background(), entryFor(t, EventTypeCreate, appt))
	if !errors.Is(err, ErrMirrorFailed) {
		t.Fatalf("expected ErrMirrorFailed, got %v", err)
	}
}

func TestMirrorHandlerSkipsCancelledCreate(t *testing.T) {
	practices, appts, appt := setup(t)
	if err := appts.UpdateStatus(context.Background(), "p1", appt.ID, appointment.ActiveStatuses, appointment.StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	mirror := &stubMirror{}
	h := NewMirrorHandler(practices, appts, mirror, nil, nil)
	if err := h.Handle(context.Background(), entryFor(t, EventTypeCreate, appt)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(mirror.created) != 0 {
		t.Fatalf("cancelled appointment should not be mirrored")
	}
}

func TestMirrorHandlerCancelDeletesEvent(t *testing.T) {
	practices, appts, appt := setup(t)
	if err := appts.SetCalendarEventID(context.Background(), appt.ID, "evt-9"); err != nil {
		t.Fatalf("set event: %v", err)
	}
	mirror := &stubMirror{}
	h := NewMirrorHandler(practices, appts, mirror, nil, nil)
	if err := h.Handle(context.Background(), entryFor(t, EventTypeCancel, appt)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(mirror.deleted) != 1 || mirror.deleted[0] != "evt-9" {
		t.Fatalf("expected evt-9 deleted, got %v", mirror.deleted)
	}
}

type captureRecorder struct {
	events []audit.Event
}

func (c *captureRecorder) Record(_ context.Context, event audit.Event) error {
	c.events = append(c.events, event)
	return nil
}

func TestDeadLetterRecorderReportsAppointment(t *testing.T) {
	_, _, appt := setup(t)
	rec := &captureRecorder{}
	entry := entryFor(t, EventTypeCreate, appt)
	entry.Attempts = 8

	DeadLetterRecorder(rec, nil)(context.Background(), entry, errors.New("quota exceeded"))

	if len(rec.events) != 1 {
		t.Fatalf("expected one operator event, got %d", len(rec.events))
	}
	got := rec.events[0]
	if got.Category != audit.CategoryMirrorDeadLetter || got.PracticeID != "p1" {
		t.Fatalf("unexpected event %+v", got)
	}
	if got.Details["appointment_id"] != appt.ID.String() || got.Details["error"] != "quota exceeded" {
		t.Fatalf("unexpected details %#v", got.Details)
	}
}
