package practice

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testCalendar() *CalendarConfig {
	return &CalendarConfig{
		CalendarID:          "cal-1",
		SlotDurationMinutes: 30,
		Timezone:            "America/New_York",
		WorkingHours: map[string]WorkingHour{
			"monday":   {Start: "09:00", End: "17:00", Enabled: true},
			"saturday": {Start: "10:00", End: "12:00", Enabled: false},
		},
	}
}

func TestCalendarLocationRequiresTimezone(t *testing.T) {
	cal := testCalendar()
	loc, err := cal.Location()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc.String() != "America/New_York" {
		t.Fatalf("unexpected location %s", loc)
	}

	cal.Timezone = ""
	if _, err := cal.Location(); !errors.Is(err, ErrInvalidTimezone) {
		t.Fatalf("expected ErrInvalidTimezone for empty zone, got %v", err)
	}
	cal.Timezone = "Mars/Olympus_Mons"
	if _, err := cal.Location(); !errors.Is(err, ErrInvalidTimezone) {
		t.Fatalf("expected ErrInvalidTimezone for unknown zone, got %v", err)
	}

	var p *Practice
	if _, err := p.Location(); !errors.Is(err, ErrCalendarNotConfigured) {
		t.Fatalf("expected ErrCalendarNotConfigured, got %v", err)
	}
}

func TestCalendarHoursFor(t *testing.T) {
	cal := testCalendar()
	if hours, ok := cal.HoursFor(time.Monday); !ok || hours.Start != "09:00" {
		t.Fatalf("expected monday hours, got %+v ok=%v", hours, ok)
	}
	if _, ok := cal.HoursFor(time.Saturday); ok {
		t.Fatalf("disabled day should be closed")
	}
	if _, ok := cal.HoursFor(time.Sunday); ok {
		t.Fatalf("absent day should be closed")
	}
}

func TestCalendarValidate(t *testing.T) {
	cal := testCalendar()
	if err := cal.Validate(); err != nil {
		t.Fatalf("expected valid calendar: %v", err)
	}
	cal.WorkingHours["tuesday"] = WorkingHour{Start: "17:00", End: "09:00", Enabled: true}
	if err := cal.Validate(); err == nil {
		t.Fatalf("expected inverted window to fail")
	}
	cal.WorkingHours["tuesday"] = WorkingHour{Start: "9am", End: "17:00", Enabled: true}
	if err := cal.Validate(); err == nil {
		t.Fatalf("expected unparseable start to fail")
	}
	// Disabled days are not checked.
	cal.WorkingHours["tuesday"] = WorkingHour{Start: "garbage", Enabled: false}
	if err := cal.Validate(); err != nil {
		t.Fatalf("disabled day should be ignored: %v", err)
	}
}

func TestPracticeDefaults(t *testing.T) {
	p := &Practice{ID: "p1"}
	if got := p.SlotDuration(); got != 30*time.Minute {
		t.Fatalf("expected default duration, got %s", got)
	}
	if p.MessagingEnabled() {
		t.Fatalf("messaging should be disabled without a number")
	}
	p.WhatsApp = WhatsAppConfig{Enabled: true, PhoneNumber: "+15550001111"}
	if !p.MessagingEnabled() {
		t.Fatalf("expected messaging enabled")
	}
	p.Calendar = &CalendarConfig{SlotDurationMinutes: 45, Timezone: "UTC"}
	if got := p.SlotDuration(); got != 45*time.Minute {
		t.Fatalf("expected 45m, got %s", got)
	}
}

func TestMemoryStoreLookups(t *testing.T) {
	store := NewMemoryStore(
		&Practice{ID: "p1", Name: "Smile Dental", Active: true, GoogleLocations: []string{"locations/1"},
			WhatsApp: WhatsAppConfig{Enabled: true, PhoneNumber: "+15550001111"}},
		&Practice{ID: "p2", Name: "Closed Clinic", Active: false},
	)
	ctx := context.Background()

	got, err := store.FindByWhatsAppNumber(ctx, "+15550001111")
	if err != nil || got.ID != "p1" {
		t.Fatalf("expected p1, got %+v err=%v", got, err)
	}
	if _, err := store.FindByWhatsAppNumber(ctx, "+19999999999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	got, err = store.FindByGoogleLocation(ctx, "locations/1")
	if err != nil || got.ID != "p1" {
		t.Fatalf("expected p1 by location, got %+v err=%v", got, err)
	}
	active, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].ID != "p1" {
		t.Fatalf("expected only p1 active, got %d", len(active))
	}

	// Returned values are copies.
	got.GoogleLocations[0] = "mutated"
	again, _ := store.Get(ctx, "p1")
	if again.GoogleLocations[0] != "locations/1" {
		t.Fatalf("store leaked internal state")
	}
}
