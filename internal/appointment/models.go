// Package appointment stores patient appointments and guards the no-overlap invariant.
package appointment

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no appointment matches.
	ErrNotFound = errors.New("appointment: not found")
	// ErrSlotTaken is returned when an insert collides with an active appointment.
	ErrSlotTaken = errors.New("appointment: slot taken")
	// ErrInvalidTransition is returned for a status change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("appointment: invalid status transition")
)

// Status is the appointment lifecycle state.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// ActiveStatuses are the statuses that occupy calendar time.
var ActiveStatuses = []Status{StatusScheduled, StatusConfirmed}

// IsActive reports whether the status blocks the slot.
func (s Status) IsActive() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

// CanTransition reports whether from -> to is an allowed lifecycle step.
func CanTransition(from, to Status) bool {
	switch to {
	case StatusConfirmed:
		return from == StatusScheduled
	case StatusCancelled, StatusCompleted:
		return from == StatusScheduled || from == StatusConfirmed
	default:
		return false
	}
}

// Source records where a booking came from.
type Source string

const (
	SourceWhatsApp Source = "whatsapp"
	SourceManual   Source = "manual"
	SourceWebsite  Source = "website"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceWhatsApp, SourceManual, SourceWebsite:
		return true
	}
	return false
}

// Appointment is a booked visit. Start is an instant; render it in the practice timezone.
type Appointment struct {
	ID              uuid.UUID `json:"id"`
	PracticeID      string    `json:"practice_id"`
	PatientName     string    `json:"patient_name"`
	PatientPhone    string    `json:"patient_phone"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	Reason          string    `json:"reason,omitempty"`
	Status          Status    `json:"status"`
	ReminderSent    bool      `json:"reminder_sent"`
	Source          Source    `json:"source"`
	CalendarEventID string    `json:"calendar_event_id,omitempty"`
	SlotKey         string    `json:"slot_key"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// End is the exclusive end of the appointment.
func (a *Appointment) End() time.Time {
	return a.Start.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Overlaps applies the exclusive-end interval test against [start, end).
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return Overlaps(a.Start, a.End(), start, end)
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect. An
// interval ending exactly when the other begins does not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	startInside := !aStart.Before(bStart) && aStart.Before(bEnd)
	endInside := aEnd.After(bStart) && !aEnd.After(bEnd)
	contains := !aStart.After(bStart) && !aEnd.Before(bEnd)
	return startInside || endInside || contains
}

// SlotKey is the deterministic identifier for a practice slot.
func SlotKey(practiceID string, start time.Time, durationMinutes int) string {
	return fmt.Sprintf("%s|%s|%d", practiceID, start.UTC().Format(time.RFC3339), durationMinutes)
}
