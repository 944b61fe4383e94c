package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists appointments. All reads are scoped by practice.
type Repository interface {
	// ListActiveBetween returns scheduled or confirmed appointments with from <= start < to, ascending.
	ListActiveBetween(ctx context.Context, practiceID string, from, to time.Time) ([]*Appointment, error)
	// Insert stores a new appointment or returns ErrSlotTaken.
	Insert(ctx context.Context, appt *Appointment) error
	Get(ctx context.Context, practiceID string, id uuid.UUID) (*Appointment, error)
	// FindNextByPhone returns the earliest appointment starting at or after after.
	FindNextByPhone(ctx context.Context, practiceID, phone string, statuses []Status, after time.Time) (*Appointment, error)
	// UpdateStatus moves an appointment to "to" only when its current status is in from.
	UpdateStatus(ctx context.Context, practiceID string, id uuid.UUID, from []Status, to Status) error
	// ListDueForReminder returns active appointments in [from, to) that have not been reminded.
	ListDueForReminder(ctx context.Context, practiceID string, from, to time.Time) ([]*Appointment, error)
	// MarkReminderSent flips reminder_sent false -> true and reports whether it did.
	MarkReminderSent(ctx context.Context, id uuid.UUID) (bool, error)
	SetCalendarEventID(ctx context.Context, id uuid.UUID, eventID string) error
	// Transact runs fn against a repository bound to one serializable transaction.
	Transact(ctx context.Context, fn func(Repository) error) error
}

// allowedFrom narrows from to the statuses that may legally move to "to".
func allowedFrom(from []Status, to Status) []Status {
	var out []Status
	for _, s := range from {
		if CanTransition(s, to) {
			out = append(out, s)
		}
	}
	return out
}

func statusStrings(statuses []Status) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

// prepareInsert fills server-side defaults before an insert.
func prepareInsert(appt *Appointment, now time.Time) {
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	if appt.Status == "" {
		appt.Status = StatusScheduled
	}
	appt.SlotKey = SlotKey(appt.PracticeID, appt.Start, appt.DurationMinutes)
	appt.CreatedAt = now
	appt.UpdatedAt = now
}
