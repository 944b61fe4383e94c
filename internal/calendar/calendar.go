// Package calendar mirrors appointments into an external calendar on a best-effort basis.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrMirrorFailed wraps failures talking to the external calendar.
var ErrMirrorFailed = errors.New("calendar: mirror failed")

// Outbox event types handled by MirrorHandler.
const (
	EventTypeCreate = "calendar.create"
	EventTypeCancel = "calendar.cancel"
)

// Event is the calendar entry written for an appointment.
type Event struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	// TimeZone is the practice's IANA zone; Start and End are rendered in it.
	TimeZone string
}

// Mirror writes and removes events in an external calendar.
type Mirror interface {
	CreateEvent(ctx context.Context, calendarID string, event Event) (string, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// MirrorJob is the outbox payload for both event types.
type MirrorJob struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	PracticeID    string    `json:"practice_id"`
	CalendarID    string    `json:"calendar_id"`
}

// LogMirror pretends to mirror events. It is used when no calendar
// credentials are configured.
type LogMirror struct {
	Created []Event
}

func (l *LogMirror) CreateEvent(_ context.Context, calendarID string, event Event) (string, error) {
	l.Created = append(l.Created, event)
	return fmt.Sprintf("local-%s-%d", calendarID, event.Start.Unix()), nil
}

func (l *LogMirror) DeleteEvent(context.Context, string, string) error {
	return nil
}
