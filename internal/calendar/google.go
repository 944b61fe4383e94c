package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

var googleCalendarTracer = otel.Tracer("concierge.internal.calendar.google")

// GoogleCalendar mirrors events into Google Calendar.
type GoogleCalendar struct {
	events *gcal.EventsService
}

// NewGoogleCalendar builds a client from service-account credentials or other client options.
func NewGoogleCalendar(ctx context.Context, opts ...option.ClientOption) (*GoogleCalendar, error) {
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar: init google service: %w", err)
	}
	return &GoogleCalendar{events: svc.Events}, nil
}

// NewGoogleCalendarFromFile uses a service-account JSON key on disk.
func NewGoogleCalendarFromFile(ctx context.Context, credentialsFile string) (*GoogleCalendar, error) {
	return NewGoogleCalendar(ctx, option.WithCredentialsFile(credentialsFile), option.WithScopes(gcal.CalendarEventsScope))
}

func (g *GoogleCalendar) CreateEvent(ctx context.Context, calendarID string, event Event) (string, error) {
	ctx, span := googleCalendarTracer.Start(ctx, "calendar.google.create")
	defer span.End()
	span.SetAttributes(attribute.String("concierge.calendar_id", calendarID))

	if event.TimeZone == "" {
		return "", fmt.Errorf("%w: event timezone required", ErrMirrorFailed)
	}
	loc, err := time.LoadLocation(event.TimeZone)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMirrorFailed, err)
	}

	created, err := g.events.Insert(calendarID, &gcal.Event{
		Summary:     event.Summary,
		Description: event.Description,
		Start: &gcal.EventDateTime{
			DateTime: event.Start.In(loc).Format(time.RFC3339),
			TimeZone: event.TimeZone,
		},
		End: &gcal.EventDateTime{
			DateTime: event.End.In(loc).Format(time.RFC3339),
			TimeZone: event.TimeZone,
		},
	}).Context(ctx).Do()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%w: insert event: %v", ErrMirrorFailed, err)
	}
	return created.Id, nil
}

// DeleteEvent removes an event. An already-deleted event counts as success.
func (g *GoogleCalendar) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	ctx, span := googleCalendarTracer.Start(ctx, "calendar.google.delete")
	defer span.End()

	err := g.events.Delete(calendarID, eventID).Context(ctx).Do()
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone) {
		return nil
	}
	span.RecordError(err)
	return fmt.Errorf("%w: delete event: %v", ErrMirrorFailed, err)
}
