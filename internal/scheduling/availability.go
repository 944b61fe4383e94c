package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/practice-concierge/internal/appointment"
	"github.com/wolfman30/practice-concierge/internal/observability/metrics"
	"github.com/wolfman30/practice-concierge/internal/practice"
)

// Slot is a bookable interval. It is derived on demand and never stored.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Interval is a booked [Start, End) range.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Calculator enumerates free slots from working hours minus booked appointments.
type Calculator struct {
	practices    practice.Repository
	appointments appointment.Repository
	metrics      *metrics.SchedulingMetrics
}

func NewCalculator(practices practice.Repository, appointments appointment.Repository, m *metrics.SchedulingMetrics) *Calculator {
	return &Calculator{practices: practices, appointments: appointments, metrics: m}
}

// ComputeSlots returns free slots for the calendar day of date, ascending.
// Only the year, month and day of date are used; they are interpreted in the
// practice timezone. slotDurationMinutes <= 0 uses the practice default.
// A closed day yields an empty result and no error.
func (c *Calculator) ComputeSlots(ctx context.Context, practiceID string, date time.Time, slotDurationMinutes int) ([]Slot, error) {
	p, err := c.loadPractice(ctx, practiceID)
	if err != nil {
		return nil, err
	}
	return c.slotsFor(ctx, c.appointments, p, date, slotDurationMinutes)
}

func (c *Calculator) loadPractice(ctx context.Context, practiceID string) (*practice.Practice, error) {
	p, err := c.practices.Get(ctx, practiceID)
	if errors.Is(err, practice.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPracticeNotFound, practiceID)
	}
	if err != nil {
		return nil, fmt.Errorf("scheduling: load practice: %w", err)
	}
	return p, nil
}

// slotsFor runs the computation against repo so the booking transaction can
// re-validate inside its own transaction.
func (c *Calculator) slotsFor(ctx context.Context, repo appointment.Repository, p *practice.Practice, date time.Time, slotDurationMinutes int) ([]Slot, error) {
	if p.Calendar == nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigurationMissing, practice.ErrCalendarNotConfigured)
	}
	loc, err := p.Calendar.Location()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigurationMissing, err)
	}
	if slotDurationMinutes <= 0 {
		slotDurationMinutes = p.Calendar.DurationMinutes()
	}

	y, m, d := date.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, loc)
	hours, open := p.Calendar.HoursFor(dayStart.Weekday())
	if !open {
		c.metrics.ObserveSlots("closed", 0)
		return []Slot{}, nil
	}

	nextDay := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	booked, err := repo.ListActiveBetween(ctx, p.ID, dayStart, nextDay)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list appointments: %w", err)
	}
	intervals := make([]Interval, 0, len(booked))
	for _, a := range booked {
		intervals = append(intervals, Interval{Start: a.Start, End: a.End()})
	}

	slots, err := GenerateSlots(hours, dayStart, loc, time.Duration(slotDurationMinutes)*time.Minute, intervals)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigurationMissing, err)
	}
	result := "open"
	if len(slots) == 0 {
		result = "full"
	}
	c.metrics.ObserveSlots(result, len(slots))
	return slots, nil
}

// GenerateSlots steps from the open time by duration while a candidate still
// ends at or before close, keeping candidates that overlap no booked interval.
// Open and close are built with time.Date in loc, so DST days have the right
// wall-clock bounds.
func GenerateSlots(hours practice.WorkingHour, day time.Time, loc *time.Location, duration time.Duration, booked []Interval) ([]Slot, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("scheduling: slot duration must be positive")
	}
	openClock, closeClock, err := hours.Bounds()
	if err != nil {
		return nil, err
	}
	y, m, d := day.Date()
	open := time.Date(y, m, d, openClock.Hour(), openClock.Minute(), 0, 0, loc)
	closeAt := time.Date(y, m, d, closeClock.Hour(), closeClock.Minute(), 0, 0, loc)

	slots := []Slot{}
	for start := open; !start.Add(duration).After(closeAt); start = start.Add(duration) {
		end := start.Add(duration)
		free := true
		for _, b := range booked {
			if appointment.Overlaps(start, end, b.Start, b.End) {
				free = false
				break
			}
		}
		if free {
			slots = append(slots, Slot{Start: start, End: end})
		}
	}
	return slots, nil
}

// FindSlot returns the slot starting exactly at start.
func FindSlot(slots []Slot, start time.Time) (Slot, bool) {
	for _, s := range slots {
		if s.Start.Equal(start) {
			return s, true
		}
	}
	return Slot{}, false
}
