// Package practice models the tenant that owns calendar, messaging and appointments.
package practice

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no practice matches the lookup.
	ErrNotFound = errors.New("practice: not found")
	// ErrCalendarNotConfigured is returned when a practice has no calendar configuration at all.
	ErrCalendarNotConfigured = errors.New("practice: calendar not configured")
	// ErrInvalidTimezone is returned when the calendar timezone is empty or unknown.
	ErrInvalidTimezone = errors.New("practice: invalid calendar timezone")
)

const (
	// DefaultSlotDurationMinutes applies when the calendar leaves the duration unset.
	DefaultSlotDurationMinutes = 30
	clockLayout                = "15:04"
)

// WorkingHour is the open window for one weekday.
type WorkingHour struct {
	Start   string `json:"start"` // "09:00" in 24-hour format
	End     string `json:"end"`   // "17:00" in 24-hour format
	Enabled bool   `json:"enabled"`
}

// CalendarConfig drives slot generation for a practice.
type CalendarConfig struct {
	CalendarID          string                 `json:"calendar_id,omitempty"`
	SlotDurationMinutes int                    `json:"slot_duration_minutes"`
	Timezone            string                 `json:"timezone"`
	WorkingHours        map[string]WorkingHour `json:"working_hours"`
}

// WhatsAppConfig binds a practice to a WhatsApp sender address.
type WhatsAppConfig struct {
	Enabled        bool   `json:"enabled"`
	PhoneNumber    string `json:"phone_number"`
	WelcomeMessage string `json:"welcome_message,omitempty"`
	AwayMessage    string `json:"away_message,omitempty"`
}

// Practice is the tenant aggregate.
type Practice struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Specialty       string          `json:"specialty,omitempty"`
	Phone           string          `json:"phone,omitempty"`
	Address         string          `json:"address,omitempty"`
	Email           string          `json:"email,omitempty"`
	Active          bool            `json:"active"`
	GoogleLocations []string        `json:"google_locations,omitempty"`
	Calendar        *CalendarConfig `json:"calendar,omitempty"`
	WhatsApp        WhatsAppConfig  `json:"whatsapp"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// MessagingEnabled reports whether patients can be messaged on the practice's behalf.
func (p *Practice) MessagingEnabled() bool {
	return p != nil && p.WhatsApp.Enabled && strings.TrimSpace(p.WhatsApp.PhoneNumber) != ""
}

// SlotDuration returns the configured slot length.
func (p *Practice) SlotDuration() time.Duration {
	if p == nil || p.Calendar == nil {
		return DefaultSlotDurationMinutes * time.Minute
	}
	return time.Duration(p.Calendar.DurationMinutes()) * time.Minute
}

// Location resolves the practice timezone. The calendar must be configured.
func (p *Practice) Location() (*time.Location, error) {
	if p == nil || p.Calendar == nil {
		return nil, ErrCalendarNotConfigured
	}
	return p.Calendar.Location()
}

// DurationMinutes returns the slot length, defaulting when unset.
func (c *CalendarConfig) DurationMinutes() int {
	if c == nil || c.SlotDurationMinutes <= 0 {
		return DefaultSlotDurationMinutes
	}
	return c.SlotDurationMinutes
}

// Location loads the configured IANA zone. There is no ambient fallback.
func (c *CalendarConfig) Location() (*time.Location, error) {
	if c == nil {
		return nil, ErrCalendarNotConfigured
	}
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return nil, ErrInvalidTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, tz)
	}
	return loc, nil
}

// HoursFor returns the working window for a weekday. ok is false when the day
// is absent or disabled.
func (c *CalendarConfig) HoursFor(weekday time.Weekday) (WorkingHour, bool) {
	if c == nil || len(c.WorkingHours) == 0 {
		return WorkingHour{}, false
	}
	hours, found := c.WorkingHours[WeekdayKey(weekday)]
	if !found || !hours.Enabled {
		return WorkingHour{}, false
	}
	return hours, true
}

// Validate checks the timezone and every enabled working window.
func (c *CalendarConfig) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	for day, hours := range c.WorkingHours {
		if !hours.Enabled {
			continue
		}
		start, end, err := hours.Bounds()
		if err != nil {
			return fmt.Errorf("practice: %s: %w", day, err)
		}
		if !end.After(start) {
			return fmt.Errorf("practice: %s: end %s must be after start %s", day, hours.End, hours.Start)
		}
	}
	return nil
}

// Bounds parses the start and end clock times. Only hour and minute are meaningful.
func (w WorkingHour) Bounds() (time.Time, time.Time, error) {
	start, err := time.Parse(clockLayout, strings.TrimSpace(w.Start))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse start %q: %w", w.Start, err)
	}
	end, err := time.Parse(clockLayout, strings.TrimSpace(w.End))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse end %q: %w", w.End, err)
	}
	return start, end, nil
}

// WeekdayKey is the working-hours map key for a weekday ("monday", ...).
func WeekdayKey(weekday time.Weekday) string {
	return strings.ToLower(weekday.String())
}
