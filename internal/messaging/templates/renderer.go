// Package templates renders the fixed patient-facing message texts.
package templates

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"
	"time"
)

// Named message texts. Data fields are documented next to each.
const (
	// Practice, Patient, Day, Time
	Reminder = "reminder"
	// Practice, Day, Time
	BookingConfirmed = "booking_confirmed"
	// Practice, Day, Time, Patient, Phone, Reason
	PracticeNewBooking = "practice_new_booking"
)

var catalogue = map[string]string{
	Reminder: `Hi{{if .Patient}} {{.Patient}}{{end}}, this is a reminder of your appointment at {{.Practice}} on {{.Day}} at {{.Time}}. ` +
		`Reply CONFIRM to confirm or CANCEL to cancel.`,
	BookingConfirmed: `You're booked at {{.Practice}} on {{.Day}} at {{.Time}}. ` +
		`We'll send a reminder the day before. Reply CANCEL if you need to cancel.`,
	PracticeNewBooking: `New appointment on {{.Day}} at {{.Time}}` +
		`{{if .Patient}} for {{.Patient}}{{end}} ({{.Phone}}){{if .Reason}}: {{.Reason}}{{end}}.`,
}

// Renderer renders small text templates for outbound messaging.
type Renderer struct {
	mu     sync.Mutex
	parsed map[string]*template.Template
}

// Render compiles the provided template text with strict missing-key semantics.
func (r *Renderer) Render(name, tmpl string, data any) (string, error) {
	if tmpl == "" {
		return "", fmt.Errorf("templates: template text required")
	}
	t, err := r.lookup(name, tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("templates: execute %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// RenderNamed renders one of the catalogue texts.
func (r *Renderer) RenderNamed(name string, data any) (string, error) {
	tmpl, ok := catalogue[name]
	if !ok {
		return "", fmt.Errorf("templates: unknown template %q", name)
	}
	return r.Render(name, tmpl, data)
}

func (r *Renderer) lookup(name, tmpl string) (*template.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := name + "\x00" + tmpl
	if t, ok := r.parsed[key]; ok {
		return t, nil
	}
	t, err := template.New(name).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("templates: parse %s: %w", name, err)
	}
	if r.parsed == nil {
		r.parsed = make(map[string]*template.Template)
	}
	r.parsed[key] = t
	return t, nil
}

// Day formats a local time as "Monday, January 2".
func Day(t time.Time) string {
	return t.Format("Monday, January 2")
}

// Clock formats a local time as "3:04 PM".
func Clock(t time.Time) string {
	return t.Format("3:04 PM")
}
