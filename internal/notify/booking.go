package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/practice-concierge/internal/appointment"
	"github.com/wolfman30/practice-concierge/internal/messaging/templates"
	"github.com/wolfman30/practice-concierge/internal/practice"
	"github.com/wolfman30/practice-concierge/internal/scheduling"
	"github.com/wolfman30/practice-concierge/pkg/logging"
)

// BookingNotifier emails the practice whenever an appointment is booked.
type BookingNotifier struct {
	email    EmailSender
	renderer *templates.Renderer
	logger   *logging.Logger
}

var _ scheduling.BookingObserver = (*BookingNotifier)(nil)

func NewBookingNotifier(email EmailSender, logger *logging.Logger) *BookingNotifier {
	if email == nil {
		panic("notify: email sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingNotifier{email: email, renderer: &templates.Renderer{}, logger: logger}
}

// AppointmentBooked sends the new-booking email. Practices without an email
// address are skipped.
func (n *BookingNotifier) AppointmentBooked(ctx context.Context, p *practice.Practice, appt *appointment.Appointment) error {
	if p == nil || appt == nil || strings.TrimSpace(p.Email) == "" {
		return nil
	}
	start := appt.Start
	if loc, err := p.Location(); err == nil {
		start = start.In(loc)
	}
	day, clock := templates.Day(start), templates.Clock(start)

	body, err := n.renderer.RenderNamed(templates.PracticeNewBooking, map[string]any{
		"Practice": p.Name,
		"Day":      day,
		"Time":     clock,
		"Patient":  appt.PatientName,
		"Phone":    appt.PatientPhone,
		"Reason":   appt.Reason,
	})
	if err != nil {
		return fmt.Errorf("notify: render booking email: %w", err)
	}

	err = n.email.Send(ctx, EmailMessage{
		To:         p.Email,
		ToName:     p.Name,
		FromName:   fmt.Sprintf("%s via %s", p.Name, defaultFromName),
		Subject:    fmt.Sprintf("New appointment: %s at %s (%s)", day, clock, appt.Source),
		Body:       body,
		PracticeID: p.ID,
		Category:   CategoryNewBooking,
	})
	if err != nil {
		return fmt.Errorf("notify: booking email for %s: %w", appt.ID, err)
	}
	n.logger.Debug("booking email sent", "practice_id", p.ID, "appointment_id", appt.ID.String())
	return nil
}
