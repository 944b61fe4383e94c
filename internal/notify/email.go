// Package notify emails practice staff about booking activity.
package notify

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/practice-concierge/pkg/logging"
)

const defaultFromName = "Practice Concierge"

// CategoryNewBooking tags staff notifications about a new appointment.
const CategoryNewBooking = "new_booking"

// EmailSender delivers staff email. SendGrid and SES both implement it.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is one email to practice staff. PracticeID and Category are
// attached as provider tags so bounces and opens can be traced to a practice.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string // plain text
	HTML    string // optional

	// FromName replaces the sender's configured display name, e.g. with the practice's name.
	FromName   string
	ReplyTo    string
	PracticeID string
	Category   string
}

func (m EmailMessage) fromName(fallback string) string {
	if name := strings.TrimSpace(m.FromName); name != "" {
		return name
	}
	return fallback
}

var tagUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// tags returns provider-safe tag pairs. SES only accepts [A-Za-z0-9_-].
func (m EmailMessage) tags() map[string]string {
	tags := map[string]string{}
	if m.PracticeID != "" {
		tags["practice_id"] = tagUnsafe.ReplaceAllString(m.PracticeID, "_")
	}
	if m.Category != "" {
		tags["category"] = tagUnsafe.ReplaceAllString(m.Category, "_")
	}
	return tags
}

type sendgridAPI interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridSender sends emails via SendGrid API.
type SendGridSender struct {
	client    sendgridAPI
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewSendGridSender creates a new SendGrid email sender. It returns nil without an API key.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

// Send sends an email via SendGrid.
func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}

	from := mail.NewEmail(msg.fromName(s.fromName), s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)
	html := msg.HTML
	if html == "" {
		html = msg.Body
	}

	email := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, html)
	if msg.ReplyTo != "" {
		email.SetReplyTo(mail.NewEmail("", msg.ReplyTo))
	}
	if msg.Category != "" {
		email.AddCategories(msg.Category)
	}
	for key, value := range msg.tags() {
		email.SetCustomArg(key, value)
	}

	response, err := s.client.SendWithContext(ctx, email)
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "practice_id", msg.PracticeID, "to", msg.To)
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid returned error status", "status", response.StatusCode, "body", response.Body,
			"practice_id", msg.PracticeID, "to", msg.To)
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Info("email sent via sendgrid", "practice_id", msg.PracticeID, "category", msg.Category, "status", response.StatusCode)
	return nil
}

// StubEmailSender logs instead of sending. Used when no provider is configured.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("stub email sender: would send email", "practice_id", msg.PracticeID, "category", msg.Category, "subject", msg.Subject)
	return nil
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*StubEmailSender)(nil)
)
