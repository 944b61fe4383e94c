package messaging

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/practice-concierge/internal/practice"
	"github.com/wolfman30/practice-concierge/pkg/logging"
)

// ErrDeliveryFailed wraps every outbound delivery failure.
var ErrDeliveryFailed = errors.New("messaging: delivery failed")

// OutboundMessage is one WhatsApp message sent on a practice's behalf.
type OutboundMessage struct {
	PracticeID string
	To         string
	From       string
	Body       string
}

// Sender is the notification gateway.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) (string, error)
}

// OutboundFor addresses a message from the practice's bound WhatsApp number.
func OutboundFor(p *practice.Practice, to, body string) OutboundMessage {
	msg := OutboundMessage{To: to, Body: body}
	if p != nil {
		msg.PracticeID = p.ID
		msg.From = strings.TrimSpace(p.WhatsApp.PhoneNumber)
	}
	return msg
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	logger *logging.Logger
}

func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg OutboundMessage) (string, error) {
	id := "log-" + uuid.NewString()
	s.logger.Info("outbound message (log sender)",
		"practice_id", msg.PracticeID,
		"to", msg.To,
		"from", msg.From,
		"body", msg.Body,
		"delivery_id", id,
	)
	return id, nil
}
