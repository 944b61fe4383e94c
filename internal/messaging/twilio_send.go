package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/practice-concierge/pkg/logging"
)

var twilioSendTracer = otel.Tracer("concierge.internal.messaging.twilio_send")

const (
	defaultTwilioBaseURL = "https://api.twilio.com"
	maxSendAttempts      = 3
)

// TwilioSender posts WhatsApp messages using Twilio's REST API.
type TwilioSender struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	retryDelay func() time.Duration
	httpClient *http.Client
	logger     *logging.Logger
}

// TwilioOption customizes a TwilioSender.
type TwilioOption func(*TwilioSender)

// WithTwilioBaseURL points the sender at another API host.
func WithTwilioBaseURL(baseURL string) TwilioOption {
	return func(s *TwilioSender) {
		if baseURL != "" {
			s.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithTwilioHTTPClient overrides the HTTP client.
func WithTwilioHTTPClient(client *http.Client) TwilioOption {
	return func(s *TwilioSender) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithTwilioRetryDelay overrides the pause between attempts.
func WithTwilioRetryDelay(d time.Duration) TwilioOption {
	return func(s *TwilioSender) {
		s.retryDelay = func() time.Duration { return d }
	}
}

// NewTwilioSender builds a sender with sane defaults.
func NewTwilioSender(accountSID, authToken, defaultFrom string, logger *logging.Logger, opts ...TwilioOption) *TwilioSender {
	if logger == nil {
		logger = logging.Default()
	}
	s := &TwilioSender{
		accountSID: accountSID,
		authToken:  authToken,
		from:       defaultFrom,
		baseURL:    defaultTwilioBaseURL,
		retryDelay: func() time.Duration { return time.Duration(200+rand.Intn(300)) * time.Millisecond },
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Sender = (*TwilioSender)(nil)

// Send dispatches a single WhatsApp message, retrying transient failures.
// It returns the Twilio message SID.
func (s *TwilioSender) Send(ctx context.Context, msg OutboundMessage) (string, error) {
	if s.accountSID == "" || s.authToken == "" {
		return "", fmt.Errorf("%w: twilio credentials missing", ErrDeliveryFailed)
	}
	to := WhatsAppAddress(msg.To)
	if to == "" {
		return "", fmt.Errorf("%w: to required", ErrDeliveryFailed)
	}
	from := WhatsAppAddress(msg.From)
	if from == "" {
		from = WhatsAppAddress(s.from)
	}
	if from == "" {
		return "", fmt.Errorf("%w: from required", ErrDeliveryFailed)
	}
	if strings.TrimSpace(msg.Body) == "" {
		return "", fmt.Errorf("%w: body required", ErrDeliveryFailed)
	}

	ctx, span := twilioSendTracer.Start(ctx, "messaging.twilio.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("concierge.practice_id", msg.PracticeID),
		attribute.String("concierge.to", to),
	)

	payload := url.Values{}
	payload.Set("To", to)
	payload.Set("From", from)
	payload.Set("Body", msg.Body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)

	var lastErr error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		sid, retry, err := s.post(ctx, endpoint, payload)
		if err == nil {
			s.logger.Info("twilio whatsapp sent", "practice_id", msg.PracticeID, "to", to, "message_sid", sid)
			return sid, nil
		}
		lastErr = err
		if !retry {
			break
		}
		if attempt < maxSendAttempts {
			if err := sleepContext(ctx, s.retryDelay()); err != nil {
				lastErr = err
				break
			}
		}
	}

	span.RecordError(lastErr)
	return "", fmt.Errorf("%w: %w", ErrDeliveryFailed, lastErr)
}

func (s *TwilioSender) post(ctx context.Context, endpoint string, payload url.Values) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
	if err != nil {
		return "", false, err
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", true, err
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var parsed struct {
			SID string `json:"sid"`
		}
		_ = json.Unmarshal(body, &parsed)
		return parsed.SID, false, nil
	}
	err = fmt.Errorf("twilio send failed: %s", formatTwilioError(resp.StatusCode, body))
	// Don't retry non-rate-limit 4xx errors.
	retry := !(resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests)
	return "", retry, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type twilioAPIError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func formatTwilioError(status int, body []byte) string {
	body = []byte(strings.TrimSpace(string(body)))
	if len(body) == 0 {
		return fmt.Sprintf("status %d", status)
	}
	var parsed twilioAPIError
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("status %d code %d: %s", status, parsed.Code, parsed.Message)
		}
		return fmt.Sprintf("status %d: %s", status, parsed.Message)
	}
	return fmt.Sprintf("status %d: %s", status, string(body))
}
