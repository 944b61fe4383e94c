package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/practice-concierge/internal/observability/metrics"
	"github.com/wolfman30/practice-concierge/internal/practice"
	"github.com/wolfman30/practice-concierge/internal/queue"
	"github.com/wolfman30/practice-concierge/pkg/logging"
)

var twilioTracer = otel.Tracer("concierge.internal.messaging.twilio")

const (
	emptyTwiML     = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`
	publishTimeout = 3 * time.Second
)

// Handler handles the inbound WhatsApp webhook.
type Handler struct {
	webhookSecret string
	publicBaseURL string
	resolver      *PracticeResolver
	turns         TurnRecorder
	queue         queue.Queue
	inline        InlineProcessor
	metrics       *metrics.SchedulingMetrics
	logger        *logging.Logger
	now           func() time.Time
}

// HandlerOption customizes the webhook handler.
type HandlerOption func(*Handler)

// WithWebhookSecret enables X-Twilio-Signature validation.
func WithWebhookSecret(secret string) HandlerOption {
	return func(h *Handler) { h.webhookSecret = secret }
}

// WithPublicBaseURL fixes the scheme and host used to rebuild the signed URL.
func WithPublicBaseURL(baseURL string) HandlerOption {
	return func(h *Handler) { h.publicBaseURL = strings.TrimRight(baseURL, "/") }
}

// WithTurnRecorder enables MessageSid dedupe.
func WithTurnRecorder(turns TurnRecorder) HandlerOption {
	return func(h *Handler) { h.turns = turns }
}

// WithQueue publishes accepted jobs for asynchronous processing.
func WithQueue(q queue.Queue) HandlerOption {
	return func(h *Handler) { h.queue = q }
}

// WithInlineProcessor processes jobs in the request when no queue is set.
func WithInlineProcessor(p InlineProcessor) HandlerOption {
	return func(h *Handler) { h.inline = p }
}

// WithHandlerMetrics attaches webhook metrics.
func WithHandlerMetrics(m *metrics.SchedulingMetrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// NewHandler creates the WhatsApp webhook handler.
func NewHandler(resolver *PracticeResolver, logger *logging.Logger, opts ...HandlerOption) *Handler {
	if resolver == nil {
		panic("messaging: practice resolver cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{resolver: resolver, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	if h.queue == nil && h.inline == nil {
		panic("messaging: either a queue or an inline processor is required")
	}
	return h
}

// WhatsAppWebhook handles POST /webhooks/whatsapp.
func (h *Handler) WhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	started := h.now()
	result := h.serve(w, r)
	h.metrics.ObserveWebhook("whatsapp", result)
	h.metrics.ObserveWebhookLatency("whatsapp", time.Since(started).Seconds())
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) string {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return "method_not_allowed"
	}

	ctx, span := twilioTracer.Start(r.Context(), "messaging.whatsapp.webhook")
	defer span.End()

	if h.webhookSecret != "" {
		if !ValidateTwilioSignature(r, h.webhookSecret, h.signedURL(r)) {
			h.logger.Warn("invalid twilio signature")
			span.RecordError(errors.New("invalid twilio signature"))
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return "unauthorized"
		}
	}

	webhook, err := ParseTwilioWebhook(r)
	if err != nil {
		h.logger.Warn("failed to parse twilio webhook", "error", err)
		span.RecordError(err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return "malformed"
	}
	from := NormalizeE164(StripWhatsAppPrefix(webhook.From))
	to := NormalizeE164(StripWhatsAppPrefix(webhook.To))
	if webhook.MessageSid == "" || from == "" || to == "" {
		h.logger.Warn("invalid twilio payload", "message_sid", webhook.MessageSid)
		span.RecordError(errors.New("missing required twilio fields"))
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return "malformed"
	}
	span.SetAttributes(
		attribute.String("concierge.twilio.message_sid", webhook.MessageSid),
		attribute.String("concierge.twilio.to", to),
	)

	p, err := h.resolver.Resolve(ctx, to)
	if errors.Is(err, practice.ErrNotFound) {
		h.logger.Warn("whatsapp message for unknown practice number", "to", to, "message_sid", webhook.MessageSid)
		writeTwiML(w)
		return "unknown_practice"
	}
	if err != nil {
		h.logger.Error("failed to resolve practice", "error", err, "to", to)
		span.RecordError(err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return "error"
	}
	logger := h.logger.WithPractice(p.ID).With("message_sid", webhook.MessageSid)
	span.SetAttributes(attribute.String("concierge.practice_id", p.ID))
	if !p.MessagingEnabled() {
		logger.Info("whatsapp message for practice with messaging disabled")
		writeTwiML(w)
		return "messaging_disabled"
	}

	job := InboundJob{
		MessageSid:  webhook.MessageSid,
		AccountSid:  webhook.AccountSid,
		PracticeID:  p.ID,
		From:        from,
		To:          to,
		Body:        webhook.Body,
		ProfileName: webhook.ProfileName,
		NumMedia:    webhook.NumMedia,
		ReceivedAt:  h.now().UTC(),
	}

	if h.turns != nil {
		created, err := h.turns.PutPending(ctx, job)
		if err != nil {
			logger.Error("failed to record pending turn", "error", err)
			span.RecordError(err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return "error"
		}
		if !created {
			logger.Info("duplicate whatsapp delivery ignored")
			writeTwiML(w)
			return "duplicate"
		}
	}

	if h.queue != nil {
		publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		if err := queue.PublishJSON(publishCtx, h.queue, job); err != nil {
			logger.Error("failed to enqueue inbound job", "error", err)
			span.RecordError(err)
			h.forget(ctx, logger, job.MessageSid)
			http.Error(w, "Failed to schedule reply", http.StatusInternalServerError)
			return "enqueue_failed"
		}
		logger.Info("whatsapp webhook accepted")
		writeTwiML(w)
		return "queued"
	}

	if err := h.inline.Process(ctx, job); err != nil {
		// The router has already apologised to the patient and logged.
		logger.Warn("inline turn processing failed", "error", err)
		writeTwiML(w)
		return "handler_failed"
	}
	writeTwiML(w)
	return "processed"
}

func (h *Handler) forget(ctx context.Context, logger *logging.Logger, messageSid string) {
	if h.turns == nil {
		return
	}
	if err := h.turns.Forget(context.WithoutCancel(ctx), messageSid); err != nil {
		logger.Warn("failed to release pending turn", "error", err)
	}
}

func (h *Handler) signedURL(r *http.Request) string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL + r.URL.RequestURI()
	}
	return buildAbsoluteURL(r)
}

func writeTwiML(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(emptyTwiML))
}

func buildAbsoluteURL(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	if r.URL.Scheme != "" {
		return r.URL.String()
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if r.TLS == nil {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, r.URL.RequestURI())
}
