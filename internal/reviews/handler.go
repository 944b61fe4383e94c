package reviews

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/practice-concierge/internal/events"
	"github.com/wolfman30/practice-concierge/internal/observability/metrics"
	"github.com/wolfman30/practice-concierge/internal/practice"
	"github.com/wolfman30/practice-concierge/internal/queue"
	"github.com/wolfman30/practice-concierge/pkg/logging"
)

var tracer = otel.Tracer("concierge.internal.reviews")

const (
	maxBodyBytes   = 1 << 20
	publishTimeout = 3 * time.Second
)

// Notification is the review provider's webhook body. Either location field may be set.
type Notification struct {
	Location     string  `json:"location"`
	LocationName string  `json:"locationName"`
	Review       *Review `json:"review"`
}

type Review struct {
	Name     string `json:"name"`
	Reviewer struct {
		DisplayName string `json:"displayName"`
	} `json:"reviewer"`
	StarRating json.RawMessage `json:"starRating"`
	Comment    string          `json:"comment"`
	CreateTime string          `json:"createTime"`
}

// locationLookup is the practice.Repository method the handler needs.
type locationLookup interface {
	FindByGoogleLocation(ctx context.Context, locationName string) (*practice.Practice, error)
}

// Handler receives review notifications.
type Handler struct {
	practices locationLookup
	processed events.Deduper
	queue     queue.Queue
	metrics   *metrics.SchedulingMetrics
	logger    *logging.Logger
}

type HandlerOption func(*Handler)

func WithMetrics(m *metrics.SchedulingMetrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

func NewHandler(practices locationLookup, processed events.Deduper, q queue.Queue, logger *logging.Logger, opts ...HandlerOption) *Handler {
	if practices == nil || processed == nil || q == nil {
		panic("reviews: handler dependencies cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{practices: practices, processed: processed, queue: q, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ReviewWebhook acknowledges every well-formed notification so the provider
// does not retry. Only a queue failure returns 5xx.
func (h *Handler) ReviewWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "reviews.webhook")
	defer span.End()
	started := time.Now()
	defer func() { h.metrics.ObserveWebhookLatency("reviews", time.Since(started).Seconds()) }()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.respond(w, http.StatusBadRequest, "invalid_body")
		return
	}
	var note Notification
	if err := json.Unmarshal(body, &note); err != nil || note.Review == nil || strings.TrimSpace(note.Review.Name) == "" {
		h.logger.Info("review webhook ignored: unexpected shape")
		h.respond(w, http.StatusOK, "ignored")
		return
	}

	location := strings.TrimSpace(note.LocationName)
	if location == "" {
		location = strings.TrimSpace(note.Location)
	}
	span.SetAttributes(attribute.String("review.location", location))

	p, err := h.practices.FindByGoogleLocation(ctx, location)
	if err != nil {
		if errors.Is(err, practice.ErrNotFound) {
			h.logger.Warn("review webhook for unknown location", "location", location)
			h.respond(w, http.StatusOK, "unknown_location")
			return
		}
		h.logger.Error("review webhook practice lookup failed", "location", location, "error", err)
		h.respond(w, http.StatusInternalServerError, "error")
		return
	}
	logger := h.logger.WithPractice(p.ID).With("review_name", note.Review.Name)

	seen, err := h.processed.AlreadyProcessed(ctx, ProcessedProvider, note.Review.Name)
	if err != nil {
		logger.Warn("processed-events lookup failed, continuing", "error", err)
	}
	if seen {
		h.respond(w, http.StatusOK, "duplicate")
		return
	}

	job := ReviewJob{
		PracticeID:   p.ID,
		LocationName: location,
		ReviewName:   note.Review.Name,
		ReviewerName: note.Review.Reviewer.DisplayName,
		Rating:       ParseStarRating(rawRating(note.Review.StarRating)),
		Comment:      note.Review.Comment,
		CreateTime:   note.Review.CreateTime,
	}
	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := queue.PublishJSON(publishCtx, h.queue, job); err != nil {
		logger.Error("failed to enqueue review job", "error", err)
		h.respond(w, http.StatusInternalServerError, "error")
		return
	}
	if _, err := h.processed.MarkProcessed(ctx, ProcessedProvider, note.Review.Name); err != nil {
		logger.Warn("failed to mark review processed", "error", err)
	}
	logger.Info("review job queued", "rating", job.Rating)
	h.respond(w, http.StatusAccepted, "queued")
}

func (h *Handler) respond(w http.ResponseWriter, status int, result string) {
	h.metrics.ObserveWebhook("reviews", result)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"status":%q}`, result)
}

// rawRating unwraps a JSON string or number.
func rawRating(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
