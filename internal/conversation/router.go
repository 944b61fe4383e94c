// Package conversation routes inbound WhatsApp turns to scheduling actions and replies.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/practice-concierge/internal/appointment"
	"github.com/wolfman30/practice-concierge/internal/audit"
	"github.com/wolfman30/practice-concierge/internal/messaging"
	"github.com/wolfman30/practice-concierge/internal/messaging/templates"
	"github.com/wolfman30/practice-concierge/internal/observability/metrics"
	"github.com/wolfman30/practice-concierge/internal/practice"
	"github.com/wolfman30/practice-concierge/internal/scheduling"
	"github.com/wolfman30/practice-concierge/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var routerTracer = otel.Tracer("concierge.internal.conversation.router")

// Scheduler is the slice of scheduling.Service the router needs.
type Scheduler interface {
	ComputeSlots(ctx context.Context, practiceID string, date time.Time, slotDurationMinutes int) ([]scheduling.Slot, error)
	Book(ctx context.Context, req scheduling.BookingRequest) (*scheduling.BookingResult, error)
	CancelUpcoming(ctx context.Context, practiceID, phone string, now time.Time) (*appointment.Appointment, error)
	ConfirmPending(ctx context.Context, practiceID, phone string, now time.Time) (*appointment.Appointment, error)
}

// Turn is one inbound patient message for a resolved practice.
type Turn struct {
	Practice    *practice.Practice
	From        string
	Body        string
	ProfileName string
	MessageSid  string
	ReceivedAt  time.Time
}

// Outcome is what the router did with a turn.
type Outcome struct {
	Intent        Intent `json:"intent"`
	Action        string `json:"action"`
	Reply         string `json:"reply"`
	AppointmentID string `json:"appointment_id,omitempty"`
	DeliveryID    string `json:"delivery_id,omitempty"`
}

const (
	ActionBooked      = "booked"
	ActionOfferSlots  = "offered_slots"
	ActionNoSlots     = "no_availability"
	ActionCancelled   = "cancelled"
	ActionConfirmed   = "confirmed"
	ActionNothingToDo = "nothing_found"
	ActionReplied     = "replied"
	ActionApologised  = "apologised"
)

// Router dispatches a turn by intent. Every turn produces exactly one outbound message.
type Router struct {
	scheduler Scheduler
	extractor IntentExtractor
	responder Responder
	sender    messaging.Sender
	renderer  *templates.Renderer
	recorder  audit.Recorder
	metrics   *metrics.SchedulingMetrics
	logger    *logging.Logger
	now       func() time.Time
}

type RouterOption func(*Router)

func WithRouterRecorder(rec audit.Recorder) RouterOption {
	return func(r *Router) { r.recorder = rec }
}

func WithRouterMetrics(m *metrics.SchedulingMetrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

// WithRouterClock overrides the clock used when a turn has no ReceivedAt.
func WithRouterClock(now func() time.Time) RouterOption {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRouter(scheduler Scheduler, extractor IntentExtractor, responder Responder, sender messaging.Sender, logger *logging.Logger, opts ...RouterOption) *Router {
	if scheduler == nil || extractor == nil || responder == nil || sender == nil {
		panic("conversation: router dependencies cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	r := &Router{
		scheduler: scheduler,
		extractor: extractor,
		responder: responder,
		sender:    sender,
		renderer:  &templates.Renderer{},
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle routes one turn and sends the reply. When an action fails the patient
// gets an apology and the error is returned.
func (r *Router) Handle(ctx context.Context, turn Turn) (Outcome, error) {
	if turn.Practice == nil {
		return Outcome{}, errors.New("conversation: turn has no practice")
	}
	ctx, span := routerTracer.Start(ctx, "conversation.handle")
	defer span.End()

	p := turn.Practice
	logger := r.logger.WithPractice(p.ID).With("message_sid", turn.MessageSid)
	now := turn.ReceivedAt
	if now.IsZero() {
		now = r.now()
	}

	intent, extraction := r.classify(ctx, turn, now, logger)
	span.SetAttributes(attribute.String("conversation.intent", string(intent)))

	outcome, err := r.dispatch(ctx, turn, intent, extraction, now)
	if err != nil {
		logger.Error("turn handler failed", "intent", intent, "error", err)
		audit.RecordQuietly(ctx, r.recorder, logger, audit.Event{
			PracticeID: p.ID,
			Category:   audit.CategoryConversationError,
			Message:    fmt.Sprintf("%s turn failed: %v", intent, err),
			Details:    map[string]any{"message_sid": turn.MessageSid, "intent": string(intent)},
		})
		r.metrics.ObserveTurn(string(intent), "error")
		outcome = Outcome{Intent: intent, Action: ActionApologised, Reply: apologyReply}
		if sid, sendErr := r.sender.Send(ctx, messaging.OutboundFor(p, turn.From, apologyReply)); sendErr != nil {
			logger.Error("apology delivery failed", "error", sendErr)
		} else {
			outcome.DeliveryID = sid
		}
		return outcome, err
	}

	sid, err := r.sender.Send(ctx, messaging.OutboundFor(p, turn.From, outcome.Reply))
	if err != nil {
		logger.Error("reply delivery failed", "intent", intent, "action", outcome.Action, "error", err)
		audit.RecordQuietly(ctx, r.recorder, logger, audit.Event{
			PracticeID: p.ID,
			Category:   audit.CategoryNotificationError,
			Message:    fmt.Sprintf("whatsapp reply failed: %v", err),
			Details:    map[string]any{"message_sid": turn.MessageSid, "action": outcome.Action},
		})
		r.metrics.ObserveTurn(string(intent), "delivery_failed")
		return outcome, fmt.Errorf("conversation: deliver reply: %w", err)
	}
	outcome.DeliveryID = sid
	r.metrics.ObserveTurn(string(intent), outcome.Action)
	logger.Info("turn handled", "intent", intent, "action", outcome.Action)
	return outcome, nil
}

func (r *Router) classify(ctx context.Context, turn Turn, now time.Time, logger *logging.Logger) (Intent, Extraction) {
	if intent, ok := keywordIntent(turn.Body); ok {
		return intent, Extraction{Intent: intent}
	}
	local := now
	if loc, err := turn.Practice.Location(); err == nil {
		local = now.In(loc)
	}
	extraction, err := r.extractor.Extract(ctx, turn.Body, turn.Practice.Name, local)
	if err != nil {
		logger.Warn("intent extraction failed", "error", err)
		return IntentUnknown, Extraction{Intent: IntentUnknown}
	}
	if extraction.Intent == "" {
		extraction.Intent = IntentUnknown
	}
	return extraction.Intent, extraction
}

func (r *Router) dispatch(ctx context.Context, turn Turn, intent Intent, ext Extraction, now time.Time) (Outcome, error) {
	switch intent {
	case IntentBook:
		return r.book(ctx, turn, ext, now)
	case IntentCancel:
		return r.cancel(ctx, turn, now)
	case IntentConfirm:
		return r.confirm(ctx, turn, now)
	case IntentReschedule:
		return Outcome{Intent: intent, Action: ActionReplied, Reply: rescheduleReply}, nil
	case IntentInfo:
		return Outcome{Intent: intent, Action: ActionReplied, Reply: infoReply(turn.Practice)}, nil
	default:
		text, err := r.responder.Respond(ctx, turn.Body, turn.Practice)
		if err != nil {
			return Outcome{Intent: IntentUnknown}, err
		}
		return Outcome{Intent: IntentUnknown, Action: ActionReplied, Reply: text}, nil
	}
}

func (r *Router) book(ctx context.Context, turn Turn, ext Extraction, now time.Time) (Outcome, error) {
	p := turn.Practice
	loc, err := p.Location()
	if err != nil {
		return Outcome{Intent: IntentBook}, fmt.Errorf("%w: %w", scheduling.ErrConfigurationMissing, err)
	}
	localNow := now.In(loc)
	day := requestedDay(ext.Date, localNow, loc)

	slots, err := r.upcomingSlots(ctx, p.ID, day, now)
	if err != nil {
		return Outcome{Intent: IntentBook}, err
	}
	if len(slots) == 0 {
		return Outcome{Intent: IntentBook, Action: ActionNoSlots, Reply: noAvailabilityReply(day)}, nil
	}

	taken := false
	if want, ok := requestedStart(day, ext.Time, loc); ok {
		if slot, found := scheduling.FindSlot(slots, want); found {
			res, err := r.scheduler.Book(ctx, scheduling.BookingRequest{
				PracticeID:   p.ID,
				PatientName:  firstNonEmpty(ext.PatientName, turn.ProfileName),
				PatientPhone: turn.From,
				Start:        slot.Start,
				Reason:       ext.Reason,
				Source:       appointment.SourceWhatsApp,
			})
			switch {
			case err == nil:
				reply, err := r.renderer.RenderNamed(templates.BookingConfirmed, map[string]any{
					"Practice": p.Name,
					"Day":      templates.Day(res.Appointment.Start.In(loc)),
					"Time":     templates.Clock(res.Appointment.Start.In(loc)),
				})
				if err != nil {
					return Outcome{Intent: IntentBook}, err
				}
				return Outcome{Intent: IntentBook, Action: ActionBooked, Reply: reply, AppointmentID: res.Appointment.ID.String()}, nil
			case errors.Is(err, scheduling.ErrSlotUnavailable):
				taken = true
				if slots, err = r.upcomingSlots(ctx, p.ID, day, now); err != nil {
					return Outcome{Intent: IntentBook}, err
				}
				if len(slots) == 0 {
					return Outcome{Intent: IntentBook, Action: ActionNoSlots, Reply: noAvailabilityReply(day)}, nil
				}
			default:
				return Outcome{Intent: IntentBook}, err
			}
		}
	}
	return Outcome{Intent: IntentBook, Action: ActionOfferSlots, Reply: slotListReply(day, slots, taken)}, nil
}

// upcomingSlots drops slots that already started.
func (r *Router) upcomingSlots(ctx context.Context, practiceID string, day, now time.Time) ([]scheduling.Slot, error) {
	slots, err := r.scheduler.ComputeSlots(ctx, practiceID, day, 0)
	if err != nil {
		return nil, err
	}
	open := slots[:0]
	for _, slot := range slots {
		if slot.Start.After(now) {
			open = append(open, slot)
		}
	}
	return open, nil
}

func (r *Router) cancel(ctx context.Context, turn Turn, now time.Time) (Outcome, error) {
	appt, err := r.scheduler.CancelUpcoming(ctx, turn.Practice.ID, turn.From, now)
	if errors.Is(err, appointment.ErrNotFound) {
		return Outcome{Intent: IntentCancel, Action: ActionNothingToDo, Reply: noAppointmentToCancelReply()}, nil
	}
	if err != nil {
		return Outcome{Intent: IntentCancel}, err
	}
	return Outcome{
		Intent:        IntentCancel,
		Action:        ActionCancelled,
		Reply:         cancelledReply(localStart(turn.Practice, appt)),
		AppointmentID: appt.ID.String(),
	}, nil
}

func (r *Router) confirm(ctx context.Context, turn Turn, now time.Time) (Outcome, error) {
	appt, err := r.scheduler.ConfirmPending(ctx, turn.Practice.ID, turn.From, now)
	if errors.Is(err, appointment.ErrNotFound) {
		return Outcome{Intent: IntentConfirm, Action: ActionNothingToDo, Reply: nothingToConfirmReply()}, nil
	}
	if err != nil {
		return Outcome{Intent: IntentConfirm}, err
	}
	return Outcome{
		Intent:        IntentConfirm,
		Action:        ActionConfirmed,
		Reply:         confirmedReply(localStart(turn.Practice, appt)),
		AppointmentID: appt.ID.String(),
	}, nil
}

// requestedDay parses an ISO date in the practice zone, defaulting to tomorrow.
func requestedDay(date string, localNow time.Time, loc *time.Location) time.Time {
	if date != "" {
		if day, err := time.ParseInLocation("2006-01-02", date, loc); err == nil {
			return day
		}
	}
	y, m, d := localNow.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

func requestedStart(day time.Time, clock string, loc *time.Location) (time.Time, bool) {
	if clock == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, false
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc), true
}

func localStart(p *practice.Practice, appt *appointment.Appointment) time.Time {
	if loc, err := p.Location(); err == nil {
		return appt.Start.In(loc)
	}
	return appt.Start
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
