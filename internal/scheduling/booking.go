package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/practice-concierge/internal/appointment"
	"github.com/wolfman30/practice-concierge/internal/audit"
	"github.com/wolfman30/practice-concierge/internal/calendar"
	"github.com/wolfman30/practice-concierge/internal/events"
	"github.com/wolfman30/practice-concierge/internal/observability/metrics"
	"github.com/wolfman30/practice-concierge/internal/practice"
	"github.com/wolfman30/practice-concierge/pkg/logging"
)

var bookingTracer = otel.Tracer("concierge.internal.scheduling.booking")

// MirrorStatus makes the advisory calendar write visible to callers.
type MirrorStatus string

const (
	MirrorNotConfigured MirrorStatus = "not_configured"
	MirrorPending       MirrorStatus = "pending"
	MirrorFailed        MirrorStatus = "failed"
)

// BookingRequest describes a requested appointment.
type BookingRequest struct {
	PracticeID      string             `json:"practice_id"`
	PatientName     string             `json:"patient_name"`
	PatientPhone    string             `json:"patient_phone"`
	Start           time.Time          `json:"start"`
	DurationMinutes int                `json:"duration_minutes"`
	Reason          string             `json:"reason,omitempty"`
	Source          appointment.Source `json:"source"`
}

// BookingResult is the committed appointment plus the mirror state.
type BookingResult struct {
	Appointment *appointment.Appointment `json:"appointment"`
	Mirror      MirrorStatus             `json:"mirror"`
}

// BookingObserver is told about every committed booking. Errors are logged only.
type BookingObserver interface {
	AppointmentBooked(ctx context.Context, p *practice.Practice, appt *appointment.Appointment) error
}

// Service books, cancels and confirms appointments.
type Service struct {
	practices    practice.Repository
	appointments appointment.Repository
	calculator   *Calculator
	locker       Locker
	outbox       events.Outbox
	observers    []BookingObserver
	recorder     audit.Recorder
	metrics      *metrics.SchedulingMetrics
	logger       *logging.Logger
	now          func() time.Time
}

// ServiceOption configures optional collaborators.
type ServiceOption func(*Service)

// WithMirrorOutbox enables calendar mirroring through the outbox.
func WithMirrorOutbox(outbox events.Outbox) ServiceOption {
	return func(s *Service) {
		s.outbox = outbox
	}
}

// WithBookingObserver registers an observer for committed bookings.
func WithBookingObserver(observer BookingObserver) ServiceOption {
	return func(s *Service) {
		if observer != nil {
			s.observers = append(s.observers, observer)
		}
	}
}

// WithOperatorRecorder records operator-facing failures.
func WithOperatorRecorder(rec audit.Recorder) ServiceOption {
	return func(s *Service) {
		s.recorder = rec
	}
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *metrics.SchedulingMetrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides time.Now for the future-start check.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(practices practice.Repository, appointments appointment.Repository, locker Locker, logger *logging.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if locker == nil {
		locker = NewMemoryLocker()
	}
	s := &Service{
		practices:    practices,
		appointments: appointments,
		locker:       locker,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.calculator = NewCalculator(practices, appointments, s.metrics)
	return s
}

// Calculator exposes the availability calculator sharing this service's stores.
func (s *Service) Calculator() *Calculator {
	return s.calculator
}

// ComputeSlots is Calculator().ComputeSlots.
func (s *Service) ComputeSlots(ctx context.Context, practiceID string, date time.Time, slotDurationMinutes int) ([]Slot, error) {
	return s.calculator.ComputeSlots(ctx, practiceID, date, slotDurationMinutes)
}

// Book re-validates availability and inserts the appointment. Mirroring and
// observers run after commit and never fail the booking.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	ctx, span := bookingTracer.Start(ctx, "scheduling.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("concierge.practice_id", req.PracticeID),
		attribute.String("concierge.source", string(req.Source)),
	)

	result, err := s.book(ctx, req)
	s.metrics.ObserveBooking(string(req.Source), bookingOutcome(err))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return result, nil
}

func (s *Service) book(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	if err := validateRequest(&req, s.now()); err != nil {
		return nil, err
	}
	p, err := s.calculator.loadPractice(ctx, req.PracticeID)
	if err != nil {
		return nil, err
	}
	if p.Calendar == nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigurationMissing, practice.ErrCalendarNotConfigured)
	}
	loc, err := p.Calendar.Location()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigurationMissing, err)
	}
	// Only staff may pick a length; everyone else books on the practice grid.
	if req.Source != appointment.SourceManual || req.DurationMinutes <= 0 {
		req.DurationMinutes = p.Calendar.DurationMinutes()
	}

	appt := &appointment.Appointment{
		PracticeID:      p.ID,
		PatientName:     req.PatientName,
		PatientPhone:    req.PatientPhone,
		Start:           req.Start.UTC(),
		DurationMinutes: req.DurationMinutes,
		Reason:          req.Reason,
		Status:          appointment.StatusScheduled,
		ReminderSent:    false,
		Source:          req.Source,
	}
	key := appointment.SlotKey(p.ID, req.Start, req.DurationMinutes)

	err = s.locker.WithLock(ctx, "slot:"+key, func(lockCtx context.Context) error {
		return s.appointments.Transact(lockCtx, func(tx appointment.Repository) error {
			slots, err := s.calculator.slotsFor(lockCtx, tx, p, req.Start.In(loc), req.DurationMinutes)
			if err != nil {
				return err
			}
			if _, ok := FindSlot(slots, req.Start); !ok {
				return ErrSlotUnavailable
			}
			return tx.Insert(lockCtx, appt)
		})
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrLockHeld), errors.Is(err, appointment.ErrSlotTaken):
		return nil, fmt.Errorf("%w: %w", ErrSlotUnavailable, err)
	default:
		return nil, err
	}

	s.logger.Info("appointment booked",
		"practice_id", p.ID,
		"appointment_id", appt.ID,
		"start", appt.Start.In(loc).Format(time.RFC3339),
		"source", string(appt.Source),
	)

	result := &BookingResult{Appointment: appt, Mirror: s.enqueueMirror(ctx, p, appt, calendar.EventTypeCreate)}
	s.notifyObservers(ctx, p, appt)
	return result, nil
}

// CancelUpcoming cancels the patient's nearest scheduled or confirmed
// appointment starting at or after now.
func (s *Service) CancelUpcoming(ctx context.Context, practiceID, phone string, now time.Time) (*appointment.Appointment, error) {
	appt, err := s.appointments.FindNextByPhone(ctx, practiceID, phone, appointment.ActiveStatuses, now)
	if err != nil {
		return nil, err
	}
	if err := s.appointments.UpdateStatus(ctx, practiceID, appt.ID, appointment.ActiveStatuses, appointment.StatusCancelled); err != nil {
		return nil, err
	}
	appt.Status = appointment.StatusCancelled
	s.logger.Info("appointment cancelled", "practice_id", practiceID, "appointment_id", appt.ID)

	p, err := s.practices.Get(ctx, practiceID)
	if err != nil {
		s.logger.Warn("cancel: practice lookup for calendar mirror failed", "practice_id", practiceID, "error", err)
		return appt, nil
	}
	s.enqueueMirror(ctx, p, appt, calendar.EventTypeCancel)
	return appt, nil
}

// ConfirmPending confirms the patient's nearest scheduled appointment. A second
// call finds nothing and returns appointment.ErrNotFound.
func (s *Service) ConfirmPending(ctx context.Context, practiceID, phone string, now time.Time) (*appointment.Appointment, error) {
	pending := []appointment.Status{appointment.StatusScheduled}
	appt, err := s.appointments.FindNextByPhone(ctx, practiceID, phone, pending, now)
	if err != nil {
		return nil, err
	}
	if err := s.appointments.UpdateStatus(ctx, practiceID, appt.ID, pending, appointment.StatusConfirmed); err != nil {
		return nil, err
	}
	appt.Status = appointment.StatusConfirmed
	s.logger.Info("appointment confirmed", "practice_id", practiceID, "appointment_id", appt.ID)
	return appt, nil
}

func (s *Service) enqueueMirror(ctx context.Context, p *practice.Practice, appt *appointment.Appointment, eventType string) MirrorStatus {
	if s.outbox == nil || p.Calendar == nil || strings.TrimSpace(p.Calendar.CalendarID) == "" {
		return MirrorNotConfigured
	}
	job := calendar.MirrorJob{AppointmentID: appt.ID, PracticeID: p.ID, CalendarID: p.Calendar.CalendarID}
	if _, err := s.outbox.Insert(ctx, p.ID, eventType, job); err != nil {
		s.logger.Error("calendar mirror enqueue failed", "practice_id", p.ID, "appointment_id", appt.ID, "type", eventType, "error", err)
		audit.RecordQuietly(ctx, s.recorder, s.logger, audit.Event{
			PracticeID: p.ID,
			Category:   audit.CategoryMirrorFailed,
			Message:    "calendar mirror could not be queued",
			Details:    map[string]any{"appointment_id": appt.ID.String(), "type": eventType, "error": err.Error()},
		})
		return MirrorFailed
	}
	return MirrorPending
}

func (s *Service) notifyObservers(ctx context.Context, p *practice.Practice, appt *appointment.Appointment) {
	for _, observer := range s.observers {
		if err := observer.AppointmentBooked(ctx, p, appt); err != nil {
			s.logger.Warn("booking observer failed", "practice_id", p.ID, "appointment_id", appt.ID, "error", err)
		}
	}
}

func validateRequest(req *BookingRequest, now time.Time) error {
	req.PracticeID = strings.TrimSpace(req.PracticeID)
	req.PatientName = strings.TrimSpace(req.PatientName)
	req.PatientPhone = strings.TrimSpace(req.PatientPhone)
	if req.PracticeID == "" {
		return fmt.Errorf("%w: practice_id required", ErrInvalidRequest)
	}
	if req.PatientPhone == "" {
		return fmt.Errorf("%w: patient_phone required", ErrInvalidRequest)
	}
	if req.Start.IsZero() {
		return fmt.Errorf("%w: start required", ErrInvalidRequest)
	}
	if !req.Start.After(now) {
		return fmt.Errorf("%w: start must be in the future", ErrInvalidRequest)
	}
	if req.DurationMinutes < 0 {
		return fmt.Errorf("%w: duration_minutes must not be negative", ErrInvalidRequest)
	}
	if req.Source == "" {
		req.Source = appointment.SourceWhatsApp
	}
	if !req.Source.Valid() {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidRequest, req.Source)
	}
	return nil
}

func bookingOutcome(err error) string {
	switch {
	case err == nil:
		return "booked"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrPracticeNotFound):
		return "practice_not_found"
	case errors.Is(err, ErrConfigurationMissing):
		return "configuration_missing"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	default:
		return "error"
	}
}
