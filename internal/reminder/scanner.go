// Package reminder sends day-ahead appointment reminders over WhatsApp.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/practice-concierge/internal/appointment"
	"github.com/wolfman30/practice-concierge/internal/audit"
	"github.com/wolfman30/practice-concierge/internal/messaging"
	"github.com/wolfman30/practice-concierge/internal/messaging/templates"
	"github.com/wolfman30/practice-concierge/internal/observability/metrics"
	"github.com/wolfman30/practice-concierge/internal/practice"
	"github.com/wolfman30/practice-concierge/internal/scheduling"
	"github.com/wolfman30/practice-concierge/pkg/logging"
)

const (
	DefaultLeadTime    = 24 * time.Hour
	DefaultWindow      = time.Hour
	DefaultConcurrency = 8

	scanLockKey = "reminder-scan"
)

// ScanResult summarises one sweep.
type ScanResult struct {
	Practices int  `json:"practices"`
	Due       int  `json:"due"`
	Sent      int  `json:"sent"`
	Failed    int  `json:"failed"`
	Skipped   int  `json:"skipped"`
	Contended bool `json:"contended,omitempty"`
}

func (r *ScanResult) add(other ScanResult) {
	r.Due += other.Due
	r.Sent += other.Sent
	r.Failed += other.Failed
	r.Skipped += other.Skipped
}

// Scanner finds appointments entering the reminder window and messages each
// patient once.
type Scanner struct {
	practices    practice.Repository
	appointments appointment.Repository
	sender       messaging.Sender
	renderer     *templates.Renderer
	lock         scheduling.Locker
	recorder     audit.Recorder
	metrics      *metrics.SchedulingMetrics
	logger       *logging.Logger
	now          func() time.Time

	leadTime    time.Duration
	window      time.Duration
	concurrency int
}

// Option customizes a Scanner.
type Option func(*Scanner)

func WithLeadTime(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.leadTime = d
		}
	}
}

func WithWindow(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithConcurrency bounds sends per practice.
func WithConcurrency(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithScanLock makes concurrent scans across processes skip instead of overlap.
func WithScanLock(lock scheduling.Locker) Option {
	return func(s *Scanner) { s.lock = lock }
}

func WithRecorder(rec audit.Recorder) Option {
	return func(s *Scanner) { s.recorder = rec }
}

func WithMetrics(m *metrics.SchedulingMetrics) Option {
	return func(s *Scanner) { s.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) {
		if now != nil {
			s.now = now
		}
	}
}

func NewScanner(practices practice.Repository, appointments appointment.Repository, sender messaging.Sender, logger *logging.Logger, opts ...Option) *Scanner {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Scanner{
		practices:    practices,
		appointments: appointments,
		sender:       sender,
		renderer:     &templates.Renderer{},
		logger:       logger,
		now:          time.Now,
		leadTime:     DefaultLeadTime,
		window:       DefaultWindow,
		concurrency:  DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan runs one sweep. Appointments starting in [now+lead, now+lead+window)
// with no reminder yet are messaged and then marked. Per-appointment failures
// are counted and never stop the rest of the sweep.
func (s *Scanner) Scan(ctx context.Context) (ScanResult, error) {
	if s.lock == nil {
		return s.scan(ctx)
	}
	var result ScanResult
	err := s.lock.WithLock(ctx, scanLockKey, func(lockCtx context.Context) error {
		var err error
		result, err = s.scan(lockCtx)
		return err
	})
	if errors.Is(err, scheduling.ErrLockHeld) {
		s.logger.Info("reminder scan already running elsewhere; skipping")
		return ScanResult{Contended: true}, nil
	}
	return result, err
}

func (s *Scanner) scan(ctx context.Context) (ScanResult, error) {
	started := s.now()
	practices, err := s.practices.ListActive(ctx)
	if err != nil {
		return ScanResult{}, fmt.Errorf("reminder: list practices: %w", err)
	}

	from := started.Add(s.leadTime)
	to := from.Add(s.window)

	result := ScanResult{Practices: len(practices)}
	for _, p := range practices {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.add(s.scanPractice(ctx, p, from, to))
	}

	s.logger.Info("reminder scan finished",
		"practices", result.Practices,
		"due", result.Due,
		"sent", result.Sent,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"window_start", from.UTC().Format(time.RFC3339),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return result, nil
}

func (s *Scanner) scanPractice(ctx context.Context, p *practice.Practice, from, to time.Time) ScanResult {
	logger := s.logger.WithPractice(p.ID)
	if !p.MessagingEnabled() {
		logger.Debug("reminder scan skipped practice", "reason", "messaging_disabled")
		s.metrics.ObserveReminder("skipped")
		return ScanResult{Skipped: 1}
	}
	loc, err := p.Location()
	if err != nil {
		logger.Warn("reminder scan skipped practice", "reason", "configuration_missing", "error", err)
		s.metrics.ObserveReminder("skipped")
		return ScanResult{Skipped: 1}
	}

	due, err := s.appointments.ListDueForReminder(ctx, p.ID, from, to)
	if err != nil {
		logger.Error("reminder scan could not list appointments", "error", err)
		s.recordFailure(ctx, p.ID, "", err)
		return ScanResult{Failed: 1}
	}

	var (
		mu     sync.Mutex
		result = ScanResult{Due: len(due)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, appt := range due {
		g.Go(func() error {
			err := s.remind(gctx, p, loc, appt)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				s.metrics.ObserveReminder("failed")
				logger.Error("reminder failed", "appointment_id", appt.ID, "error", err)
				s.recordFailure(gctx, p.ID, appt.ID.String(), err)
				return nil
			}
			result.Sent++
			s.metrics.ObserveReminder("sent")
			return nil
		})
	}
	_ = g.Wait()
	return result
}

func (s *Scanner) remind(ctx context.Context, p *practice.Practice, loc *time.Location, appt *appointment.Appointment) error {
	local := appt.Start.In(loc)
	body, err := s.renderer.RenderNamed(templates.Reminder, map[string]string{
		"Practice": p.Name,
		"Patient":  appt.PatientName,
		"Day":      templates.Day(local),
		"Time":     templates.Clock(local),
	})
	if err != nil {
		return err
	}
	if _, err := s.sender.Send(ctx, messaging.OutboundFor(p, appt.PatientPhone, body)); err != nil {
		return fmt.Errorf("reminder: send: %w", err)
	}
	marked, err := s.appointments.MarkReminderSent(ctx, appt.ID)
	if err != nil {
		return fmt.Errorf("reminder: mark sent: %w", err)
	}
	if !marked {
		s.logger.Warn("reminder was already marked sent", "practice_id", p.ID, "appointment_id", appt.ID)
	}
	return nil
}

func (s *Scanner) recordFailure(ctx context.Context, practiceID, appointmentID string, err error) {
	details := map[string]any{"error": err.Error()}
	if appointmentID != "" {
		details["appointment_id"] = appointmentID
	}
	audit.RecordQuietly(ctx, s.recorder, s.logger, audit.Event{
		PracticeID: practiceID,
		Category:   audit.CategoryReminderFailed,
		Message:    "appointment reminder could not be delivered",
		Details:    details,
	})
}
