package bootstrap

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/wolfman30/practice-concierge/internal/calendar"
	appconfig "github.com/wolfman30/practice-concierge/internal/config"
	"github.com/wolfman30/practice-concierge/internal/events"
	"github.com/wolfman30/practice-concierge/internal/messaging"
	"github.com/wolfman30/practice-concierge/internal/notify"
	"github.com/wolfman30/practice-concierge/internal/observability/metrics"
	"github.com/wolfman30/practice-concierge/internal/reminder"
	"github.com/wolfman30/practice-concierge/internal/scheduling"
	"github.com/wolfman30/practice-concierge/pkg/logging"
)

// BuildSchedulingService wires the booking service with the Redis slot lock
// when Redis is available and the in-process lock otherwise.
func BuildSchedulingService(cfg *appconfig.Config, stores *Stores, email notify.EmailSender, m *metrics.SchedulingMetrics, logger *logging.Logger) *scheduling.Service {
	var locker scheduling.Locker
	if stores.Redis != nil {
		locker = scheduling.NewRedisLocker(stores.Redis, cfg.SlotLockTTL)
	} else {
		logger.Warn("redis not configured; slot locks are process-local")
		locker = scheduling.NewMemoryLocker()
	}

	opts := []scheduling.ServiceOption{
		scheduling.WithMirrorOutbox(stores.Outbox),
		scheduling.WithOperatorRecorder(stores.Operator),
		scheduling.WithMetrics(m),
	}
	if email != nil {
		opts = append(opts, scheduling.WithBookingObserver(notify.NewBookingNotifier(email, logger)))
	}
	return scheduling.NewService(stores.Practices, stores.Appointments, locker, logger, opts...)
}

// BuildEmailSender picks SendGrid or SES from EMAIL_PROVIDER. Without a
// usable provider the stub sender logs instead of delivering.
func BuildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger); sender != nil {
			logger.Info("sendgrid email sender initialized")
			return sender
		}
		logger.Warn("EMAIL_PROVIDER=sendgrid but SENDGRID_API_KEY is empty")
	case "ses":
		if strings.TrimSpace(cfg.EmailFromAddress) != "" {
			logger.Info("ses email sender initialized")
			return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
				FromEmail: cfg.EmailFromAddress,
				FromName:  cfg.EmailFromName,
			}, logger)
		}
		logger.Warn("EMAIL_PROVIDER=ses but EMAIL_FROM_ADDRESS is empty")
	}
	return notify.NewStubEmailSender(logger)
}

// BuildCalendarMirror returns the Google Calendar client when credentials are
// configured and a logging mirror otherwise.
func BuildCalendarMirror(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) calendar.Mirror {
	path := strings.TrimSpace(cfg.GoogleCalendarCredentialsFile)
	if path == "" {
		logger.Warn("google calendar credentials not configured; mirror writes are logged only")
		return &calendar.LogMirror{}
	}
	gc, err := calendar.NewGoogleCalendarFromFile(ctx, path)
	if err != nil {
		logger.Error("google calendar init failed; mirror writes are logged only", "error", err)
		return &calendar.LogMirror{}
	}
	return gc
}

// BuildMirrorDeliverer drains calendar mirror jobs from the outbox. Entries that
// run out of attempts are recorded for operators.
func BuildMirrorDeliverer(cfg *appconfig.Config, stores *Stores, mirror calendar.Mirror, m *metrics.SchedulingMetrics, logger *logging.Logger) *events.Deliverer {
	handler := calendar.NewMirrorHandler(stores.Practices, stores.Appointments, mirror, m, logger)
	return events.NewDeliverer(stores.Outbox, handler, logger).
		WithInterval(cfg.MirrorPollInterval).
		WithMaxAttempts(cfg.MirrorMaxAttempts).
		WithDeadLetter(calendar.DeadLetterRecorder(stores.Operator, logger))
}

// reminderLockTTL bounds how long a crashed scanner can block the next sweep.
const reminderLockTTL = 10 * time.Minute

// BuildReminderScanner wires the reminder sweep. With Redis, concurrent
// scanners in other processes skip instead of overlapping.
func BuildReminderScanner(cfg *appconfig.Config, stores *Stores, sender messaging.Sender, m *metrics.SchedulingMetrics, logger *logging.Logger) *reminder.Scanner {
	opts := []reminder.Option{
		reminder.WithLeadTime(cfg.ReminderLeadTime),
		reminder.WithWindow(cfg.ReminderWindow),
		reminder.WithConcurrency(cfg.ReminderConcurrency),
		reminder.WithRecorder(stores.Operator),
		reminder.WithMetrics(m),
	}
	if stores.Redis != nil {
		opts = append(opts, reminder.WithScanLock(scheduling.NewRedisLocker(stores.Redis, reminderLockTTL)))
	}
	return reminder.NewScanner(stores.Practices, stores.Appointments, sender, logger, opts...)
}
