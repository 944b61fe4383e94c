package events

import (
	"context"
	"time"

	"github.com/wolfman30/practice-concierge/pkg/logging"
)

const maxRetryDelay = time.Hour

// DeadLetterFunc is called once an entry exhausts its attempts.
type DeadLetterFunc func(ctx context.Context, entry OutboxEntry, cause error)

// Deliverer polls the outbox and invokes the handler.
type Deliverer struct {
	store       Outbox
	handler     DeliveryHandler
	logger      *logging.Logger
	batchSize   int32
	interval    time.Duration
	maxAttempts int
	baseDelay   time.Duration
	onDead      DeadLetterFunc
	now         func() time.Time
}

func NewDeliverer(store Outbox, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		store:       store,
		handler:     handler,
		logger:      logger,
		batchSize:   25,
		interval:    2 * time.Second,
		maxAttempts: 8,
		baseDelay:   5 * time.Second,
		now:         time.Now,
	}
}

func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

func (d *Deliverer) WithMaxAttempts(n int) *Deliverer {
	if n > 0 {
		d.maxAttempts = n
	}
	return d
}

func (d *Deliverer) WithBaseDelay(delay time.Duration) *Deliverer {
	if delay > 0 {
		d.baseDelay = delay
	}
	return d
}

// WithDeadLetter registers a callback for entries that ran out of attempts.
func (d *Deliverer) WithDeadLetter(fn DeadLetterFunc) *Deliverer {
	d.onDead = fn
	return d
}

func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

// Drain delivers one batch and returns how many entries were delivered.
func (d *Deliverer) Drain(ctx context.Context) int {
	entries, err := d.store.FetchPending(ctx, d.batchSize, d.maxAttempts)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return 0
	}
	delivered := 0
	for _, entry := range entries {
		if err := d.handler.Handle(ctx, entry); err != nil {
			d.fail(ctx, entry, err)
			continue
		}
		if ok, err := d.store.MarkDelivered(ctx, entry.ID); err != nil {
			d.logger.Error("failed to mark outbox delivered", "error", err, "event_id", entry.ID)
		} else if ok {
			delivered++
			d.logger.Debug("outbox delivered", "event_id", entry.ID, "type", entry.Type)
		}
	}
	return delivered
}

func (d *Deliverer) fail(ctx context.Context, entry OutboxEntry, cause error) {
	attempts := entry.Attempts + 1
	d.logger.Error("outbox delivery failed", "error", cause, "event_id", entry.ID, "type", entry.Type,
		"practice_id", entry.PracticeID, "attempt", attempts)

	if err := d.store.MarkFailed(ctx, entry.ID, cause, d.now().Add(d.nextDelay(attempts))); err != nil {
		d.logger.Error("failed to record outbox failure", "error", err, "event_id", entry.ID)
		return
	}
	if attempts >= d.maxAttempts {
		d.logger.Warn("outbox entry dead-lettered", "event_id", entry.ID, "type", entry.Type, "practice_id", entry.PracticeID)
		if d.onDead != nil {
			entry.Attempts = attempts
			d.onDead(ctx, entry, cause)
		}
	}
}

func (d *Deliverer) nextDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 20 {
		return maxRetryDelay
	}
	delay := d.baseDelay * time.Duration(1<<(attempts-1))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}
