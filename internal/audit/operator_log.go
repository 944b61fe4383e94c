// Package audit records operator-facing failures that need human follow-up.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/practice-concierge/pkg/logging"
)

// Category groups operator events.
type Category string

const (
	CategoryMirrorFailed      Category = "calendar.mirror_failed"
	CategoryMirrorDeadLetter  Category = "calendar.mirror_dead_letter"
	CategoryReminderFailed    Category = "reminder.failed"
	CategoryConversationError Category = "conversation.handler_failed"
	CategoryNotificationError Category = "notification.failed"
	CategoryWebhookRejected   Category = "webhook.rejected"
)

// Event is an operator-facing record keyed by practice, category and message.
type Event struct {
	ID         string         `json:"id"`
	PracticeID string         `json:"practice_id"`
	Category   Category       `json:"category"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Recorder is implemented by OperatorLog; consumers depend on this.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// OperatorLog writes events to operator_events and mirrors them to the structured log.
// A nil db logs only.
type OperatorLog struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewOperatorLog creates an operator log.
func NewOperatorLog(db *sql.DB, logger *logging.Logger) *OperatorLog {
	if logger == nil {
		logger = logging.Default()
	}
	return &OperatorLog{db: db, logger: logger}
}

// Record stores an operator event.
func (o *OperatorLog) Record(ctx context.Context, event Event) error {
	if o == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	o.logger.Warn("operator event",
		"practice_id", event.PracticeID,
		"category", string(event.Category),
		"message", event.Message,
		"details", event.Details,
	)
	if o.db == nil {
		return nil
	}

	var details []byte
	if len(event.Details) > 0 {
		data, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("audit: marshal details: %w", err)
		}
		details = data
	}

	query := `
		INSERT INTO operator_events (id, practice_id, category, message, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := o.db.ExecContext(ctx, query,
		event.ID,
		event.PracticeID,
		string(event.Category),
		event.Message,
		details,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: record operator event: %w", err)
	}
	return nil
}

// ListRecent returns the newest events for a practice.
func (o *OperatorLog) ListRecent(ctx context.Context, practiceID string, limit int) ([]Event, error) {
	if o == nil || o.db == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := o.db.QueryContext(ctx, `
		SELECT id, practice_id, category, message, details, created_at
		FROM operator_events
		WHERE practice_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, practiceID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: list operator events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e        Event
			category string
			details  []byte
		)
		if err := rows.Scan(&e.ID, &e.PracticeID, &category, &e.Message, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan operator event: %w", err)
		}
		e.Category = Category(category)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("audit: decode details: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// RecordQuietly records an event and logs, rather than returns, a storage failure.
func RecordQuietly(ctx context.Context, rec Recorder, logger *logging.Logger, event Event) {
	if rec == nil {
		return
	}
	if err := rec.Record(ctx, event); err != nil && logger != nil {
		logger.Error("failed to record operator event", "error", err, "practice_id", event.PracticeID, "category", string(event.Category))
	}
}
