package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/practice-concierge/internal/messaging"
	"github.com/wolfman30/practice-concierge/internal/practice"
	"github.com/wolfman30/practice-concierge/pkg/logging"
)

// TurnHandler is implemented by Router.
type TurnHandler interface {
	Handle(ctx context.Context, turn Turn) (Outcome, error)
}

// TurnArchiver stores finished turns for later review.
type TurnArchiver interface {
	Archive(ctx context.Context, rec TurnRecord) error
}

// Processor turns an accepted InboundJob into a routed Turn and records the result.
type Processor struct {
	practices practice.Repository
	handler   TurnHandler
	turns     TurnStore
	archiver  TurnArchiver
	logger    *logging.Logger
}

var _ messaging.InlineProcessor = (*Processor)(nil)

type ProcessorOption func(*Processor)

// WithTurnStore records completion state. Leave unset when dedupe is off.
func WithTurnStore(store TurnStore) ProcessorOption {
	return func(p *Processor) { p.turns = store }
}

func WithTurnArchiver(archiver TurnArchiver) ProcessorOption {
	return func(p *Processor) { p.archiver = archiver }
}

func NewProcessor(practices practice.Repository, handler TurnHandler, logger *logging.Logger, opts ...ProcessorOption) *Processor {
	if practices == nil || handler == nil {
		panic("conversation: processor dependencies cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	p := &Processor{practices: practices, handler: handler, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process re-resolves the practice, since its configuration may have changed
// while the job sat in the queue, then routes the turn.
func (p *Processor) Process(ctx context.Context, job messaging.InboundJob) error {
	logger := p.logger.WithPractice(job.PracticeID).With("message_sid", job.MessageSid)

	pr, err := p.practices.Get(ctx, job.PracticeID)
	if err != nil {
		p.markFailed(ctx, logger, job.MessageSid, err)
		if errors.Is(err, practice.ErrNotFound) {
			logger.Warn("dropping turn for unknown practice")
			return nil
		}
		return fmt.Errorf("conversation: load practice: %w", err)
	}
	if !pr.MessagingEnabled() {
		logger.Info("dropping turn, messaging disabled for practice")
		p.markFailed(ctx, logger, job.MessageSid, errors.New("messaging disabled"))
		return nil
	}

	outcome, err := p.handler.Handle(ctx, Turn{
		Practice:    pr,
		From:        job.From,
		Body:        job.Body,
		ProfileName: job.ProfileName,
		MessageSid:  job.MessageSid,
		ReceivedAt:  job.ReceivedAt,
	})
	if err != nil {
		p.markFailed(ctx, logger, job.MessageSid, err)
		return err
	}

	if p.turns != nil {
		if err := p.turns.MarkCompleted(ctx, job.MessageSid, outcome); err != nil {
			logger.Warn("failed to mark turn completed", "error", err)
		}
	}
	p.archive(ctx, logger, job, outcome)
	return nil
}

func (p *Processor) markFailed(ctx context.Context, logger *logging.Logger, sid string, cause error) {
	if p.turns == nil {
		return
	}
	if err := p.turns.MarkFailed(ctx, sid, cause.Error()); err != nil {
		logger.Warn("failed to mark turn failed", "error", err)
	}
}

func (p *Processor) archive(ctx context.Context, logger *logging.Logger, job messaging.InboundJob, outcome Outcome) {
	if p.archiver == nil {
		return
	}
	var rec TurnRecord
	if p.turns != nil {
		if stored, err := p.turns.Get(ctx, job.MessageSid); err == nil {
			rec = *stored
		}
	}
	if rec.MessageSid == "" {
		rec = newPendingRecord(job, job.ReceivedAt)
		rec.Status = TurnStatusCompleted
		rec.Intent = string(outcome.Intent)
		rec.Action = outcome.Action
		rec.Reply = outcome.Reply
		rec.AppointmentID = outcome.AppointmentID
	}
	if err := p.archiver.Archive(ctx, rec); err != nil {
		logger.Warn("failed to archive turn", "error", err)
	}
}
