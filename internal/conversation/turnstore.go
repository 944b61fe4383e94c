package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/practice-concierge/internal/messaging"
)

const turnTTL = 72 * time.Hour

// TurnStatus is the lifecycle of one inbound message.
type TurnStatus string

const (
	TurnStatusPending   TurnStatus = "pending"
	TurnStatusCompleted TurnStatus = "completed"
	TurnStatusFailed    TurnStatus = "failed"
)

// ErrTurnNotFound indicates no record exists for the MessageSid.
var ErrTurnNotFound = errors.New("conversation: turn not found")

// TurnRecord is the persisted state of one inbound WhatsApp message.
type TurnRecord struct {
	MessageSid    string     `dynamodbav:"messageSid" json:"messageSid"`
	PracticeID    string     `dynamodbav:"practiceId" json:"practiceId"`
	From          string     `dynamodbav:"from" json:"from"`
	Body          string     `dynamodbav:"body" json:"body"`
	Status        TurnStatus `dynamodbav:"status" json:"status"`
	Intent        string     `dynamodbav:"intent,omitempty" json:"intent,omitempty"`
	Action        string     `dynamodbav:"action,omitempty" json:"action,omitempty"`
	Reply         string     `dynamodbav:"reply,omitempty" json:"reply,omitempty"`
	AppointmentID string     `dynamodbav:"appointmentId,omitempty" json:"appointmentId,omitempty"`
	ErrorMessage  string     `dynamodbav:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	CreatedAt     string     `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt     string     `dynamodbav:"updatedAt" json:"updatedAt"`
	ExpiresAt     int64      `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// TurnStore dedupes webhook deliveries and records how each turn ended.
type TurnStore interface {
	messaging.TurnRecorder
	MarkCompleted(ctx context.Context, messageSid string, outcome Outcome) error
	MarkFailed(ctx context.Context, messageSid, errMsg string) error
	Get(ctx context.Context, messageSid string) (*TurnRecord, error)
}

func newPendingRecord(job messaging.InboundJob, now time.Time) TurnRecord {
	ts := now.UTC().Format(time.RFC3339Nano)
	return TurnRecord{
		MessageSid: job.MessageSid,
		PracticeID: job.PracticeID,
		From:       job.From,
		Body:       job.Body,
		Status:     TurnStatusPending,
		CreatedAt:  ts,
		UpdatedAt:  ts,
		ExpiresAt:  now.Add(turnTTL).Unix(),
	}
}

// MemoryTurnStore keeps turn records in process. Used for local development and tests.
type MemoryTurnStore struct {
	mu      sync.Mutex
	records map[string]TurnRecord
	now     func() time.Time
}

func NewMemoryTurnStore() *MemoryTurnStore {
	return &MemoryTurnStore{records: make(map[string]TurnRecord), now: time.Now}
}

func (s *MemoryTurnStore) PutPending(_ context.Context, job messaging.InboundJob) (bool, error) {
	if strings.TrimSpace(job.MessageSid) == "" {
		return false, errors.New("conversation: message sid required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[job.MessageSid]; exists {
		return false, nil
	}
	s.records[job.MessageSid] = newPendingRecord(job, s.now())
	return true, nil
}

func (s *MemoryTurnStore) Forget(_ context.Context, messageSid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, messageSid)
	return nil
}

func (s *MemoryTurnStore) MarkCompleted(_ context.Context, messageSid string, outcome Outcome) error {
	return s.update(messageSid, func(rec *TurnRecord) {
		rec.Status = TurnStatusCompleted
		rec.Intent = string(outcome.Intent)
		rec.Action = outcome.Action
		rec.Reply = outcome.Reply
		rec.AppointmentID = outcome.AppointmentID
		rec.ErrorMessage = ""
	})
}

func (s *MemoryTurnStore) MarkFailed(_ context.Context, messageSid, errMsg string) error {
	return s.update(messageSid, func(rec *TurnRecord) {
		rec.Status = TurnStatusFailed
		rec.ErrorMessage = errMsg
	})
}

func (s *MemoryTurnStore) Get(_ context.Context, messageSid string) (*TurnRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[messageSid]
	if !ok {
		return nil, ErrTurnNotFound
	}
	return &rec, nil
}

func (s *MemoryTurnStore) update(messageSid string, fn func(*TurnRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[messageSid]
	if !ok {
		return ErrTurnNotFound
	}
	fn(&rec)
	rec.UpdatedAt = s.now().UTC().Format(time.RFC3339Nano)
	s.records[messageSid] = rec
	return nil
}
