package messaging

import (
	"context"
	"time"
)

// InboundJob is one accepted WhatsApp message waiting to be routed.
type InboundJob struct {
	MessageSid  string    `json:"message_sid"`
	AccountSid  string    `json:"account_sid,omitempty"`
	PracticeID  string    `json:"practice_id"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Body        string    `json:"body"`
	ProfileName string    `json:"profile_name,omitempty"`
	NumMedia    int       `json:"num_media,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
}

// TurnRecorder dedupes webhook redeliveries by MessageSid.
type TurnRecorder interface {
	// PutPending records the job. created is false when the sid was seen before.
	PutPending(ctx context.Context, job InboundJob) (created bool, err error)
	// Forget drops a pending record so a redelivery can be accepted again.
	Forget(ctx context.Context, messageSid string) error
}

// InlineProcessor routes a job synchronously when no queue is configured.
type InlineProcessor interface {
	Process(ctx context.Context, job InboundJob) error
}
