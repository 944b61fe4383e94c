// Package queue carries inbound work between webhooks and workers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
)

// Queue is the minimal at-least-once queue contract shared by SQS and memory.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Message is one received queue entry.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// PublishJSON encodes v and sends it.
func PublishJSON(ctx context.Context, q Queue, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("queue: encode payload: %w", err)
	}
	return q.Send(ctx, string(body))
}

// Decode unmarshals a message body into v.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal([]byte(m.Body), v); err != nil {
		return fmt.Errorf("queue: decode message %s: %w", m.ID, err)
	}
	return nil
}
