package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/wolfman30/practice-concierge/internal/reminder"
	"github.com/wolfman30/practice-concierge/pkg/logging"
)

type fakeScanner struct {
	result reminder.ScanResult
	err    error
	calls  int
}

func (f *fakeScanner) Scan(context.Context) (reminder.ScanResult, error) {
	f.calls++
	return f.result, f.err
}

func scheduledEvent() events.CloudWatchEvent {
	return events.CloudWatchEvent{
		ID:         "evt-1",
		Source:     "aws.events",
		DetailType: "Scheduled Event",
		Time:       time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestHandleReturnsScanResult(t *testing.T) {
	s := &fakeScanner{result: reminder.ScanResult{Practices: 2, Due: 3, Sent: 3}}

	got, err := handle(context.Background(), s, logging.New("error"), scheduledEvent())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.calls != 1 {
		t.Fatalf("expected one scan, got %d", s.calls)
	}
	if got.Sent != 3 || got.Practices != 2 {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestHandleWrapsScanError(t *testing.T) {
	cause := errors.New("list practices: connection refused")
	s := &fakeScanner{err: cause}

	if _, err := handle(context.Background(), s, logging.New("error"), scheduledEvent()); !errors.Is(err, cause) {
		t.Fatalf("expected wrapped scan error, got %v", err)
	}
}
