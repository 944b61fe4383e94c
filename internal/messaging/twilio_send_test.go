package messaging

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wolfman30/practice-concierge/internal/practice"
)

func newTestTwilio(t *testing.T, handler http.HandlerFunc) (*TwilioSender, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	sender := NewTwilioSender("AC123", "token", "+12125550000", nil,
		WithTwilioBaseURL(srv.URL),
		WithTwilioHTTPClient(srv.Client()),
		WithTwilioRetryDelay(time.Millisecond),
	)
	return sender, &calls
}

func TestTwilioSenderSend(t *testing.T) {
	sender, calls := newTestTwilio(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC123/Messages.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "token" {
			t.Errorf("missing basic auth")
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("To") != "whatsapp:+12125550111" || r.PostForm.Get("From") != "whatsapp:+12125550100" {
			t.Errorf("unexpected addresses %v", r.PostForm)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM999","status":"queued"}`))
	})

	p := &practice.Practice{ID: "p1", WhatsApp: practice.WhatsAppConfig{Enabled: true, PhoneNumber: "+12125550100"}}
	sid, err := sender.Send(context.Background(), OutboundFor(p, "+12125550111", "See you soon"))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sid != "SM999" || atomic.LoadInt32(calls) != 1 {
		t.Fatalf("unexpected sid=%s calls=%d", sid, *calls)
	}
}

func TestTwilioSenderDefaultsFrom(t *testing.T) {
	sender, _ := newTestTwilio(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("From") != "whatsapp:+12125550000" {
			t.Errorf("expected default from, got %q", r.PostForm.Get("From"))
		}
		_, _ = w.Write([]byte(`{"sid":"SM1"}`))
	})
	if _, err := sender.Send(context.Background(), OutboundMessage{To: "+12125550111", Body: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func TestTwilioSenderDoesNotRetryClientErrors(t *testing.T) {
	sender, calls := newTestTwilio(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	})
	_, err := sender.Send(context.Background(), OutboundMessage{To: "+1", Body: "hi"})
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Fatalf("expected a single attempt, got %d", *calls)
	}
}

func TestTwilioSenderRetriesServerErrorsAndRateLimits(t *testing.T) {
	var n int32
	sender, calls := newTestTwilio(t, func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&n, 1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			_, _ = w.Write([]byte(`{"sid":"SM3"}`))
		}
	})
	sid, err := sender.Send(context.Background(), OutboundMessage{To: "+12125550111", Body: "hi"})
	if err != nil || sid != "SM3" {
		t.Fatalf("expected success on third attempt, sid=%s err=%v", sid, err)
	}
	if atomic.LoadInt32(calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", *calls)
	}
}

func TestTwilioSenderGivesUpAfterThreeAttempts(t *testing.T) {
	sender, calls := newTestTwilio(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := sender.Send(context.Background(), OutboundMessage{To: "+12125550111", Body: "hi"})
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if atomic.LoadInt32(calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", *calls)
	}
}

func TestTwilioSenderValidation(t *testing.T) {
	sender := NewTwilioSender("", "", "", nil)
	if _, err := sender.Send(context.Background(), OutboundMessage{To: "+1", Body: "x"}); !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("missing credentials should fail delivery, got %v", err)
	}
	sender = NewTwilioSender("AC", "tok", "", nil)
	if _, err := sender.Send(context.Background(), OutboundMessage{To: "+1", Body: "x"}); !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("missing from should fail delivery, got %v", err)
	}
	if _, err := sender.Send(context.Background(), OutboundMessage{To: "+1", From: "+2", Body: "  "}); !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("empty body should fail delivery, got %v", err)
	}
}

func TestLogSender(t *testing.T) {
	id, err := NewLogSender(nil).Send(context.Background(), OutboundMessage{To: "+1", Body: "hi"})
	if err != nil || id == "" {
		t.Fatalf("unexpected log sender result %q %v", id, err)
	}
}
