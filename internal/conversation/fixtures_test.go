package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/practice-concierge/internal/appointment"
	"github.com/wolfman30/practice-concierge/internal/audit"
	"github.com/wolfman30/practice-concierge/internal/messaging"
	"github.com/wolfman30/practice-concierge/internal/practice"
	"github.com/wolfman30/practice-concierge/internal/scheduling"
)

const (
	testZone     = "America/New_York"
	patientPhone = "+15165550123"
)

func testPractice() *practice.Practice {
	return &practice.Practice{
		ID:        "p1",
		Name:      "Brooklyn Smiles",
		Specialty: "General dentistry",
		Phone:     "+17185550000",
		Address:   "12 Court St, Brooklyn",
		Active:    true,
		Calendar: &practice.CalendarConfig{
			SlotDurationMinutes: 30,
			Timezone:            testZone,
			WorkingHours: map[string]practice.WorkingHour{
				"monday":  {Start: "09:00", End: "17:00", Enabled: true},
				"tuesday": {Start: "09:00", End: "12:00", Enabled: true},
			},
		},
		WhatsApp: practice.WhatsAppConfig{Enabled: true, PhoneNumber: "+12125550100"},
	}
}

func mustZone(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(testZone)
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	return loc
}

// Thursday 2026-02-26 10:00 in New York; the following Monday is 2026-03-02.
func testNow(t *testing.T) time.Time {
	return time.Date(2026, 2, 26, 10, 0, 0, 0, mustZone(t))
}

type stubExtractor struct {
	mu     sync.Mutex
	result Extraction
	err    error
	calls  int
	lastAt time.Time
}

func (s *stubExtractor) Extract(_ context.Context, _ string, _ string, now time.Time) (Extraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastAt = now
	return s.result, s.err
}

type stubResponder struct {
	text string
	err  error
}

func (s stubResponder) Respond(context.Context, string, *practice.Practice) (string, error) {
	return s.text, s.err
}

type recordingSender struct {
	mu   sync.Mutex
	sent []messaging.OutboundMessage
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg messaging.OutboundMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, msg)
	return "SM" + msg.To, nil
}

func (s *recordingSender) messages() []messaging.OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]messaging.OutboundMessage(nil), s.sent...)
}

type recordingRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingRecorder) Record(_ context.Context, e audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

type routerFixture struct {
	router    *Router
	service   *scheduling.Service
	appts     *appointment.MemoryRepository
	practices *practice.MemoryStore
	extractor *stubExtractor
	sender    *recordingSender
	recorder  *recordingRecorder
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	practices := practice.NewMemoryStore(testPractice())
	appts := appointment.NewMemoryRepository()
	svc := scheduling.NewService(practices, appts, scheduling.NewMemoryLocker(), nil,
		scheduling.WithClock(func() time.Time { return testNow(t) }))
	f := &routerFixture{
		service:   svc,
		appts:     appts,
		practices: practices,
		extractor: &stubExtractor{},
		sender:    &recordingSender{},
		recorder:  &recordingRecorder{},
	}
	f.router = NewRouter(svc, f.extractor, stubResponder{text: "We're happy to help."}, f.sender, nil,
		WithRouterRecorder(f.recorder))
	return f
}

func (f *routerFixture) turn(t *testing.T, body string) Turn {
	p, err := f.practices.Get(context.Background(), "p1")
	if err != nil {
		t.Fatalf("load practice: %v", err)
	}
	return Turn{Practice: p, From: patientPhone, Body: body, MessageSid: "SM-test", ReceivedAt: testNow(t)}
}
