package reminder

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/practice-concierge/internal/appointment"
	"github.com/wolfman30/practice-concierge/internal/audit"
	"github.com/wolfman30/practice-concierge/internal/messaging"
	"github.com/wolfman30/practice-concierge/internal/practice"
	"github.com/wolfman30/practice-concierge/internal/scheduling"
)

type fakeSender struct {
	mu     sync.Mutex
	sent   []messaging.OutboundMessage
	failTo map[string]bool
}

func (f *fakeSender) Send(_ context.Context, msg messaging.OutboundMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[msg.To] {
		return "", messaging.ErrDeliveryFailed
	}
	f.sent = append(f.sent, msg)
	return "SM" + msg.To, nil
}

type captureRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureRecorder) Record(_ context.Context, e audit.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

type fixture struct {
	practices *practice.MemoryStore
	appts     *appointment.MemoryRepository
	sender    *fakeSender
	recorder  *captureRecorder
	loc       *time.Location
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	cal := &practice.CalendarConfig{Timezone: "America/New_York", SlotDurationMinutes: 30}
	return &fixture{
		practices: practice.NewMemoryStore(
			&practice.Practice{ID: "p1", Name: "Brooklyn Smiles", Active: true, Calendar: cal,
				WhatsApp: practice.WhatsAppConfig{Enabled: true, PhoneNumber: "+12125550100"}},
			&practice.Practice{ID: "p2", Name: "Quiet Dental", Active: true, Calendar: cal},
		),
		appts:    appointment.NewMemoryRepository(),
		sender:   &fakeSender{failTo: map[string]bool{}},
		recorder: &captureRecorder{},
		loc:      loc,
		now:      time.Date(2026, 3, 2, 10, 0, 0, 0, loc),
	}
}

func (f *fixture) scanner(opts ...Option) *Scanner {
	base := []Option{
		WithClock(func() time.Time { return f.now }),
		WithRecorder(f.recorder),
	}
	return NewScanner(f.practices, f.appts, f.sender, nil, append(base, opts...)...)
}

func (f *fixture) book(t *testing.T, practiceID, phone string, start time.Time) *appointment.Appointment {
	t.Helper()
	appt := &appointment.Appointment{PracticeID: practiceID, PatientName: "Ana", PatientPhone: phone, Start: start, DurationMinutes: 30}
	require.NoError(t, f.appts.Insert(context.Background(), appt))
	return appt
}

func TestScanSendsOncePerAppointment(t *testing.T) {
	f := newFixture(t)
	inWindow := f.book(t, "p1", "+1001", f.now.Add(24*time.Hour))
	f.book(t, "p1", "+1002", f.now.Add(24*time.Hour+30*time.Minute))
	f.book(t, "p1", "+1003", f.now.Add(25*time.Hour)) // window end is exclusive
	f.book(t, "p1", "+1004", f.now.Add(23*time.Hour)) // too early
	f.book(t, "p2", "+1005", f.now.Add(24*time.Hour)) // messaging disabled
	scanner := f.scanner()

	result, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Practices: 2, Due: 2, Sent: 2, Skipped: 1}, result)
	require.Len(t, f.sender.sent, 2)
	for _, msg := range f.sender.sent {
		assert.Equal(t, "p1", msg.PracticeID)
		assert.Equal(t, "+12125550100", msg.From)
		assert.Contains(t, msg.Body, "Brooklyn Smiles")
		assert.Contains(t, msg.Body, "Tuesday, March 3")
	}

	stored, err := f.appts.Get(context.Background(), "p1", inWindow.ID)
	require.NoError(t, err)
	assert.True(t, stored.ReminderSent)

	again, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again.Sent)
	assert.Zero(t, again.Due)
	assert.Len(t, f.sender.sent, 2)
}

func TestScanIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	failing := f.book(t, "p1", "+1001", f.now.Add(24*time.Hour))
	f.book(t, "p1", "+1002", f.now.Add(24*time.Hour+15*time.Minute))
	f.book(t, "p1", "+1003", f.now.Add(24*time.Hour+45*time.Minute))
	f.sender.failTo["+1001"] = true

	result, err := f.scanner(WithConcurrency(2)).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Due)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 1, result.Failed)

	stored, err := f.appts.Get(context.Background(), "p1", failing.ID)
	require.NoError(t, err)
	assert.False(t, stored.ReminderSent, "failed reminder stays eligible for the next scan")

	require.Len(t, f.recorder.events, 1)
	assert.Equal(t, audit.CategoryReminderFailed, f.recorder.events[0].Category)
	assert.Equal(t, failing.ID.String(), f.recorder.events[0].Details["appointment_id"])

	delete(f.sender.failTo, "+1001")
	retry, err := f.scanner().Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, retry.Sent)
}

func TestScanIgnoresCancelledAppointments(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, "p1", "+1001", f.now.Add(24*time.Hour))
	require.NoError(t, f.appts.UpdateStatus(context.Background(), "p1", appt.ID, appointment.ActiveStatuses, appointment.StatusCancelled))

	result, err := f.scanner().Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Due)
	assert.Empty(t, f.sender.sent)
}

func TestScanSkipsPracticeWithoutTimezone(t *testing.T) {
	f := newFixture(t)
	f.practices.Put(&practice.Practice{ID: "p3", Name: "No Zone", Active: true,
		WhatsApp: practice.WhatsAppConfig{Enabled: true, PhoneNumber: "+12125550300"}})
	f.book(t, "p3", "+1001", f.now.Add(24*time.Hour))

	result, err := f.scanner().Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Skipped)
	assert.Empty(t, f.sender.sent)
}

func TestScanSkipsWhenAnotherScanHoldsTheLock(t *testing.T) {
	f := newFixture(t)
	f.book(t, "p1", "+1001", f.now.Add(24*time.Hour))
	lock := scheduling.NewMemoryLocker()
	scanner := f.scanner(WithScanLock(lock))

	var inner ScanResult
	err := lock.WithLock(context.Background(), scanLockKey, func(ctx context.Context) error {
		var err error
		inner, err = scanner.Scan(ctx)
		return err
	})
	require.NoError(t, err)
	assert.True(t, inner.Contended)
	assert.Empty(t, f.sender.sent)

	result, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
}

func TestScanListFailure(t *testing.T) {
	f := newFixture(t)
	scanner := NewScanner(errPractices{}, f.appts, f.sender, nil)
	_, err := scanner.Scan(context.Background())
	assert.Error(t, err)
}

type errPractices struct{ practice.Repository }

func (errPractices) ListActive(context.Context) ([]*practice.Practice, error) {
	return nil, errors.New("db down")
}

func TestTriggerScanHandler(t *testing.T) {
	f := newFixture(t)
	f.book(t, "p1", "+1001", f.now.Add(24*time.Hour))
	h := NewHandler(f.scanner(), nil)

	rec := httptest.NewRecorder()
	h.TriggerScan(rec, httptest.NewRequest(http.MethodPost, "/admin/reminders/scan", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"sent":1`), rec.Body.String())

	failing := NewHandler(NewScanner(errPractices{}, f.appts, f.sender, nil), nil)
	rec = httptest.NewRecorder()
	failing.TriggerScan(rec, httptest.NewRequest(http.MethodPost, "/admin/reminders/scan", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCronRunner(t *testing.T) {
	f := newFixture(t)
	if _, err := NewCronRunner(f.scanner(), "not a schedule", time.Second, nil); err == nil {
		t.Fatalf("expected invalid spec error")
	}
	f.book(t, "p1", "+1001", f.now.Add(24*time.Hour))
	runner, err := NewCronRunner(f.scanner(), "@every 1h", time.Second, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Start(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool {
		f.sender.mu.Lock()
		defer f.sender.mu.Unlock()
		return len(f.sender.sent) == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}
