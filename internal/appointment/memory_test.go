package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newAppt(practiceID, phone string, start time.Time, minutes int) *Appointment {
	return &Appointment{
		PracticeID:      practiceID,
		PatientName:     "Pat",
		PatientPhone:    phone,
		Start:           start,
		DurationMinutes: minutes,
		Source:          SourceWhatsApp,
	}
}

func TestMemoryRepositoryRejectsOverlap(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

	if err := repo.Insert(ctx, newAppt("p1", "+1555", start, 30)); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := repo.Insert(ctx, newAppt("p1", "+1666", start.Add(15*time.Minute), 30)); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected overlap to be rejected, got %v", err)
	}
	if err := repo.Insert(ctx, newAppt("p1", "+1666", start.Add(30*time.Minute), 30)); err != nil {
		t.Fatalf("adjacent slot should be accepted: %v", err)
	}
	if err := repo.Insert(ctx, newAppt("p2", "+1666", start, 30)); err != nil {
		t.Fatalf("other practice should not conflict: %v", err)
	}
}

func TestMemoryRepositoryCancelledFreesSlot(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	first := newAppt("p1", "+1555", start, 30)
	if err := repo.Insert(ctx, first); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.UpdateStatus(ctx, "p1", first.ID, ActiveStatuses, StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := repo.Insert(ctx, newAppt("p1", "+1666", start, 30)); err != nil {
		t.Fatalf("expected slot to be free after cancel: %v", err)
	}
}

func TestMemoryRepositoryConcurrentInsertsExactlyOneWins(t *testing.T) {
	repo := NewMemoryRepository()
	start := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

	const attempts = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Insert(context.Background(), newAppt("p1", "+1555", start, 30))
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if success != 1 {
		t.Fatalf("expected exactly one insert to win, got %d", success)
	}
}

func TestMemoryRepositoryFindNextByPhone(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	past := newAppt("p1", "+1555", now.Add(-2*time.Hour), 30)
	later := newAppt("p1", "+1555", now.Add(48*time.Hour), 30)
	sooner := newAppt("p1", "+1555", now.Add(2*time.Hour), 30)
	for _, a := range []*Appointment{past, later, sooner} {
		if err := repo.Insert(ctx, a); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := repo.FindNextByPhone(ctx, "p1", "+1555", ActiveStatuses, now)
	if err != nil {
		t.Fatalf("find next: %v", err)
	}
	if got.ID != sooner.ID {
		t.Fatalf("expected nearest upcoming appointment")
	}
	if _, err := repo.FindNextByPhone(ctx, "p1", "+1999", ActiveStatuses, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepositoryUpdateStatusIsConditional(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	appt := newAppt("p1", "+1555", time.Now().Add(time.Hour), 30)
	if err := repo.Insert(ctx, appt); err != nil {
		t.Fatalf("insert: %v", err)
	}
	from := []Status{StatusScheduled}
	if err := repo.UpdateStatus(ctx, "p1", appt.ID, from, StatusConfirmed); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := repo.UpdateStatus(ctx, "p1", appt.ID, from, StatusConfirmed); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second confirm should not match, got %v", err)
	}
	if err := repo.UpdateStatus(ctx, "p1", appt.ID, []Status{StatusCancelled}, StatusScheduled); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if err := repo.UpdateStatus(ctx, "p1", uuid.New(), ActiveStatuses, StatusCancelled); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestMemoryRepositoryReminderFlagFlipsOnce(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	start := time.Date(2026, 3, 3, 14, 0, 0, 0, time.UTC)
	appt := newAppt("p1", "+1555", start, 30)
	if err := repo.Insert(ctx, appt); err != nil {
		t.Fatalf("insert: %v", err)
	}

	due, _ := repo.ListDueForReminder(ctx, "p1", start.Add(-time.Minute), start.Add(time.Hour))
	if len(due) != 1 {
		t.Fatalf("expected one due appointment, got %d", len(due))
	}
	flipped, err := repo.MarkReminderSent(ctx, appt.ID)
	if err != nil || !flipped {
		t.Fatalf("expected first mark to flip, got %v err=%v", flipped, err)
	}
	flipped, err = repo.MarkReminderSent(ctx, appt.ID)
	if err != nil || flipped {
		t.Fatalf("expected second mark to be a no-op, got %v err=%v", flipped, err)
	}
	due, _ = repo.ListDueForReminder(ctx, "p1", start.Add(-time.Minute), start.Add(time.Hour))
	if len(due) != 0 {
		t.Fatalf("reminded appointment should no longer be due")
	}
}
