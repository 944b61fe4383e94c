package appointment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps appointments in process. It enforces slot-key
// uniqueness and the no-overlap rule the same way the Postgres constraints do.
type MemoryRepository struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	byID  map[uuid.UUID]*Appointment
	nowFn func() time.Time
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:  make(map[uuid.UUID]*Appointment),
		nowFn: time.Now,
	}
}

func (m *MemoryRepository) ListActiveBetween(_ context.Context, practiceID string, from, to time.Time) ([]*Appointment, error) {
	return m.filter(func(a *Appointment) bool {
		return a.PracticeID == practiceID && a.Status.IsActive() && !a.Start.Before(from) && a.Start.Before(to)
	}), nil
}

func (m *MemoryRepository) Insert(_ context.Context, appt *Appointment) error {
	if appt == nil {
		return fmt.Errorf("appointment: insert: nil appointment")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	prepareInsert(appt, m.nowFn().UTC())
	for _, existing := range m.byID {
		if existing.PracticeID != appt.PracticeID || !existing.Status.IsActive() {
			continue
		}
		if existing.SlotKey == appt.SlotKey || existing.Overlaps(appt.Start, appt.End()) {
			return ErrSlotTaken
		}
	}
	cp := *appt
	m.byID[appt.ID] = &cp
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, practiceID string, id uuid.UUID) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.byID[id]
	if !ok || a.PracticeID != practiceID {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryRepository) FindNextByPhone(_ context.Context, practiceID, phone string, statuses []Status, after time.Time) (*Appointment, error) {
	matches := m.filter(func(a *Appointment) bool {
		return a.PracticeID == practiceID && a.PatientPhone == phone && hasStatus(statuses, a.Status) && !a.Start.Before(after)
	})
	if len(matches) == 0 {
		return nil, ErrNotFound
	}
	return matches[0], nil
}

func (m *MemoryRepository) UpdateStatus(_ context.Context, practiceID string, id uuid.UUID, from []Status, to Status) error {
	allowed := allowedFrom(from, to)
	if len(allowed) == 0 {
		return ErrInvalidTransition
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok || a.PracticeID != practiceID || !hasStatus(allowed, a.Status) {
		return ErrNotFound
	}
	a.Status = to
	a.UpdatedAt = m.nowFn().UTC()
	return nil
}

func (m *MemoryRepository) ListDueForReminder(_ context.Context, practiceID string, from, to time.Time) ([]*Appointment, error) {
	return m.filter(func(a *Appointment) bool {
		return a.PracticeID == practiceID && a.Status.IsActive() && !a.ReminderSent && !a.Start.Before(from) && a.Start.Before(to)
	}), nil
}

func (m *MemoryRepository) MarkReminderSent(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return false, ErrNotFound
	}
	if a.ReminderSent {
		return false, nil
	}
	a.ReminderSent = true
	a.UpdatedAt = m.nowFn().UTC()
	return true, nil
}

func (m *MemoryRepository) SetCalendarEventID(_ context.Context, id uuid.UUID, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	a.CalendarEventID = eventID
	a.UpdatedAt = m.nowFn().UTC()
	return nil
}

// Transact serializes fn against every other transaction on this repository.
func (m *MemoryRepository) Transact(_ context.Context, fn func(Repository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(m)
}

// All returns every stored appointment ordered by start.
func (m *MemoryRepository) All() []*Appointment {
	return m.filter(func(*Appointment) bool { return true })
}

func (m *MemoryRepository) filter(keep func(*Appointment) bool) []*Appointment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Appointment
	for _, a := range m.byID {
		if keep(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

func hasStatus(statuses []Status, s Status) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}
