package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	entry       OutboxEntry
	delivered   bool
	nextAttempt time.Time
	lastError   string
}

// MemoryOutbox is an in-process Outbox for development and tests.
type MemoryOutbox struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*memoryEntry
	now     func() time.Time
}

func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{entries: make(map[uuid.UUID]*memoryEntry), now: time.Now}
}

func (m *MemoryOutbox) Insert(_ context.Context, practiceID string, eventType string, payload any) (uuid.UUID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: marshal payload: %w", err)
	}
	id := uuid.New()
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = &memoryEntry{
		entry:       OutboxEntry{ID: id, PracticeID: practiceID, Type: eventType, Payload: data, CreatedAt: now},
		nextAttempt: now,
	}
	return id, nil
}

func (m *MemoryOutbox) FetchPending(_ context.Context, limit int32, maxAttempts int) ([]OutboxEntry, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []OutboxEntry
	for _, e := range m.entries {
		if e.delivered || e.entry.Attempts >= maxAttempts || e.nextAttempt.After(now) {
			continue
		}
		out = append(out, e.entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > int(limit) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryOutbox) MarkDelivered(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.delivered {
		return false, nil
	}
	e.delivered = true
	return true, nil
}

func (m *MemoryOutbox) MarkFailed(_ context.Context, id uuid.UUID, cause error, nextAttempt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.delivered {
		return nil
	}
	e.entry.Attempts++
	e.nextAttempt = nextAttempt
	if cause != nil {
		e.lastError = cause.Error()
	}
	return nil
}

// Pending reports how many entries are still undelivered.
func (m *MemoryOutbox) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if !e.delivered {
			n++
		}
	}
	return n
}

// Entries returns a snapshot of every entry, oldest first.
func (m *MemoryOutbox) Entries() []OutboxEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OutboxEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
