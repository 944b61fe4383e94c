package practice

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Repository looks up practices. Implementations return ErrNotFound when no
// practice matches.
type Repository interface {
	Get(ctx context.Context, id string) (*Practice, error)
	FindByWhatsAppNumber(ctx context.Context, e164 string) (*Practice, error)
	FindByGoogleLocation(ctx context.Context, locationName string) (*Practice, error)
	ListActive(ctx context.Context) ([]*Practice, error)
}

// MemoryStore is an in-process Repository used for local development and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	practices map[string]*Practice
}

// NewMemoryStore seeds a store with the given practices.
func NewMemoryStore(practices ...*Practice) *MemoryStore {
	s := &MemoryStore{practices: make(map[string]*Practice, len(practices))}
	for _, p := range practices {
		s.Put(p)
	}
	return s
}

// Put inserts or replaces a practice.
func (s *MemoryStore) Put(p *Practice) {
	if p == nil || strings.TrimSpace(p.ID) == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.practices[p.ID] = clonePractice(p)
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Practice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.practices[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePractice(p), nil
}

func (s *MemoryStore) FindByWhatsAppNumber(_ context.Context, e164 string) (*Practice, error) {
	e164 = strings.TrimSpace(e164)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.sorted() {
		if e164 != "" && p.WhatsApp.PhoneNumber == e164 {
			return clonePractice(p), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) FindByGoogleLocation(_ context.Context, locationName string) (*Practice, error) {
	locationName = strings.TrimSpace(locationName)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.sorted() {
		for _, loc := range p.GoogleLocations {
			if locationName != "" && loc == locationName {
				return clonePractice(p), nil
			}
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListActive(_ context.Context) ([]*Practice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Practice
	for _, p := range s.sorted() {
		if p.Active {
			out = append(out, clonePractice(p))
		}
	}
	return out, nil
}

// sorted returns practices ordered by id; callers hold the read lock.
func (s *MemoryStore) sorted() []*Practice {
	out := make([]*Practice, 0, len(s.practices))
	for _, p := range s.practices {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func clonePractice(p *Practice) *Practice {
	if p == nil {
		return nil
	}
	cp := *p
	if p.GoogleLocations != nil {
		cp.GoogleLocations = append([]string(nil), p.GoogleLocations...)
	}
	if p.Calendar != nil {
		cal := *p.Calendar
		if p.Calendar.WorkingHours != nil {
			cal.WorkingHours = make(map[string]WorkingHour, len(p.Calendar.WorkingHours))
			for day, hours := range p.Calendar.WorkingHours {
				cal.WorkingHours[day] = hours
			}
		}
		cp.Calendar = &cal
	}
	return &cp
}
