package messaging

import (
	"context"
	"fmt"

	"github.com/wolfman30/practice-concierge/internal/practice"
)

// PracticeResolver maps a destination WhatsApp number to its practice.
// The override table wins; otherwise the practice store is asked.
type PracticeResolver struct {
	practices practice.Repository
	overrides map[string]string
}

// NewPracticeResolver builds a resolver. overrides maps phone numbers in any
// format to practice ids.
func NewPracticeResolver(practices practice.Repository, overrides map[string]string) *PracticeResolver {
	normalized := make(map[string]string, len(overrides))
	for raw, id := range overrides {
		key := sanitizePhone(StripWhatsAppPrefix(raw))
		if key == "" || id == "" {
			continue
		}
		normalized[key] = id
	}
	return &PracticeResolver{practices: practices, overrides: normalized}
}

// Resolve returns practice.ErrNotFound when nothing matches.
func (r *PracticeResolver) Resolve(ctx context.Context, toNumber string) (*practice.Practice, error) {
	e164 := NormalizeE164(StripWhatsAppPrefix(toNumber))
	if e164 == "" {
		return nil, practice.ErrNotFound
	}
	if id, ok := r.overrides[sanitizePhone(e164)]; ok {
		p, err := r.practices.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("messaging: resolve override %s: %w", id, err)
		}
		return p, nil
	}
	return r.practices.FindByWhatsAppNumber(ctx, e164)
}
