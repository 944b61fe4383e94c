package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"

	"github.com/wolfman30/practice-concierge/internal/messaging"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	// Loose on purpose: anything that reads like a 10+ digit number.
	phonePattern = regexp.MustCompile(`\+?\(?\d[\d\s().\-]{8,}\d`)
)

// HashPhone hashes the E.164 form so "whatsapp:+1 555..." and "+1555..."
// map to the same patient key.
func HashPhone(phone string) string {
	normalized := messaging.NormalizeE164(messaging.StripWhatsAppPrefix(phone))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// ScrubPII masks emails and phone numbers. Names stay readable.
func ScrubPII(text string) string {
	text = emailPattern.ReplaceAllString(text, "[EMAIL]")
	return phonePattern.ReplaceAllString(text, "[PHONE]")
}
