package messaging

import (
	"regexp"
	"strings"
)

const whatsAppPrefix = "whatsapp:"

var phoneDigitsRe = regexp.MustCompile(`\d+`)

// NormalizeE164 ensures the value begins with + and only contains digits afterward.
func NormalizeE164(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	digits := sanitizePhone(value)
	if digits == "" {
		return ""
	}
	return "+" + digits
}

// StripWhatsAppPrefix removes the Twilio channel prefix ("whatsapp:+1555...").
func StripWhatsAppPrefix(value string) string {
	value = strings.TrimSpace(value)
	if len(value) >= len(whatsAppPrefix) && strings.EqualFold(value[:len(whatsAppPrefix)], whatsAppPrefix) {
		return value[len(whatsAppPrefix):]
	}
	return value
}

// WhatsAppAddress formats an E.164 number as a Twilio WhatsApp address.
func WhatsAppAddress(value string) string {
	e164 := NormalizeE164(StripWhatsAppPrefix(value))
	if e164 == "" {
		return ""
	}
	return whatsAppPrefix + e164
}

func sanitizePhone(value string) string {
	if value == "" {
		return ""
	}
	return strings.Join(phoneDigitsRe.FindAllString(value, -1), "")
}
