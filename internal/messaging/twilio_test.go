package messaging

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func signedRequest(t *testing.T, authToken, webhookURL string, form url.Values) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, webhookURL, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", computeSignature(buildSignaturePayload(webhookURL, form), authToken))
	return req
}

func TestValidateTwilioSignature(t *testing.T) {
	form := url.Values{}
	form.Set("MessageSid", "SM123")
	form.Set("From", "whatsapp:+12125550111")
	form.Set("Body", "Hello")

	req := signedRequest(t, "test_token", "https://example.com/webhooks/whatsapp", form)
	if !ValidateTwilioSignature(req, "test_token", "https://example.com/webhooks/whatsapp") {
		t.Fatalf("expected signature validation to pass")
	}
}

func TestValidateTwilioSignature_Rejects(t *testing.T) {
	form := url.Values{}
	form.Set("MessageSid", "SM123")

	wrongToken := signedRequest(t, "other_token", "https://example.com/webhook", form)
	if ValidateTwilioSignature(wrongToken, "test_token", "https://example.com/webhook") {
		t.Fatalf("expected signature from another token to fail")
	}

	wrongURL := signedRequest(t, "test_token", "https://example.com/webhook", form)
	if ValidateTwilioSignature(wrongURL, "test_token", "https://evil.example.com/webhook") {
		t.Fatalf("expected signature for another URL to fail")
	}

	missing := httptest.NewRequest(http.MethodPost, "https://example.com/webhook", strings.NewReader(form.Encode()))
	missing.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if ValidateTwilioSignature(missing, "test_token", "https://example.com/webhook") {
		t.Fatalf("expected missing signature to fail")
	}
}

func TestParseTwilioWebhook(t *testing.T) {
	form := url.Values{}
	form.Set("MessageSid", " SM1 ")
	form.Set("AccountSid", "AC1")
	form.Set("From", "whatsapp:+12125550111")
	form.Set("To", "whatsapp:+12125550100")
	form.Set("Body", " Book 2pm ")
	form.Set("NumMedia", "2")
	form.Set("ProfileName", "Ana")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	parsed, err := ParseTwilioWebhook(req)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.MessageSid != "SM1" || parsed.NumMedia != 2 || parsed.ProfileName != "Ana" {
		t.Fatalf("unexpected parse %+v", parsed)
	}
	if parsed.Body != " Book 2pm " {
		t.Fatalf("body must be passed through untouched, got %q", parsed.Body)
	}
}

func TestPhoneHelpers(t *testing.T) {
	if got := NormalizeE164(" +1 (555) 123-4567 "); got != "+15551234567" {
		t.Fatalf("unexpected normalized phone %q", got)
	}
	if got := NormalizeE164("abc"); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
	if got := StripWhatsAppPrefix("WhatsApp:+15551234567"); got != "+15551234567" {
		t.Fatalf("unexpected strip %q", got)
	}
	if got := StripWhatsAppPrefix("+15551234567"); got != "+15551234567" {
		t.Fatalf("unexpected strip %q", got)
	}
	if got := WhatsAppAddress("+1 555 123 4567"); got != "whatsapp:+15551234567" {
		t.Fatalf("unexpected address %q", got)
	}
	if got := WhatsAppAddress("whatsapp:+15551234567"); got != "whatsapp:+15551234567" {
		t.Fatalf("prefix must not be doubled, got %q", got)
	}
	if got := WhatsAppAddress(""); got != "" {
		t.Fatalf("expected empty address, got %q", got)
	}
}
