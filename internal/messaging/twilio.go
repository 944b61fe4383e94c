package messaging

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// ValidateTwilioSignature validates that a request came from Twilio
func ValidateTwilioSignature(r *http.Request, authToken, webhookURL string) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}
	if err := r.ParseForm(); err != nil {
		return false
	}
	expected := computeSignature(buildSignaturePayload(webhookURL, r.PostForm), authToken)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// buildSignaturePayload creates the payload string for signature verification:
// the full URL followed by every POST parameter sorted by name.
func buildSignaturePayload(url string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var payload strings.Builder
	payload.WriteString(url)
	for _, key := range keys {
		for _, value := range params[key] {
			payload.WriteString(key)
			payload.WriteString(value)
		}
	}
	return payload.String()
}

// computeSignature computes the HMAC-SHA1 signature
func computeSignature(data, key string) string {
	h := hmac.New(sha1.New, []byte(key))
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// TwilioWebhookRequest represents an incoming Twilio WhatsApp webhook.
type TwilioWebhookRequest struct {
	MessageSid  string
	AccountSid  string
	From        string
	To          string
	Body        string
	NumMedia    int
	ProfileName string
}

// ParseTwilioWebhook parses the form fields. From and To keep whatever
// channel prefix Twilio sent; see StripWhatsAppPrefix.
func ParseTwilioWebhook(r *http.Request) (*TwilioWebhookRequest, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}
	numMedia, _ := strconv.Atoi(strings.TrimSpace(r.PostFormValue("NumMedia")))
	return &TwilioWebhookRequest{
		MessageSid:  strings.TrimSpace(r.PostFormValue("MessageSid")),
		AccountSid:  strings.TrimSpace(r.PostFormValue("AccountSid")),
		From:        r.PostFormValue("From"),
		To:          r.PostFormValue("To"),
		Body:        r.PostFormValue("Body"),
		NumMedia:    numMedia,
		ProfileName: strings.TrimSpace(r.PostFormValue("ProfileName")),
	}, nil
}
