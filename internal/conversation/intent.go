package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Intent is what the patient wants from this turn.
type Intent string

const (
	IntentBook       Intent = "book"
	IntentCancel     Intent = "cancel"
	IntentReschedule Intent = "reschedule"
	IntentInfo       Intent = "info"
	IntentConfirm    Intent = "confirm"
	IntentUnknown    Intent = "unknown"
)

// ErrExtraction means the model output could not be used. Callers fall back
// to IntentUnknown.
var ErrExtraction = errors.New("conversation: intent extraction failed")

// Extraction is the structured reading of one patient message. Date is
// YYYY-MM-DD and Time is HH:MM (24h) in the practice timezone; both may be empty.
type Extraction struct {
	Intent      Intent `json:"intent"`
	Date        string `json:"date,omitempty"`
	Time        string `json:"time,omitempty"`
	Reason      string `json:"reason,omitempty"`
	PatientName string `json:"patient_name,omitempty"`
}

// IntentExtractor turns free text into an Extraction. now is already in the
// practice timezone so relative dates resolve against the practice's calendar.
type IntentExtractor interface {
	Extract(ctx context.Context, message, practiceName string, now time.Time) (Extraction, error)
}

// keywordIntent recognises the one-word replies a reminder asks for. They win
// over any model reading.
func keywordIntent(body string) (Intent, bool) {
	switch strings.ToLower(strings.TrimSpace(body)) {
	case "cancel":
		return IntentCancel, true
	case "confirm":
		return IntentConfirm, true
	}
	return "", false
}

func normalizeIntent(raw string) Intent {
	switch Intent(strings.ToLower(strings.TrimSpace(raw))) {
	case IntentBook:
		return IntentBook
	case IntentCancel:
		return IntentCancel
	case IntentReschedule:
		return IntentReschedule
	case IntentInfo:
		return IntentInfo
	default:
		return IntentUnknown
	}
}

var clockLayouts = []string{"15:04", "3:04pm", "3pm", "15"}

// NormalizeClock turns "2pm", "2:30 PM", "14:00" or "noon" into "15:04" form.
func NormalizeClock(value string) (string, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	v = strings.NewReplacer(" ", "", ".", "").Replace(v)
	switch v {
	case "":
		return "", false
	case "noon", "midday":
		return "12:00", true
	}
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format("15:04"), true
		}
	}
	return "", false
}

// parseExtraction reads the model's JSON object. Code fences and surrounding
// prose are tolerated. Unusable dates and times are dropped, not fatal.
func parseExtraction(text string) (Extraction, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Extraction{Intent: IntentUnknown}, fmt.Errorf("%w: no JSON object in model output", ErrExtraction)
	}

	var raw struct {
		Intent      string `json:"intent"`
		Date        string `json:"date"`
		Time        string `json:"time"`
		Reason      string `json:"reason"`
		PatientName string `json:"patient_name"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return Extraction{Intent: IntentUnknown}, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	out := Extraction{
		Intent:      normalizeIntent(raw.Intent),
		Reason:      strings.TrimSpace(raw.Reason),
		PatientName: strings.TrimSpace(raw.PatientName),
	}
	if date := strings.TrimSpace(raw.Date); date != "" {
		if _, err := time.Parse("2006-01-02", date); err == nil {
			out.Date = date
		}
	}
	if clock, ok := NormalizeClock(raw.Time); ok {
		out.Time = clock
	}
	return out, nil
}
