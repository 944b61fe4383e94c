package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const extractionInstructions = `You read WhatsApp messages sent to a healthcare practice and classify them.
Return ONLY a JSON object with these keys:
  "intent": one of "book", "cancel", "reschedule", "info", "unknown"
  "date": the requested day as YYYY-MM-DD, or "" if none was given
  "time": the requested time as HH:MM in 24-hour form, or "" if none was given
  "reason": the reason for the visit if stated, else ""
  "patient_name": the patient's name if stated, else ""
Resolve relative days ("tomorrow", "next Monday") against the current date given below.
Questions about hours, address, phone or services are "info".
Symptoms or medical questions without a scheduling request are "unknown".`

// LLMIntentExtractor asks a model for a JSON Extraction.
type LLMIntentExtractor struct {
	client LLMClient
	model  string
}

// NewLLMIntentExtractor builds an extractor. model may be empty to use the client default.
func NewLLMIntentExtractor(client LLMClient, model string) *LLMIntentExtractor {
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	return &LLMIntentExtractor{client: client, model: model}
}

func (e *LLMIntentExtractor) Extract(ctx context.Context, message, practiceName string, now time.Time) (Extraction, error) {
	header := fmt.Sprintf("Practice: %s\nCurrent date: %s (%s)\nCurrent time: %s",
		practiceName, now.Format("2006-01-02"), now.Weekday(), now.Format("15:04"))

	resp, err := e.client.Complete(ctx, LLMRequest{
		Purpose:     PurposeExtractIntent,
		Model:       e.model,
		System:      []string{extractionInstructions, header},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: strings.TrimSpace(message)}},
		MaxTokens:   256,
		Temperature: 0,
	})
	if err != nil {
		return Extraction{Intent: IntentUnknown}, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	return parseExtraction(resp.Text)
}
