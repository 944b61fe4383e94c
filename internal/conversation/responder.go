package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/practice-concierge/internal/practice"
)

// Responder writes the free-form reply for messages that are not scheduling requests.
type Responder interface {
	Respond(ctx context.Context, message string, p *practice.Practice) (string, error)
}

// LLMResponder answers with a short model-written message.
type LLMResponder struct {
	client LLMClient
	model  string
}

func NewLLMResponder(client LLMClient, model string) *LLMResponder {
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	return &LLMResponder{client: client, model: model}
}

func (r *LLMResponder) Respond(ctx context.Context, message string, p *practice.Practice) (string, error) {
	resp, err := r.client.Complete(ctx, LLMRequest{
		Purpose:     PurposeComposeReply,
		Model:       r.model,
		System:      []string{responderPrompt(p)},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: strings.TrimSpace(message)}},
		MaxTokens:   300,
		Temperature: 0.4,
	})
	if err != nil {
		return "", fmt.Errorf("conversation: respond: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", errors.New("conversation: responder returned empty text")
	}
	return text, nil
}

func responderPrompt(p *practice.Practice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the WhatsApp assistant for %s", p.Name)
	if p.Specialty != "" {
		fmt.Fprintf(&b, ", a %s practice", p.Specialty)
	}
	b.WriteString(".\n")
	b.WriteString("Keep replies under 60 words, warm and plain. Never diagnose or give medical advice; ")
	b.WriteString("for anything clinical suggest booking a visit, and for emergencies tell the patient to call their local emergency number.\n")
	b.WriteString(`Patients can book by sending a message like "Book tomorrow at 2pm", and can reply CANCEL or CONFIRM about an upcoming visit.`)
	if p.Phone != "" {
		fmt.Fprintf(&b, "\nThe practice phone number is %s.", p.Phone)
	}
	return b.String()
}
