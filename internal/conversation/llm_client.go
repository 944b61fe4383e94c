package conversation

import (
	"context"
	"errors"
)

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// Purpose says which step of a patient turn a completion serves. It keys
// logs and lets wrappers treat classification and reply writing differently.
type Purpose string

const (
	PurposeExtractIntent Purpose = "extract_intent"
	PurposeComposeReply  Purpose = "compose_reply"
)

// ErrEmptyCompletion means the provider answered with no usable text.
var ErrEmptyCompletion = errors.New("conversation: empty completion")

// ChatMessage is one prompt message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// LLMRequest is a single stateless completion over one patient message.
// Model may be empty to use the client's configured model. A negative
// Temperature leaves the provider default.
type LLMRequest struct {
	Purpose     Purpose
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
}

// LLMResponse carries the text plus the provider that produced it, so a
// fallback answer can be told apart in logs.
type LLMResponse struct {
	Text       string
	Provider   string
	Usage      TokenUsage
	StopReason string
}

// LLMClient is implemented by every model provider.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}
