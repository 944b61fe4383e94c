package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/practice-concierge/pkg/logging"
)

// FallbackLLMClient sends a turn to the secondary provider when the primary
// errors or answers blank. A patient whose turn has already timed out gets
// the router's apology instead of a second model call.
type FallbackLLMClient struct {
	primary  LLMClient
	fallback LLMClient
	logger   *logging.Logger
}

// NewFallbackLLMClient wraps primary. A nil fallback only adds the blank-answer check.
func NewFallbackLLMClient(primary, fallback LLMClient, logger *logging.Logger) *FallbackLLMClient {
	if primary == nil {
		panic("conversation: primary llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackLLMClient{primary: primary, fallback: fallback, logger: logger}
}

func (c *FallbackLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	resp, err := completeNonEmpty(ctx, c.primary, req)
	if err == nil {
		return resp, nil
	}
	logger := c.logger.With("purpose", string(req.Purpose))
	if ctx.Err() != nil || c.fallback == nil {
		logger.Warn("llm completion failed", "error", err, "fallback_available", c.fallback != nil)
		return LLMResponse{}, err
	}

	logger.Warn("primary llm failed; trying fallback", "error", err)
	fallbackResp, fallbackErr := completeNonEmpty(ctx, c.fallback, req)
	if fallbackErr != nil {
		logger.Error("fallback llm also failed", "primary_error", err, "fallback_error", fallbackErr)
		return LLMResponse{}, fmt.Errorf("conversation: all llm providers failed: %w", fallbackErr)
	}
	logger.Info("fallback llm answered", "provider", fallbackResp.Provider)
	return fallbackResp, nil
}

func completeNonEmpty(ctx context.Context, client LLMClient, req LLMRequest) (LLMResponse, error) {
	resp, err := client.Complete(ctx, req)
	if err != nil {
		return LLMResponse{}, err
	}
	if strings.TrimSpace(resp.Text) == "" {
		return LLMResponse{}, ErrEmptyCompletion
	}
	return resp, nil
}
