package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConverse struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
	err   error
}

func (f *fakeConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = in
	return f.out, f.err
}

func TestBedrockLLMClientComplete(t *testing.T) {
	api := &fakeConverse{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: ` {"intent":"info"} `}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
		Usage:      &brtypes.TokenUsage{InputTokens: aws.Int32(12), OutputTokens: aws.Int32(4), TotalTokens: aws.Int32(16)},
	}}
	client := NewBedrockLLMClient(api, "anthropic.claude-3-haiku")

	resp, err := client.Complete(context.Background(), LLMRequest{
		System:      []string{"classify"},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: "where are you"}},
		MaxTokens:   64,
		Temperature: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"intent":"info"}`, resp.Text)
	assert.Equal(t, "bedrock", resp.Provider)
	assert.Equal(t, int32(16), resp.Usage.TotalTokens)
	assert.Equal(t, "anthropic.claude-3-haiku", aws.ToString(api.input.ModelId))
	assert.Len(t, api.input.System, 1)
	assert.Equal(t, int32(64), aws.ToInt32(api.input.InferenceConfig.MaxTokens))
}

func TestBedrockLLMClientRejectsEmptyOutput(t *testing.T) {
	api := &fakeConverse{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{}},
	}}
	_, err := NewBedrockLLMClient(api, "m").Complete(context.Background(), LLMRequest{
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: "hi"}},
		Temperature: -1,
	})
	require.Error(t, err)
	assert.Nil(t, api.input.InferenceConfig)
}

func TestBedrockLLMClientRejectsUnknownRole(t *testing.T) {
	_, err := NewBedrockLLMClient(&fakeConverse{}, "m").Complete(context.Background(), LLMRequest{
		Messages: []ChatMessage{{Role: "tool", Content: "x"}},
	})
	require.Error(t, err)
}

func TestFallbackLLMClient(t *testing.T) {
	primary := &scriptedLLM{err: errors.New("503")}
	secondary := &scriptedLLM{text: "from fallback"}
	req := LLMRequest{Purpose: PurposeComposeReply}

	resp, err := NewFallbackLLMClient(primary, secondary, nil).Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "from fallback", resp.Text)
	assert.Len(t, primary.requests, 1)
	require.Len(t, secondary.requests, 1)
	assert.Equal(t, PurposeComposeReply, secondary.requests[0].Purpose)

	_, err = NewFallbackLLMClient(primary, nil, nil).Complete(context.Background(), req)
	require.EqualError(t, err, "503")

	healthy := &scriptedLLM{text: "ok"}
	resp, err = NewFallbackLLMClient(healthy, secondary, nil).Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Len(t, secondary.requests, 1)
}

func TestFallbackLLMClientTreatsBlankAnswerAsFailure(t *testing.T) {
	blank := &scriptedLLM{text: "  "}
	secondary := &scriptedLLM{text: "Sure, we're open Monday."}

	resp, err := NewFallbackLLMClient(blank, secondary, nil).Complete(context.Background(), LLMRequest{Purpose: PurposeComposeReply})
	require.NoError(t, err)
	assert.Equal(t, "Sure, we're open Monday.", resp.Text)

	_, err = NewFallbackLLMClient(blank, nil, nil).Complete(context.Background(), LLMRequest{})
	assert.ErrorIs(t, err, ErrEmptyCompletion)

	_, err = NewFallbackLLMClient(blank, &scriptedLLM{}, nil).Complete(context.Background(), LLMRequest{})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestFallbackLLMClientSkipsFallbackAfterDeadline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	primary := &scriptedLLM{err: context.Canceled}
	secondary := &scriptedLLM{text: "late"}

	_, err := NewFallbackLLMClient(primary, secondary, nil).Complete(ctx, LLMRequest{Purpose: PurposeExtractIntent})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, secondary.requests)
}
