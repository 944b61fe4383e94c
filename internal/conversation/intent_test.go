package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordIntent(t *testing.T) {
	cases := map[string]Intent{
		"cancel":      IntentCancel,
		" CANCEL ":    IntentCancel,
		"Confirm":     IntentConfirm,
		"\tconfirm\n": IntentConfirm,
		"Cancel!":     "",
		"confirm.":    "",
		"cancel it":   "",
		"book":        "",
	}
	for body, want := range cases {
		got, ok := keywordIntent(body)
		if want == "" {
			assert.False(t, ok, body)
			continue
		}
		assert.True(t, ok, body)
		assert.Equal(t, want, got, body)
	}
}

func TestNormalizeClock(t *testing.T) {
	cases := map[string]string{
		"2pm":      "14:00",
		"2:30 PM":  "14:30",
		"14:00":    "14:00",
		"9am":      "09:00",
		"9:15 a.m": "09:15",
		"noon":     "12:00",
		"15":       "15:00",
	}
	for in, want := range cases {
		got, ok := NormalizeClock(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "later", "25:00"} {
		_, ok := NormalizeClock(bad)
		assert.False(t, ok, bad)
	}
}

func TestParseExtraction(t *testing.T) {
	text := "Sure!\n```json\n{\"intent\":\"BOOK\",\"date\":\"2026-03-02\",\"time\":\"2pm\",\"reason\":\" cleaning \",\"patient_name\":\"Ana\"}\n```"
	got, err := parseExtraction(text)
	require.NoError(t, err)
	assert.Equal(t, Extraction{Intent: IntentBook, Date: "2026-03-02", Time: "14:00", Reason: "cleaning", PatientName: "Ana"}, got)
}

func TestParseExtractionDropsBadFields(t *testing.T) {
	got, err := parseExtraction(`{"intent":"reschedule","date":"next monday","time":"whenever"}`)
	require.NoError(t, err)
	assert.Equal(t, IntentReschedule, got.Intent)
	assert.Empty(t, got.Date)
	assert.Empty(t, got.Time)

	got, err = parseExtraction(`{"intent":"refill"}`)
	require.NoError(t, err)
	assert.Equal(t, IntentUnknown, got.Intent)
}

func TestParseExtractionMalformed(t *testing.T) {
	for _, text := range []string{"no json here", `{"intent": "book"`, `{intent: book}`} {
		got, err := parseExtraction(text)
		require.ErrorIs(t, err, ErrExtraction, text)
		assert.Equal(t, IntentUnknown, got.Intent)
	}
}

type scriptedLLM struct {
	text     string
	err      error
	requests []LLMRequest
}

func (s *scriptedLLM) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return LLMResponse{}, s.err
	}
	return LLMResponse{Text: s.text}, nil
}

func TestLLMIntentExtractorPromptsWithLocalDate(t *testing.T) {
	llm := &scriptedLLM{text: `{"intent":"book","date":"2026-03-02","time":"14:00"}`}
	extractor := NewLLMIntentExtractor(llm, "")
	now := time.Date(2026, 2, 26, 10, 0, 0, 0, mustZone(t))

	got, err := extractor.Extract(context.Background(), "Book 2pm next Monday", "Brooklyn Smiles", now)
	require.NoError(t, err)
	assert.Equal(t, IntentBook, got.Intent)

	require.Len(t, llm.requests, 1)
	system := strings.Join(llm.requests[0].System, "\n")
	assert.Contains(t, system, "2026-02-26 (Thursday)")
	assert.Contains(t, system, "Brooklyn Smiles")
	assert.Equal(t, "Book 2pm next Monday", llm.requests[0].Messages[0].Content)
	assert.Equal(t, PurposeExtractIntent, llm.requests[0].Purpose)
}

func TestLLMIntentExtractorClientError(t *testing.T) {
	extractor := NewLLMIntentExtractor(&scriptedLLM{err: errors.New("throttled")}, "")
	got, err := extractor.Extract(context.Background(), "hi", "x", time.Now())
	require.ErrorIs(t, err, ErrExtraction)
	assert.Equal(t, IntentUnknown, got.Intent)
}

func TestLLMResponder(t *testing.T) {
	llm := &scriptedLLM{text: "  We open at 9.  "}
	responder := NewLLMResponder(llm, "")
	text, err := responder.Respond(context.Background(), "when do you open", testPractice())
	require.NoError(t, err)
	assert.Equal(t, "We open at 9.", text)
	assert.Contains(t, llm.requests[0].System[0], "Never diagnose")

	_, err = NewLLMResponder(&scriptedLLM{text: "   "}, "").Respond(context.Background(), "x", testPractice())
	require.Error(t, err)
}
