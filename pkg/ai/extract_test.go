package ai

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractPrefersTextAccessor(t *testing.T) {
	resp := Response{
		Text:  "from text",
		Parts: []Part{{Text: "from parts"}},
	}

	text, err := Extract(resp, GenerationChain())
	require.NoError(t, err)
	require.Equal(t, "from text", text)
}

func TestExtractFallsThroughEmptyAccessors(t *testing.T) {
	candidate := Candidate{}
	candidate.Content.Parts = []Part{{Text: "  from candidate  "}}
	resp := Response{
		Text:       "   ",
		Parts:      []Part{{Text: ""}},
		Candidates: []Candidate{candidate},
	}

	text, err := Extract(resp, GenerationChain())
	require.NoError(t, err)
	require.Equal(t, "from candidate", text)
}

func TestExtractGenerationUsesPlainRawString(t *testing.T) {
	text, err := Extract(Response{Raw: "Sender: a@b.com"}, GenerationChain())
	require.NoError(t, err)
	require.Equal(t, "Sender: a@b.com", text)

	_, err = Extract(Response{Raw: `{"unexpected": true}`}, GenerationChain())
	require.ErrorIs(t, err, ErrNoText)
}

func TestExtractEvaluationScansJSON(t *testing.T) {
	resp := Response{Raw: `noise before {"candidates":[{"content":{"parts":[{"text":"## 1. Verdict"}]}}]} trailing`}

	text, err := Extract(resp, EvaluationChain())
	require.NoError(t, err)
	require.Equal(t, "## 1. Verdict", text)
}

func TestExtractEvaluationPrefersKnownKeys(t *testing.T) {
	resp := Response{Raw: `{"meta":{"text":"nested"},"output":"top level"}`}

	text, err := Extract(resp, EvaluationChain())
	require.NoError(t, err)
	require.Equal(t, "top level", text)
}

func TestExtractEvaluationVerbatimNeedsLength(t *testing.T) {
	_, err := Extract(Response{Raw: "too short"}, EvaluationChain())
	require.ErrorIs(t, err, ErrNoText)

	long := "The user correctly spotted the lookalike domain in the sender."
	text, err := Extract(Response{Raw: long}, EvaluationChain())
	require.NoError(t, err)
	require.Equal(t, long, text)
}

func TestExtractEvaluationContentField(t *testing.T) {
	text, err := Extract(Response{Content: "chat content"}, EvaluationChain())
	require.NoError(t, err)
	require.Equal(t, "chat content", text)
}
