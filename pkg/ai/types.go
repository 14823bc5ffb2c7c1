package ai

import (
	"context"
	"fmt"
)

// Operation names used for metrics, spans and the API request log.
const (
	OperationGenerateEmail       = "generate_email"
	OperationEvaluateExplanation = "evaluate_explanation"
)

// Request is a single prompt sent to a generative text provider.
type Request struct {
	Operation   string
	Prompt      string
	Temperature float32
	TopP        float32
	TopK        int
	MaxTokens   int
}

// Part is one text fragment of a generated answer.
type Part struct {
	Text string `json:"text"`
}

// Candidate mirrors the candidate envelope returned by Gemini-shaped APIs.
type Candidate struct {
	Content struct {
		Role  string `json:"role,omitempty"`
		Parts []Part `json:"parts"`
	} `json:"content"`
	FinishReason string `json:"finishReason,omitempty"`
}

// Response carries every shape a provider may answer with. Providers fill only the
// fields their wire format has; callers pull text out with an extractor chain.
type Response struct {
	Provider   string
	Model      string
	Text       string
	Parts      []Part
	Candidates []Candidate
	Content    string
	Raw        string
}

// Provider describes a generative text API.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (Response, error)
}

// APIError is returned when a provider answers with a non-success status.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s api error: status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s api error: status %d: %s", e.Provider, e.StatusCode, e.Message)
}
