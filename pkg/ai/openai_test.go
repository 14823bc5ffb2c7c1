package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const chatCompletionBody = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"model": "gpt-4o-mini",
	"choices": [{"index": 0, "message": {"role": "assistant", "content": "SCORE: 8"}, "finish_reason": "stop"}],
	"usage": {"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13}
}`

func TestOpenAIProviderGenerate(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatCompletionBody))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL + "/v1", Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.Equal(t, "openai", provider.Name())

	resp, err := provider.Generate(context.Background(), Request{Operation: "evaluate_explanation", Prompt: "grade this"})
	require.NoError(t, err)
	require.Equal(t, "SCORE: 8", resp.Text)
	require.Equal(t, "openai", resp.Provider)
	require.Contains(t, resp.Raw, "chatcmpl-1")
	require.Equal(t, defaultOpenAIModel, captured["model"])
}

func TestOpenAIProviderAzureDeployment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasPrefix(r.URL.Path, "/openai/deployments/phish-gpt/chat/completions"), r.URL.Path)
		require.Equal(t, "azure-key", r.Header.Get("api-key"))
		require.NotEmpty(t, r.URL.Query().Get("api-version"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatCompletionBody))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(OpenAIConfig{
		APIKey:        "azure-key",
		AzureEndpoint: server.URL + "/openai/deployments/phish-gpt/chat/completions?api-version=2024-02-15-preview",
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)
	require.Equal(t, "azure", provider.Name())

	resp, err := provider.Generate(context.Background(), Request{Operation: "generate_email", Prompt: "write"})
	require.NoError(t, err)
	require.Equal(t, "azure", resp.Provider)
	require.Equal(t, "phish-gpt", resp.Model)
}

func TestOpenAIProviderErrors(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{})
	require.Error(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: server.URL, Logger: zerolog.Nop()})
	require.NoError(t, err)
	_, err = provider.Generate(context.Background(), Request{Operation: "generate_email", Prompt: "x"})
	require.Error(t, err)
	require.Contains(t, strings.ToLower(err.Error()), "rate limit")
}

func TestSplitAzureEndpoint(t *testing.T) {
	cases := []struct {
		name       string
		endpoint   string
		base       string
		deployment string
	}{
		{"full deployment url", "https://res.openai.azure.com/openai/deployments/gpt-4o/chat/completions?api-version=x", "https://res.openai.azure.com", "gpt-4o"},
		{"resource base", "https://res.openai.azure.com/", "https://res.openai.azure.com", ""},
		{"no scheme", "res.openai.azure.com/", "res.openai.azure.com", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			base, deployment := splitAzureEndpoint(tc.endpoint)
			require.Equal(t, tc.base, base)
			require.Equal(t, tc.deployment, deployment)
		})
	}
}
