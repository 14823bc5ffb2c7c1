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

func TestGeminiProviderGenerate(t *testing.T) {
	var captured geminiGenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		require.Equal(t, "secret", r.URL.Query().Get("key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Sender: x@y.com"}]}}]}`))
	}))
	defer server.Close()

	provider, err := NewGeminiProvider(GeminiConfig{
		APIKey:  "secret",
		Model:   "models/gemini-test",
		BaseURL: server.URL,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)

	resp, err := provider.Generate(context.Background(), Request{
		Operation:   OperationGenerateEmail,
		Prompt:      "write an email",
		Temperature: 0.7,
		MaxTokens:   1024,
	})
	require.NoError(t, err)

	text, err := Extract(resp, GenerationChain())
	require.NoError(t, err)
	require.Equal(t, "Sender: x@y.com", text)

	require.Len(t, captured.SafetySettings, len(geminiSafetyCategories))
	for _, setting := range captured.SafetySettings {
		require.Equal(t, "BLOCK_NONE", setting.Threshold)
	}
	require.Equal(t, 1024, captured.GenerationConfig.MaxOutputTokens)
	require.Equal(t, "write an email", captured.Contents[0].Parts[0].Text)
}

func TestGeminiProviderFallsBackToNextModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "primary") {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"code":429,"message":"Resource has been exhausted (e.g. check quota)."}}`))
			return
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer server.Close()

	provider, err := NewGeminiProvider(GeminiConfig{
		APIKey:         "secret",
		Model:          "primary",
		FallbackModels: []string{"secondary"},
		BaseURL:        server.URL,
	})
	require.NoError(t, err)

	resp, err := provider.Generate(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	require.Equal(t, "secondary", resp.Model)
}

func TestGeminiProviderReturnsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded"}}`))
	}))
	defer server.Close()

	provider, err := NewGeminiProvider(GeminiConfig{APIKey: "secret", Model: "only", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = provider.Generate(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	require.Contains(t, err.Error(), "429")
	require.Contains(t, err.Error(), "quota")
}

func TestNewGeminiProviderRequiresKey(t *testing.T) {
	_, err := NewGeminiProvider(GeminiConfig{})
	require.Error(t, err)
}
