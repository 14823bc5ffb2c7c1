package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel   = "gemini-2.5-pro"
)

// Safety categories relaxed for simulated phishing content.
var geminiSafetyCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

// GeminiConfig configures the Gemini REST provider.
type GeminiConfig struct {
	APIKey         string
	Model          string
	FallbackModels []string
	BaseURL        string
	Timeout        time.Duration
	HTTPClient     *http.Client
	Logger         zerolog.Logger
}

// GeminiProvider calls the Google AI Studio generateContent endpoint.
type GeminiProvider struct {
	apiKey     string
	models     []string
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
	logger     zerolog.Logger
}

// NewGeminiProvider constructs a provider with the given configuration.
func NewGeminiProvider(cfg GeminiConfig) (*GeminiProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	model := normalizeModel(cfg.Model)
	if model == "" {
		model = defaultGeminiModel
	}
	models := []string{model}
	for _, fallback := range cfg.FallbackModels {
		if name := normalizeModel(fallback); name != "" && name != model {
			models = append(models, name)
		}
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &GeminiProvider{
		apiKey:     apiKey,
		models:     models,
		baseURL:    baseURL,
		httpClient: client,
		tracer:     otel.Tracer("github.com/ashuthecoder/cybervantage-api/pkg/ai/gemini"),
		logger:     cfg.Logger.With().Str("component", "gemini_provider").Logger(),
	}, nil
}

// Name identifies the provider.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Generate sends the prompt to each configured model in turn until one answers.
func (p *GeminiProvider) Generate(ctx context.Context, req Request) (Response, error) {
	var lastErr error
	for _, model := range p.models {
		resp, err := p.generateWithModel(ctx, model, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		p.logger.Warn().Err(err).Str("model", model).Str("operation", req.Operation).Msg("gemini model failed")
	}
	return Response{}, lastErr
}

func (p *GeminiProvider) generateWithModel(parent context.Context, model string, req Request) (Response, error) {
	ctx, span := p.tracer.Start(parent, "gemini.generate", trace.WithAttributes(
		attribute.String("model", model),
		attribute.String("operation", req.Operation),
		attribute.Int("prompt.length", len(req.Prompt)),
	))
	defer span.End()

	start := time.Now()
	resp, err := p.call(ctx, model, req)
	aiDuration.WithLabelValues(p.Name(), model, req.Operation).Observe(time.Since(start).Seconds())
	if err != nil {
		aiFailures.WithLabelValues(p.Name(), model, req.Operation).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, err
	}

	span.SetStatus(codes.Ok, "generated")
	return resp, nil
}

func (p *GeminiProvider) call(ctx context.Context, model string, req Request) (Response, error) {
	body := geminiGenerateRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []Part{{Text: req.Prompt}}},
		},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			TopK:            req.TopK,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	for _, category := range geminiSafetyCategories {
		body.SafetySettings = append(body.SafetySettings, geminiSafetySetting{Category: category, Threshold: "BLOCK_NONE"})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, err
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, model, url.QueryEscape(p.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("gemini request: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read gemini response: %w", err)
	}

	if httpResp.StatusCode >= http.StatusBadRequest {
		var errResp geminiErrorResponse
		_ = json.Unmarshal(raw, &errResp)
		message := errResp.Error.Message
		if message == "" {
			message = httpResp.Status
		}
		return Response{}, &APIError{Provider: p.Name(), StatusCode: httpResp.StatusCode, Message: message}
	}

	var decoded geminiGenerateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Response{}, fmt.Errorf("decode gemini response: %w", err)
	}
	if decoded.PromptFeedback.BlockReason != "" {
		return Response{}, fmt.Errorf("gemini blocked prompt: %s", decoded.PromptFeedback.BlockReason)
	}

	resp := Response{
		Provider:   p.Name(),
		Model:      model,
		Candidates: decoded.Candidates,
		Raw:        string(raw),
	}
	if len(decoded.Candidates) > 0 {
		resp.Parts = decoded.Candidates[0].Content.Parts
	}
	return resp, nil
}

func normalizeModel(model string) string {
	model = strings.TrimSpace(model)
	return strings.TrimPrefix(model, "models/")
}

type geminiContent struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiGenerationConfig struct {
	Temperature     float32 `json:"temperature"`
	TopP            float32 `json:"topP,omitempty"`
	TopK            int     `json:"topK,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiGenerateRequest struct {
	Contents         []geminiContent         `json:"contents"`
	SafetySettings   []geminiSafetySetting   `json:"safetySettings,omitempty"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerateResponse struct {
	Candidates     []Candidate `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
