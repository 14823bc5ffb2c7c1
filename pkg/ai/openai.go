package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultAzureAPIVersion = "2023-05-15"
	defaultAzureDeployment = "gpt-4.1-nano"
	defaultOpenAIModel     = "gpt-4o-mini"
)

// OpenAIConfig configures the chat completion provider. Setting AzureEndpoint switches the
// client to Azure OpenAI, where Model names the deployment.
type OpenAIConfig struct {
	APIKey          string
	Model           string
	BaseURL         string
	AzureEndpoint   string
	AzureAPIVersion string
	Timeout         time.Duration
	HTTPClient      *http.Client
	Logger          zerolog.Logger
}

// OpenAIProvider implements Provider against the OpenAI or Azure OpenAI chat completion API.
type OpenAIProvider struct {
	client *openai.Client
	name   string
	model  string
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIProvider builds a provider using the provided configuration.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	var (
		clientConfig openai.ClientConfig
		name         = "openai"
		model        = strings.TrimSpace(cfg.Model)
	)

	if endpoint := strings.TrimSpace(cfg.AzureEndpoint); endpoint != "" {
		name = "azure"
		base, deployment := splitAzureEndpoint(endpoint)
		if model == "" {
			model = deployment
		}
		if model == "" {
			model = defaultAzureDeployment
		}
		clientConfig = openai.DefaultAzureConfig(cfg.APIKey, base)
		clientConfig.APIVersion = cfg.AzureAPIVersion
		if clientConfig.APIVersion == "" {
			clientConfig.APIVersion = defaultAzureAPIVersion
		}
		deploymentName := model
		clientConfig.AzureModelMapperFunc = func(string) string { return deploymentName }
	} else {
		if model == "" {
			model = defaultOpenAIModel
		}
		clientConfig = openai.DefaultConfig(cfg.APIKey)
		if base := strings.TrimSpace(cfg.BaseURL); base != "" {
			clientConfig.BaseURL = base
		}
	}

	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	} else {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		clientConfig.HTTPClient = &http.Client{Timeout: timeout}
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		name:   name,
		model:  model,
		tracer: otel.Tracer("github.com/ashuthecoder/cybervantage-api/pkg/ai/openai"),
		logger: cfg.Logger.With().Str("component", name+"_provider").Logger(),
	}, nil
}

// Name identifies the provider ("openai" or "azure").
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Generate sends the prompt as a single user message.
func (p *OpenAIProvider) Generate(parent context.Context, req Request) (Response, error) {
	ctx, span := p.tracer.Start(parent, p.name+".generate", trace.WithAttributes(
		attribute.String("model", p.model),
		attribute.String("operation", req.Operation),
		attribute.Int("prompt.length", len(req.Prompt)),
	))
	defer span.End()

	request := openai.ChatCompletionRequest{
		Model:       p.model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: req.Prompt,
			},
		},
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, request)
	aiDuration.WithLabelValues(p.name, p.model, req.Operation).Observe(time.Since(start).Seconds())
	if err != nil {
		aiFailures.WithLabelValues(p.name, p.model, req.Operation).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, fmt.Errorf("%s generate: %w", p.name, err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from %s", p.name)
		aiFailures.WithLabelValues(p.name, p.model, req.Operation).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, err
	}

	raw, _ := json.Marshal(resp)
	content := resp.Choices[0].Message.Content
	span.SetAttributes(attribute.Int("completion.tokens", resp.Usage.CompletionTokens))
	span.SetStatus(codes.Ok, "generated")

	return Response{
		Provider: p.name,
		Model:    p.model,
		Text:     content,
		Content:  content,
		Raw:      string(raw),
	}, nil
}

// splitAzureEndpoint accepts either a resource base URL or a full deployment URL such as
// https://x.openai.azure.com/openai/deployments/gpt-4o-mini/chat/completions?api-version=...
// and returns the base URL plus the deployment name when present.
func splitAzureEndpoint(endpoint string) (string, string) {
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" {
		return strings.TrimRight(endpoint, "/"), ""
	}

	deployment := ""
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	for i := 0; i+1 < len(segments); i++ {
		if segments[i] == "deployments" {
			deployment = segments[i+1]
			break
		}
	}

	return fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host), deployment
}
