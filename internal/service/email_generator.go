package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashuthecoder/cybervantage-api/internal/models"
	"github.com/ashuthecoder/cybervantage-api/internal/observability"
	"github.com/ashuthecoder/cybervantage-api/pkg/ai"
)

const (
	generationTemperature = 0.7
	generationTopP        = 0.95
	generationTopK        = 40
	generationMaxTokens   = 1024

	aiLimiterKey = "ai"
)

var (
	// ErrAILimited is returned internally when the AI request limiter denies a call.
	ErrAILimited = errors.New("ai request limit reached")
	// ErrNoAIProvider is returned internally when no provider is configured.
	ErrNoAIProvider = errors.New("no ai provider configured")
)

var (
	companyNames = []string{"acme", "globex", "initech", "umbrella", "stark", "wayne", "cyberdyne", "aperture"}
	companyTLDs  = []string{"com", "org", "net", "io", "tech"}

	phishingSubjects = []string{
		"URGENT: Your account needs verification",
		"Important security update required",
		"Your payment was declined",
		"Invoice #12345 - Immediate action required",
		"Your account has been limited",
	}
	legitimateSubjects = []string{
		"Your monthly newsletter",
		"Meeting summary",
		"Thank you for your purchase",
		"Your receipt from recent transaction",
		"Product update information",
	}
)

// RequestLimiter bounds how often the AI providers are called.
type RequestLimiter interface {
	Allow(ctx context.Context, key string) bool
}

// EmailGenerator produces phase-2 training emails. Generate never fails: every error path ends
// in a template draft.
type EmailGenerator interface {
	Generate(ctx context.Context, userName, performanceSummary string) EmailDraft
}

// EmailGeneratorConfig wires the generator collaborators. Provider, Limiter and Recorder are
// optional.
type EmailGeneratorConfig struct {
	Provider  ai.Provider
	Templates *TemplateSource
	Governor  *Governor
	Limiter   RequestLimiter
	Recorder  APIRecorder
	Random    Randomizer
	Logger    zerolog.Logger
}

type generationApproach struct {
	name string
	run  func(ctx context.Context, userName, summary string) (EmailDraft, error)
}

type emailGenerator struct {
	provider  ai.Provider
	parser    *EmailParser
	templates *TemplateSource
	governor  *Governor
	limiter   RequestLimiter
	recorder  APIRecorder
	rng       Randomizer
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewEmailGenerator builds the generator.
func NewEmailGenerator(cfg EmailGeneratorConfig) EmailGenerator {
	rng := cfg.Random
	if rng == nil {
		rng = NewRandomizer()
	}
	sanitizer := bluemonday.UGCPolicy()
	parser := NewEmailParser(rng)
	parser.Sanitize = sanitizer.Sanitize

	return &emailGenerator{
		provider:  cfg.Provider,
		parser:    parser,
		templates: cfg.Templates,
		governor:  cfg.Governor,
		limiter:   cfg.Limiter,
		recorder:  cfg.Recorder,
		rng:       rng,
		sanitizer: sanitizer,
		logger:    cfg.Logger.With().Str("component", "email_generator").Logger(),
		tracer:    otel.Tracer("github.com/ashuthecoder/cybervantage-api/internal/service/generator"),
		now:       time.Now,
	}
}

func (g *emailGenerator) Generate(ctx context.Context, userName, performanceSummary string) EmailDraft {
	ctx, span := g.tracer.Start(ctx, "email_generator.generate")
	defer span.End()

	draft, approach, err := g.generateWithAI(ctx, userName, performanceSummary)
	if err == nil {
		span.SetAttributes(attribute.String("generator.approach", approach), attribute.String("generator.source", DraftSourceAI))
		span.SetStatus(codes.Ok, "generated")
		observability.ContentSource().WithLabelValues("email", DraftSourceAI).Inc()
		return draft
	}

	span.RecordError(err)
	span.SetAttributes(attribute.String("generator.source", DraftSourceTemplate))
	g.logger.Info().Err(err).Msg("serving template email")
	observability.ContentSource().WithLabelValues("email", DraftSourceTemplate).Inc()
	return g.templates.Draft()
}

func (g *emailGenerator) generateWithAI(ctx context.Context, userName, summary string) (EmailDraft, string, error) {
	if g.provider == nil {
		return EmailDraft{}, "", ErrNoAIProvider
	}
	if g.governor.ShouldFallback() {
		return EmailDraft{}, "", errors.New("ai fallback engaged after quota failure")
	}

	approaches := []generationApproach{
		{name: "standard", run: g.standard},
		{name: "neutral", run: g.neutral},
		{name: "structured", run: g.structured},
		{name: "basic", run: g.basic},
	}

	var failures []error
	for _, approach := range approaches {
		draft, err := approach.run(ctx, userName, summary)
		if err == nil && draft.Valid() {
			g.logger.Debug().Str("approach", approach.name).Msg("generated email")
			return draft, approach.name, nil
		}
		if err == nil {
			err = errors.New("draft content too short")
		}
		failures = append(failures, fmt.Errorf("%s: %w", approach.name, err))
		g.logger.Debug().Err(err).Str("approach", approach.name).Msg("generation approach failed")

		if errors.Is(err, ErrAILimited) || g.governor.RecordFailure(err.Error()) || ctx.Err() != nil {
			break
		}
	}
	return EmailDraft{}, "", errors.Join(failures...)
}

// complete sends one prompt through the limiter and returns the extracted text.
func (g *emailGenerator) complete(ctx context.Context, prompt string) (string, error) {
	if !allowAI(ctx, g.limiter, g.recorder, ai.OperationGenerateEmail, len(prompt)) {
		return "", ErrAILimited
	}

	resp, err := g.provider.Generate(ctx, ai.Request{
		Operation:   ai.OperationGenerateEmail,
		Prompt:      prompt,
		Temperature: generationTemperature,
		TopP:        generationTopP,
		TopK:        generationTopK,
		MaxTokens:   generationMaxTokens,
	})
	if err != nil {
		return "", err
	}
	return ai.Extract(resp, ai.GenerationChain())
}

func (g *emailGenerator) today() string {
	return g.now().Format(DisplayDateLayout)
}

func (g *emailGenerator) standard(ctx context.Context, userName, summary string) (EmailDraft, error) {
	text, err := g.complete(ctx, standardPrompt(userName, summary, g.today()))
	if err != nil {
		return EmailDraft{}, err
	}
	return g.parser.Parse(text)
}

func (g *emailGenerator) neutral(ctx context.Context, _, _ string) (EmailDraft, error) {
	text, err := g.complete(ctx, neutralPrompt(g.today()))
	if err != nil {
		return EmailDraft{}, err
	}
	return g.parser.Parse(text)
}

func (g *emailGenerator) structured(ctx context.Context, _, _ string) (EmailDraft, error) {
	tone := "personal"
	if g.rng.Float64() > 0.5 {
		tone = "business-related"
	}
	header, err := g.complete(ctx, fmt.Sprintf(structuredHeaderPrompt, tone))
	if err != nil {
		return EmailDraft{}, err
	}
	sender, subject := ParseSenderSubject(header)

	isSpam := g.rng.IntN(2) == 1
	style := "legitimate and professional"
	if isSpam {
		style = "suspicious with subtle red flags"
	}
	body, err := g.complete(ctx, fmt.Sprintf(structuredBodyPrompt, style))
	if err != nil {
		return EmailDraft{}, err
	}

	body = strings.TrimSpace(g.sanitizer.Sanitize(body))
	if body == "" {
		body = "<p>Hello,</p><p>This is an important message. Please review the attached information.</p><p>Regards,<br>The Team</p>"
	}
	return EmailDraft{
		Sender:  g.parser.MutateSenderDomain(sender),
		Subject: subject,
		Date:    g.today(),
		Content: StampGenID("<html><body>"+WrapParagraphs(body)+"</body></html>", g.now()),
		IsSpam:  isSpam,
		Source:  DraftSourceAI,
	}, nil
}

func (g *emailGenerator) basic(ctx context.Context, _, _ string) (EmailDraft, error) {
	isSpam := g.rng.IntN(2) == 1
	kind := "normal business"
	subjects := legitimateSubjects
	if isSpam {
		kind = "suspicious"
		subjects = phishingSubjects
	}
	text, err := g.complete(ctx, fmt.Sprintf("Write a short %s email from a company to a customer.", kind))
	if err != nil {
		return EmailDraft{}, err
	}
	text = strings.TrimSpace(g.sanitizer.Sanitize(text))
	if text == "" {
		return EmailDraft{}, ErrEmptyBody
	}

	domain := fmt.Sprintf("%s%d.%s", pick(g.rng, companyNames), between(g.rng, 1, 999), pick(g.rng, companyTLDs))
	content := "<html><body><p>" + strings.ReplaceAll(text, ". ", ".</p><p>") + "</p></body></html>"
	return EmailDraft{
		Sender:  "service@" + domain,
		Subject: pick(g.rng, subjects),
		Date:    g.today(),
		Content: StampGenID(content, g.now()),
		IsSpam:  isSpam,
		Source:  DraftSourceAI,
	}, nil
}

// allowAI consults the limiter and records denied calls in the API request log.
func allowAI(ctx context.Context, limiter RequestLimiter, recorder APIRecorder, operation string, promptLength int) bool {
	if limiter == nil || limiter.Allow(ctx, aiLimiterKey) {
		return true
	}
	observability.AILimiterRejections().WithLabelValues(operation).Inc()
	if recorder != nil {
		recorder.Record(ctx, models.APIRequestLog{
			Function:     operation,
			PromptLength: promptLength,
			Error:        ErrAILimited.Error(),
			RateLimited:  true,
		})
	}
	return false
}
