package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
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
	evaluationTemperature = 0.2
	evaluationTopP        = 0.8
	evaluationTopK        = 40
	evaluationMaxTokens   = 2048

	// DefaultGradeCacheTTL bounds how long identical submissions reuse a grade.
	DefaultGradeCacheTTL = 10 * time.Minute

	gradeCachePrefix          = "cybervantage:grade:"
	gradeCacheExplanationSize = 500
)

// Grade is the graded outcome of one phase-2 explanation.
type Grade struct {
	FeedbackHTML string `json:"feedback_html"`
	Score        int    `json:"score"`
	Source       string `json:"source"`
}

// GradeInput is the data an explanation is graded against.
type GradeInput struct {
	EmailContent string
	IsSpamActual bool
	UserResponse bool
	Explanation  string
}

// Correct reports whether the verdict matched the ground truth.
func (in GradeInput) Correct() bool {
	return in.IsSpamActual == in.UserResponse
}

// ExplanationGrader scores phase-2 explanations. Grade never fails: every error path ends in
// canned or baseline feedback.
type ExplanationGrader interface {
	Grade(ctx context.Context, input GradeInput) Grade
}

// ExplanationGraderConfig wires the grader collaborators. Provider, Cache, Limiter and Recorder
// are optional.
type ExplanationGraderConfig struct {
	Provider  ai.Provider
	Templates *TemplateSource
	Renderer  *FeedbackRenderer
	Governor  *Governor
	Limiter   RequestLimiter
	Recorder  APIRecorder
	Cache     *redis.Client
	CacheTTL  time.Duration
	Logger    zerolog.Logger
}

type explanationGrader struct {
	provider  ai.Provider
	templates *TemplateSource
	renderer  *FeedbackRenderer
	governor  *Governor
	limiter   RequestLimiter
	recorder  APIRecorder
	cache     *redis.Client
	cacheTTL  time.Duration
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewExplanationGrader builds the grader.
func NewExplanationGrader(cfg ExplanationGraderConfig) ExplanationGrader {
	renderer := cfg.Renderer
	if renderer == nil {
		renderer = NewFeedbackRenderer()
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultGradeCacheTTL
	}
	return &explanationGrader{
		provider:  cfg.Provider,
		templates: cfg.Templates,
		renderer:  renderer,
		governor:  cfg.Governor,
		limiter:   cfg.Limiter,
		recorder:  cfg.Recorder,
		cache:     cfg.Cache,
		cacheTTL:  ttl,
		logger:    cfg.Logger.With().Str("component", "explanation_grader").Logger(),
		tracer:    otel.Tracer("github.com/ashuthecoder/cybervantage-api/internal/service/grader"),
	}
}

func (g *explanationGrader) Grade(ctx context.Context, input GradeInput) Grade {
	ctx, span := g.tracer.Start(ctx, "explanation_grader.grade")
	defer span.End()

	grade := g.grade(ctx, input)
	span.SetAttributes(attribute.String("grader.source", grade.Source), attribute.Int("grader.score", grade.Score))
	span.SetStatus(codes.Ok, "graded")
	observability.ContentSource().WithLabelValues("feedback", grade.Source).Inc()
	return grade
}

func (g *explanationGrader) grade(ctx context.Context, input GradeInput) Grade {
	correct := input.Correct()
	prompt := evaluationPrompt(input.EmailContent, input.IsSpamActual, input.UserResponse, input.Explanation)

	if g.provider == nil || g.governor.ShouldFallback() {
		return g.fallback(correct)
	}

	key := GradeCacheKey(input)
	if cached, ok := g.cached(ctx, key); ok {
		cached.Source = models.FeedbackSourceCache
		return cached
	}
	if !allowAI(ctx, g.limiter, g.recorder, ai.OperationEvaluateExplanation, len(prompt)) {
		return g.fallback(correct)
	}

	grade, err := g.evaluate(ctx, prompt, correct)
	if err != nil {
		if g.governor.RecordFailure(err.Error()) {
			g.logger.Warn().Err(err).Msg("grading quota exhausted")
		} else {
			g.logger.Warn().Err(err).Msg("grading failed, serving baseline feedback")
		}
		return Grade{
			FeedbackHTML: BaselineFeedback(correct),
			Score:        BaselineScore(correct),
			Source:       models.FeedbackSourceBaseline,
		}
	}

	g.store(ctx, key, grade)
	return grade
}

func (g *explanationGrader) evaluate(ctx context.Context, prompt string, correct bool) (Grade, error) {
	resp, err := g.provider.Generate(ctx, ai.Request{
		Operation:   ai.OperationEvaluateExplanation,
		Prompt:      prompt,
		Temperature: evaluationTemperature,
		TopP:        evaluationTopP,
		TopK:        evaluationTopK,
		MaxTokens:   evaluationMaxTokens,
	})
	if err != nil {
		return Grade{}, err
	}
	text, err := ai.Extract(resp, ai.EvaluationChain())
	if err != nil {
		return Grade{}, err
	}

	feedback, err := g.renderer.Render(text)
	if err != nil {
		return Grade{}, err
	}
	if feedback == "" {
		return Grade{}, errors.New("evaluation rendered empty feedback")
	}
	return Grade{
		FeedbackHTML: feedback,
		Score:        ExtractScore(text, correct),
		Source:       models.FeedbackSourceAI,
	}, nil
}

func (g *explanationGrader) fallback(correct bool) Grade {
	feedback, score := g.templates.Feedback(correct)
	return Grade{FeedbackHTML: feedback, Score: score, Source: models.FeedbackSourceFallback}
}

func (g *explanationGrader) cached(ctx context.Context, key string) (Grade, bool) {
	if g.cache == nil {
		return Grade{}, false
	}
	raw, err := g.cache.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			g.logger.Warn().Err(err).Msg("failed to read grade cache")
		}
		return Grade{}, false
	}
	var grade Grade
	if err := json.Unmarshal([]byte(raw), &grade); err != nil {
		return Grade{}, false
	}
	g.logger.Debug().Str("key", key).Msg("grade cache hit")
	return grade, true
}

func (g *explanationGrader) store(ctx context.Context, key string, grade Grade) {
	if g.cache == nil {
		return
	}
	payload, err := json.Marshal(grade)
	if err != nil {
		return
	}
	if err := g.cache.Set(ctx, key, payload, g.cacheTTL).Err(); err != nil {
		g.logger.Warn().Err(err).Msg("failed to store grade cache")
	}
}

// GradeCacheKey derives the cache key from the verdict, ground truth, the first 500 explanation
// characters and the email content.
func GradeCacheKey(input GradeInput) string {
	explanation := []rune(input.Explanation)
	if len(explanation) > gradeCacheExplanationSize {
		explanation = explanation[:gradeCacheExplanationSize]
	}
	sum := md5.Sum([]byte(fmt.Sprintf("%t|%t|%s|%s", input.UserResponse, input.IsSpamActual, string(explanation), input.EmailContent)))
	return gradeCachePrefix + hex.EncodeToString(sum[:])[:16]
}
