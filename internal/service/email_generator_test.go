package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ashuthecoder/cybervantage-api/internal/emailpool"
	"github.com/ashuthecoder/cybervantage-api/internal/models"
	"github.com/ashuthecoder/cybervantage-api/pkg/ai"
)

type scriptedProvider struct {
	mu        sync.Mutex
	responses []ai.Response
	errs      []error
	requests  []ai.Request
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Generate(_ context.Context, req ai.Request) (ai.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := len(p.requests)
	p.requests = append(p.requests, req)
	var err error
	if len(p.errs) > 0 {
		err = p.errs[min(idx, len(p.errs)-1)]
	}
	if err != nil {
		return ai.Response{}, err
	}
	if len(p.responses) == 0 {
		return ai.Response{}, nil
	}
	return p.responses[min(idx, len(p.responses)-1)], nil
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) bool { return false }

type memoryRecorder struct {
	mu      sync.Mutex
	entries []models.APIRequestLog
}

func (r *memoryRecorder) Record(_ context.Context, entry models.APIRequestLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func newTestGenerator(provider ai.Provider, governor *Governor, limiter RequestLimiter, recorder APIRecorder) EmailGenerator {
	rng := NewSeededRandomizer(3)
	return NewEmailGenerator(EmailGeneratorConfig{
		Provider:  provider,
		Templates: NewTemplateSource(emailpool.MustDefault(), rng),
		Governor:  governor,
		Limiter:   limiter,
		Recorder:  recorder,
		Random:    rng,
		Logger:    zerolog.Nop(),
	})
}

func TestEmailGeneratorUsesProviderDraft(t *testing.T) {
	provider := &scriptedProvider{responses: []ai.Response{{Text: sampleGenerated}}}
	generator := newTestGenerator(provider, NewGovernor(0, zerolog.Nop()), nil, nil)

	draft := generator.Generate(context.Background(), "alice", "3 of 5 correct")
	require.Equal(t, DraftSourceAI, draft.Source)
	require.Equal(t, "Payment declined", draft.Subject)
	require.True(t, draft.IsSpam)
	require.Contains(t, draft.Content, "<!-- gen_id:")
	require.Equal(t, 1, provider.calls())

	req := provider.requests[0]
	require.Equal(t, ai.OperationGenerateEmail, req.Operation)
	require.Equal(t, 1024, req.MaxTokens)
	require.InDelta(t, 0.7, req.Temperature, 0.0001)
	require.Contains(t, req.Prompt, "User name: alice")
	require.Contains(t, req.Prompt, "3 of 5 correct")
}

func TestEmailGeneratorOutageReturnsTemplate(t *testing.T) {
	provider := &scriptedProvider{errs: []error{errors.New("connection refused")}}
	generator := newTestGenerator(provider, NewGovernor(0, zerolog.Nop()), nil, nil)

	draft := generator.Generate(context.Background(), "alice", "")
	require.Equal(t, DraftSourceTemplate, draft.Source)
	require.NotEmpty(t, draft.Sender)
	require.NotEmpty(t, draft.Subject)
	require.NotEmpty(t, draft.Date)
	require.NotEmpty(t, draft.Content)
	require.GreaterOrEqual(t, provider.calls(), 4, "every approach is attempted")
}

func TestEmailGeneratorQuotaErrorEngagesGovernor(t *testing.T) {
	provider := &scriptedProvider{errs: []error{errors.New("gemini api error: status 429: quota exceeded")}}
	governor := NewGovernor(0, zerolog.Nop())
	generator := newTestGenerator(provider, governor, nil, nil)

	draft := generator.Generate(context.Background(), "alice", "")
	require.Equal(t, DraftSourceTemplate, draft.Source)
	require.Equal(t, 1, provider.calls())
	require.True(t, governor.ShouldFallback())

	generator.Generate(context.Background(), "alice", "")
	require.Equal(t, 1, provider.calls(), "governor short-circuits the next call")
}

func TestEmailGeneratorRespectsLimiter(t *testing.T) {
	provider := &scriptedProvider{responses: []ai.Response{{Text: sampleGenerated}}}
	recorder := &memoryRecorder{}
	generator := newTestGenerator(provider, NewGovernor(0, zerolog.Nop()), denyLimiter{}, recorder)

	draft := generator.Generate(context.Background(), "alice", "")
	require.Equal(t, DraftSourceTemplate, draft.Source)
	require.Zero(t, provider.calls())
	require.Len(t, recorder.entries, 1)
	require.True(t, recorder.entries[0].RateLimited)
	require.Equal(t, ai.OperationGenerateEmail, recorder.entries[0].Function)
}

func TestEmailGeneratorWithoutProvider(t *testing.T) {
	generator := newTestGenerator(nil, NewGovernor(0, zerolog.Nop()), nil, nil)
	draft := generator.Generate(context.Background(), "alice", "")
	require.Equal(t, DraftSourceTemplate, draft.Source)
}

func TestEmailGeneratorFallsThroughToLaterApproach(t *testing.T) {
	provider := &scriptedProvider{responses: []ai.Response{
		{Text: "I cannot help with that."},
		{Text: sampleGenerated},
	}}
	generator := newTestGenerator(provider, NewGovernor(0, zerolog.Nop()), nil, nil)

	draft := generator.Generate(context.Background(), "alice", "")
	require.Equal(t, DraftSourceAI, draft.Source)
	require.Equal(t, 2, provider.calls())
	require.Contains(t, provider.requests[1].Prompt, "educational purposes")
}
