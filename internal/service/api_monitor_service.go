package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ashuthecoder/cybervantage-api/internal/dto"
	"github.com/ashuthecoder/cybervantage-api/internal/models"
	"github.com/ashuthecoder/cybervantage-api/internal/repository"
	"github.com/ashuthecoder/cybervantage-api/pkg/ai"
)

const (
	monitorRecentLimit = 100
	monitorErrorLimit  = 10
)

// APIRecorder stores one provider call record.
type APIRecorder interface {
	Record(ctx context.Context, entry models.APIRequestLog)
}

// APIMonitorService records AI provider calls and summarises them for administrators.
type APIMonitorService interface {
	APIRecorder
	Wrap(provider ai.Provider) ai.Provider
	Snapshot(ctx context.Context) (dto.APIMonitorSnapshot, error)
}

type apiMonitorService struct {
	repo       repository.APIRequestLogRepository
	governor   *Governor
	limitPerMn int
	logger     zerolog.Logger
	now        func() time.Time
	providers  string
}

// NewAPIMonitorService builds the monitor. limitPerMinute is reported in snapshots only.
func NewAPIMonitorService(repo repository.APIRequestLogRepository, governor *Governor, limitPerMinute int, logger zerolog.Logger) APIMonitorService {
	return &apiMonitorService{
		repo:       repo,
		governor:   governor,
		limitPerMn: limitPerMinute,
		logger:     logger.With().Str("component", "api_monitor_service").Logger(),
		now:        time.Now,
	}
}

func (s *apiMonitorService) Record(ctx context.Context, entry models.APIRequestLog) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	if err := s.repo.Create(context.WithoutCancel(ctx), &entry); err != nil {
		s.logger.Warn().Err(err).Str("function", entry.Function).Msg("failed to store api request log")
	}
}

// Wrap returns a provider that records every call made through it.
func (s *apiMonitorService) Wrap(provider ai.Provider) ai.Provider {
	if provider == nil {
		return nil
	}
	s.providers = provider.Name()
	return &recordingProvider{next: provider, recorder: s, now: s.now}
}

func (s *apiMonitorService) Snapshot(ctx context.Context) (dto.APIMonitorSnapshot, error) {
	now := s.now()
	snapshot := dto.APIMonitorSnapshot{
		ByFunction:     map[string]int64{},
		RequestsPerMin: s.limitPerMn,
		Providers:      s.providers,
		GeneratedAt:    now,
	}

	var err error
	if snapshot.TotalCalls, err = s.repo.Count(ctx); err != nil {
		return dto.APIMonitorSnapshot{}, err
	}
	if snapshot.CallsLastHour, err = s.repo.CountSince(ctx, now.Add(-time.Hour)); err != nil {
		return dto.APIMonitorSnapshot{}, err
	}
	if snapshot.FailedCalls, err = s.repo.CountErrors(ctx); err != nil {
		return dto.APIMonitorSnapshot{}, err
	}
	if snapshot.RateLimitedCalls, err = s.repo.CountRateLimited(ctx); err != nil {
		return dto.APIMonitorSnapshot{}, err
	}
	if snapshot.TotalCalls > 0 {
		snapshot.SuccessRate = float64(snapshot.TotalCalls-snapshot.FailedCalls) / float64(snapshot.TotalCalls) * 100
	}

	counts, err := s.repo.CountByFunction(ctx)
	if err != nil {
		return dto.APIMonitorSnapshot{}, err
	}
	for _, row := range counts {
		snapshot.ByFunction[row.Function] = row.Count
	}

	recent, err := s.repo.ListRecent(ctx, monitorRecentLimit)
	if err != nil {
		return dto.APIMonitorSnapshot{}, err
	}
	snapshot.Recent = toAPICallEntries(recent)

	failures, err := s.repo.ListRecentErrors(ctx, monitorErrorLimit)
	if err != nil {
		return dto.APIMonitorSnapshot{}, err
	}
	snapshot.RecentErrors = toAPICallEntries(failures)

	limited, since, cooldown := s.governor.Status()
	snapshot.Governor = dto.GovernorStatus{
		FallbackActive:  limited,
		CooldownSeconds: int(cooldown.Seconds()),
	}
	if !since.IsZero() {
		snapshot.Governor.Since = &since
	}
	if limited {
		snapshot.Governor.RemainingSecs = int((cooldown - now.Sub(since)).Seconds())
	}

	return snapshot, nil
}

func toAPICallEntries(items []models.APIRequestLog) []dto.APICallEntry {
	entries := make([]dto.APICallEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, dto.APICallEntry{
			ID:             item.ID,
			Function:       item.Function,
			Provider:       item.Provider,
			PromptLength:   item.PromptLength,
			Success:        item.Success,
			ResponseLength: item.ResponseLength,
			Error:          item.Error,
			RateLimited:    item.RateLimited,
			DurationMs:     item.DurationMs,
			CreatedAt:      item.CreatedAt,
		})
	}
	return entries
}

type recordingProvider struct {
	next     ai.Provider
	recorder APIRecorder
	now      func() time.Time
}

func (p *recordingProvider) Name() string { return p.next.Name() }

func (p *recordingProvider) Generate(ctx context.Context, req ai.Request) (ai.Response, error) {
	start := p.now()
	resp, err := p.next.Generate(ctx, req)

	entry := models.APIRequestLog{
		Function:     req.Operation,
		Provider:     p.next.Name(),
		PromptLength: len(req.Prompt),
		Success:      err == nil,
		DurationMs:   p.now().Sub(start).Milliseconds(),
	}
	if resp.Provider != "" {
		entry.Provider = resp.Provider
	}
	if err != nil {
		entry.Error = truncate(err.Error(), 1000)
		entry.RateLimited = IsQuotaError(err.Error())
	} else {
		entry.ResponseLength = len(resp.Raw)
		if entry.ResponseLength == 0 {
			entry.ResponseLength = len(resp.Text)
		}
	}
	p.recorder.Record(ctx, entry)
	return resp, err
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
