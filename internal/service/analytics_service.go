package service

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ashuthecoder/cybervantage-api/internal/dto"
	"github.com/ashuthecoder/cybervantage-api/internal/models"
	"github.com/ashuthecoder/cybervantage-api/internal/repository"
)

// attemptGap separates two sittings in the response history.
const attemptGap = 2 * time.Hour

// AnalyticsService summarises a trainee's recorded verdicts and runs.
type AnalyticsService interface {
	Performance(ctx context.Context, userID uint) (dto.PerformanceResponse, error)
	History(ctx context.Context, userID uint) (dto.HistoryResponse, error)
}

type analyticsService struct {
	responses repository.SimulationResponseRepository
	sessions  repository.SimulationSessionRepository
	logger    zerolog.Logger
}

// NewAnalyticsService constructs the analytics service.
func NewAnalyticsService(responses repository.SimulationResponseRepository, sessions repository.SimulationSessionRepository, logger zerolog.Logger) AnalyticsService {
	return &analyticsService{
		responses: responses,
		sessions:  sessions,
		logger:    logger.With().Str("component", "analytics_service").Logger(),
	}
}

func (s *analyticsService) Performance(ctx context.Context, userID uint) (dto.PerformanceResponse, error) {
	responses, err := s.responses.ListByUser(ctx, userID)
	if err != nil {
		return dto.PerformanceResponse{}, err
	}

	var report dto.PerformanceResponse
	scoreTotal := 0
	for _, response := range responses {
		report.TotalResponses++
		switch {
		case response.Correct():
			report.CorrectResponses++
		case response.UserResponse:
			report.FalsePositives++
		default:
			report.FalseNegatives++
		}
		if response.Score != nil {
			report.ScoredResponses++
			scoreTotal += *response.Score
		}
	}
	if report.TotalResponses > 0 {
		report.Accuracy = float64(report.CorrectResponses) / float64(report.TotalResponses) * 100
	}
	if report.ScoredResponses > 0 {
		avg := float64(scoreTotal) / float64(report.ScoredResponses)
		report.AvgAIScore = &avg
	}

	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return dto.PerformanceResponse{}, err
	}
	for _, session := range sessions {
		if session.CompletedAt == nil {
			continue
		}
		report.Phase1Score = session.Phase1Score
		report.Phase2Score = session.Phase2Score
		report.LatestAvgScore = session.AvgPhase2Score
		break
	}
	return report, nil
}

func (s *analyticsService) History(ctx context.Context, userID uint) (dto.HistoryResponse, error) {
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return dto.HistoryResponse{}, err
	}
	responses, err := s.responses.ListByUser(ctx, userID)
	if err != nil {
		return dto.HistoryResponse{}, err
	}

	history := dto.HistoryResponse{
		Sessions:      make([]dto.SessionSummary, 0, len(sessions)),
		TotalSessions: len(sessions),
		Attempts:      GroupAttempts(responses),
	}
	for _, session := range sessions {
		history.Sessions = append(history.Sessions, dto.SessionSummary{
			SimulationID:    session.SimulationID,
			Phase1Completed: session.Phase1Completed,
			Phase2Completed: session.Phase2Completed,
			Phase1Score:     session.Phase1Score,
			Phase2Score:     session.Phase2Score,
			AvgPhase2Score:  session.AvgPhase2Score,
			StartedAt:       session.StartedAt,
			CompletedAt:     session.CompletedAt,
		})
	}
	return history, nil
}

// GroupAttempts splits responses into sittings. A new sitting starts after a two hour gap or when
// the first predefined email is answered again. Results are newest first.
func GroupAttempts(responses []models.SimulationResponse) []dto.AttemptSummary {
	ordered := append([]models.SimulationResponse(nil), responses...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	attempts := []dto.AttemptSummary{}
	var current *dto.AttemptSummary
	for _, response := range ordered {
		if current == nil || response.CreatedAt.Sub(current.EndedAt) > attemptGap || response.EmailID == 1 {
			attempts = append(attempts, dto.AttemptSummary{StartedAt: response.CreatedAt})
			current = &attempts[len(attempts)-1]
		}
		current.EndedAt = response.CreatedAt
		current.Responses++
		if response.Correct() {
			current.Correct++
		}
	}

	for i := range attempts {
		attempts[i].Accuracy = float64(attempts[i].Correct) / float64(attempts[i].Responses) * 100
	}
	for i, j := 0, len(attempts)-1; i < j; i, j = i+1, j-1 {
		attempts[i], attempts[j] = attempts[j], attempts[i]
	}
	return attempts
}
