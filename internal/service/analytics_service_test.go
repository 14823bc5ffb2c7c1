package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ashuthecoder/cybervantage-api/internal/models"
	"github.com/ashuthecoder/cybervantage-api/internal/repository"
)

func intPtr(v int) *int { return &v }

func TestGroupAttempts(t *testing.T) {
	base := time.Date(2026, time.October, 1, 9, 0, 0, 0, time.UTC)
	responses := []models.SimulationResponse{
		{EmailID: 1, IsSpamActual: true, UserResponse: true, CreatedAt: base},
		{EmailID: 2, IsSpamActual: false, UserResponse: true, CreatedAt: base.Add(time.Minute)},
		{EmailID: 1, IsSpamActual: true, UserResponse: true, CreatedAt: base.Add(10 * time.Minute)},
		{EmailID: 3, IsSpamActual: false, UserResponse: false, CreatedAt: base.Add(5 * time.Hour)},
	}

	attempts := GroupAttempts(responses)
	require.Len(t, attempts, 3)

	newest := attempts[0]
	require.Equal(t, 1, newest.Responses)
	require.InDelta(t, 100, newest.Accuracy, 0.001)

	oldest := attempts[2]
	require.Equal(t, 2, oldest.Responses)
	require.Equal(t, 1, oldest.Correct)
	require.Equal(t, base, oldest.StartedAt)
	require.Equal(t, base.Add(time.Minute), oldest.EndedAt)

	require.Empty(t, GroupAttempts(nil))
}

func TestAnalyticsPerformance(t *testing.T) {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:analytics_%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.SimulationResponse{}, &models.SimulationSession{}))

	rows := []models.SimulationResponse{
		{UserID: 1, EmailID: 1, IsSpamActual: true, UserResponse: true},
		{UserID: 1, EmailID: 2, IsSpamActual: false, UserResponse: true},
		{UserID: 1, EmailID: 3, IsSpamActual: true, UserResponse: false},
		{UserID: 1, EmailID: 9, IsSpamActual: true, UserResponse: true, Score: intPtr(9)},
		{UserID: 1, EmailID: 10, IsSpamActual: false, UserResponse: false, Score: intPtr(7)},
		{UserID: 2, EmailID: 1, IsSpamActual: true, UserResponse: false},
	}
	require.NoError(t, db.Create(&rows).Error)

	completed := time.Now()
	avg := 8.0
	require.NoError(t, db.Create(&models.SimulationSession{
		UserID: 1, SimulationID: "run-1", Phase1Completed: true, Phase2Completed: true,
		Phase1Score: intPtr(4), Phase2Score: intPtr(5), AvgPhase2Score: &avg,
		StartedAt: completed.Add(-time.Hour), CompletedAt: &completed,
	}).Error)

	svc := NewAnalyticsService(repository.NewSimulationResponseRepository(db), repository.NewSimulationSessionRepository(db), zerolog.Nop())
	report, err := svc.Performance(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 5, report.TotalResponses)
	require.Equal(t, 3, report.CorrectResponses)
	require.Equal(t, 1, report.FalsePositives)
	require.Equal(t, 1, report.FalseNegatives)
	require.InDelta(t, 60, report.Accuracy, 0.001)
	require.Equal(t, 2, report.ScoredResponses)
	require.InDelta(t, 8, *report.AvgAIScore, 0.001)
	require.Equal(t, 4, *report.Phase1Score)

	history, err := svc.History(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, history.TotalSessions)
	require.Equal(t, "run-1", history.Sessions[0].SimulationID)
	require.NotEmpty(t, history.Attempts)
}
