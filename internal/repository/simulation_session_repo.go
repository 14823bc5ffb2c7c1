package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ashuthecoder/cybervantage-api/internal/models"
)

// SimulationSessionRepository stores per-run summaries and lifecycle events.
type SimulationSessionRepository interface {
	Save(ctx context.Context, session *models.SimulationSession) error
	GetBySimulationID(ctx context.Context, simulationID string) (models.SimulationSession, error)
	ListByUser(ctx context.Context, userID uint) ([]models.SimulationSession, error)
	CreateEvent(ctx context.Context, event *models.SimulationEvent) error
	ListEvents(ctx context.Context, simulationID string) ([]models.SimulationEvent, error)
}

type simulationSessionRepository struct {
	db *gorm.DB
}

// NewSimulationSessionRepository constructs the repository implementation.
func NewSimulationSessionRepository(db *gorm.DB) SimulationSessionRepository {
	return &simulationSessionRepository{db: db}
}

var sessionProgressColumns = []string{
	"phase1_completed", "phase2_completed", "phase1_score", "phase2_score", "avg_phase2_score", "completed_at",
}

// Save updates a loaded session, or inserts it and merges into the row sharing its simulation id.
func (r *simulationSessionRepository) Save(ctx context.Context, session *models.SimulationSession) error {
	if session.ID != 0 {
		return r.db.WithContext(ctx).Model(session).Select(sessionProgressColumns).Updates(session).Error
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "simulation_id"}},
		DoUpdates: clause.AssignmentColumns(sessionProgressColumns),
	}).Create(session).Error
}

func (r *simulationSessionRepository) GetBySimulationID(ctx context.Context, simulationID string) (models.SimulationSession, error) {
	var session models.SimulationSession
	if err := r.db.WithContext(ctx).Where("simulation_id = ?", simulationID).First(&session).Error; err != nil {
		return models.SimulationSession{}, err
	}
	return session, nil
}

func (r *simulationSessionRepository) ListByUser(ctx context.Context, userID uint) ([]models.SimulationSession, error) {
	var sessions []models.SimulationSession
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("started_at DESC, id DESC").
		Find(&sessions).Error
	return sessions, err
}

func (r *simulationSessionRepository) CreateEvent(ctx context.Context, event *models.SimulationEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *simulationSessionRepository) ListEvents(ctx context.Context, simulationID string) ([]models.SimulationEvent, error) {
	var events []models.SimulationEvent
	err := r.db.WithContext(ctx).
		Where("simulation_id = ?", simulationID).
		Order("created_at ASC, id ASC").
		Find(&events).Error
	return events, err
}
