package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ashuthecoder/cybervantage-api/internal/models"
)

// SimulationResponseRepository exposes persistence helpers for submitted verdicts.
type SimulationResponseRepository interface {
	Create(ctx context.Context, response *models.SimulationResponse) error
	ListByUser(ctx context.Context, userID uint) ([]models.SimulationResponse, error)
	ListBySimulation(ctx context.Context, userID uint, simulationID string) ([]models.SimulationResponse, error)
	LatestForEmail(ctx context.Context, userID, emailID uint) (models.SimulationResponse, error)
	CountByUser(ctx context.Context, userID uint) (int64, error)
	DeleteByUser(ctx context.Context, userID uint) (int64, error)
}

type simulationResponseRepository struct {
	db *gorm.DB
}

// NewSimulationResponseRepository constructs the repository implementation.
func NewSimulationResponseRepository(db *gorm.DB) SimulationResponseRepository {
	return &simulationResponseRepository{db: db}
}

func (r *simulationResponseRepository) Create(ctx context.Context, response *models.SimulationResponse) error {
	return r.db.WithContext(ctx).Create(response).Error
}

func (r *simulationResponseRepository) ListByUser(ctx context.Context, userID uint) ([]models.SimulationResponse, error) {
	var responses []models.SimulationResponse
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&responses).Error
	return responses, err
}

func (r *simulationResponseRepository) ListBySimulation(ctx context.Context, userID uint, simulationID string) ([]models.SimulationResponse, error) {
	var responses []models.SimulationResponse
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND simulation_id = ?", userID, simulationID).
		Order("created_at ASC, id ASC").
		Find(&responses).Error
	return responses, err
}

func (r *simulationResponseRepository) LatestForEmail(ctx context.Context, userID, emailID uint) (models.SimulationResponse, error) {
	var response models.SimulationResponse
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND email_id = ?", userID, emailID).
		Order("created_at DESC, id DESC").
		First(&response).Error
	if err != nil {
		return models.SimulationResponse{}, err
	}
	return response, nil
}

func (r *simulationResponseRepository) CountByUser(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.SimulationResponse{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (r *simulationResponseRepository) DeleteByUser(ctx context.Context, userID uint) (int64, error) {
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.SimulationResponse{})
	return result.RowsAffected, result.Error
}
