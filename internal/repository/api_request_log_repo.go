package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ashuthecoder/cybervantage-api/internal/models"
)

// FunctionCount is the number of logged calls for one function name.
type FunctionCount struct {
	Function string
	Count    int64
}

// APIRequestLogRepository persists AI provider call records.
type APIRequestLogRepository interface {
	Create(ctx context.Context, entry *models.APIRequestLog) error
	Count(ctx context.Context) (int64, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
	CountErrors(ctx context.Context) (int64, error)
	CountRateLimited(ctx context.Context) (int64, error)
	CountByFunction(ctx context.Context) ([]FunctionCount, error)
	ListRecent(ctx context.Context, limit int) ([]models.APIRequestLog, error)
	ListRecentErrors(ctx context.Context, limit int) ([]models.APIRequestLog, error)
}

type apiRequestLogRepository struct {
	db *gorm.DB
}

// NewAPIRequestLogRepository constructs the repository implementation.
func NewAPIRequestLogRepository(db *gorm.DB) APIRequestLogRepository {
	return &apiRequestLogRepository{db: db}
}

func (r *apiRequestLogRepository) Create(ctx context.Context, entry *models.APIRequestLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *apiRequestLogRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.APIRequestLog{}).Count(&count).Error
	return count, err
}

func (r *apiRequestLogRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.APIRequestLog{}).Where("created_at >= ?", since).Count(&count).Error
	return count, err
}

func (r *apiRequestLogRepository) CountErrors(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.APIRequestLog{}).Where("success = ?", false).Count(&count).Error
	return count, err
}

func (r *apiRequestLogRepository) CountRateLimited(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.APIRequestLog{}).Where("rate_limited = ?", true).Count(&count).Error
	return count, err
}

func (r *apiRequestLogRepository) CountByFunction(ctx context.Context) ([]FunctionCount, error) {
	var rows []FunctionCount
	err := r.db.WithContext(ctx).
		Model(&models.APIRequestLog{}).
		Select("function, COUNT(*) AS count").
		Group("function").
		Order("function ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *apiRequestLogRepository) ListRecent(ctx context.Context, limit int) ([]models.APIRequestLog, error) {
	var entries []models.APIRequestLog
	err := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&entries).Error
	return entries, err
}

func (r *apiRequestLogRepository) ListRecentErrors(ctx context.Context, limit int) ([]models.APIRequestLog, error) {
	var entries []models.APIRequestLog
	err := r.db.WithContext(ctx).
		Where("success = ?", false).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
