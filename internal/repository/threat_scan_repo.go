package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ashuthecoder/cybervantage-api/internal/models"
)

// ThreatScanRepository stores threat-intelligence lookups.
type ThreatScanRepository interface {
	Create(ctx context.Context, scan *models.ThreatScan) error
	ListByUser(ctx context.Context, userID uint, limit int) ([]models.ThreatScan, error)
}

type threatScanRepository struct {
	db *gorm.DB
}

// NewThreatScanRepository constructs the repository implementation.
func NewThreatScanRepository(db *gorm.DB) ThreatScanRepository {
	return &threatScanRepository{db: db}
}

func (r *threatScanRepository) Create(ctx context.Context, scan *models.ThreatScan) error {
	return r.db.WithContext(ctx).Create(scan).Error
}

func (r *threatScanRepository) ListByUser(ctx context.Context, userID uint, limit int) ([]models.ThreatScan, error) {
	if limit <= 0 {
		limit = 100
	}
	var scans []models.ThreatScan
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&scans).Error
	return scans, err
}
