package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ashuthecoder/cybervantage-api/internal/models"
)

// SimulationEmailRepository exposes persistence helpers for training emails.
type SimulationEmailRepository interface {
	UpsertPredefined(ctx context.Context, emails []models.SimulationEmail) error
	Create(ctx context.Context, email *models.SimulationEmail) error
	GetByID(ctx context.Context, id uint) (models.SimulationEmail, error)
	ListBySimulation(ctx context.Context, simulationID string) ([]models.SimulationEmail, error)
}

const simulationEmailsTable = "simulation_emails"

type simulationEmailRepository struct {
	db *gorm.DB
}

// NewSimulationEmailRepository constructs the repository implementation.
func NewSimulationEmailRepository(db *gorm.DB) SimulationEmailRepository {
	return &simulationEmailRepository{db: db}
}

// UpsertPredefined writes the predefined emails under their fixed ids. Re-running it leaves a
// single row per id. Explicit ids do not advance a Postgres serial sequence, so the sequence is
// moved past the highest id in the same transaction.
func (r *simulationEmailRepository) UpsertPredefined(ctx context.Context, emails []models.SimulationEmail) error {
	if len(emails) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"sender", "subject", "date", "content", "is_spam", "is_predefined"}),
		}).Create(&emails).Error
		if err != nil {
			return err
		}
		return syncIDSequence(tx, simulationEmailsTable)
	})
}

// syncIDSequence aligns the serial sequence of table.id with MAX(id). SQLite allocates
// max(rowid)+1 on its own and needs nothing.
func syncIDSequence(tx *gorm.DB, table string) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec(sequenceSyncSQL(table), table).Error
}

func sequenceSyncSQL(table string) string {
	return "SELECT setval(pg_get_serial_sequence(?, 'id'), GREATEST((SELECT COALESCE(MAX(id), 0) FROM " + table + "), 1))"
}

func (r *simulationEmailRepository) Create(ctx context.Context, email *models.SimulationEmail) error {
	return r.db.WithContext(ctx).Create(email).Error
}

func (r *simulationEmailRepository) GetByID(ctx context.Context, id uint) (models.SimulationEmail, error) {
	var email models.SimulationEmail
	if err := r.db.WithContext(ctx).First(&email, id).Error; err != nil {
		return models.SimulationEmail{}, err
	}
	return email, nil
}

func (r *simulationEmailRepository) ListBySimulation(ctx context.Context, simulationID string) ([]models.SimulationEmail, error) {
	var emails []models.SimulationEmail
	err := r.db.WithContext(ctx).
		Where("simulation_id = ? AND is_predefined = ?", simulationID, false).
		Order("id ASC").
		Find(&emails).Error
	return emails, err
}
