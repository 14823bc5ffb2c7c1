package database

import (
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ashuthecoder/cybervantage-api/internal/models"
)

// ColumnPatch is a column that must exist on a table created by an older release.
type ColumnPatch struct {
	Table  string
	Column string
	Type   string
}

// SchemaPatches lists the additive column changes applied to pre-existing tables.
var SchemaPatches = []ColumnPatch{
	{Table: "simulation_emails", Column: "simulation_id", Type: "TEXT"},
	{Table: "simulation_responses", Column: "simulation_id", Type: "TEXT"},
	{Table: "simulation_responses", Column: "feedback_source", Type: "VARCHAR(16)"},
	{Table: "users", Column: "reset_token", Type: "VARCHAR(64)"},
	{Table: "users", Column: "reset_token_expires_at", Type: "TIMESTAMP"},
}

// Models returns every persisted entity in migration order.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.SimulationEmail{},
		&models.SimulationResponse{},
		&models.SimulationSession{},
		&models.SimulationEvent{},
		&models.APIRequestLog{},
		&models.ThreatScan{},
	}
}

// Migrate patches legacy tables and then auto-migrates all models.
func Migrate(db *gorm.DB, logger zerolog.Logger) error {
	if _, err := PatchSchema(db, SchemaPatches, logger); err != nil {
		return err
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// PatchSchema adds every missing column of existing tables and returns the patches applied.
// Missing tables are skipped; AutoMigrate creates them with the full definition.
func PatchSchema(db *gorm.DB, patches []ColumnPatch, logger zerolog.Logger) ([]ColumnPatch, error) {
	log := logger.With().Str("component", "schema_patcher").Logger()
	migrator := db.Migrator()
	applied := make([]ColumnPatch, 0)

	for _, patch := range patches {
		if !migrator.HasTable(patch.Table) {
			log.Debug().Str("table", patch.Table).Msg("table missing, patch skipped")
			continue
		}
		if migrator.HasColumn(patch.Table, patch.Column) {
			continue
		}

		err := db.Exec("ALTER TABLE ? ADD COLUMN ? ?",
			clause.Table{Name: patch.Table},
			clause.Column{Name: patch.Column},
			clause.Expr{SQL: patch.Type},
		).Error
		if err != nil {
			return applied, fmt.Errorf("add column %s.%s: %w", patch.Table, patch.Column, err)
		}

		log.Info().Str("table", patch.Table).Str("column", patch.Column).Msg("schema column added")
		applied = append(applied, patch)
	}

	return applied, nil
}
