package service

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ashuthecoder/cybervantage-api/internal/database"
	"github.com/ashuthecoder/cybervantage-api/internal/dto"
)

// SchemaService applies the additive column patches on demand.
type SchemaService interface {
	Patch(ctx context.Context) (dto.SchemaPatchResponse, error)
}

type schemaService struct {
	db      *gorm.DB
	patches []database.ColumnPatch
	logger  zerolog.Logger
}

// NewSchemaService builds the schema service over the registered patches.
func NewSchemaService(db *gorm.DB, logger zerolog.Logger) SchemaService {
	return &schemaService{db: db, patches: database.SchemaPatches, logger: logger}
}

func (s *schemaService) Patch(ctx context.Context) (dto.SchemaPatchResponse, error) {
	applied, err := database.PatchSchema(s.db.WithContext(ctx), s.patches, s.logger)
	if err != nil {
		return dto.SchemaPatchResponse{}, err
	}
	resp := dto.SchemaPatchResponse{Applied: make([]dto.SchemaPatchItem, 0, len(applied))}
	for _, patch := range applied {
		resp.Applied = append(resp.Applied, dto.SchemaPatchItem{Table: patch.Table, Column: patch.Column, Type: patch.Type})
	}
	return resp, nil
}
