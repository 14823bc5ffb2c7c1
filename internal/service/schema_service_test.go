package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestSchemaServicePatchesLegacyUsersTable(t *testing.T) {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:schema_%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		password_hash TEXT NOT NULL
	)`).Error)

	svc := NewSchemaService(db, zerolog.Nop())
	resp, err := svc.Patch(context.Background())
	require.NoError(t, err)

	columns := make([]string, 0, len(resp.Applied))
	for _, item := range resp.Applied {
		require.Equal(t, "users", item.Table)
		columns = append(columns, item.Column)
	}
	require.ElementsMatch(t, []string{"reset_token", "reset_token_expires_at"}, columns)

	resp, err = svc.Patch(context.Background())
	require.NoError(t, err)
	require.Empty(t, resp.Applied)
}
