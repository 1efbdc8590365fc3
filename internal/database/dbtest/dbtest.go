// Package dbtest provides migrated databases for package tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"mfaengine/internal/database"
	"mfaengine/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewSQLite returns a migrated SQLite database living in the test's temp directory.
func NewSQLite(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := database.Open(models.DatabaseConfiguration{
		Type: "sqlite",
		Path: filepath.Join(t.TempDir(), "mfa.db"),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return db
}
