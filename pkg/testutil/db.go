// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"ultrashots/pkg/config"
	"ultrashots/pkg/database"
	"ultrashots/pkg/logger"
)

// NewDB opens a migrated SQLite database in a temp dir that is closed on cleanup.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_foreign_keys=on"
	db, err := database.Open(config.DBConfig{Driver: config.DriverSQLite, DSN: dsn})
	require.NoError(t, err, "Failed to create database connection")

	t.Cleanup(func() {
		_ = database.Close(db)
	})

	require.NoError(t, database.Migrate(context.Background(), db, logger.Discard()), "Failed to migrate schema")
	return db
}
