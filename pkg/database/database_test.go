package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"ultrashots/models"
	"ultrashots/pkg/config"
	"ultrashots/pkg/logger"
)

func TestOpen_SQLiteAndMigrate(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_foreign_keys=on"
	db, err := Open(config.DBConfig{Driver: config.DriverSQLite, DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	require.NoError(t, Migrate(context.Background(), db, logger.Discard()))
	require.NoError(t, Ping(context.Background(), db))
	assert.Equal(t, "sqlite", Dialect(db))

	for _, m := range models.All() {
		assert.True(t, db.Migrator().HasTable(m), "table for %T", m)
	}
	assert.True(t, db.Migrator().HasTable("role_permissions"))
}

func TestMigrate_ReportsFailedModels(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_foreign_keys=on"
	db, err := Open(config.DBConfig{Driver: config.DriverSQLite, DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	// a view squats on the subscribers table name
	require.NoError(t, db.Exec("CREATE VIEW subscribers AS SELECT 1 AS id").Error)

	err = Migrate(context.Background(), db, logger.Discard())
	var merr *MigrationError
	require.ErrorAs(t, err, &merr)
	assert.True(t, merr.Partial())
	assert.Equal(t, []string{"*models.Subscriber"}, merr.Models)
	assert.Equal(t, len(models.All()), merr.Total)
	assert.Contains(t, err.Error(), "*models.Subscriber")
	assert.True(t, db.Migrator().HasTable(&models.Customer{}), "other models still migrate")
}

func TestMigrationError_Total(t *testing.T) {
	err := &MigrationError{Models: []string{"a", "b"}, Total: 2}
	assert.False(t, err.Partial())
	assert.Equal(t, "migration failed for every model", err.Error())
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(config.DBConfig{Driver: "mysql"})
	assert.Error(t, err)
}

func TestOpen_PostgresRequiresDSN(t *testing.T) {
	_, err := Open(config.DBConfig{Driver: config.DriverPostgres})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DSN")
}

func TestIsUniqueConstraintError(t *testing.T) {
	assert.False(t, IsUniqueConstraintError(nil))
	assert.True(t, IsUniqueConstraintError(gorm.ErrDuplicatedKey))
	assert.True(t, IsUniqueConstraintError(fmt.Errorf("create: %w", errors.New("UNIQUE constraint failed: users.email"))))
	assert.True(t, IsUniqueConstraintError(errors.New(`ERROR: duplicate key value violates unique constraint "idx_users_email"`)))
	assert.False(t, IsUniqueConstraintError(errors.New("connection refused")))
}
