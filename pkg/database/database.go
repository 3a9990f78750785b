// Package database opens the GORM connection and migrates the schema.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"ultrashots/models"
	"ultrashots/pkg/config"
)

// DefaultSQLiteDSN is used when the sqlite driver is selected without a DSN.
const DefaultSQLiteDSN = "file:ultrashots.db?_foreign_keys=on"

// Open connects using the configured driver.
func Open(c config.DBConfig) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}

	var (
		db  *gorm.DB
		err error
	)
	switch c.Driver {
	case config.DriverPostgres:
		if c.DSN == "" {
			return nil, errors.New("DB_DSN is not set. The postgres driver requires a DSN in DB_DSN")
		}
		db, err = gorm.Open(postgres.Open(c.DSN), gcfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
	case config.DriverSQLite:
		dsn := c.DSN
		if dsn == "" {
			dsn = DefaultSQLiteDSN
		}
		db, err = gorm.Open(sqlite.Open(dsn), gcfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
		}
		// one writer avoids "database is locked" under concurrent handlers
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.Driver)
	}

	if c.MaxConns > 0 && c.Driver == config.DriverPostgres {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(c.MaxConns)
		}
	}
	return db, nil
}

// MigrationError lists the models whose tables could not be migrated.
type MigrationError struct {
	Models []string
	Total  int
}

func (e *MigrationError) Error() string {
	if !e.Partial() {
		return "migration failed for every model"
	}
	return fmt.Sprintf("migration failed for %d of %d models: %s", len(e.Models), e.Total, strings.Join(e.Models, ", "))
}

// Partial reports whether some models did migrate.
func (e *MigrationError) Partial() bool { return len(e.Models) < e.Total }

// Migrate creates or updates every table. Roles and permissions are migrated first so the
// users foreign key can be applied; each model is migrated on its own so one failure (for
// instance a permission error on an existing table) does not block the rest. Failures are
// returned as a *MigrationError once every model was tried.
func Migrate(ctx context.Context, db *gorm.DB, log *slog.Logger) error {
	all := models.All()
	var failed []string
	for _, m := range all {
		if err := db.WithContext(ctx).AutoMigrate(m); err != nil {
			name := fmt.Sprintf("%T", m)
			log.Warn("migration warning", "model", name, "error", err)
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		return &MigrationError{Models: failed, Total: len(all)}
	}
	return nil
}

// Ping checks the connection is alive.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}

// IsUniqueConstraintError reports whether err came from a unique index, across drivers.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") ||
		strings.Contains(s, "unique constraint") ||
		strings.Contains(s, "UNIQUE constraint failed") ||
		strings.Contains(s, "already exists")
}

// Dialect returns the driver name of an open connection ("postgres", "sqlite").
func Dialect(db *gorm.DB) string {
	return db.Dialector.Name()
}
