package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gorm.io/gorm"

	"ultrashots/pkg/config"
	"ultrashots/pkg/database"
)

// initDB opens the configured database and, unless DB_AUTO_MIGRATE is off, migrates the
// schema. Per-table migration failures are logged and ignored.
func initDB(ctx context.Context, cfg *config.Config, log *slog.Logger) (*gorm.DB, error) {
	db, err := database.Open(cfg.DB)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(ctx, db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("database unreachable: %w", err)
	}
	if cfg.DB.AutoMigrate {
		err := database.Migrate(ctx, db, log)
		var merr *database.MigrationError
		switch {
		case errors.As(err, &merr) && merr.Partial():
			log.Warn("continuing with a partially migrated schema", "failed", merr.Models)
		case err != nil:
			_ = database.Close(db)
			return nil, err
		}
	}
	ensureUploadBase(cfg.Uploads.Base, log)
	return db, nil
}

// ensureUploadBase creates the base uploads directory.
func ensureUploadBase(base string, log *slog.Logger) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		log.Warn("failed to create upload base dir", "dir", base, "error", err)
	}
}
