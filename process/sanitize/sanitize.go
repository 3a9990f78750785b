// Package sanitize empties or rebuilds application tables. Destructive; callers confirm first.
package sanitize

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"ultrashots/models"
	"ultrashots/pkg/database"
)

// DefaultTables lists the application tables in foreign-key order.
var DefaultTables = []string{
	"permissions", "roles", "role_permissions", "users", "refresh_tokens",
	"customers", "projects", "logos", "subscribers",
}

var nameRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseTables splits a comma-separated list and drops invalid identifiers.
func ParseTables(list string, log *slog.Logger) []string {
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !nameRE.MatchString(p) {
			log.Warn("skipping invalid table name", "table", p)
			continue
		}
		out = append(out, p)
	}
	return out
}

// Existing filters tables down to those present in the database.
func Existing(db *gorm.DB, tables []string) []string {
	m := db.Migrator()
	var out []string
	for _, t := range tables {
		if m.HasTable(t) {
			out = append(out, t)
		}
	}
	return out
}

// Truncate removes every row from tables and resets their identity counters.
func Truncate(ctx context.Context, db *gorm.DB, tables []string) error {
	if len(tables) == 0 {
		return nil
	}
	for _, t := range tables {
		if !nameRE.MatchString(t) {
			return fmt.Errorf("invalid table name %q", t)
		}
	}
	db = db.WithContext(ctx)

	switch database.Dialect(db) {
	case "postgres":
		quoted := make([]string, 0, len(tables))
		for _, t := range tables {
			quoted = append(quoted, fmt.Sprintf("\"%s\"", t))
		}
		stmt := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(quoted, ", "))
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
		return nil
	case "sqlite":
		return db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec("PRAGMA defer_foreign_keys = ON").Error; err != nil {
				return err
			}
			// children first so ON DELETE actions have nothing left to touch
			for i := len(tables) - 1; i >= 0; i-- {
				if err := tx.Exec(fmt.Sprintf("DELETE FROM \"%s\"", tables[i])).Error; err != nil {
					return fmt.Errorf("truncate %s: %w", tables[i], err)
				}
			}
			if tx.Migrator().HasTable("sqlite_sequence") {
				_ = tx.Exec("DELETE FROM sqlite_sequence WHERE name IN ?", tables).Error
			}
			return nil
		})
	default:
		return fmt.Errorf("truncate not supported for %s", database.Dialect(db))
	}
}

// Fresh drops every application table and migrates the schema again.
func Fresh(ctx context.Context, db *gorm.DB, log *slog.Logger) error {
	all := models.All()
	m := db.WithContext(ctx).Migrator()
	if m.HasTable("role_permissions") {
		if err := m.DropTable("role_permissions"); err != nil {
			return fmt.Errorf("drop role_permissions: %w", err)
		}
	}
	for i := len(all) - 1; i >= 0; i-- {
		if err := m.DropTable(all[i]); err != nil {
			return fmt.Errorf("drop %T: %w", all[i], err)
		}
	}
	log.Info("dropped all tables")
	return database.Migrate(ctx, db, log)
}
