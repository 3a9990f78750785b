package sanitize

import (
	"context"
	"fmt"
	"slices"

	"gorm.io/gorm"

	"ultrashots/pkg/database"
)

// ForeignKey is one column reference between two tables.
type ForeignKey struct {
	Table      string
	Column     string
	RefTable   string
	RefColumn  string
	Definition string
}

func (fk ForeignKey) String() string {
	return fmt.Sprintf("%s(%s) -> %s(%s)", fk.Table, fk.Column, fk.RefTable, fk.RefColumn)
}

const postgresForeignKeys = `
SELECT rel.relname AS "table", att.attname AS "column",
       confrel.relname AS ref_table, att2.attname AS ref_column,
       pg_get_constraintdef(con.oid) AS definition
FROM pg_constraint con
JOIN pg_class rel ON rel.oid = con.conrelid
JOIN pg_class confrel ON confrel.oid = con.confrelid
JOIN pg_namespace ns ON ns.oid = rel.relnamespace
JOIN unnest(con.conkey) WITH ORDINALITY AS u(attnum, ord) ON true
JOIN unnest(con.confkey) WITH ORDINALITY AS v(attnum, ord) ON v.ord = u.ord
JOIN pg_attribute att ON att.attrelid = con.conrelid AND att.attnum = u.attnum
JOIN pg_attribute att2 ON att2.attrelid = con.confrelid AND att2.attnum = v.attnum
WHERE con.contype = 'f' AND ns.nspname = current_schema()
ORDER BY rel.relname, att.attname`

const sqliteForeignKeys = `
SELECT m.name AS "table", p."from" AS "column", p."table" AS ref_table, p."to" AS ref_column,
       'ON DELETE ' || p.on_delete AS definition
FROM sqlite_master m JOIN pragma_foreign_key_list(m.name) p
WHERE m.type = 'table'
ORDER BY m.name, p."from"`

// ForeignKeys lists the foreign keys of the current schema.
func ForeignKeys(ctx context.Context, db *gorm.DB) ([]ForeignKey, error) {
	var query string
	switch database.Dialect(db) {
	case "postgres":
		query = postgresForeignKeys
	case "sqlite":
		query = sqliteForeignKeys
	default:
		return nil, fmt.Errorf("foreign keys not supported for %s", database.Dialect(db))
	}
	var out []ForeignKey
	if err := db.WithContext(ctx).Raw(query).Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("query constraints: %w", err)
	}
	return out, nil
}

// Dependents returns the references into tables from tables outside the set. Emptying
// tables cascades into or nullifies those rows.
func Dependents(fks []ForeignKey, tables []string) []ForeignKey {
	var out []ForeignKey
	for _, fk := range fks {
		if slices.Contains(tables, fk.RefTable) && !slices.Contains(tables, fk.Table) {
			out = append(out, fk)
		}
	}
	return out
}
