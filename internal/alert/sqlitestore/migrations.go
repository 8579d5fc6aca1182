package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
)

var migrations = []string{
	// v1: alerts
	`CREATE TABLE alerts (
		seq             INTEGER PRIMARY KEY AUTOINCREMENT,
		id              TEXT NOT NULL UNIQUE,
		title           TEXT NOT NULL DEFAULT '',
		description     TEXT NOT NULL DEFAULT '',
		image           TEXT NOT NULL DEFAULT '',
		lat             REAL NOT NULL,
		lng             REAL NOT NULL,
		risk            TEXT NOT NULL,
		reason          TEXT NOT NULL DEFAULT '',
		analysis_source TEXT NOT NULL,
		resolved        INTEGER NOT NULL DEFAULT 0,
		created_at      TEXT NOT NULL
	)`,
	// v2: resolve timestamp
	`ALTER TABLE alerts ADD COLUMN resolved_at TEXT`,
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return err
	}

	for i := current; i < len(migrations); i++ {
		if err := applyMigration(ctx, db, i); err != nil {
			return fmt.Errorf("migration v%d: %w", i+1, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, i int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is harmless

	if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", i+1); err != nil {
		return err
	}
	return tx.Commit()
}
