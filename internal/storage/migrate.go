package storage

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is the latest schema version supported by the migrator.
const SchemaVersion = 2

var migrations = map[int][]string{
	1: {
		`CREATE TABLE IF NOT EXISTS scheduled_reminders (
			record_id  TEXT    PRIMARY KEY,
			goal_id    TEXT    NOT NULL,
			kind       TEXT    NOT NULL,
			fire_time  INTEGER NOT NULL,
			timer_id   TEXT    NOT NULL,
			goal_title TEXT    NOT NULL DEFAULT '',
			goal_emoji TEXT    NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_scheduled_reminders_goal ON scheduled_reminders(goal_id);`,
		`CREATE INDEX IF NOT EXISTS idx_scheduled_reminders_fire ON scheduled_reminders(fire_time);`,
	},
	2: {
		`CREATE TABLE IF NOT EXISTS notification_consent (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			granted    INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
	},
}

// Migrate ensures the schema exists and is upgraded to SchemaVersion. Each
// version is applied in its own transaction.
func Migrate(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("migrate: db is nil")
	}

	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY);`)
	if err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}

	current, err := CurrentVersion(db)
	if err != nil {
		return err
	}

	for version := current + 1; version <= SchemaVersion; version++ {
		if err := apply(db, version); err != nil {
			return err
		}
	}
	return nil
}

// CurrentVersion returns the highest applied schema version.
func CurrentVersion(db *sql.DB) (int, error) {
	var current int
	err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&current)
	if err != nil {
		return 0, fmt.Errorf("migrate: read current version: %w", err)
	}
	return current, nil
}

func apply(db *sql.DB, version int) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate: begin v%d: %w", version, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, stmt := range migrations[version] {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: apply v%d: %w", version, err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?);`, version); err != nil {
		return fmt.Errorf("migrate: record v%d: %w", version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit v%d: %w", version, err)
	}
	return nil
}
