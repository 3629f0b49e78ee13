package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// migrations contains all database migrations in order.
var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema with analyses",
		Up:          migrationV1Up,
		Down:        migrationV1Down,
	},
	{
		Version:     2,
		Description: "Add events table for scan auditing",
		Up:          migrationV2Up,
		Down:        migrationV2Down,
	},
}

const migrationV1Up = `
CREATE TABLE IF NOT EXISTS analyses (
    id                  TEXT PRIMARY KEY,
    created_at          INTEGER NOT NULL,
    filename            TEXT NOT NULL,
    sha256              TEXT NOT NULL,
    media_type          TEXT NOT NULL,
    bytes               INTEGER NOT NULL,
    trust_score         INTEGER NOT NULL CHECK (trust_score BETWEEN 0 AND 100),
    label               TEXT NOT NULL,
    provenance_state    TEXT,
    payload             BLOB NOT NULL,
    payload_hash        BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at);
CREATE INDEX IF NOT EXISTS idx_analyses_sha256 ON analyses(sha256);
`

const migrationV1Down = `
DROP INDEX IF EXISTS idx_analyses_sha256;
DROP INDEX IF EXISTS idx_analyses_created;
DROP TABLE IF EXISTS analyses;
`

const migrationV2Up = `
CREATE TABLE IF NOT EXISTS events (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    type                TEXT NOT NULL,
    analysis_id         TEXT,
    timestamp_ns        INTEGER NOT NULL,
    latency_ms          INTEGER NOT NULL DEFAULT 0,
    trust_score         INTEGER,
    provenance_state    TEXT,
    detail              TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp_ns);
CREATE INDEX IF NOT EXISTS idx_events_analysis ON events(analysis_id);
`

const migrationV2Down = `
DROP INDEX IF EXISTS idx_events_analysis;
DROP INDEX IF EXISTS idx_events_timestamp;
DROP TABLE IF EXISTS events;
`

// MigrateDB applies all pending migrations to the database.
func MigrateDB(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  INTEGER NOT NULL,
			description TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	currentVersion, err := currentVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			m.Version, time.Now().UnixNano(), m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// RollbackMigration rolls back the last applied migration.
func RollbackMigration(db *sql.DB) error {
	version, err := currentVersion(db)
	if err != nil {
		return err
	}
	if version == 0 {
		return fmt.Errorf("no migrations to rollback")
	}

	var migration *Migration
	for i := range migrations {
		if migrations[i].Version == version {
			migration = &migrations[i]
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("migration %d not found", version)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if _, err := tx.Exec(migration.Down); err != nil {
		tx.Rollback()
		return fmt.Errorf("rollback migration %d: %w", version, err)
	}

	if _, err := tx.Exec("DELETE FROM schema_migrations WHERE version = ?", version); err != nil {
		tx.Rollback()
		return fmt.Errorf("remove migration record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rollback: %w", err)
	}

	return nil
}

// SchemaVersion returns the highest applied migration version.
func (s *Store) SchemaVersion() (int, error) {
	return currentVersion(s.db)
}

// LatestVersion is the version the store migrates to.
func LatestVersion() int {
	return migrations[len(migrations)-1].Version
}

func currentVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("get current version: %w", err)
	}
	return v, nil
}
