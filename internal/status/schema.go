package status

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// schemaV1 uses only types both sqlite and postgres accept. Timestamps are
// RFC 3339 text written by the store.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS checkpoints (
    sample_id TEXT NOT NULL,
    model_id TEXT NOT NULL DEFAULT '',
    sim_id TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL,         -- 'building', 'complete'
    path TEXT NOT NULL,
    checksum TEXT NOT NULL DEFAULT '',
    run_id TEXT NOT NULL DEFAULT '',
    updated_at TEXT NOT NULL,
    PRIMARY KEY (sample_id, model_id, sim_id)
);

CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    sample_id TEXT NOT NULL,
    smart INTEGER NOT NULL DEFAULT 0,
    state TEXT NOT NULL,         -- 'running', 'succeeded', 'failed'
    error TEXT NOT NULL DEFAULT '',
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_name ON runs(name);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// initSchema creates the schema on a fresh database and validates an
// existing sqlite one before use.
func (s *Store) initSchema(ctx context.Context) error {
	version, err := s.schemaVersion(ctx)
	if err != nil {
		if err := s.createSchema(ctx); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		return nil
	}

	if s.backend == BackendSQLite {
		if err := validateIntegrity(ctx, s.db); err != nil {
			return fmt.Errorf("database integrity check failed: %w", err)
		}
	}
	if version > SchemaVersion {
		return fmt.Errorf("status database has schema version %d, newer than supported %d", version, SchemaVersion)
	}
	return nil
}

func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		s.rebind(`INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`),
		SchemaVersion, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return tx.Commit()
}

// validateIntegrity runs PRAGMA integrity_check on a sqlite database.
func validateIntegrity(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `PRAGMA integrity_check`)
	if err != nil {
		return fmt.Errorf("failed to run integrity_check: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var result string
		if err := rows.Scan(&result); err != nil {
			return fmt.Errorf("failed to scan integrity_check result: %w", err)
		}
		if result != "ok" {
			return fmt.Errorf("integrity_check failed: %s", result)
		}
	}
	return rows.Err()
}
