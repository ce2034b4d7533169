package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const currentSchemaVersion = 1

// OpenDB opens (creating if needed) the history database at dbPath and
// brings its schema up to date.
func OpenDB(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating parent directories: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps the PRAGMAs below in force for every statement.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := migrateSchema(db, dbPath); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func schemaVersion(db *sql.DB) (int, error) {
	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("checking schema_version table: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

func migrateSchema(db *sql.DB, dbPath string) error {
	version, err := schemaVersion(db)
	if err != nil {
		return err
	}

	if version > currentSchemaVersion {
		return fmt.Errorf(
			"database schema version %d is newer than this genwatch supports (max: %d); upgrade genwatch or delete %s to start fresh",
			version, currentSchemaVersion, dbPath,
		)
	}

	if version == 0 {
		if err := migrateV0ToV1(db); err != nil {
			return fmt.Errorf("migration v0→v1: %w", err)
		}
	}
	return nil
}

var v1Statements = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	)`,
	`INSERT INTO schema_version (version) VALUES (1)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		prompt TEXT,
		status TEXT NOT NULL,
		current_file TEXT,
		total_files INTEGER NOT NULL DEFAULT 0,
		completed_files INTEGER NOT NULL DEFAULT 0,
		total_tokens INTEGER NOT NULL DEFAULT 0,
		streamed_tokens INTEGER NOT NULL DEFAULT 0,
		progress_percent REAL NOT NULL DEFAULT 0,
		explicit_percent INTEGER NOT NULL DEFAULT 0,
		preview_url TEXT,
		error TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS session_files (
		session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		path TEXT NOT NULL,
		language TEXT,
		status TEXT NOT NULL,
		tokens INTEGER NOT NULL DEFAULT 0,
		chunks INTEGER NOT NULL DEFAULT 0,
		content TEXT,
		PRIMARY KEY (session_id, path)
	)`,
	`CREATE TABLE IF NOT EXISTS build_steps (
		session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		step TEXT NOT NULL,
		status TEXT,
		output TEXT,
		PRIMARY KEY (session_id, step)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_files_session ON session_files(session_id, position)`,
}

func migrateV0ToV1(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range v1Statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing %q: %w", firstWords(stmt), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func firstWords(stmt string) string {
	const n = 48
	if len(stmt) > n {
		return stmt[:n]
	}
	return stmt
}
