package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS documents (
					id TEXT PRIMARY KEY,
					owner_id TEXT NOT NULL,
					name TEXT NOT NULL DEFAULT '',
					file_type TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'uploaded',
					content BLOB,
					uploaded_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_documents_owner ON documents(owner_id)`,

				`CREATE TABLE IF NOT EXISTS parsing_attempts (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					document_id TEXT NOT NULL,
					owner_id TEXT NOT NULL DEFAULT '',
					method TEXT NOT NULL,
					ordinal INTEGER NOT NULL,
					status TEXT NOT NULL,
					config TEXT,
					raw_output TEXT,
					error TEXT NOT NULL DEFAULT '',
					transaction_count INTEGER NOT NULL DEFAULT 0,
					confidence REAL NOT NULL DEFAULT 0,
					duration_ms INTEGER NOT NULL DEFAULT 0,
					started_at DATETIME NOT NULL,
					completed_at DATETIME,
					UNIQUE(document_id, ordinal)
				)`,
				`CREATE INDEX idx_attempts_owner_started ON parsing_attempts(owner_id, started_at)`,

				`CREATE TABLE IF NOT EXISTS regex_patterns (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL,
					pattern TEXT NOT NULL,
					fields TEXT,
					file_type TEXT NOT NULL,
					institution TEXT NOT NULL DEFAULT '',
					owner_id TEXT NOT NULL DEFAULT '',
					description TEXT NOT NULL DEFAULT '',
					priority INTEGER NOT NULL DEFAULT 100,
					success_count INTEGER NOT NULL DEFAULT 0,
					failure_count INTEGER NOT NULL DEFAULT 0,
					confidence REAL NOT NULL DEFAULT 0.5,
					is_active BOOLEAN NOT NULL DEFAULT 1,
					is_builtin BOOLEAN NOT NULL DEFAULT 0,
					last_used DATETIME,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL,
					UNIQUE(name, file_type, owner_id)
				)`,
				`CREATE INDEX idx_regex_patterns_lookup ON regex_patterns(file_type, institution, is_active)`,

				`CREATE TABLE IF NOT EXISTS column_mappings (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					attempt_id INTEGER,
					owner_id TEXT NOT NULL DEFAULT '',
					file_type TEXT NOT NULL,
					source_column TEXT NOT NULL,
					source_index INTEGER NOT NULL,
					field TEXT NOT NULL,
					header_signature TEXT NOT NULL DEFAULT '',
					confidence REAL NOT NULL DEFAULT 0,
					user_confirmed BOOLEAN NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL,
					FOREIGN KEY (attempt_id) REFERENCES parsing_attempts(id)
				)`,
				`CREATE INDEX idx_column_mappings_signature ON column_mappings(owner_id, file_type, header_signature)`,
				`CREATE INDEX idx_column_mappings_attempt ON column_mappings(attempt_id)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Add learning dataset",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS learning_entries (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					attempt_id INTEGER,
					document_id TEXT NOT NULL,
					owner_id TEXT NOT NULL DEFAULT '',
					method TEXT NOT NULL DEFAULT '',
					outcome TEXT NOT NULL,
					source_text TEXT NOT NULL DEFAULT '',
					expected TEXT,
					actual TEXT,
					quality_score REAL NOT NULL DEFAULT 0,
					training_weight REAL NOT NULL DEFAULT 1,
					validated BOOLEAN NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL,
					FOREIGN KEY (attempt_id) REFERENCES parsing_attempts(id)
				)`,
				`CREATE INDEX idx_learning_owner_created ON learning_entries(owner_id, created_at)`,
				`CREATE INDEX idx_learning_attempt ON learning_entries(attempt_id)`,
			})
		},
	},
	{
		Version:     3,
		Description: "Add daily parsing metrics",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS parsing_metrics (
					owner_id TEXT NOT NULL,
					day TEXT NOT NULL,
					methods TEXT,
					total_attempts INTEGER NOT NULL DEFAULT 0,
					total_successes INTEGER NOT NULL DEFAULT 0,
					patterns_learned INTEGER NOT NULL DEFAULT 0,
					dataset_entries INTEGER NOT NULL DEFAULT 0,
					average_confidence REAL NOT NULL DEFAULT 0,
					average_duration_ms REAL NOT NULL DEFAULT 0,
					updated_at DATETIME NOT NULL,
					PRIMARY KEY (owner_id, day)
				)`,
			})
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion reports the applied schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return v, nil
}
