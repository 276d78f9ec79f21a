package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a fatal
// error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS templates (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					institution TEXT NOT NULL,
					family TEXT NOT NULL,
					version INTEGER NOT NULL DEFAULT 1,
					rules TEXT NOT NULL,
					confidence REAL NOT NULL DEFAULT 0,
					accept_threshold REAL NOT NULL DEFAULT 0.8,
					success_count INTEGER NOT NULL DEFAULT 0,
					failure_count INTEGER NOT NULL DEFAULT 0,
					security_validated INTEGER NOT NULL DEFAULT 0,
					human_reviewed INTEGER NOT NULL DEFAULT 0,
					is_active INTEGER NOT NULL DEFAULT 1,
					provenance TEXT NOT NULL DEFAULT 'synthesized',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_templates_lookup ON templates(institution, family, is_active)`,

				`CREATE TABLE IF NOT EXISTS institutions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT UNIQUE NOT NULL,
					country TEXT,
					domains TEXT NOT NULL DEFAULT '[]',
					senders TEXT NOT NULL DEFAULT '[]',
					signatures TEXT NOT NULL DEFAULT '[]',
					is_active INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS results (
					id TEXT PRIMARY KEY,
					message_id TEXT NOT NULL,
					account_id TEXT NOT NULL,
					institution TEXT,
					family TEXT,
					amount TEXT NOT NULL,
					currency TEXT,
					merchant TEXT,
					location TEXT,
					reference TEXT,
					date DATETIME NOT NULL,
					tier INTEGER NOT NULL,
					confidence REAL NOT NULL DEFAULT 0,
					cost REAL NOT NULL DEFAULT 0,
					duration_ms INTEGER NOT NULL DEFAULT 0,
					needs_review INTEGER NOT NULL DEFAULT 0,
					failures TEXT NOT NULL DEFAULT '[]',
					template_id INTEGER,
					superseded_by TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_results_message ON results(account_id, message_id)`,
				`CREATE INDEX idx_results_reference ON results(account_id, reference)`,
				`CREATE INDEX idx_results_history ON results(institution, family, date)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Review queue and corrections",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS review_items (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					result_id TEXT NOT NULL,
					priority INTEGER NOT NULL DEFAULT 5,
					status TEXT NOT NULL DEFAULT 'pending',
					failures TEXT NOT NULL DEFAULT '[]',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					resolved_at DATETIME,
					FOREIGN KEY (result_id) REFERENCES results(id)
				)`,
				`CREATE INDEX idx_review_pending ON review_items(status, priority)`,

				`CREATE TABLE IF NOT EXISTS corrections (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id TEXT NOT NULL,
					result_id TEXT NOT NULL,
					field TEXT NOT NULL,
					old_value TEXT,
					new_value TEXT NOT NULL,
					template_id INTEGER,
					applied_to_template INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (result_id) REFERENCES results(id)
				)`,
				`CREATE INDEX idx_corrections_consensus ON corrections(template_id, field, new_value)`,

				`CREATE TABLE IF NOT EXISTS user_overrides (
					user_id TEXT NOT NULL,
					template_id INTEGER NOT NULL,
					field TEXT NOT NULL,
					rule TEXT NOT NULL,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (user_id, template_id, field)
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Processing metrics",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS metrics (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					message_id TEXT NOT NULL,
					institution TEXT,
					family TEXT,
					tier INTEGER NOT NULL,
					outcome TEXT NOT NULL,
					duration_ms INTEGER NOT NULL DEFAULT 0,
					cost REAL NOT NULL DEFAULT 0,
					confidence REAL NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_metrics_outcome ON metrics(outcome, created_at)`,
				`CREATE INDEX idx_metrics_tier ON metrics(tier, created_at)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate applies any pending schema migrations.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= current {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration transaction: %w", err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Description, err)
		}

		if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, migration.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		slog.Info("applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	return nil
}
