package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 5

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Users and classified transactions",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL DEFAULT '',
					email TEXT NOT NULL DEFAULT '',
					credits INTEGER NOT NULL DEFAULT 0 CHECK (credits >= 0),
					plaid_access_token TEXT NOT NULL DEFAULT '',
					plaid_item_id TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL
				)`,

				`CREATE TABLE IF NOT EXISTS classified_transactions (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					account_id TEXT NOT NULL DEFAULT '',
					date DATETIME NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					merchant_name TEXT NOT NULL DEFAULT '',
					currency_code TEXT NOT NULL DEFAULT '',
					amount REAL NOT NULL,
					hash TEXT NOT NULL,
					platform_label TEXT,
					income_amount REAL NOT NULL,
					is_gig_income INTEGER NOT NULL,
					classified_at DATETIME NOT NULL,
					FOREIGN KEY (user_id) REFERENCES users(id)
				)`,
				`CREATE INDEX idx_classified_user_date ON classified_transactions(user_id, date)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Income summaries",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS income_summaries (
					user_id TEXT PRIMARY KEY,
					period_start DATETIME NOT NULL,
					period_end DATETIME NOT NULL,
					total_90_days REAL NOT NULL,
					monthly_average REAL NOT NULL,
					weekly_average REAL NOT NULL,
					consistency_score INTEGER NOT NULL,
					currency_code TEXT NOT NULL,
					platform_breakdown TEXT NOT NULL,
					updated_at DATETIME NOT NULL,
					FOREIGN KEY (user_id) REFERENCES users(id)
				)`,
			})
		},
	},
	{
		Version:     3,
		Description: "Verification records",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS verifications (
					report_id TEXT PRIMARY KEY,
					verification_code TEXT NOT NULL UNIQUE,
					verification_hash TEXT NOT NULL UNIQUE,
					hash_scheme TEXT NOT NULL,
					user_id TEXT NOT NULL,
					period_start DATETIME NOT NULL,
					period_end DATETIME NOT NULL,
					total_90_days REAL NOT NULL,
					monthly_average REAL NOT NULL,
					weekly_average REAL NOT NULL,
					consistency_score INTEGER NOT NULL,
					currency_code TEXT NOT NULL,
					platform_breakdown TEXT NOT NULL,
					created_at DATETIME NOT NULL,
					expires_at DATETIME NOT NULL,
					verification_count INTEGER NOT NULL DEFAULT 0,
					last_verified_at DATETIME,
					FOREIGN KEY (user_id) REFERENCES users(id)
				)`,
				`CREATE INDEX idx_verifications_user ON verifications(user_id, created_at)`,
			})
		},
	},
	{
		Version:     4,
		Description: "Lookup throttling",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS lockouts (
					ip TEXT PRIMARY KEY,
					failure_count INTEGER NOT NULL DEFAULT 0,
					last_failure_at DATETIME,
					locked_until DATETIME
				)`,

				`CREATE TABLE IF NOT EXISTS lookup_attempts (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					ip TEXT NOT NULL,
					code TEXT NOT NULL DEFAULT '',
					content_hash TEXT NOT NULL DEFAULT '',
					outcome TEXT NOT NULL,
					consumes_quota INTEGER NOT NULL,
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_lookup_attempts_ip_time ON lookup_attempts(ip, created_at)`,
			})
		},
	},
	{
		Version:     5,
		Description: "Key classified transactions by user",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE classified_transactions_v5 (
					id TEXT NOT NULL,
					user_id TEXT NOT NULL,
					account_id TEXT NOT NULL DEFAULT '',
					date DATETIME NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					merchant_name TEXT NOT NULL DEFAULT '',
					currency_code TEXT NOT NULL DEFAULT '',
					amount REAL NOT NULL,
					hash TEXT NOT NULL,
					platform_label TEXT,
					income_amount REAL NOT NULL,
					is_gig_income INTEGER NOT NULL,
					classified_at DATETIME NOT NULL,
					PRIMARY KEY (user_id, id),
					FOREIGN KEY (user_id) REFERENCES users(id)
				)`,
				`INSERT INTO classified_transactions_v5 SELECT
					id, user_id, account_id, date, description, merchant_name, currency_code,
					amount, hash, platform_label, income_amount, is_gig_income, classified_at
				FROM classified_transactions`,
				`DROP TABLE classified_transactions`,
				`ALTER TABLE classified_transactions_v5 RENAME TO classified_transactions`,
				`CREATE INDEX idx_classified_user_date ON classified_transactions(user_id, date)`,
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

// SchemaVersion returns the database's current schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
