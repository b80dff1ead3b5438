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

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema: expense queue and ledger candidates",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS expenses (
					claim_id TEXT PRIMARY KEY,
					claim_date DATETIME NOT NULL,
					amount REAL NOT NULL,
					payee TEXT NOT NULL,
					category TEXT,
					jurisdiction_tag TEXT,
					instrument TEXT,
					receipt_ref TEXT,
					event_related INTEGER DEFAULT 0,
					human_approved INTEGER DEFAULT 0,
					status TEXT NOT NULL DEFAULT 'pending'
						CHECK(status IN ('pending','processing','matched','posted','flagged','error')),
					attempt_count INTEGER DEFAULT 0,
					claimed_at DATETIME,
					last_error TEXT,
					flag_reason TEXT,
					confidence INTEGER DEFAULT 0,
					candidate_id TEXT,
					ledger_reference TEXT,
					posted_at DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_expenses_status ON expenses(status, created_at)`,
				`CREATE INDEX idx_expenses_claimed_at ON expenses(claimed_at)`,

				`CREATE TABLE IF NOT EXISTS candidates (
					id TEXT PRIMARY KEY,
					txn_date DATETIME NOT NULL,
					description TEXT NOT NULL,
					amount REAL NOT NULL,
					source TEXT,
					status TEXT NOT NULL DEFAULT 'unmatched'
						CHECK(status IN ('unmatched','matched','excluded','orphan_processed','pending_review')),
					matched_claim_id TEXT,
					matched_at DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_candidates_status_date ON candidates(status, txn_date)`,
				`CREATE UNIQUE INDEX idx_candidates_matched_claim
					ON candidates(matched_claim_id) WHERE matched_claim_id IS NOT NULL`,
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
		Description: "Merchant rules and append-only audit log",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS merchant_rules (
					pattern TEXT PRIMARY KEY,
					category TEXT,
					jurisdiction TEXT,
					note TEXT,
					use_count INTEGER DEFAULT 0,
					last_used DATETIME
				)`,

				`CREATE TABLE IF NOT EXISTS audit_log (
					id TEXT PRIMARY KEY,
					claim_id TEXT NOT NULL,
					decision TEXT NOT NULL,
					category TEXT,
					jurisdiction TEXT,
					confidence INTEGER DEFAULT 0,
					candidate_id TEXT,
					ledger_reference TEXT,
					reason TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_audit_log_claim ON audit_log(claim_id)`,
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
		Description: "Orphan processing columns on candidates",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`ALTER TABLE candidates ADD COLUMN orphan_category TEXT`,
				`ALTER TABLE candidates ADD COLUMN orphan_jurisdiction TEXT`,
				`ALTER TABLE candidates ADD COLUMN orphan_processed_at DATETIME`,
				`ALTER TABLE candidates ADD COLUMN ledger_reference TEXT`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
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
