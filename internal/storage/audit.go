package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/pennywhistle/tally-ho/internal/model"
)

// AppendAudit writes one append-only audit row for a terminal decision.
// Entries are never updated or deleted.
func (s *SQLiteStorage) AppendAudit(ctx context.Context, entry *model.AuditEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAuditEntry(entry); err != nil {
		return err
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, claim_id, decision, category, jurisdiction,
			confidence, candidate_id, ledger_reference, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.ClaimID,
		string(entry.Decision),
		nullString(entry.Category),
		nullString(entry.Jurisdiction),
		entry.Confidence,
		nullString(entry.CandidateID),
		nullString(entry.LedgerReference),
		nullString(entry.Reason),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// GetAuditTrail returns every audit entry for a claim, oldest first. Used by
// tests and debugging tooling; the log is never consulted for replay.
func (s *SQLiteStorage) GetAuditTrail(ctx context.Context, claimID string) ([]model.AuditEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(claimID, "claimID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, claim_id, decision, category, jurisdiction, confidence,
			candidate_id, ledger_reference, reason, created_at
		FROM audit_log
		WHERE claim_id = ?
		ORDER BY created_at, id
	`, claimID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit trail: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.AuditEntry
	for rows.Next() {
		var entry model.AuditEntry
		var decision string
		var category, jurisdiction, candidateID, ledgerRef, reason sql.NullString

		if err := rows.Scan(
			&entry.ID,
			&entry.ClaimID,
			&decision,
			&category,
			&jurisdiction,
			&entry.Confidence,
			&candidateID,
			&ledgerRef,
			&reason,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		entry.Decision = model.Decision(decision)
		entry.Category = category.String
		entry.Jurisdiction = jurisdiction.String
		entry.CandidateID = candidateID.String
		entry.LedgerReference = ledgerRef.String
		entry.Reason = reason.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit trail: %w", err)
	}
	return entries, nil
}
