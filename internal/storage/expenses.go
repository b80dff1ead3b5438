package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pennywhistle/tally-ho/internal/common"
	"github.com/pennywhistle/tally-ho/internal/model"
	"github.com/pennywhistle/tally-ho/internal/service"
)

const expenseColumns = `claim_id, claim_date, amount, payee, category, jurisdiction_tag,
	instrument, receipt_ref, event_related, human_approved, status, attempt_count,
	claimed_at, last_error, flag_reason, confidence, candidate_id, ledger_reference,
	posted_at, created_at, updated_at`

// InsertExpenses performs the idempotent intake upsert. Records whose claim id
// already exists are counted as duplicates and left untouched; records that
// fail validation are rejected individually without failing the batch.
func (s *SQLiteStorage) InsertExpenses(ctx context.Context, records []model.ExpenseRecord) (service.IngestResult, error) {
	var result service.IngestResult

	if err := validateContext(ctx); err != nil {
		return result, err
	}
	if len(records) == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO expenses (
			claim_id, claim_date, amount, payee, category, jurisdiction_tag,
			instrument, receipt_ref, event_related, human_approved, status,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?)
	`)
	if err != nil {
		return result, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	ts := now()
	for _, rec := range records {
		if vErr := rec.Validate(); vErr != nil {
			result.Rejected = append(result.Rejected, service.RejectedRecord{
				ClaimID: rec.ClaimID,
				Reason:  vErr.Error(),
			})
			continue
		}

		res, execErr := stmt.ExecContext(ctx,
			rec.ClaimID,
			rec.ClaimDate,
			rec.Amount,
			rec.Payee,
			nullString(rec.Category),
			nullString(rec.JurisdictionTag),
			nullString(rec.Instrument),
			nullString(rec.ReceiptRef),
			rec.EventRelated,
			rec.HumanApproved,
			ts,
			ts,
		)
		if execErr != nil {
			return result, fmt.Errorf("failed to insert expense %s: %w", rec.ClaimID, execErr)
		}

		affected, raErr := res.RowsAffected()
		if raErr != nil {
			return result, fmt.Errorf("failed to read rows affected: %w", raErr)
		}
		if affected == 0 {
			result.Duplicates++
		} else {
			result.Inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit intake batch: %w", err)
	}
	return result, nil
}

// GetExpense retrieves a single expense record by claim id.
func (s *SQLiteStorage) GetExpense(ctx context.Context, claimID string) (*model.ExpenseRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(claimID, "claimID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE claim_id = ?`, claimID)

	rec, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("expense %s: %w", claimID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return rec, nil
}

// CountProcessing returns the number of records currently claimed.
func (s *SQLiteStorage) CountProcessing(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM expenses WHERE status = 'processing'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count processing expenses: %w", err)
	}
	return count, nil
}

// ClaimNextPending atomically claims the oldest pending record. The single
// conditional UPDATE is the concurrency gate: two concurrent dispatchers can
// never claim the same row, and a loser simply claims the next pending row or
// nothing. Returns nil when the queue is drained.
func (s *SQLiteStorage) ClaimNextPending(ctx context.Context, claimTime time.Time) (*model.ExpenseRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var claimID string
	err := s.db.QueryRowContext(ctx, `
		UPDATE expenses
		SET status = 'processing',
		    claimed_at = ?,
		    attempt_count = attempt_count + 1,
		    updated_at = ?
		WHERE claim_id = (
			SELECT claim_id FROM expenses
			WHERE status = 'pending'
			ORDER BY created_at, claim_id
			LIMIT 1
		) AND status = 'pending'
		RETURNING claim_id
	`, claimTime.UTC(), claimTime.UTC()).Scan(&claimID)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending expense: %w", err)
	}

	return s.GetExpense(ctx, claimID)
}

// MarkPosted records a successful posting: the expense becomes posted and its
// candidate becomes matched in one transaction. Either both rows change or
// neither does, which is what keeps the matching one-to-one. A candidate that
// is no longer unmatched aborts the whole commit.
func (s *SQLiteStorage) MarkPosted(ctx context.Context, claimID, candidateID, ledgerRef string, confidence int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(claimID, "claimID"); err != nil {
		return err
	}
	if err := validateString(candidateID, "candidateID"); err != nil {
		return err
	}
	if err := validateString(ledgerRef, "ledgerRef"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ts := now()

	res, err := tx.ExecContext(ctx, `
		UPDATE expenses
		SET status = 'posted',
		    candidate_id = ?,
		    ledger_reference = ?,
		    confidence = ?,
		    posted_at = ?,
		    flag_reason = NULL,
		    last_error = NULL,
		    updated_at = ?
		WHERE claim_id = ? AND status = 'processing' AND ledger_reference IS NULL
	`, candidateID, ledgerRef, confidence, ts, ts, claimID)
	if err != nil {
		return fmt.Errorf("failed to mark expense posted: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("expense %s is not postable (already posted or not processing)", claimID)
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE candidates
		SET status = 'matched',
		    matched_claim_id = ?,
		    matched_at = ?
		WHERE id = ? AND status = 'unmatched'
	`, claimID, ts, candidateID)
	if err != nil {
		return fmt.Errorf("failed to mark candidate matched: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("candidate %s already claimed: %w", candidateID, common.ErrDuplicateEntry)
	}

	return tx.Commit()
}

// MarkFlagged routes an expense to human review with an enumerable reason.
func (s *SQLiteStorage) MarkFlagged(ctx context.Context, claimID, reason string, confidence int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(claimID, "claimID"); err != nil {
		return err
	}
	if err := validateString(reason, "reason"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE expenses
		SET status = 'flagged', flag_reason = ?, confidence = ?, last_error = NULL, updated_at = ?
		WHERE claim_id = ? AND status = 'processing'
	`, reason, confidence, now(), claimID)
	if err != nil {
		return fmt.Errorf("failed to flag expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("expense %s is not in processing: %w", claimID, common.ErrNotFound)
	}
	return nil
}

// MarkError moves an expense to the terminal error state.
func (s *SQLiteStorage) MarkError(ctx context.Context, claimID, lastError string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(claimID, "claimID"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE expenses
		SET status = 'error', last_error = ?, updated_at = ?
		WHERE claim_id = ? AND status IN ('processing', 'pending')
	`, lastError, now(), claimID)
	if err != nil {
		return fmt.Errorf("failed to mark expense errored: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("expense %s is not active: %w", claimID, common.ErrNotFound)
	}
	return nil
}

// ReleaseForRetry returns a processing record to pending after a retriable
// failure. The attempt counter stays as claimed; the next claim pays again.
func (s *SQLiteStorage) ReleaseForRetry(ctx context.Context, claimID, lastError string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(claimID, "claimID"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE expenses
		SET status = 'pending', claimed_at = NULL, last_error = ?, updated_at = ?
		WHERE claim_id = ? AND status = 'processing'
	`, lastError, now(), claimID)
	if err != nil {
		return fmt.Errorf("failed to release expense for retry: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("expense %s is not in processing: %w", claimID, common.ErrNotFound)
	}
	return nil
}

// ReopenExpense is the human-gated re-entry path. Only flagged and error
// records can re-enter the queue, and only through this call.
func (s *SQLiteStorage) ReopenExpense(ctx context.Context, claimID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(claimID, "claimID"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE expenses
		SET status = 'pending', claimed_at = NULL, flag_reason = NULL, last_error = NULL,
		    attempt_count = 0, updated_at = ?
		WHERE claim_id = ? AND status IN ('flagged', 'error')
	`, now(), claimID)
	if err != nil {
		return fmt.Errorf("failed to reopen expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("expense %s is not flagged or errored: %w", claimID, common.ErrNotFound)
	}
	return nil
}

// ResetStuck recovers records left in processing by a crashed worker. Records
// with attempts remaining go back to pending without touching attempt_count;
// records at the retry limit become terminal errors.
func (s *SQLiteStorage) ResetStuck(ctx context.Context, threshold time.Duration, maxAttempts int) (service.SweepResult, error) {
	var result service.SweepResult

	if err := validateContext(ctx); err != nil {
		return result, err
	}

	cutoff := now().Add(-threshold)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE expenses
		SET status = 'error',
		    last_error = 'stuck in processing and max retry attempts ('||attempt_count||') exhausted',
		    updated_at = ?
		WHERE status = 'processing' AND claimed_at < ? AND attempt_count >= ?
	`, now(), cutoff, maxAttempts)
	if err != nil {
		return result, fmt.Errorf("failed to error out exhausted stuck expenses: %w", err)
	}
	errored, _ := res.RowsAffected()
	result.Errored = int(errored)

	res, err = tx.ExecContext(ctx, `
		UPDATE expenses
		SET status = 'pending',
		    claimed_at = NULL,
		    last_error = 'recovered from stuck processing',
		    updated_at = ?
		WHERE status = 'processing' AND claimed_at < ? AND attempt_count < ?
	`, now(), cutoff, maxAttempts)
	if err != nil {
		return result, fmt.Errorf("failed to recover stuck expenses: %w", err)
	}
	recovered, _ := res.RowsAffected()
	result.Recovered = int(recovered)

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit stuck sweep: %w", err)
	}
	return result, nil
}

// RecordDateCorrection persists a claim date fixed during matching (the
// day/month inversion rescue). The original date survives in the audit trail.
func (s *SQLiteStorage) RecordDateCorrection(ctx context.Context, claimID string, corrected time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(claimID, "claimID"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE expenses SET claim_date = ?, updated_at = ? WHERE claim_id = ?
	`, corrected, now(), claimID)
	if err != nil {
		return fmt.Errorf("failed to record date correction: %w", err)
	}
	return nil
}

// rowScanner lets scanExpense work for both Row and Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (*model.ExpenseRecord, error) {
	var rec model.ExpenseRecord
	var category, jurisdictionTag, instrument, receiptRef sql.NullString
	var lastError, flagReason, candidateID, ledgerRef sql.NullString
	var claimedAt, postedAt sql.NullTime
	var status string

	err := row.Scan(
		&rec.ClaimID,
		&rec.ClaimDate,
		&rec.Amount,
		&rec.Payee,
		&category,
		&jurisdictionTag,
		&instrument,
		&receiptRef,
		&rec.EventRelated,
		&rec.HumanApproved,
		&status,
		&rec.AttemptCount,
		&claimedAt,
		&lastError,
		&flagReason,
		&rec.Confidence,
		&candidateID,
		&ledgerRef,
		&postedAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = model.ExpenseStatus(status)
	rec.Category = category.String
	rec.JurisdictionTag = jurisdictionTag.String
	rec.Instrument = instrument.String
	rec.ReceiptRef = receiptRef.String
	rec.LastError = lastError.String
	rec.FlagReason = flagReason.String
	rec.CandidateID = candidateID.String
	rec.LedgerReference = ledgerRef.String
	if claimedAt.Valid {
		t := claimedAt.Time
		rec.ClaimedAt = &t
	}
	if postedAt.Valid {
		t := postedAt.Time
		rec.PostedAt = &t
	}
	return &rec, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
