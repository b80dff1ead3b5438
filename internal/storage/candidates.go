package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pennywhistle/tally-ho/internal/common"
	"github.com/pennywhistle/tally-ho/internal/model"
)

const candidateColumns = `id, txn_date, description, amount, source, status,
	matched_claim_id, matched_at, orphan_category, orphan_jurisdiction,
	orphan_processed_at, created_at`

// SaveCandidates stores a batch of ledger candidates from the out-of-band
// feed import. Re-imports of the same id are ignored.
func (s *SQLiteStorage) SaveCandidates(ctx context.Context, candidates []model.LedgerCandidate) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCandidates(candidates); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO candidates (id, txn_date, description, amount, source, status, created_at)
		VALUES (?, ?, ?, ?, ?, 'unmatched', ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	ts := now()
	for _, c := range candidates {
		if _, err := stmt.ExecContext(ctx, c.ID, c.TxnDate, c.Description, c.Amount, nullString(c.Source), ts); err != nil {
			return fmt.Errorf("failed to insert candidate %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// GetCandidate retrieves a single ledger candidate by id.
func (s *SQLiteStorage) GetCandidate(ctx context.Context, id string) (*model.LedgerCandidate, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE id = ?`, id)

	c, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("candidate %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}
	return c, nil
}

// GetCandidatesInWindow returns unmatched candidates whose transaction date
// falls within [start, end]. An empty source matches every instrument.
func (s *SQLiteStorage) GetCandidatesInWindow(ctx context.Context, source string, start, end time.Time) ([]model.LedgerCandidate, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if start.After(end) {
		return nil, fmt.Errorf("window start %s is after end %s", start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	query := `SELECT ` + candidateColumns + ` FROM candidates
		WHERE status = 'unmatched' AND txn_date >= ? AND txn_date <= ?`
	args := []any{start, end}
	if source != "" {
		query += ` AND source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY txn_date, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates in window: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectCandidates(rows)
}

// GetOrphanCandidates returns unmatched candidates older than the cutoff,
// oldest first, for the orphan categorization pass.
func (s *SQLiteStorage) GetOrphanCandidates(ctx context.Context, before time.Time, limit int) ([]model.LedgerCandidate, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+candidateColumns+` FROM candidates
		WHERE status = 'unmatched' AND txn_date < ?
		ORDER BY txn_date, id
		LIMIT ?
	`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query orphan candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectCandidates(rows)
}

// MarkCandidateExcluded freezes a candidate out of matching (personal charge,
// duplicate feed row, transfer).
func (s *SQLiteStorage) MarkCandidateExcluded(ctx context.Context, id, reason string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE candidates
		SET status = 'excluded', orphan_category = ?, orphan_processed_at = ?
		WHERE id = ? AND status = 'unmatched'
	`, nullString(reason), now(), id)
	if err != nil {
		return fmt.Errorf("failed to exclude candidate: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("candidate %s is not unmatched: %w", id, common.ErrNotFound)
	}
	return nil
}

// MarkCandidateOrphanPosted records an orphan posted independently to the
// ledger with its determined category and jurisdiction.
func (s *SQLiteStorage) MarkCandidateOrphanPosted(ctx context.Context, id, category, jurisdiction, ledgerRef string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if err := validateString(ledgerRef, "ledgerRef"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE candidates
		SET status = 'orphan_processed',
		    orphan_category = ?,
		    orphan_jurisdiction = ?,
		    ledger_reference = ?,
		    orphan_processed_at = ?
		WHERE id = ? AND status = 'unmatched'
	`, category, jurisdiction, ledgerRef, now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark orphan processed: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("candidate %s is not unmatched: %w", id, common.ErrNotFound)
	}
	return nil
}

// MarkCandidatePendingReview parks a low-confidence orphan for a human, with
// the advisor's best guess attached.
func (s *SQLiteStorage) MarkCandidatePendingReview(ctx context.Context, id, category, jurisdiction string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE candidates
		SET status = 'pending_review', orphan_category = ?, orphan_jurisdiction = ?
		WHERE id = ? AND status = 'unmatched'
	`, nullString(category), nullString(jurisdiction), id)
	if err != nil {
		return fmt.Errorf("failed to park candidate for review: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("candidate %s is not unmatched: %w", id, common.ErrNotFound)
	}
	return nil
}

func collectCandidates(rows *sql.Rows) ([]model.LedgerCandidate, error) {
	var candidates []model.LedgerCandidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate candidates: %w", err)
	}
	return candidates, nil
}

func scanCandidate(row rowScanner) (*model.LedgerCandidate, error) {
	var c model.LedgerCandidate
	var source, matchedClaimID, orphanCategory, orphanJurisdiction sql.NullString
	var matchedAt, orphanProcessedAt sql.NullTime
	var status string

	err := row.Scan(
		&c.ID,
		&c.TxnDate,
		&c.Description,
		&c.Amount,
		&source,
		&status,
		&matchedClaimID,
		&matchedAt,
		&orphanCategory,
		&orphanJurisdiction,
		&orphanProcessedAt,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Status = model.CandidateStatus(status)
	c.Source = source.String
	c.MatchedClaimID = matchedClaimID.String
	c.OrphanCategory = orphanCategory.String
	c.OrphanJurisdiction = orphanJurisdiction.String
	if matchedAt.Valid {
		t := matchedAt.Time
		c.MatchedAt = &t
	}
	if orphanProcessedAt.Valid {
		t := orphanProcessedAt.Time
		c.OrphanProcessedAt = &t
	}
	return &c, nil
}
