package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pennywhistle/tally-ho/internal/model"
)

// GetMatchingRule returns the first merchant rule whose pattern appears in
// the payee text, longest pattern first so the most specific rule wins.
// Returns nil when no rule matches; that is not an error.
func (s *SQLiteStorage) GetMatchingRule(ctx context.Context, payee string) (*model.MerchantRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(payee, "payee"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT pattern, category, jurisdiction, note, use_count, last_used
		FROM merchant_rules
		ORDER BY LENGTH(pattern) DESC, pattern
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query merchant rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		rule, scanErr := scanRule(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan merchant rule: %w", scanErr)
		}
		if rule.Matches(payee) {
			return rule, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate merchant rules: %w", err)
	}
	return nil, nil
}

// SaveRule inserts or replaces a merchant rule. Rules are reference data
// maintained outside the core; this exists for seeding and tests.
func (s *SQLiteStorage) SaveRule(ctx context.Context, rule *model.MerchantRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if err := validateString(rule.Pattern, "pattern"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO merchant_rules (pattern, category, jurisdiction, note, use_count, last_used)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(pattern) DO UPDATE SET
			category = excluded.category,
			jurisdiction = excluded.jurisdiction,
			note = excluded.note
	`, rule.Pattern, nullString(rule.Category), nullString(rule.Jurisdiction),
		nullString(rule.Note), rule.UseCount, nullTime(rule.LastUsed))
	if err != nil {
		return fmt.Errorf("failed to save merchant rule: %w", err)
	}
	return nil
}

// IncrementRuleUseCount bumps a rule's advisory usage counter. Failures here
// never affect reconciliation correctness.
func (s *SQLiteStorage) IncrementRuleUseCount(ctx context.Context, pattern string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(pattern, "pattern"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE merchant_rules SET use_count = use_count + 1, last_used = ? WHERE pattern = ?
	`, now(), pattern)
	if err != nil {
		return fmt.Errorf("failed to increment rule use count: %w", err)
	}
	return nil
}

func scanRule(row rowScanner) (*model.MerchantRule, error) {
	var rule model.MerchantRule
	var category, jurisdiction, note sql.NullString
	var lastUsed sql.NullTime

	err := row.Scan(&rule.Pattern, &category, &jurisdiction, &note, &rule.UseCount, &lastUsed)
	if err != nil {
		return nil, err
	}

	rule.Category = category.String
	rule.Jurisdiction = jurisdiction.String
	rule.Note = note.String
	if lastUsed.Valid {
		rule.LastUsed = lastUsed.Time
	}
	return &rule, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
