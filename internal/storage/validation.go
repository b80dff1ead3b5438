// Package storage provides the data persistence layer for the reconciliation engine.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pennywhistle/tally-ho/internal/model"
)

// Validation errors.
var (
	ErrNilContext       = errors.New("context cannot be nil")
	ErrEmptyString      = errors.New("string parameter cannot be empty")
	ErrNilParameter     = errors.New("parameter cannot be nil")
	ErrEmptySlice       = errors.New("slice cannot be empty")
	ErrInvalidCandidate = errors.New("invalid ledger candidate")
	ErrInvalidAudit     = errors.New("invalid audit entry")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateCandidates validates a slice of ledger candidates.
func validateCandidates(candidates []model.LedgerCandidate) error {
	if candidates == nil {
		return fmt.Errorf("%w: candidates", ErrNilParameter)
	}
	if len(candidates) == 0 {
		return fmt.Errorf("%w: candidates", ErrEmptySlice)
	}

	for i, c := range candidates {
		if err := validateCandidate(&c); err != nil {
			return fmt.Errorf("candidate at index %d: %w", i, err)
		}
	}
	return nil
}

// validateCandidate validates a single ledger candidate.
func validateCandidate(c *model.LedgerCandidate) error {
	if c == nil {
		return fmt.Errorf("%w: candidate", ErrNilParameter)
	}
	if c.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidCandidate)
	}
	if c.TxnDate.IsZero() {
		return fmt.Errorf("%w: missing transaction date", ErrInvalidCandidate)
	}
	if c.Description == "" {
		return fmt.Errorf("%w: missing description", ErrInvalidCandidate)
	}
	return nil
}

// validateAuditEntry validates an audit entry before the append-only write.
func validateAuditEntry(entry *model.AuditEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: entry", ErrNilParameter)
	}
	if entry.ClaimID == "" {
		return fmt.Errorf("%w: missing claim id", ErrInvalidAudit)
	}
	if entry.Decision == "" {
		return fmt.Errorf("%w: missing decision", ErrInvalidAudit)
	}
	return nil
}
