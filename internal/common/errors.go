// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Reconciliation errors.
	ErrNoCandidate           = errors.New("no ledger candidate found")
	ErrAmbiguousJurisdiction = errors.New("jurisdiction could not be resolved")
	ErrAmbiguousCategory     = errors.New("category could not be resolved")

	// Ledger poster errors.
	ErrStructuralPosting   = errors.New("ledger poster rejected posting")
	ErrTransientDownstream = errors.New("transient downstream failure")

	// Configuration errors.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	// Structural rejections never heal on retry
	if errors.Is(err, ErrStructuralPosting) {
		return false
	}

	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrTransientDownstream) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
