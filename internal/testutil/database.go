// Package testutil provides shared helpers for package tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pennywhistle/tally-ho/internal/model"
	"github.com/pennywhistle/tally-ho/internal/storage"
)

// NewTestStorage creates a migrated in-memory database that is cleaned up
// with the test.
func NewTestStorage(t *testing.T) *storage.SQLiteStorage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err, "failed to create test storage")

	require.NoError(t, store.Migrate(context.Background()), "failed to migrate test storage")

	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// Date builds a UTC midnight timestamp; test fixtures care about days, not
// clock times.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Expense builds a valid pending expense record with sensible defaults.
func Expense(claimID string, amount float64, payee string) model.ExpenseRecord {
	return model.ExpenseRecord{
		ClaimID:   claimID,
		ClaimDate: Date(2026, time.March, 14),
		Amount:    amount,
		Payee:     payee,
		Category:  "Travel",
	}
}

// Candidate builds an unmatched ledger candidate with sensible defaults.
func Candidate(id string, amount float64, description string) model.LedgerCandidate {
	return model.LedgerCandidate{
		ID:          id,
		TxnDate:     Date(2026, time.March, 14),
		Description: description,
		Amount:      amount,
		Source:      "amex-1001",
		Status:      model.CandidateUnmatched,
	}
}
