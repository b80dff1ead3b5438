package storage_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywhistle/tally-ho/internal/model"
	"github.com/pennywhistle/tally-ho/internal/testutil"
)

func TestInsertExpensesIdempotent(t *testing.T) {
	store := testutil.NewTestStorage(t)
	ctx := context.Background()

	batch := []model.ExpenseRecord{
		testutil.Expense("claim-001", 52.96, "Chevron"),
		testutil.Expense("claim-002", 120.00, "Marriott"),
	}

	result, err := store.InsertExpenses(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 0, result.Duplicates)

	// Re-submitting the same batch changes nothing.
	result, err = store.InsertExpenses(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, 2, result.Duplicates)

	expense, err := store.GetExpense(ctx, "claim-001")
	require.NoError(t, err)
	assert.Equal(t, model.ExpensePending, expense.Status)
	assert.Equal(t, 0, expense.AttemptCount)
}

func TestInsertExpensesRejectsInvalidWithoutFailingBatch(t *testing.T) {
	store := testutil.NewTestStorage(t)
	ctx := context.Background()

	invalid := testutil.Expense("claim-bad", 0, "Chevron") // non-positive amount
	valid := testutil.Expense("claim-good", 10.00, "Chevron")

	result, err := store.InsertExpenses(ctx, []model.ExpenseRecord{invalid, valid})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, "claim-bad", result.Rejected[0].ClaimID)

	_, err = store.GetExpense(ctx, "claim-good")
	assert.NoError(t, err)
}

func TestClaimNextPendingOrdersAndIncrements(t *testing.T) {
	store := testutil.NewTestStorage(t)
	ctx := context.Background()

	first := testutil.Expense("claim-a", 10, "One")
	second := testutil.Expense("claim-b", 20, "Two")
	_, err := store.InsertExpenses(ctx, []model.ExpenseRecord{first, second})
	require.NoError(t, err)

	claimed, err := store.ClaimNextPending(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, "claim-a", claimed.ClaimID)
	assert.Equal(t, model.ExpenseProcessing, claimed.Status)
	assert.Equal(t, 1, claimed.AttemptCount)
	require.NotNil(t, claimed.ClaimedAt)

	claimed, err = store.ClaimNextPending(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, "claim-b", claimed.ClaimID)

	// Queue drained.
	claimed, err = store.ClaimNextPending(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestClaimNextPendingConcurrentExclusivity(t *testing.T) {
	store := testutil.NewTestStorage(t)
	ctx := context.Background()

	const records = 10
	batch := make([]model.ExpenseRecord, 0, records)
	for i := 0; i < records; i++ {
		batch = append(batch, testutil.Expense(claimID(i), 10, "Vendor"))
	}
	_, err := store.InsertExpenses(ctx, batch)
	require.NoError(t, err)

	var (
		mu      sync.Mutex
		claimed = make(map[string]int)
		wg      sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				expense, err := store.ClaimNextPending(ctx, time.Now().UTC())
				if err != nil || expense == nil {
					return
				}
				mu.Lock()
				claimed[expense.ClaimID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, records)
	for id, count := range claimed {
		assert.Equal(t, 1, count, "claim %s handed out more than once", id)
	}
}

func TestMarkPostedCommitsBothTables(t *testing.T) {
	store := testutil.NewTestStorage(t)
	ctx := context.Background()

	_, err := store.InsertExpenses(ctx, []model.ExpenseRecord{testutil.Expense("claim-1", 52.96, "Chevron")})
	require.NoError(t, err)
	require.NoError(t, store.SaveCandidates(ctx, []model.LedgerCandidate{
		testutil.Candidate("cand-1", 52.96, "CHEVRON 00123 SANTA ROSA CA"),
	}))

	claimed, err := store.ClaimNextPending(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, claimed)

	require.NoError(t, store.MarkPosted(ctx, "claim-1", "cand-1", "ledger-ref-1", 100))

	expense, err := store.GetExpense(ctx, "claim-1")
	require.NoError(t, err)
	assert.Equal(t, model.ExpensePosted, expense.Status)
	assert.Equal(t, "ledger-ref-1", expense.LedgerReference)
	assert.Equal(t, "cand-1", expense.CandidateID)
	require.NotNil(t, expense.PostedAt)

	candidate, err := store.GetCandidate(ctx, "cand-1")
	require.NoError(t, err)
	assert.Equal(t, model.CandidateMatched, candidate.Status)
	assert.Equal(t, "claim-1", candidate.MatchedClaimID)
}

func TestMarkPostedRejectsSecondClaimant(t *testing.T) {
	store := testutil.NewTestStorage(t)
	ctx := context.Background()

	_, err := store.InsertExpenses(ctx, []model.ExpenseRecord{
		testutil.Expense("claim-1", 52.96, "Chevron"),
		testutil.Expense("claim-2", 52.96, "Chevron"),
	})
	require.NoError(t, err)
	require.NoError(t, store.SaveCandidates(ctx, []model.LedgerCandidate{
		testutil.Candidate("cand-1", 52.96, "CHEVRON"),
	}))

	for i := 0; i < 2; i++ {
		_, err := store.ClaimNextPending(ctx, time.Now().UTC())
		require.NoError(t, err)
	}

	require.NoError(t, store.MarkPosted(ctx, "claim-1", "cand-1", "ref-1", 100))

	// The second expense must not steal the already-matched candidate, and
	// the failed commit must leave it untouched.
	err = store.MarkPosted(ctx, "claim-2", "cand-1", "ref-2", 100)
	require.Error(t, err)

	expense, err := store.GetExpense(ctx, "claim-2")
	require.NoError(t, err)
	assert.Equal(t, model.ExpenseProcessing, expense.Status)
	assert.Empty(t, expense.LedgerReference)
}

func TestReleaseForRetryKeepsAttemptCount(t *testing.T) {
	store := testutil.NewTestStorage(t)
	ctx := context.Background()

	_, err := store.InsertExpenses(ctx, []model.ExpenseRecord{testutil.Expense("claim-1", 10, "Vendor")})
	require.NoError(t, err)

	claimed, err := store.ClaimNextPending(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 1, claimed.AttemptCount)

	require.NoError(t, store.ReleaseForRetry(ctx, "claim-1", "ledger timeout"))

	expense, err := store.GetExpense(ctx, "claim-1")
	require.NoError(t, err)
	assert.Equal(t, model.ExpensePending, expense.Status)
	assert.Equal(t, 1, expense.AttemptCount, "release must not change attempt_count")
	assert.Equal(t, "ledger timeout", expense.LastError)
	assert.Nil(t, expense.ClaimedAt)

	// The next claim pays for the next attempt.
	claimed, err = store.ClaimNextPending(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 2, claimed.AttemptCount)
}

func TestResetStuck(t *testing.T) {
	store := testutil.NewTestStorage(t)
	ctx := context.Background()

	_, err := store.InsertExpenses(ctx, []model.ExpenseRecord{
		testutil.Expense("claim-a-stuck", 10, "Vendor"),
		testutil.Expense("claim-b-exhausted", 20, "Vendor"),
		testutil.Expense("claim-c-fresh", 30, "Vendor"),
	})
	require.NoError(t, err)

	// claim-stuck: one attempt, claimed long ago.
	stale := time.Now().UTC().Add(-time.Hour)
	claimed, err := store.ClaimNextPending(ctx, stale)
	require.NoError(t, err)
	require.Equal(t, "claim-a-stuck", claimed.ClaimID)

	// claim-exhausted: burn through all attempts, then leave it stuck.
	for i := 0; i < 3; i++ {
		claimed, err = store.ClaimNextPending(ctx, stale)
		require.NoError(t, err)
		require.Equal(t, "claim-b-exhausted", claimed.ClaimID)
		if i < 2 {
			require.NoError(t, store.ReleaseForRetry(ctx, "claim-b-exhausted", "transient"))
		}
	}

	// claim-fresh: claimed just now, must be left alone.
	claimed, err = store.ClaimNextPending(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, "claim-c-fresh", claimed.ClaimID)

	result, err := store.ResetStuck(ctx, 15*time.Minute, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Recovered)
	assert.Equal(t, 1, result.Errored)

	recovered, err := store.GetExpense(ctx, "claim-a-stuck")
	require.NoError(t, err)
	assert.Equal(t, model.ExpensePending, recovered.Status)
	assert.Equal(t, 1, recovered.AttemptCount, "sweep must not re-increment attempt_count")

	errored, err := store.GetExpense(ctx, "claim-b-exhausted")
	require.NoError(t, err)
	assert.Equal(t, model.ExpenseError, errored.Status)
	assert.NotEmpty(t, errored.LastError)

	fresh, err := store.GetExpense(ctx, "claim-c-fresh")
	require.NoError(t, err)
	assert.Equal(t, model.ExpenseProcessing, fresh.Status)
}

func TestReopenExpense(t *testing.T) {
	store := testutil.NewTestStorage(t)
	ctx := context.Background()

	_, err := store.InsertExpenses(ctx, []model.ExpenseRecord{testutil.Expense("claim-1", 10, "Vendor")})
	require.NoError(t, err)

	_, err = store.ClaimNextPending(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, store.MarkFlagged(ctx, "claim-1", "confidence 60 below threshold 95", 60))

	require.NoError(t, store.ReopenExpense(ctx, "claim-1"))

	expense, err := store.GetExpense(ctx, "claim-1")
	require.NoError(t, err)
	assert.Equal(t, model.ExpensePending, expense.Status)
	assert.Equal(t, 0, expense.AttemptCount, "reopen grants a fresh attempt budget")

	// Reopening a pending record is not a valid transition.
	assert.Error(t, store.ReopenExpense(ctx, "claim-1"))
}

func TestMarkFlaggedRequiresProcessing(t *testing.T) {
	store := testutil.NewTestStorage(t)
	ctx := context.Background()

	_, err := store.InsertExpenses(ctx, []model.ExpenseRecord{testutil.Expense("claim-1", 10, "Vendor")})
	require.NoError(t, err)

	// Still pending: nobody owns it, so flagging must fail.
	assert.Error(t, store.MarkFlagged(ctx, "claim-1", "reason", 50))
}

func claimID(i int) string {
	return string(rune('a'+i)) + "-claim"
}
