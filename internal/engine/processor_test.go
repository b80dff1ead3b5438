package engine_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywhistle/tally-ho/internal/common"
	"github.com/pennywhistle/tally-ho/internal/decide"
	"github.com/pennywhistle/tally-ho/internal/engine"
	"github.com/pennywhistle/tally-ho/internal/match"
	"github.com/pennywhistle/tally-ho/internal/model"
	"github.com/pennywhistle/tally-ho/internal/resolve"
	"github.com/pennywhistle/tally-ho/internal/service"
	"github.com/pennywhistle/tally-ho/internal/storage"
	"github.com/pennywhistle/tally-ho/internal/testutil"
)

// fakePoster records postings and can be scripted to fail or block.
type fakePoster struct {
	postErr     error
	block       chan struct{}
	mu          sync.Mutex
	postings    []service.Posting
	attachCalls int
	refSeq      int
}

func (f *fakePoster) FindOrCreatePayee(_ context.Context, name string) (string, error) {
	return "entity-" + name, nil
}

func (f *fakePoster) Post(_ context.Context, p service.Posting) (string, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return "", f.postErr
	}
	f.postings = append(f.postings, p)
	f.refSeq++
	return fmt.Sprintf("ref-%d", f.refSeq), nil
}

func (f *fakePoster) Attach(_ context.Context, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attachCalls++
	return nil
}

func fastConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.BackoffInitial = time.Millisecond
	cfg.BackoffCeiling = 4 * time.Millisecond
	return cfg
}

func newProcessor(t *testing.T, store *storage.SQLiteStorage, ledger service.LedgerPoster) *engine.Processor {
	t.Helper()
	matcher := match.New(store, match.DefaultConfig())
	resolver := resolve.New(store, nil, "NC")
	decider := decide.New(decide.DefaultConfig())
	return engine.NewProcessor(store, matcher, resolver, decider, ledger, nil, fastConfig())
}

func queueExpense(t *testing.T, store *storage.SQLiteStorage, expense model.ExpenseRecord) *model.ExpenseRecord {
	t.Helper()
	ctx := context.Background()
	_, err := store.InsertExpenses(ctx, []model.ExpenseRecord{expense})
	require.NoError(t, err)
	claimed, err := store.ClaimNextPending(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, claimed)
	return claimed
}

func TestProcessApprovesAndPosts(t *testing.T) {
	store := testutil.NewTestStorage(t)
	ctx := context.Background()
	ledger := &fakePoster{}
	processor := newProcessor(t, store, ledger)

	require.NoError(t, store.SaveCandidates(ctx, []model.LedgerCandidate{
		testutil.Candidate("cand-1", 52.96, "CHEVRON 00123 SANTA ROSA CA"),
	}))

	claim := testutil.Expense("claim-1", 52.96, "Chevron")
	claim.JurisdictionTag = "California - CA"
	claim.ReceiptRef = "receipts/claim-1.pdf"
	claimed := queueExpense(t, store, claim)

	require.NoError(t, processor.Process(ctx, claimed))

	expense, err := store.GetExpense(ctx, "claim-1")
	require.NoError(t, err)
	assert.Equal(t, model.ExpensePosted, expense.Status)
	assert.Equal(t, "ref-1", expense.LedgerReference)
	assert.Equal(t, 100, expense.Confidence)

	candidate, err := store.GetCandidate(ctx, "cand-1")
	require.NoError(t, err)
	assert.Equal(t, model.CandidateMatched, candidate.Status)
	assert.Equal(t, "claim-1", candidate.MatchedClaimID)

	require.Len(t, ledger.postings, 1)
	assert.Equal(t, "entity-Chevron", ledger.postings[0].PayeeEntity)
	assert.Equal(t, "CA", ledger.postings[0].JurisdictionTag)
	assert.Equal(t, 1, ledger.attachCalls)

	trail, err := store.GetAuditTrail(ctx, "claim-1")
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, model.DecisionApprove, trail[0].Decision)
	assert.Equal(t, "ref-1", trail[0].LedgerReference)
}

func TestProcessFlagsWhenNoCandidate(t *testing.T) {
	store := testutil.NewTestStorage(t)
	ctx := context.Background()
	processor := newProcessor(t, store, &fakePoster{})

	claim := testutil.Expense("claim-1", 500.00, "Unknown Vendor")
	claim.JurisdictionTag = "California - CA"
	claim.ReceiptRef = "receipts/claim-1.pdf"
	claimed := queueExpense(t, store, claim)

	require.NoError(t, processor.Process(ctx, claimed))

	expense, err := store.GetExpense(ctx, "claim-1")
	require.NoError(t, err)
	assert.Equal(t, model.ExpenseFlagged, expense.Status)
	assert.Contains(t, expense.FlagReason, "no ledger candidate found")

	trail, err := store.GetAuditTrail(ctx, "claim-1")
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, model.DecisionReimbursement, trail[0].Decision)
}

func TestProcessReleasesOnTransientFailure(t *testing.T) {
	store := testutil.NewTestStorage(t)
	ctx := context.Background()
	ledger := &fakePoster{postErr: fmt.Errorf("%w: ledger timeout", common.ErrTransientDownstream)}
	processor := newProcessor(t, store, ledger)

	require.NoError(t, store.SaveCandidates(ctx, []model.LedgerCandidate{
		testutil.Candidate("cand-1", 52.96, "CHEVRON 00123"),
	}))

	claim := testutil.Expense("claim-1", 52.96, "Chevron")
	claim.JurisdictionTag = "California - CA"
	claim.ReceiptRef = "receipts/claim-1.pdf"
	claimed := queueExpense(t, store, claim)

	require.Error(t, processor.Process(ctx, claimed))

	expense, err := store.GetExpense(ctx, "claim-1")
	require.NoError(t, err)
	assert.Equal(t, model.ExpensePending, expense.Status)
	assert.Equal(t, 1, expense.AttemptCount)
	assert.Contains(t, expense.LastError, "ledger timeout")
}

func TestProcessGoesTerminalWhenAttemptsExhausted(t *testing.T) {
	store := testutil.NewTestStorage(t)
	ctx := context.Background()
	ledger := &fakePoster{postErr: fmt.Errorf("%w: ledger timeout", common.ErrTransientDownstream)}
	processor := newProcessor(t, store, ledger)

	require.NoError(t, store.SaveCandidates(ctx, []model.LedgerCandidate{
		testutil.Candidate("cand-1", 52.96, "CHEVRON 00123"),
	}))

	claim := testutil.Expense("claim-1", 52.96, "Chevron")
	claim.JurisdictionTag = "California - CA"
	claim.ReceiptRef = "receipts/claim-1.pdf"

	_, err := store.InsertExpenses(ctx, []model.ExpenseRecord{claim})
	require.NoError(t, err)

	// Each claim+process round burns one attempt; the third goes terminal.
	for i := 0; i < 3; i++ {
		claimed, err := store.ClaimNextPending(ctx, time.Now().UTC())
		require.NoError(t, err)
		require.NotNil(t, claimed, "attempt %d", i+1)
		require.Error(t, processor.Process(ctx, claimed))
	}

	expense, err := store.GetExpense(ctx, "claim-1")
	require.NoError(t, err)
	assert.Equal(t, model.ExpenseError, expense.Status)
	assert.Equal(t, 3, expense.AttemptCount)

	// Terminal error records never return to pending on their own.
	claimed, err := store.ClaimNextPending(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestProcessStructuralFailureIsImmediatelyTerminal(t *testing.T) {
	store := testutil.NewTestStorage(t)
	ctx := context.Background()
	ledger := &fakePoster{postErr: fmt.Errorf("%w: unknown category account", common.ErrStructuralPosting)}
	processor := newProcessor(t, store, ledger)

	require.NoError(t, store.SaveCandidates(ctx, []model.LedgerCandidate{
		testutil.Candidate("cand-1", 52.96, "CHEVRON 00123"),
	}))

	claim := testutil.Expense("claim-1", 52.96, "Chevron")
	claim.JurisdictionTag = "California - CA"
	claim.ReceiptRef = "receipts/claim-1.pdf"
	claimed := queueExpense(t, store, claim)

	require.Error(t, processor.Process(ctx, claimed))

	expense, err := store.GetExpense(ctx, "claim-1")
	require.NoError(t, err)
	assert.Equal(t, model.ExpenseError, expense.Status, "structural rejections must not be retried")
	assert.Equal(t, 1, expense.AttemptCount)
}

func TestProcessRecordsDateCorrection(t *testing.T) {
	store := testutil.NewTestStorage(t)
	ctx := context.Background()
	processor := newProcessor(t, store, &fakePoster{})

	// Feed row at April 3; claim filed as March 4.
	inverted := testutil.Candidate("cand-1", 52.96, "CHEVRON 00123")
	inverted.TxnDate = testutil.Date(2026, time.April, 3)
	require.NoError(t, store.SaveCandidates(ctx, []model.LedgerCandidate{inverted}))

	claim := testutil.Expense("claim-1", 52.96, "Chevron")
	claim.ClaimDate = testutil.Date(2026, time.March, 4)
	claim.JurisdictionTag = "California - CA"
	claim.ReceiptRef = "receipts/claim-1.pdf"
	claimed := queueExpense(t, store, claim)

	require.NoError(t, processor.Process(ctx, claimed))

	expense, err := store.GetExpense(ctx, "claim-1")
	require.NoError(t, err)
	assert.Equal(t, model.ExpensePosted, expense.Status)
	assert.Equal(t, testutil.Date(2026, time.April, 3), expense.ClaimDate.UTC())
}
