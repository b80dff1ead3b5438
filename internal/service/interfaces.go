// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/pennywhistle/tally-ho/internal/model"
)

// Storage defines the contract for the durable work record and ledger
// candidate stores. All mutation happens through atomic single-row
// conditional updates; the one exception is MarkPosted, which commits the
// expense and its candidate together.
type Storage interface {
	// Expense queue operations
	InsertExpenses(ctx context.Context, records []model.ExpenseRecord) (IngestResult, error)
	GetExpense(ctx context.Context, claimID string) (*model.ExpenseRecord, error)
	CountProcessing(ctx context.Context) (int, error)
	// ClaimNextPending atomically moves the oldest pending record to
	// processing, stamping claimed_at and incrementing attempt_count.
	// Returns nil when no pending record remains.
	ClaimNextPending(ctx context.Context, now time.Time) (*model.ExpenseRecord, error)
	// MarkPosted commits the posted expense and its matched candidate in a
	// single transaction; both rows change or neither does.
	MarkPosted(ctx context.Context, claimID, candidateID, ledgerRef string, confidence int) error
	MarkFlagged(ctx context.Context, claimID, reason string, confidence int) error
	MarkError(ctx context.Context, claimID, lastError string) error
	// ReleaseForRetry returns a processing record to pending after a
	// retriable failure, recording the error without touching attempt_count
	// (the claim already paid for this attempt).
	ReleaseForRetry(ctx context.Context, claimID, lastError string) error
	// ReopenExpense is the human-gated re-entry path flagged->pending and
	// error->pending. It is never called automatically.
	ReopenExpense(ctx context.Context, claimID string) error
	// ResetStuck recovers records stuck in processing longer than threshold:
	// back to pending while attempts remain, terminal error otherwise.
	ResetStuck(ctx context.Context, threshold time.Duration, maxAttempts int) (SweepResult, error)
	RecordDateCorrection(ctx context.Context, claimID string, corrected time.Time) error

	// Ledger candidate operations
	GetCandidatesInWindow(ctx context.Context, source string, start, end time.Time) ([]model.LedgerCandidate, error)
	SaveCandidates(ctx context.Context, candidates []model.LedgerCandidate) error
	GetCandidate(ctx context.Context, id string) (*model.LedgerCandidate, error)
	GetOrphanCandidates(ctx context.Context, before time.Time, limit int) ([]model.LedgerCandidate, error)
	MarkCandidateExcluded(ctx context.Context, id, reason string) error
	MarkCandidateOrphanPosted(ctx context.Context, id, category, jurisdiction, ledgerRef string) error
	MarkCandidatePendingReview(ctx context.Context, id, category, jurisdiction string) error

	// Merchant rule operations
	GetMatchingRule(ctx context.Context, payee string) (*model.MerchantRule, error)
	IncrementRuleUseCount(ctx context.Context, pattern string) error

	// Audit trail
	AppendAudit(ctx context.Context, entry *model.AuditEntry) error

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// IngestResult summarizes one intake batch.
type IngestResult struct {
	Rejected   []RejectedRecord
	Inserted   int
	Duplicates int
}

// RejectedRecord is a batch item that failed validation. Rejections never
// fail the batch.
type RejectedRecord struct {
	ClaimID string
	Reason  string
}

// SweepResult summarizes one stuck-recovery pass.
type SweepResult struct {
	Recovered int
	Errored   int
}

// Posting is the narrow contract handed to the ledger poster.
type Posting struct {
	Date            time.Time
	PayerAccount    string
	PayeeEntity     string
	CategoryAccount string
	JurisdictionTag string
	Memo            string
	Amount          float64
}

// LedgerPoster posts approved expenses to the external accounting system.
type LedgerPoster interface {
	FindOrCreatePayee(ctx context.Context, name string) (string, error)
	Post(ctx context.Context, p Posting) (string, error)
	Attach(ctx context.Context, ledgerRef, fileHandle string) error
}

// EventLookup resolves the jurisdiction of a scheduled event covering a date
// range. Returns an empty string when no event matches.
type EventLookup interface {
	JurisdictionForDateRange(ctx context.Context, start, end time.Time) (string, error)
}

// OrphanAction is what the advisor wants done with an unmatched candidate.
type OrphanAction string

// Orphan actions.
const (
	OrphanProcess OrphanAction = "process"
	OrphanExclude OrphanAction = "exclude"
)

// OrphanVerdict is the advisor's categorization of an orphan candidate.
type OrphanVerdict struct {
	Action       OrphanAction
	Category     string
	Jurisdiction string
	Reason       string
	Confidence   int
}

// Advisor is the optional external advisory signal. Its uncertainty and
// latency must never leak into the state machine's invariants.
type Advisor interface {
	Assess(ctx context.Context, expense model.ExpenseRecord, candidate *model.LedgerCandidate) (model.Assessment, error)
	ClassifyOrphan(ctx context.Context, candidate model.LedgerCandidate) (OrphanVerdict, error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
