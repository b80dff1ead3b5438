// Package engine drives expense records through the reconciliation pipeline:
// claiming, matching, resolving, deciding, and posting.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pennywhistle/tally-ho/internal/common"
	"github.com/pennywhistle/tally-ho/internal/decide"
	"github.com/pennywhistle/tally-ho/internal/match"
	"github.com/pennywhistle/tally-ho/internal/model"
	"github.com/pennywhistle/tally-ho/internal/resolve"
	"github.com/pennywhistle/tally-ho/internal/service"
)

// Config holds the dispatcher and retry settings.
type Config struct {
	PayerAccount   string
	MaxConcurrent  int
	MaxAttempts    int
	StuckThreshold time.Duration
	SweepInterval  time.Duration
	BackoffInitial time.Duration
	BackoffCeiling time.Duration
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		PayerAccount:   "corporate-card",
		MaxConcurrent:  5,
		MaxAttempts:    3,
		StuckThreshold: 15 * time.Minute,
		SweepInterval:  5 * time.Minute,
		BackoffInitial: time.Second,
		BackoffCeiling: 8 * time.Second,
	}
}

// Processor runs one claimed expense to a terminal state or back to pending.
// It never touches records it did not claim; every state transition goes
// through the storage layer's guarded updates.
type Processor struct {
	store    service.Storage
	matcher  *match.Matcher
	resolver *resolve.Resolver
	decider  *decide.Engine
	poster   service.LedgerPoster
	advisor  service.Advisor
	cfg      Config
}

// NewProcessor creates a processor. advisor may be nil; the advisory step is
// then skipped entirely.
func NewProcessor(store service.Storage, matcher *match.Matcher, resolver *resolve.Resolver, decider *decide.Engine, poster service.LedgerPoster, advisor service.Advisor, cfg Config) *Processor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = DefaultConfig().BackoffInitial
	}
	if cfg.BackoffCeiling < cfg.BackoffInitial {
		cfg.BackoffCeiling = DefaultConfig().BackoffCeiling
	}
	return &Processor{
		store:    store,
		matcher:  matcher,
		resolver: resolver,
		decider:  decider,
		poster:   poster,
		advisor:  advisor,
		cfg:      cfg,
	}
}

// Process takes a record the dispatcher already claimed (status processing)
// and drives it to posted, flagged, error, or back to pending for another
// attempt. The returned error is for logging only; the record's fate is
// already durable by the time Process returns.
func (p *Processor) Process(ctx context.Context, expense *model.ExpenseRecord) error {
	logger := slog.With("claim_id", expense.ClaimID, "attempt", expense.AttemptCount)

	result, err := p.matcher.FindCandidates(ctx, expense)
	if err != nil {
		return p.fail(ctx, expense, fmt.Errorf("matching failed: %w", err))
	}

	var candidate *model.LedgerCandidate
	if result.Found() {
		candidate = &result.Best.Candidate
		if result.Best.DateCorrected {
			if dcErr := p.store.RecordDateCorrection(ctx, expense.ClaimID, result.Best.CorrectedDate); dcErr != nil {
				logger.Warn("Failed to record date correction", "error", dcErr)
			} else {
				logger.Info("Claim date corrected via day/month inversion",
					"corrected_date", result.Best.CorrectedDate.Format("2006-01-02"))
			}
		}
	}

	resolution, err := p.resolver.Resolve(ctx, expense, candidate)
	if err != nil {
		return p.fail(ctx, expense, fmt.Errorf("resolution failed: %w", err))
	}

	// The advisory signal is consulted after the deterministic pipeline and
	// can only reduce confidence; its failures never fail the expense.
	var assessment *model.Assessment
	if p.advisor != nil {
		a, aErr := p.advisor.Assess(ctx, *expense, candidate)
		if aErr != nil {
			logger.Warn("Advisory assessment failed, continuing without it", "error", aErr)
		} else if a.Severity != model.AdvisoryNone {
			assessment = &a
		}
	}

	outcome := p.decider.Decide(decide.Input{
		Assessment:        assessment,
		Resolution:        resolution,
		Amount:            expense.Amount,
		CandidatesChecked: result.Checked,
		MatchFound:        result.Found(),
		HumanApproved:     expense.HumanApproved,
		HasReceipt:        expense.HasReceipt(),
	})

	logger = logger.With("decision", string(outcome.Decision), "confidence", outcome.Confidence)

	switch outcome.Decision {
	case model.DecisionApprove:
		if err := p.post(ctx, expense, result.Best, resolution, outcome); err != nil {
			return p.fail(ctx, expense, err)
		}
		logger.Info("Expense posted")
		return nil
	default:
		reason := strings.Join(outcome.Reasons, "; ")
		if err := p.store.MarkFlagged(ctx, expense.ClaimID, reason, outcome.Confidence); err != nil {
			return p.fail(ctx, expense, fmt.Errorf("failed to flag expense: %w", err))
		}
		p.audit(ctx, expense, outcome, resolution, "", "")
		logger.Info("Expense flagged for review", "reason", reason)
		return nil
	}
}

// post runs the approval path: payee, ledger post, then the atomic two-table
// commit. A structural rejection surfaces as a non-retriable error.
func (p *Processor) post(ctx context.Context, expense *model.ExpenseRecord, best *model.CandidateScore, resolution model.Resolution, outcome model.Outcome) error {
	payee, err := p.poster.FindOrCreatePayee(ctx, expense.Payee)
	if err != nil {
		return fmt.Errorf("failed to resolve payee %q: %w", expense.Payee, err)
	}

	posting := service.Posting{
		Date:            best.Candidate.TxnDate,
		PayerAccount:    p.cfg.PayerAccount,
		PayeeEntity:     payee,
		CategoryAccount: resolution.Category,
		JurisdictionTag: resolution.Jurisdiction,
		Memo:            fmt.Sprintf("%s (%s)", expense.Payee, expense.ClaimID),
		Amount:          expense.Amount,
	}

	ledgerRef, err := p.poster.Post(ctx, posting)
	if err != nil {
		return fmt.Errorf("failed to post to ledger: %w", err)
	}

	if err := p.store.MarkPosted(ctx, expense.ClaimID, best.Candidate.ID, ledgerRef, outcome.Confidence); err != nil {
		// The ledger entry exists but the local commit failed; this needs
		// eyes, not a blind retry that would double-post.
		return &common.RetryableError{
			Err:       fmt.Errorf("ledger entry %s created but local commit failed: %w", ledgerRef, err),
			Retryable: false,
		}
	}

	p.audit(ctx, expense, outcome, resolution, best.Candidate.ID, ledgerRef)

	if expense.HasReceipt() {
		if err := p.poster.Attach(ctx, ledgerRef, expense.ReceiptRef); err != nil {
			slog.Warn("Failed to attach receipt",
				"claim_id", expense.ClaimID,
				"ledger_reference", ledgerRef,
				"error", err)
		}
	}
	return nil
}

// fail routes a processing failure: retriable errors return the record to
// pending (after a capped backoff) while attempts remain, everything else goes
// terminal.
func (p *Processor) fail(ctx context.Context, expense *model.ExpenseRecord, cause error) error {
	logger := slog.With("claim_id", expense.ClaimID, "attempt", expense.AttemptCount)

	if common.IsRetryable(cause) && expense.AttemptCount < p.cfg.MaxAttempts {
		delay := common.Backoff(expense.AttemptCount, p.cfg.BackoffInitial, p.cfg.BackoffCeiling)
		logger.Warn("Transient failure, releasing for retry", "delay", delay, "error", cause)

		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}

		if err := p.store.ReleaseForRetry(ctx, expense.ClaimID, cause.Error()); err != nil {
			logger.Error("Failed to release expense for retry", "error", err)
			return errors.Join(cause, err)
		}
		return cause
	}

	logger.Error("Expense failed terminally", "error", cause)
	if err := p.store.MarkError(ctx, expense.ClaimID, cause.Error()); err != nil {
		logger.Error("Failed to mark expense errored", "error", err)
		return errors.Join(cause, err)
	}
	p.audit(ctx, expense, model.Outcome{
		Decision: model.DecisionError,
		Reasons:  []string{cause.Error()},
	}, model.Resolution{}, "", "")
	return cause
}

// audit appends the decision to the trail. The terminal transition is already
// committed, so an audit write failure is logged, never propagated.
func (p *Processor) audit(ctx context.Context, expense *model.ExpenseRecord, outcome model.Outcome, resolution model.Resolution, candidateID, ledgerRef string) {
	entry := &model.AuditEntry{
		ClaimID:         expense.ClaimID,
		Decision:        outcome.Decision,
		Category:        resolution.Category,
		Jurisdiction:    resolution.Jurisdiction,
		CandidateID:     candidateID,
		LedgerReference: ledgerRef,
		Reason:          strings.Join(outcome.Reasons, "; "),
		Confidence:      outcome.Confidence,
	}
	if err := p.store.AppendAudit(ctx, entry); err != nil {
		slog.Warn("Failed to append audit entry",
			"claim_id", expense.ClaimID,
			"error", err)
	}
}
