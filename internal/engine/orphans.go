package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pennywhistle/tally-ho/internal/model"
	"github.com/pennywhistle/tally-ho/internal/service"
)

// OrphanConfig holds the orphan pass settings.
type OrphanConfig struct {
	PayerAccount string
	// AgeDays is how long a candidate must sit unmatched before the pass
	// considers it abandoned.
	AgeDays int
	// MaxPerRun bounds one pass so a backlog never floods the ledger.
	MaxPerRun int
	// MinConfidence is the advisor confidence below which a candidate is
	// parked for human review instead of posted.
	MinConfidence int
}

// DefaultOrphanConfig returns the default orphan pass settings.
func DefaultOrphanConfig() OrphanConfig {
	return OrphanConfig{
		PayerAccount:  "corporate-card",
		AgeDays:       5,
		MaxPerRun:     20,
		MinConfidence: 70,
	}
}

// OrphanReport summarizes one orphan pass.
type OrphanReport struct {
	Examined int
	Posted   int
	Excluded int
	Parked   int
	Failed   int
}

// OrphanProcessor sweeps up ledger candidates that aged out of matching: real
// charges nobody filed a claim for. Without an advisor it only reports; it
// never guesses a category on its own.
type OrphanProcessor struct {
	store   service.Storage
	poster  service.LedgerPoster
	advisor service.Advisor
	cfg     OrphanConfig
}

// NewOrphanProcessor creates an orphan processor. advisor may be nil.
func NewOrphanProcessor(store service.Storage, poster service.LedgerPoster, advisor service.Advisor, cfg OrphanConfig) *OrphanProcessor {
	d := DefaultOrphanConfig()
	if cfg.AgeDays <= 0 {
		cfg.AgeDays = d.AgeDays
	}
	if cfg.MaxPerRun <= 0 {
		cfg.MaxPerRun = d.MaxPerRun
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = d.MinConfidence
	}
	if cfg.PayerAccount == "" {
		cfg.PayerAccount = d.PayerAccount
	}
	return &OrphanProcessor{store: store, poster: poster, advisor: advisor, cfg: cfg}
}

// Run executes one orphan pass. Per-candidate failures are counted and
// logged; only a failure to list candidates fails the pass.
func (o *OrphanProcessor) Run(ctx context.Context) (OrphanReport, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -o.cfg.AgeDays)

	candidates, err := o.store.GetOrphanCandidates(ctx, cutoff, o.cfg.MaxPerRun)
	if err != nil {
		return OrphanReport{}, fmt.Errorf("failed to list orphan candidates: %w", err)
	}

	report := OrphanReport{Examined: len(candidates)}
	if len(candidates) == 0 {
		return report, nil
	}

	if o.advisor == nil {
		slog.Info("Orphan candidates found but no advisor configured; reporting only",
			"count", len(candidates),
			"older_than_days", o.cfg.AgeDays)
		return report, nil
	}

	for _, candidate := range candidates {
		logger := slog.With("candidate_id", candidate.ID, "amount", candidate.Amount)

		verdict, err := o.advisor.ClassifyOrphan(ctx, candidate)
		if err != nil {
			logger.Warn("Orphan classification failed", "error", err)
			report.Failed++
			continue
		}

		switch verdict.Action {
		case service.OrphanExclude:
			if err := o.store.MarkCandidateExcluded(ctx, candidate.ID, verdict.Reason); err != nil {
				logger.Warn("Failed to exclude orphan candidate", "error", err)
				report.Failed++
				continue
			}
			logger.Info("Orphan candidate excluded", "reason", verdict.Reason)
			report.Excluded++

		case service.OrphanProcess:
			if verdict.Confidence < o.cfg.MinConfidence {
				if err := o.store.MarkCandidatePendingReview(ctx, candidate.ID, verdict.Category, verdict.Jurisdiction); err != nil {
					logger.Warn("Failed to park orphan candidate", "error", err)
					report.Failed++
					continue
				}
				logger.Info("Orphan candidate parked for review",
					"confidence", verdict.Confidence,
					"category", verdict.Category)
				report.Parked++
				continue
			}

			ledgerRef, err := o.postOrphan(ctx, candidate, verdict)
			if err != nil {
				logger.Warn("Failed to post orphan candidate", "error", err)
				report.Failed++
				continue
			}
			if err := o.store.MarkCandidateOrphanPosted(ctx, candidate.ID, verdict.Category, verdict.Jurisdiction, ledgerRef); err != nil {
				logger.Error("Orphan posted to ledger but local commit failed",
					"ledger_reference", ledgerRef,
					"error", err)
				report.Failed++
				continue
			}
			logger.Info("Orphan candidate posted",
				"category", verdict.Category,
				"jurisdiction", verdict.Jurisdiction,
				"ledger_reference", ledgerRef)
			report.Posted++

		default:
			logger.Warn("Advisor returned unknown orphan action", "action", string(verdict.Action))
			report.Failed++
		}
	}
	return report, nil
}

func (o *OrphanProcessor) postOrphan(ctx context.Context, candidate model.LedgerCandidate, verdict service.OrphanVerdict) (string, error) {
	payee, err := o.poster.FindOrCreatePayee(ctx, candidate.Description)
	if err != nil {
		return "", fmt.Errorf("failed to resolve payee: %w", err)
	}
	return o.poster.Post(ctx, service.Posting{
		Date:            candidate.TxnDate,
		PayerAccount:    o.cfg.PayerAccount,
		PayeeEntity:     payee,
		CategoryAccount: verdict.Category,
		JurisdictionTag: verdict.Jurisdiction,
		Memo:            fmt.Sprintf("orphan charge %s", candidate.ID),
		Amount:          candidate.Amount,
	})
}
