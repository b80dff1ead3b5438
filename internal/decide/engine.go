// Package decide turns match scores, resolver output, and the optional
// advisory signal into a single posting decision with a confidence score.
package decide

import (
	"errors"
	"fmt"

	"github.com/pennywhistle/tally-ho/internal/common"
	"github.com/pennywhistle/tally-ho/internal/model"
)

// Config holds the decision thresholds.
type Config struct {
	// AutoApprove is the confidence floor for automatic posting.
	AutoApprove int
	// PreApproved is the lower floor applied when the record already
	// survived a separate human-approval step.
	PreApproved int
	// HighValue is the amount above which confidence is reduced.
	HighValue float64
}

// DefaultConfig returns the default decision thresholds.
func DefaultConfig() Config {
	return Config{
		AutoApprove: 95,
		PreApproved: 90,
		HighValue:   500.0,
	}
}

// Input is everything the engine considers for one expense. The engine is
// pure: no I/O, no clock, identical input always yields the identical outcome.
type Input struct {
	Assessment        *model.Assessment
	Resolution        model.Resolution
	Amount            float64
	CandidatesChecked int
	MatchFound        bool
	HumanApproved     bool
	HasReceipt        bool
}

// Engine applies the confidence arithmetic and the decision rule.
type Engine struct {
	cfg Config
}

// New creates a decision engine.
func New(cfg Config) *Engine {
	d := DefaultConfig()
	if cfg.AutoApprove <= 0 {
		cfg.AutoApprove = d.AutoApprove
	}
	if cfg.PreApproved <= 0 {
		cfg.PreApproved = d.PreApproved
	}
	if cfg.HighValue <= 0 {
		cfg.HighValue = d.HighValue
	}
	return &Engine{cfg: cfg}
}

// Decide computes the decision and confidence for one expense. Confidence
// starts at 100 and each doubt subtracts from it; every subtraction leaves an
// enumerable reason so a reviewer sees exactly why an item reached them.
func (e *Engine) Decide(in Input) model.Outcome {
	confidence := 100
	var reasons []string
	var doubts []error
	escalate := false

	if !in.MatchFound {
		confidence -= 40
		doubts = append(doubts, common.ErrNoCandidate)
		reasons = append(reasons, common.ErrNoCandidate.Error())
	}

	if !in.Resolution.JurisdictionResolved() {
		// With no candidates there was nothing to parse a jurisdiction
		// from, which is worse than a candidate that parsed to nothing.
		if in.CandidatesChecked == 0 {
			confidence -= 40
		} else {
			confidence -= 20
		}
		doubts = append(doubts, common.ErrAmbiguousJurisdiction)
		reasons = append(reasons, common.ErrAmbiguousJurisdiction.Error())
	} else if in.Resolution.JurisdictionSource == model.SourceDescriptionText {
		confidence -= 10
		reasons = append(reasons, "jurisdiction resolved from description text only")
	}

	if !in.Resolution.CategoryResolved() {
		confidence -= 15
		escalate = true
		doubts = append(doubts, common.ErrAmbiguousCategory)
		reasons = append(reasons, common.ErrAmbiguousCategory.Error())
	}

	if in.Resolution.CategoryMismatch {
		confidence -= 15
		reasons = append(reasons, "category outside cost-of-service set for event-related batch")
	}

	if in.Amount > e.cfg.HighValue {
		confidence -= 20
		reasons = append(reasons, fmt.Sprintf("amount %.2f above high-value threshold %.2f", in.Amount, e.cfg.HighValue))
	}

	if in.Assessment != nil {
		switch in.Assessment.Severity {
		case model.AdvisoryWarn:
			confidence -= 15
			reasons = append(reasons, "advisory signal reported a problem: "+in.Assessment.Notes)
		case model.AdvisorySevere:
			confidence -= 25
			reasons = append(reasons, "advisory signal reported a severe problem: "+in.Assessment.Notes)
		}
	}

	if !in.HasReceipt {
		escalate = true
		reasons = append(reasons, "receipt missing")
	}

	if confidence < 0 {
		confidence = 0
	}

	cause := errors.Join(doubts...)

	// No candidate at all means the charge almost certainly never hit the
	// corporate ledger: route to reimbursement, not auto-posting.
	if !in.MatchFound {
		return model.Outcome{
			Decision:   model.DecisionReimbursement,
			Confidence: confidence,
			Reasons:    reasons,
			Cause:      cause,
		}
	}

	threshold := e.cfg.AutoApprove
	if in.HumanApproved {
		threshold = e.cfg.PreApproved
	}

	if !escalate && confidence >= threshold {
		return model.Outcome{
			Decision:   model.DecisionApprove,
			Confidence: confidence,
			Reasons:    reasons,
			Cause:      cause,
		}
	}

	if len(reasons) == 0 {
		reasons = append(reasons, fmt.Sprintf("confidence %d below threshold %d", confidence, threshold))
	}
	return model.Outcome{
		Decision:   model.DecisionEscalate,
		Confidence: confidence,
		Reasons:    reasons,
		Cause:      cause,
	}
}
