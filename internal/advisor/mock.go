package advisor

import (
	"context"

	"github.com/pennywhistle/tally-ho/internal/model"
	"github.com/pennywhistle/tally-ho/internal/service"
)

// Mock is a scriptable advisor for tests.
type Mock struct {
	AssessFunc    func(ctx context.Context, expense model.ExpenseRecord, candidate *model.LedgerCandidate) (model.Assessment, error)
	ClassifyFunc  func(ctx context.Context, candidate model.LedgerCandidate) (service.OrphanVerdict, error)
	AssessCalls   int
	ClassifyCalls int
}

// Assess returns the scripted assessment, or AdvisoryNone when unscripted.
func (m *Mock) Assess(ctx context.Context, expense model.ExpenseRecord, candidate *model.LedgerCandidate) (model.Assessment, error) {
	m.AssessCalls++
	if m.AssessFunc != nil {
		return m.AssessFunc(ctx, expense, candidate)
	}
	return model.Assessment{Severity: model.AdvisoryNone}, nil
}

// ClassifyOrphan returns the scripted verdict, or an exclusion when unscripted.
func (m *Mock) ClassifyOrphan(ctx context.Context, candidate model.LedgerCandidate) (service.OrphanVerdict, error) {
	m.ClassifyCalls++
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, candidate)
	}
	return service.OrphanVerdict{Action: service.OrphanExclude, Reason: "unscripted"}, nil
}
