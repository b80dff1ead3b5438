// Package ingest is the idempotent intake gate for expense batches.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pennywhistle/tally-ho/internal/model"
	"github.com/pennywhistle/tally-ho/internal/service"
)

// Signaler is the slice of the dispatcher intake needs: a non-blocking nudge
// that pending work exists.
type Signaler interface {
	Kick()
}

// Gate accepts expense batches, deduplicates on claim id, and signals the
// dispatcher. Re-submitting a batch is always safe.
type Gate struct {
	store    service.Storage
	signaler Signaler
}

// New creates an intake gate. signaler may be nil for one-shot tooling that
// runs the dispatcher itself afterward.
func New(store service.Storage, signaler Signaler) *Gate {
	return &Gate{store: store, signaler: signaler}
}

// Ingest queues a batch. Per-record validation failures are reported in the
// result and never fail the rest of the batch; claim ids already queued count
// as duplicates. A missing receipt handle is not a validation failure.
func (g *Gate) Ingest(ctx context.Context, records []model.ExpenseRecord) (service.IngestResult, error) {
	if len(records) == 0 {
		return service.IngestResult{}, nil
	}

	result, err := g.store.InsertExpenses(ctx, records)
	if err != nil {
		return result, fmt.Errorf("failed to queue expense batch: %w", err)
	}

	slog.Info("Expense batch ingested",
		"received", len(records),
		"inserted", result.Inserted,
		"duplicates", result.Duplicates,
		"rejected", len(result.Rejected))

	if result.Inserted > 0 && g.signaler != nil {
		g.signaler.Kick()
	}
	return result, nil
}

// ParseClaimDate accepts the two claim date shapes upstream exports use: a
// bare date or a full RFC 3339 timestamp.
func ParseClaimDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("claim_date %q is not a valid date", s)
}

// Reopen returns a flagged or errored expense to the queue after a human
// looked at it. The record re-enters pending with a fresh attempt budget and
// the dispatcher is signaled so it is picked up without waiting for intake.
func (g *Gate) Reopen(ctx context.Context, claimID string) error {
	if err := g.store.ReopenExpense(ctx, claimID); err != nil {
		return err
	}

	slog.Info("Expense reopened for processing", "claim_id", claimID)

	if g.signaler != nil {
		g.signaler.Kick()
	}
	return nil
}
