package main

import (
	"log/slog"

	"github.com/pennywhistle/tally-ho/internal/ingest"
	"github.com/spf13/cobra"
)

func reopenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reopen <claim-id>",
		Short: "Return a flagged or errored expense to the queue",
		Long: `Put a reviewed expense back into the processing queue. Only flagged and
errored records can re-enter; the record gets a fresh attempt budget and is
processed as if newly ingested. Pair this with a corrected jurisdiction tag or
an upstream human approval before reopening.`,
		Args: cobra.ExactArgs(1),
		RunE: runReopen,
	}
}

func runReopen(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	claimID := args[0]

	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.close()

	gate := ingest.New(p.store, nil)
	if err := gate.Reopen(ctx, claimID); err != nil {
		return err
	}

	if err := drainQueue(ctx, p); err != nil {
		return err
	}

	slog.Info("✅ Expense reopened and processed", "claim_id", claimID)
	return nil
}
