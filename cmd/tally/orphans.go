package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

func orphansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "orphans",
		Short: "Process ledger charges nobody claimed",
		Long: `Run one orphan pass over unmatched ledger candidates older than the
configured grace period. With an advisor configured, confident charges post to
the ledger and noise is excluded; without one the pass only reports counts.`,
		RunE: runOrphans,
	}
}

func runOrphans(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.close()

	report, err := p.orphans.Run(ctx)
	if err != nil {
		return err
	}

	slog.Info("✅ Orphan pass complete",
		"examined", report.Examined,
		"posted", report.Posted,
		"excluded", report.Excluded,
		"parked", report.Parked,
		"failed", report.Failed)
	return nil
}
