package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Recover expenses stuck in processing",
		Long: `Run one stuck-record recovery pass. Records claimed longer ago than the
stuck threshold return to pending with their attempt count intact; records out
of attempts move to terminal error.`,
		RunE: runSweep,
	}
}

func runSweep(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.close()

	result, err := p.sweeper.SweepOnce(ctx)
	if err != nil {
		return err
	}

	slog.Info("✅ Sweep complete",
		"recovered", result.Recovered,
		"errored", result.Errored)
	return nil
}
