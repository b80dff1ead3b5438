package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/pennywhistle/tally-ho/internal/ingest"
	"github.com/pennywhistle/tally-ho/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the intake endpoint and reconciliation engine",
		Long: `Start the HTTP intake endpoint, the dispatcher, the stuck-record sweep,
and the daily orphan pass. This is the long-running production mode; the other
commands are one-shot tools over the same database.`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "listen address (default from config)")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.close()

	gate := ingest.New(p.store, p.dispatcher)
	srv := server.New(viper.GetString("server.addr"), gate)

	p.dispatcher.Start(ctx)
	go p.sweeper.Run(ctx)
	go runOrphanSchedule(ctx, p)

	// Shut the listener down when the signal context fires, then drain.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("🦊 tally-ho serving", "addr", viper.GetString("server.addr"))
	err = srv.Run()

	p.dispatcher.Stop()
	slog.Info("Engine stopped")
	return err
}

// runOrphanSchedule runs the orphan pass on a daily cadence. Matching always
// gets first claim on a candidate; the pass only sees aged-out rows.
func runOrphanSchedule(ctx context.Context, p *pipeline) {
	ticker := time.NewTicker(viper.GetDuration("orphans.interval"))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := p.orphans.Run(ctx)
			if err != nil {
				slog.Error("Orphan pass failed", "error", err)
				continue
			}
			if report.Examined > 0 {
				slog.Info("Orphan pass completed",
					"examined", report.Examined,
					"posted", report.Posted,
					"excluded", report.Excluded,
					"parked", report.Parked,
					"failed", report.Failed)
			}
		}
	}
}
