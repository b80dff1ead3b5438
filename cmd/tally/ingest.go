package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pennywhistle/tally-ho/internal/ingest"
	"github.com/pennywhistle/tally-ho/internal/model"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Queue an expense batch from a JSON file",
		Long: `Read an expense batch export and queue it for reconciliation.

The file holds {"expenses": [...]} in the same shape the intake endpoint
accepts. Re-running the same file is safe: records already queued count as
duplicates and are left untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: runIngest,
	}

	cmd.Flags().Bool("process", false, "run the dispatcher until the queue drains after ingesting")
	cmd.Flags().Int("chunk-size", 100, "records per database batch")

	return cmd
}

// filePayload mirrors the intake endpoint's wire shape.
type filePayload struct {
	Expenses []struct {
		ClaimID         string  `json:"claim_id"`
		ClaimDate       string  `json:"claim_date"`
		Amount          float64 `json:"amount"`
		Payee           string  `json:"payee"`
		Category        string  `json:"category"`
		JurisdictionTag string  `json:"jurisdiction_tag"`
		Instrument      string  `json:"instrument"`
		ReceiptRef      string  `json:"receipt_ref"`
		EventRelated    bool    `json:"event_related"`
		HumanApproved   bool    `json:"human_approved"`
	} `json:"expenses"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	process, _ := cmd.Flags().GetBool("process")
	chunkSize, _ := cmd.Flags().GetInt("chunk-size")
	if chunkSize < 1 {
		chunkSize = 100
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read batch file: %w", err)
	}

	var payload filePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("failed to parse batch file: %w", err)
	}
	if len(payload.Expenses) == 0 {
		slog.Info("Batch file holds no expenses, nothing to do")
		return nil
	}

	records := make([]model.ExpenseRecord, 0, len(payload.Expenses))
	var rejected int
	for _, p := range payload.Expenses {
		claimDate, err := ingest.ParseClaimDate(p.ClaimDate)
		if err != nil {
			slog.Warn("Record rejected", "claim_id", p.ClaimID, "reason", err.Error())
			rejected++
			continue
		}
		records = append(records, model.ExpenseRecord{
			ClaimID:         p.ClaimID,
			ClaimDate:       claimDate,
			Amount:          p.Amount,
			Payee:           p.Payee,
			Category:        p.Category,
			JurisdictionTag: p.JurisdictionTag,
			Instrument:      p.Instrument,
			ReceiptRef:      p.ReceiptRef,
			EventRelated:    p.EventRelated,
			HumanApproved:   p.HumanApproved,
		})
	}

	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.close()

	gate := ingest.New(p.store, nil)

	bar := progressbar.Default(int64(len(records)), "Queueing expenses")
	var inserted, duplicates int
	for start := 0; start < len(records); start += chunkSize {
		end := start + chunkSize
		if end > len(records) {
			end = len(records)
		}

		result, err := gate.Ingest(ctx, records[start:end])
		if err != nil {
			return err
		}
		inserted += result.Inserted
		duplicates += result.Duplicates
		rejected += len(result.Rejected)
		for _, r := range result.Rejected {
			slog.Warn("Record rejected", "claim_id", r.ClaimID, "reason", r.Reason)
		}
		_ = bar.Add(end - start)
	}

	slog.Info("✅ Batch queued",
		"inserted", inserted,
		"duplicates", duplicates,
		"rejected", rejected)

	if process && inserted > 0 {
		slog.Info("Processing queue...")
		if err := drainQueue(ctx, p); err != nil {
			return err
		}
		slog.Info("✅ Queue drained")
	}
	return nil
}

// drainQueue runs dispatch passes until no pending or processing records
// remain.
func drainQueue(ctx context.Context, p *pipeline) error {
	for {
		claimed := p.dispatcher.Dispatch(ctx)

		processing, err := p.store.CountProcessing(ctx)
		if err != nil {
			return fmt.Errorf("failed to count processing expenses: %w", err)
		}
		if claimed == 0 && processing == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}
