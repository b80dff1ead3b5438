package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pennywhistle/tally-ho/internal/advisor"
	"github.com/pennywhistle/tally-ho/internal/config"
	"github.com/pennywhistle/tally-ho/internal/decide"
	"github.com/pennywhistle/tally-ho/internal/engine"
	"github.com/pennywhistle/tally-ho/internal/events"
	"github.com/pennywhistle/tally-ho/internal/match"
	"github.com/pennywhistle/tally-ho/internal/poster"
	"github.com/pennywhistle/tally-ho/internal/resolve"
	"github.com/pennywhistle/tally-ho/internal/service"
	"github.com/pennywhistle/tally-ho/internal/storage"
	"github.com/spf13/viper"
)

// initStorage opens the database and brings the schema current.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(config.DatabasePath())
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// pipeline bundles the reconciliation components a command needs.
type pipeline struct {
	store      *storage.SQLiteStorage
	processor  *engine.Processor
	dispatcher *engine.Dispatcher
	sweeper    *engine.Sweeper
	orphans    *engine.OrphanProcessor
}

// buildPipeline wires the full reconciliation pipeline from configuration.
func buildPipeline(ctx context.Context) (*pipeline, error) {
	store, err := initStorage(ctx)
	if err != nil {
		return nil, err
	}

	matcher := match.New(store, match.Config{
		DateWindowDays:   viper.GetInt("matcher.date_window_days"),
		AssistWindowDays: viper.GetInt("matcher.assist_window_days"),
		AmountTolerance:  viper.GetFloat64("matcher.amount_tolerance"),
	})

	var eventLookup service.EventLookup
	if base := viper.GetString("events.base_url"); base != "" {
		eventLookup = events.NewClient(base)
	}
	resolver := resolve.New(store, eventLookup, viper.GetString("resolver.home_jurisdiction"))

	decider := decide.New(decide.Config{
		AutoApprove: viper.GetInt("decision.auto_approve"),
		PreApproved: viper.GetInt("decision.pre_approved"),
		HighValue:   viper.GetFloat64("decision.high_value"),
	})

	ledger := newPoster()

	adv, err := advisor.New(advisor.Config{
		Provider: viper.GetString("advisor.provider"),
		APIKey:   os.Getenv("TALLY_ADVISOR_API_KEY"),
		Model:    viper.GetString("advisor.model"),
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to configure advisor: %w", err)
	}

	cfg := engineConfig()
	processor := engine.NewProcessor(store, matcher, resolver, decider, ledger, adv, cfg)
	dispatcher := engine.NewDispatcher(store, processor, cfg)

	return &pipeline{
		store:      store,
		processor:  processor,
		dispatcher: dispatcher,
		sweeper:    engine.NewSweeper(store, dispatcher, cfg),
		orphans: engine.NewOrphanProcessor(store, ledger, adv, engine.OrphanConfig{
			PayerAccount:  viper.GetString("poster.payer_account"),
			AgeDays:       viper.GetInt("orphans.age_days"),
			MaxPerRun:     viper.GetInt("orphans.max_per_run"),
			MinConfidence: viper.GetInt("orphans.min_confidence"),
		}),
	}, nil
}

func (p *pipeline) close() {
	_ = p.store.Close()
}

// newPoster returns the HTTP ledger client, or the dry-run poster when no
// base URL is configured.
func newPoster() service.LedgerPoster {
	base := viper.GetString("poster.base_url")
	if base == "" {
		return poster.NewNopPoster()
	}
	return poster.NewClient(base, os.Getenv("TALLY_LEDGER_ACCESS_KEY"))
}

func engineConfig() engine.Config {
	return engine.Config{
		PayerAccount:   viper.GetString("poster.payer_account"),
		MaxConcurrent:  viper.GetInt("dispatcher.max_concurrent"),
		MaxAttempts:    viper.GetInt("dispatcher.max_attempts"),
		StuckThreshold: viper.GetDuration("dispatcher.stuck_threshold"),
		SweepInterval:  viper.GetDuration("dispatcher.sweep_interval"),
		BackoffInitial: viper.GetDuration("dispatcher.backoff_initial"),
		BackoffCeiling: viper.GetDuration("dispatcher.backoff_ceiling"),
	}
}
