package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/pennywhistle/tally-ho/internal/service"
)

// Sweeper recovers expenses stranded in processing by a crashed or hung
// worker. Records past the stuck threshold return to pending with their
// attempt count intact; records out of attempts go terminal.
type Sweeper struct {
	store      service.Storage
	dispatcher *Dispatcher
	cfg        Config
}

// NewSweeper creates a sweeper. dispatcher may be nil for one-shot use; when
// set, a sweep that recovered records kicks it so they are reclaimed promptly.
func NewSweeper(store service.Storage, dispatcher *Dispatcher, cfg Config) *Sweeper {
	if cfg.StuckThreshold <= 0 {
		cfg.StuckThreshold = DefaultConfig().StuckThreshold
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	return &Sweeper{store: store, dispatcher: dispatcher, cfg: cfg}
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				slog.Error("Stuck sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce runs a single recovery pass.
func (s *Sweeper) SweepOnce(ctx context.Context) (service.SweepResult, error) {
	result, err := s.store.ResetStuck(ctx, s.cfg.StuckThreshold, s.cfg.MaxAttempts)
	if err != nil {
		return result, err
	}

	if result.Recovered > 0 || result.Errored > 0 {
		slog.Info("Stuck sweep completed",
			"recovered", result.Recovered,
			"errored", result.Errored,
			"threshold", s.cfg.StuckThreshold)
	}
	if result.Recovered > 0 && s.dispatcher != nil {
		s.dispatcher.Kick()
	}
	return result, nil
}
