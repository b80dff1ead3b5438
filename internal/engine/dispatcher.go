package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pennywhistle/tally-ho/internal/model"
	"github.com/pennywhistle/tally-ho/internal/service"
)

// Dispatcher pulls pending expenses into processing, bounded by the
// concurrency cap. Claiming is a single conditional update in storage, so any
// number of dispatchers (or a crashed-and-restarted one) can run against the
// same database without double-claiming.
type Dispatcher struct {
	store     service.Storage
	processor *Processor
	kick      chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	cfg       Config
}

// NewDispatcher creates a dispatcher over the given processor.
func NewDispatcher(store service.Storage, processor *Processor, cfg Config) *Dispatcher {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	return &Dispatcher{
		store:     store,
		processor: processor,
		cfg:       cfg,
		kick:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Kick signals the dispatcher that pending work may exist. Non-blocking: a
// kick while one is already queued is a no-op, which is enough because the
// dispatcher always drains the queue when it wakes.
func (d *Dispatcher) Kick() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// Start runs the dispatch loop until the context is cancelled or Stop is
// called. It kicks itself once so work left over from a previous run is
// picked up immediately.
func (d *Dispatcher) Start(ctx context.Context) {
	d.Kick()
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.done:
				return
			case <-d.kick:
				d.dispatch(ctx)
			}
		}
	}()
}

// Stop shuts the loop down and waits for in-flight processors to finish.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.done) })
	d.wg.Wait()
}

// Dispatch runs one dispatch pass synchronously and returns how many records
// it claimed. Used by Start's loop and directly by one-shot tooling.
func (d *Dispatcher) Dispatch(ctx context.Context) int {
	return d.dispatch(ctx)
}

func (d *Dispatcher) dispatch(ctx context.Context) int {
	processing, err := d.store.CountProcessing(ctx)
	if err != nil {
		slog.Error("Failed to count processing expenses", "error", err)
		return 0
	}

	slots := d.cfg.MaxConcurrent - processing
	if slots <= 0 {
		return 0
	}

	claimed := 0
	for i := 0; i < slots; i++ {
		expense, err := d.store.ClaimNextPending(ctx, time.Now().UTC())
		if err != nil {
			slog.Error("Failed to claim pending expense", "error", err)
			break
		}
		if expense == nil {
			break
		}

		claimed++
		slog.Info("Claimed expense for processing",
			"claim_id", expense.ClaimID,
			"attempt", expense.AttemptCount)

		d.wg.Add(1)
		go func(e *model.ExpenseRecord) {
			defer d.wg.Done()
			_ = d.processor.Process(ctx, e)
			// A finished processor frees a slot; re-arm so releases and
			// retries are picked up without waiting for new intake.
			d.Kick()
		}(expense)
	}
	return claimed
}
