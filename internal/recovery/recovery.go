// Package recovery repairs item state after crashes and worker failures.
// At startup it resets rows left in_progress by a previous process; while
// running, a watchdog compares the store against the live tracker and
// reclaims orphans, then re-queues errored items whose failures look
// transient.
package recovery

import (
	"context"
	"log/slog"
	"time"

	"trawler/internal/logging"
	"trawler/internal/pipeline"
	"trawler/internal/retry"
	"trawler/internal/store"
)

// Watchdog owns startup recovery and the periodic orphan sweep.
type Watchdog struct {
	store       *store.Store
	pipelines   *pipeline.Manager
	logger      *slog.Logger
	interval    time.Duration
	maxAttempts int
}

// NewWatchdog constructs a watchdog over the given store and pipelines.
func NewWatchdog(st *store.Store, pipelines *pipeline.Manager, logger *slog.Logger, interval time.Duration, maxAttempts int) *Watchdog {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watchdog{
		store:       st,
		pipelines:   pipelines,
		logger:      logger,
		interval:    interval,
		maxAttempts: maxAttempts,
	}
}

// RecoverStartup resets every in_progress row back to pending. Called before
// any worker starts, so no live work can be clobbered.
func (w *Watchdog) RecoverStartup(ctx context.Context) error {
	for _, phase := range []store.Phase{store.PhaseRetrieval, store.PhaseRelay} {
		reset, err := w.store.ResetStuck(ctx, phase)
		if err != nil {
			return err
		}
		if reset > 0 {
			w.logger.Info("reset stuck items from previous run",
				logging.String("phase", string(phase)),
				logging.Int64("count", reset),
			)
		}
	}
	return w.requeueRecoverable(ctx)
}

// Run executes the orphan sweep on a ticker until ctx ends.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
				w.logger.Warn("watchdog sweep failed", logging.Error(err))
			}
		}
	}
}

// Sweep reclaims orphaned in_progress rows and re-queues recoverable errors.
// An orphan is a row the store says is being processed but no worker slot
// claims; it is reset to pending and re-queued.
func (w *Watchdog) Sweep(ctx context.Context) error {
	for _, phase := range []store.Phase{store.PhaseRetrieval, store.PhaseRelay} {
		if err := w.reclaimOrphans(ctx, phase); err != nil {
			return err
		}
	}
	return w.requeueRecoverable(ctx)
}

func (w *Watchdog) reclaimOrphans(ctx context.Context, phase store.Phase) error {
	inProgress, err := w.store.ListByStatus(ctx, phase, store.StatusInProgress)
	if err != nil {
		return err
	}
	if len(inProgress) == 0 {
		return nil
	}

	active := w.pipelines.Tracker().ActiveIDs(phase)
	for _, item := range inProgress {
		if active[item.ID] {
			continue
		}
		w.logger.Warn("reclaiming orphaned item",
			logging.Int64(logging.FieldItemID, item.ID),
			logging.String("phase", string(phase)),
			logging.String("title", item.Title),
		)
		if _, err := w.store.ResetToPending(ctx, phase, item.ID); err != nil {
			return err
		}
		w.requeue(ctx, phase, item.ID)
	}
	return nil
}

// requeueRecoverable finds errored rows whose persisted error text matches a
// transient pattern and whose attempt counter is under the ceiling, and puts
// them back in play.
func (w *Watchdog) requeueRecoverable(ctx context.Context) error {
	for _, phase := range []store.Phase{store.PhaseRetrieval, store.PhaseRelay} {
		candidates, err := w.store.RetryCandidates(ctx, phase, w.maxAttempts)
		if err != nil {
			return err
		}
		for _, item := range candidates {
			if !retry.RecoverableText(item.PhaseError(phase)) {
				continue
			}
			w.logger.Info("re-queueing item after transient failure",
				logging.Int64(logging.FieldItemID, item.ID),
				logging.String("phase", string(phase)),
				logging.Int("attempts", item.PhaseAttempts(phase)),
			)
			if _, err := w.store.ResetToPending(ctx, phase, item.ID); err != nil {
				return err
			}
			w.requeue(ctx, phase, item.ID)
		}
	}
	return nil
}

func (w *Watchdog) requeue(ctx context.Context, phase store.Phase, id int64) {
	item, err := w.store.GetItem(ctx, id)
	if err != nil {
		w.logger.Warn("reload reclaimed item failed", logging.Int64(logging.FieldItemID, id), logging.Error(err))
		return
	}
	if phase == store.PhaseRelay {
		w.pipelines.EnqueueRelay(item)
		return
	}
	w.pipelines.EnqueueRetrieval(item)
}
