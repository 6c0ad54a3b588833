package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"trawler/internal/config"
	"trawler/internal/events"
	"trawler/internal/logging"
	"trawler/internal/retry"
	"trawler/internal/store"
)

// Manager owns the three worker pools and their queues.
type Manager struct {
	cfg         *config.Config
	store       *store.Store
	logger      *slog.Logger
	bus         *events.Bus
	gates       map[Kind]*Gate
	tracker     *Tracker
	fetcher     Fetcher
	transferrer Transferrer

	standard *Queue
	short    *Queue
	relay    *Queue

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager constructs the pipeline manager. The transferrer may be nil when
// relay is disabled in configuration.
func NewManager(cfg *config.Config, st *store.Store, logger *slog.Logger, bus *events.Bus, fetcher Fetcher, transferrer Transferrer) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	gates := make(map[Kind]*Gate, len(Kinds))
	for _, kind := range Kinds {
		gates[kind] = NewGate()
	}
	return &Manager{
		cfg:         cfg,
		store:       st,
		logger:      logger,
		bus:         bus,
		gates:       gates,
		tracker:     NewTracker(bus),
		fetcher:     fetcher,
		transferrer: transferrer,
		standard:    NewQueue(),
		short:       NewQueue(),
		relay:       NewQueue(),
	}
}

// GateFor exposes the pause gate of one pipeline.
func (m *Manager) GateFor(kind Kind) *Gate { return m.gates[kind] }

// PauseStates reports each pipeline's paused flag.
func (m *Manager) PauseStates() map[Kind]bool {
	out := make(map[Kind]bool, len(m.gates))
	for kind, gate := range m.gates {
		out[kind] = gate.Paused()
	}
	return out
}

// Tracker exposes the in-flight progress tracker.
func (m *Manager) Tracker() *Tracker { return m.tracker }

// QueueDepths reports the number of waiting items per pool.
func (m *Manager) QueueDepths() map[Kind]int {
	return map[Kind]int{
		KindStandard: m.standard.Len(),
		KindShort:    m.short.Len(),
		KindRelay:    m.relay.Len(),
	}
}

// EnqueueRetrieval routes the item to the standard or short pool by duration.
func (m *Manager) EnqueueRetrieval(item *store.Item) Kind {
	kind := RetrievalKind(item, m.cfg.Pipelines.ShortMaxDuration)
	if kind == KindShort {
		m.short.Enqueue(item)
	} else {
		m.standard.Enqueue(item)
	}
	return kind
}

// EnqueueRelay submits a retrieved item for relay.
func (m *Manager) EnqueueRelay(item *store.Item) {
	m.relay.Enqueue(item)
}

// LoadBacklog refills the queues from the store: pending retrievals plus
// completed retrievals whose relay has not finished. Called at startup after
// crash recovery has reset stuck rows.
func (m *Manager) LoadBacklog(ctx context.Context) error {
	pending, err := m.store.ListByStatus(ctx, store.PhaseRetrieval, store.StatusPending)
	if err != nil {
		return fmt.Errorf("load pending retrievals: %w", err)
	}
	for _, item := range pending {
		m.EnqueueRetrieval(item)
	}

	if m.cfg.Relay.Enabled {
		backlog, err := m.store.RelayBacklog(ctx, m.cfg.Pipelines.MaxAttempts)
		if err != nil {
			return fmt.Errorf("load relay backlog: %w", err)
		}
		for _, item := range backlog {
			m.EnqueueRelay(item)
		}
	}

	m.logger.Info("queue backlog loaded",
		logging.Int("retrievals", len(pending)),
		logging.Int("relay", m.relay.Len()),
	)
	return nil
}

// Start launches the worker pools.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("pipelines already running")
	}
	if m.fetcher == nil {
		return errors.New("pipelines require a fetcher")
	}
	if m.cfg.Relay.Enabled && m.transferrer == nil {
		return errors.New("relay enabled but no transferrer configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	start := func(kind Kind, q *Queue, n int) {
		for i := 0; i < n; i++ {
			m.wg.Add(1)
			go m.runRetrieval(runCtx, kind, q)
		}
	}
	start(KindStandard, m.standard, m.cfg.Pipelines.RetrievalWorkers)
	start(KindShort, m.short, m.cfg.Pipelines.ShortRetrievalWorkers)

	if m.cfg.Relay.Enabled {
		for i := 0; i < m.cfg.Pipelines.RelayWorkers; i++ {
			m.wg.Add(1)
			go m.runRelay(runCtx)
		}
	}
	return nil
}

// Stop cancels the workers and waits for them to exit. Items mid-flight are
// abandoned as in_progress rows; startup recovery resets them.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runRetrieval(ctx context.Context, kind Kind, q *Queue) {
	defer m.wg.Done()
	logger := m.logger.With(logging.String(logging.FieldPipeline, string(kind)))

	for {
		item, err := q.Dequeue(ctx)
		if err != nil {
			return
		}
		if err := m.gates[kind].Wait(ctx); err != nil {
			return
		}
		m.processRetrieval(ctx, logger, kind, q, item)
	}
}

func (m *Manager) processRetrieval(ctx context.Context, logger *slog.Logger, kind Kind, q *Queue, item *store.Item) {
	// The slot exists before the row turns in_progress, so the watchdog
	// never sees a claimed row without liveness.
	m.tracker.Begin(item, kind, store.PhaseRetrieval)
	defer m.tracker.Finish(item.ID)

	if err := m.store.MarkRetrievalStarted(ctx, item.ID); err != nil {
		if errors.Is(err, store.ErrNotPending) {
			// Claimed elsewhere or already finished; nothing to do.
			return
		}
		logger.Error("claim retrieval failed", logging.Int64(logging.FieldItemID, item.ID), logging.Error(err))
		return
	}

	logger.Info("retrieval started",
		logging.Int64(logging.FieldItemID, item.ID),
		logging.String("title", item.Title),
	)
	m.bus.Publish(events.Payload{
		Type:     events.TypeRetrievalStarted,
		ItemID:   item.ID,
		Title:    item.Title,
		SourceID: item.Source,
		Pipeline: string(kind),
	})

	sampler := logging.NewProgressSampler(0)
	progress := func(percent float64, bytes, total int64) {
		m.tracker.Update(item.ID, percent, bytes, total)
		if sampler.ShouldLog(percent, "retrieval") {
			logger.Info("retrieval progress",
				logging.Int64(logging.FieldItemID, item.ID),
				logging.Any("percent", percent),
				logging.Int64("bytes", bytes),
			)
		}
	}
	result, err := m.fetcher.Fetch(ctx, item, progress)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown mid-fetch: leave the row in_progress for startup reset.
			return
		}
		m.handleRetrievalFailure(ctx, logger, q, item, err)
		return
	}

	if err := m.store.MarkRetrievalCompleted(ctx, item.ID, result.LocalPath, result.Size); err != nil {
		logger.Error("persist retrieval result failed", logging.Int64(logging.FieldItemID, item.ID), logging.Error(err))
		return
	}
	logger.Info("retrieval completed",
		logging.Int64(logging.FieldItemID, item.ID),
		logging.String("title", item.Title),
		logging.Int64("size", result.Size),
	)
	m.bus.Publish(events.Payload{
		Type:     events.TypeRetrievalCompleted,
		ItemID:   item.ID,
		Title:    item.Title,
		SourceID: item.Source,
		Pipeline: string(kind),
		Bytes:    result.Size,
	})

	if m.cfg.Relay.Enabled {
		updated, err := m.store.GetItem(ctx, item.ID)
		if err != nil {
			logger.Error("reload item for relay failed", logging.Int64(logging.FieldItemID, item.ID), logging.Error(err))
			return
		}
		m.EnqueueRelay(updated)
	}
}

func (m *Manager) handleRetrievalFailure(ctx context.Context, logger *slog.Logger, q *Queue, item *store.Item, fetchErr error) {
	if err := m.store.MarkRetrievalFailed(ctx, item.ID, fetchErr.Error()); err != nil {
		logger.Error("persist retrieval failure failed", logging.Int64(logging.FieldItemID, item.ID), logging.Error(err))
		return
	}
	updated, err := m.store.GetItem(ctx, item.ID)
	if err != nil {
		logger.Error("reload failed item failed", logging.Int64(logging.FieldItemID, item.ID), logging.Error(err))
		return
	}

	if retry.Recoverable(fetchErr) && updated.RetrievalAttempts < m.cfg.Pipelines.MaxAttempts {
		logger.Warn("retrieval failed, will retry",
			logging.Int64(logging.FieldItemID, item.ID),
			logging.Int("attempt", updated.RetrievalAttempts),
			logging.Error(fetchErr),
		)
		if _, err := m.store.ResetToPending(ctx, store.PhaseRetrieval, item.ID); err != nil {
			logger.Error("requeue failed item failed", logging.Int64(logging.FieldItemID, item.ID), logging.Error(err))
			return
		}
		q.Enqueue(updated)
		return
	}

	logger.Error("retrieval failed",
		logging.Int64(logging.FieldItemID, item.ID),
		logging.Int("attempt", updated.RetrievalAttempts),
		logging.Error(fetchErr),
	)
	m.bus.Publish(events.Payload{
		Type:     events.TypeRetrievalFailed,
		ItemID:   item.ID,
		Title:    item.Title,
		SourceID: item.Source,
		Error:    fetchErr.Error(),
	})
}

func (m *Manager) runRelay(ctx context.Context) {
	defer m.wg.Done()
	logger := m.logger.With(logging.String(logging.FieldPipeline, string(KindRelay)))

	for {
		item, err := m.relay.Dequeue(ctx)
		if err != nil {
			return
		}
		if err := m.gates[KindRelay].Wait(ctx); err != nil {
			return
		}
		m.processRelay(ctx, logger, item)
	}
}

func (m *Manager) processRelay(ctx context.Context, logger *slog.Logger, item *store.Item) {
	// Begin before claiming so the watchdog never sweeps a live transfer.
	m.tracker.Begin(item, KindRelay, store.PhaseRelay)
	defer m.tracker.Finish(item.ID)

	if err := m.store.MarkRelayStarted(ctx, item.ID); err != nil {
		if errors.Is(err, store.ErrNotRelayable) {
			logger.Warn("item not relayable, dropping", logging.Int64(logging.FieldItemID, item.ID))
			return
		}
		logger.Error("claim relay failed", logging.Int64(logging.FieldItemID, item.ID), logging.Error(err))
		return
	}

	logger.Info("relay started",
		logging.Int64(logging.FieldItemID, item.ID),
		logging.String("title", item.Title),
	)
	m.bus.Publish(events.Payload{
		Type:     events.TypeRelayStarted,
		ItemID:   item.ID,
		Title:    item.Title,
		SourceID: item.Source,
	})

	sampler := logging.NewProgressSampler(0)
	progress := func(percent float64, bytes, total int64) {
		m.tracker.Update(item.ID, percent, bytes, total)
		if sampler.ShouldLog(percent, "relay") {
			logger.Info("relay progress",
				logging.Int64(logging.FieldItemID, item.ID),
				logging.Any("percent", percent),
				logging.Int64("bytes", bytes),
			)
		}
	}
	result, err := m.transferrer.Transfer(ctx, item, progress)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.handleRelayFailure(ctx, logger, item, err)
		return
	}

	if err := m.store.MarkRelayCompleted(ctx, item.ID, result.RemoteRef); err != nil {
		logger.Error("persist relay result failed", logging.Int64(logging.FieldItemID, item.ID), logging.Error(err))
		return
	}
	if m.cfg.Relay.DeleteAfterRelay {
		if err := m.removeLocalFile(ctx, item); err != nil {
			logger.Warn("cleanup after relay failed", logging.Int64(logging.FieldItemID, item.ID), logging.Error(err))
		}
	}
	logger.Info("relay completed",
		logging.Int64(logging.FieldItemID, item.ID),
		logging.String("title", item.Title),
		logging.String("remote", result.RemoteRef),
	)
	m.bus.Publish(events.Payload{
		Type:     events.TypeRelayCompleted,
		ItemID:   item.ID,
		Title:    item.Title,
		SourceID: item.Source,
		Message:  result.RemoteRef,
	})
}

func (m *Manager) handleRelayFailure(ctx context.Context, logger *slog.Logger, item *store.Item, relayErr error) {
	if err := m.store.MarkRelayFailed(ctx, item.ID, relayErr.Error()); err != nil {
		logger.Error("persist relay failure failed", logging.Int64(logging.FieldItemID, item.ID), logging.Error(err))
		return
	}
	updated, err := m.store.GetItem(ctx, item.ID)
	if err != nil {
		logger.Error("reload failed item failed", logging.Int64(logging.FieldItemID, item.ID), logging.Error(err))
		return
	}

	if retry.Recoverable(relayErr) && updated.RelayAttempts < m.cfg.Pipelines.MaxAttempts {
		logger.Warn("relay failed, will retry",
			logging.Int64(logging.FieldItemID, item.ID),
			logging.Int("attempt", updated.RelayAttempts),
			logging.Error(relayErr),
		)
		if _, err := m.store.ResetToPending(ctx, store.PhaseRelay, item.ID); err != nil {
			logger.Error("requeue failed relay failed", logging.Int64(logging.FieldItemID, item.ID), logging.Error(err))
			return
		}
		m.relay.Enqueue(updated)
		return
	}

	logger.Error("relay failed",
		logging.Int64(logging.FieldItemID, item.ID),
		logging.Int("attempt", updated.RelayAttempts),
		logging.Error(relayErr),
	)
	m.bus.Publish(events.Payload{
		Type:     events.TypeRelayFailed,
		ItemID:   item.ID,
		Title:    item.Title,
		SourceID: item.Source,
		Error:    relayErr.Error(),
	})
}

func (m *Manager) removeLocalFile(ctx context.Context, item *store.Item) error {
	updated, err := m.store.GetItem(ctx, item.ID)
	if err != nil {
		return err
	}
	if updated.LocalPath == "" {
		return nil
	}
	if err := removeFile(updated.LocalPath); err != nil {
		return err
	}
	return m.store.ClearLocalFile(ctx, item.ID)
}
