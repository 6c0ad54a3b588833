// Package scanner discovers new items from tracked sources. Scans are
// incremental: each source carries a checkpoint naming the newest item seen,
// and listing stops as soon as the checkpoint or the lookback window is
// reached. A provider quota refusal aborts the scan and defers the next one
// until the quota resets.
package scanner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"trawler/internal/config"
	"trawler/internal/events"
	"trawler/internal/logging"
	"trawler/internal/pipeline"
	"trawler/internal/store"
)

// quotaStateKey is the app_state key holding persisted quota deferral.
const quotaStateKey = "scanner.quota"

// lastScanStateKey is the app_state key holding the most recent scan result,
// so status survives daemon restarts.
const lastScanStateKey = "scanner.last_scan"

// ErrScanInFlight is returned when Run is called while a scan is active.
var ErrScanInFlight = errors.New("scan already in progress")

// ErrQuotaDeferred is returned when a scan is skipped because the provider
// quota has not reset yet.
var ErrQuotaDeferred = errors.New("scan deferred until quota reset")

type quotaState struct {
	Exhausted bool      `json:"exhausted"`
	ResetAt   time.Time `json:"reset_at"`
}

// Scanner runs incremental discovery over tracked sources.
type Scanner struct {
	cfg       *config.Config
	store     *store.Store
	pipelines *pipeline.Manager
	provider  Provider
	bus       *events.Bus
	logger    *slog.Logger
	limiter   *rate.Limiter

	mu       sync.Mutex
	scanning bool
	results  *resultRing
	lastScan *ScanResult
}

// New constructs a scanner. The source rate limit comes from configuration.
func New(cfg *config.Config, st *store.Store, pipelines *pipeline.Manager, provider Provider, bus *events.Bus, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = logging.NewNop()
	}
	perSecond := cfg.Scanner.SourcesPerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Scanner{
		cfg:       cfg,
		store:     st,
		pipelines: pipelines,
		provider:  provider,
		bus:       bus,
		logger:    logger.With(logging.String(logging.FieldComponent, "scanner")),
		limiter:   rate.NewLimiter(rate.Limit(perSecond), 1),
		results:   newResultRing(sourceResultLimit),
	}
}

// RunLoop triggers scans on the configured interval until ctx ends. An
// initial scan runs immediately.
func (s *Scanner) RunLoop(ctx context.Context) {
	if err := s.runLogged(ctx, false); err != nil {
		s.logScanError(err)
	}

	ticker := time.NewTicker(s.cfg.ScanInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.runLogged(ctx, false); err != nil {
				s.logScanError(err)
			}
		}
	}
}

func (s *Scanner) runLogged(ctx context.Context, force bool) error {
	_, err := s.Run(ctx, force)
	return err
}

func (s *Scanner) logScanError(err error) {
	switch {
	case errors.Is(err, ErrScanInFlight), errors.Is(err, ErrQuotaDeferred):
		s.logger.Info("scan skipped", logging.Error(err))
	case errors.Is(err, context.Canceled):
	default:
		s.logger.Error("scan failed", logging.Error(err))
	}
}

// Run executes one full scan. Only one scan runs at a time; a concurrent
// call fails fast with ErrScanInFlight. With force set, a quota deferral is
// ignored and the provider is asked again.
func (s *Scanner) Run(ctx context.Context, force bool) (*ScanResult, error) {
	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		return nil, ErrScanInFlight
	}
	s.scanning = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.scanning = false
		s.mu.Unlock()
	}()

	if !force {
		if deferred, resetAt, err := s.quotaDeferred(ctx); err != nil {
			return nil, err
		} else if deferred {
			s.logger.Info("provider quota exhausted, deferring scan",
				logging.Any("reset_at", resetAt),
			)
			return nil, ErrQuotaDeferred
		}
	}

	result := &ScanResult{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	s.bus.Publish(events.Payload{Type: events.TypeScanStarted})
	err := s.scan(ctx, result)
	result.FinishedAt = time.Now().UTC()
	if err != nil {
		result.Error = err.Error()
	}

	s.mu.Lock()
	s.lastScan = result
	s.mu.Unlock()

	if err := s.store.PutStateJSON(ctx, lastScanStateKey, result); err != nil {
		s.logger.Warn("persist scan result", logging.Error(err))
	}

	s.bus.Publish(events.Payload{
		Type:    events.TypeScanCompleted,
		Message: result.Summary(),
		Error:   result.Error,
	})
	s.logger.Info("scan finished",
		logging.String("run_id", result.RunID),
		logging.Int("sources", result.SourcesScanned),
		logging.Int("discovered", result.ItemsDiscovered),
		logging.Bool("aborted", result.Aborted),
	)
	return result, err
}

func (s *Scanner) scan(ctx context.Context, result *ScanResult) error {
	if err := s.refreshSources(ctx); err != nil {
		return err
	}

	sources, err := s.store.ListSources(ctx, true)
	if err != nil {
		return err
	}
	publishedAfter := time.Now().UTC().Add(-s.cfg.LookbackWindow())

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		discovered, err := s.scanSource(ctx, src, publishedAfter)
		s.addResult(SourceResult{
			SourceID:   src.ExternalID,
			SourceName: src.Name,
			Discovered: discovered,
			ScannedAt:  time.Now().UTC(),
			Error:      errText(err),
		})
		result.ItemsDiscovered += discovered
		if err != nil {
			if errors.Is(err, ErrQuotaExceeded) {
				result.Aborted = true
				s.recordQuotaExhaustion(ctx, err)
				return err
			}
			// One bad source does not stop the scan.
			s.logger.Warn("source scan failed",
				logging.String(logging.FieldSourceID, src.ExternalID),
				logging.Error(err),
			)
			continue
		}
		result.SourcesScanned++
	}
	return nil
}

// refreshSources pulls the current subscription list and upserts it, so
// newly followed sources join the rotation without operator action.
func (s *Scanner) refreshSources(ctx context.Context) error {
	subs, err := s.provider.Subscriptions(ctx)
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			s.recordQuotaExhaustion(ctx, err)
		}
		return err
	}
	for _, sub := range subs {
		if _, err := s.store.UpsertSource(ctx, sub.ID, sub.Name, sub.Thumbnail); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scanner) scanSource(ctx context.Context, src *store.Source, publishedAfter time.Time) (int, error) {
	items, err := s.provider.RecentItems(ctx, src.ExternalID, s.cfg.Scanner.MaxPerSource, publishedAfter)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, s.store.TouchScanned(ctx, src.ExternalID)
	}

	discovered := 0
	for _, remote := range items {
		// Items are newest first; the checkpoint marks where the previous
		// scan stopped, so everything from here on is already known.
		if src.LastSeenItemID != "" && remote.ID == src.LastSeenItemID {
			break
		}
		if remote.Live {
			continue
		}
		existing, err := s.store.GetItemByExternalID(ctx, remote.ID)
		if err != nil {
			return discovered, err
		}
		if existing != nil {
			// Seeing an errored item again is a retry opportunity; anything
			// else is already tracked.
			if existing.RetrievalStatus == store.StatusError {
				if _, err := s.store.ResetToPending(ctx, store.PhaseRetrieval, existing.ID); err != nil {
					return discovered, err
				}
				if reset, err := s.store.GetItem(ctx, existing.ID); err == nil && reset != nil {
					s.pipelines.EnqueueRetrieval(reset)
				}
			}
			continue
		}

		item, err := s.store.InsertItem(ctx, remote.ID, remote.Title, src.Name, remote.Duration, remote.Thumbnail)
		if err != nil {
			return discovered, err
		}
		discovered++
		kind := s.pipelines.EnqueueRetrieval(item)
		s.bus.Publish(events.Payload{
			Type:     events.TypeItemDiscovered,
			ItemID:   item.ID,
			Title:    item.Title,
			SourceID: src.ExternalID,
			Pipeline: string(kind),
		})
		s.logger.Info("item discovered",
			logging.Int64(logging.FieldItemID, item.ID),
			logging.String(logging.FieldSourceID, src.ExternalID),
			logging.String("title", item.Title),
			logging.String(logging.FieldPipeline, string(kind)),
		)
	}

	newest := items[0]
	if err := s.store.AdvanceCheckpoint(ctx, src.ExternalID, newest.ID, &newest.PublishedAt); err != nil {
		return discovered, err
	}
	return discovered, nil
}

func (s *Scanner) quotaDeferred(ctx context.Context) (bool, time.Time, error) {
	var state quotaState
	found, err := s.store.GetStateJSON(ctx, quotaStateKey, &state)
	if err != nil {
		return false, time.Time{}, err
	}
	if !found || !state.Exhausted {
		return false, time.Time{}, nil
	}
	if time.Now().After(state.ResetAt) {
		// Window has rolled over: clear the deferral.
		if err := s.store.PutStateJSON(ctx, quotaStateKey, quotaState{}); err != nil {
			return false, time.Time{}, err
		}
		return false, time.Time{}, nil
	}
	return true, state.ResetAt, nil
}

func (s *Scanner) recordQuotaExhaustion(ctx context.Context, cause error) {
	state := quotaState{Exhausted: true, ResetAt: quotaResetTime(cause)}
	if err := s.store.PutStateJSON(ctx, quotaStateKey, state); err != nil {
		s.logger.Warn("persist quota state failed", logging.Error(err))
	}
	s.logger.Warn("provider quota exhausted, scan aborted",
		logging.Any("reset_at", state.ResetAt),
	)
}

// quotaResetTime reads the reset time out of a QuotaError, or falls back to
// an hour from now when the provider did not say.
func quotaResetTime(err error) time.Time {
	var qe *QuotaError
	if errors.As(err, &qe) && !qe.ResetAt.IsZero() {
		return qe.ResetAt
	}
	return time.Now().UTC().Add(time.Hour)
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
