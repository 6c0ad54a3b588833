package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"trawler/internal/config"
	"trawler/internal/events"
	"trawler/internal/logging"
	"trawler/internal/notifications"
	"trawler/internal/pipeline"
	"trawler/internal/recovery"
	"trawler/internal/scanner"
	"trawler/internal/store"
)

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	pipelines *pipeline.Manager
	watchdog  *recovery.Watchdog
	scanner   *scanner.Scanner
	bus       *events.Bus
	notifier  notifications.Service

	lockPath  string
	lock      *flock.Flock
	startedAt time.Time

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a daemon over prebuilt components. The scanner may be nil
// when discovery is disabled.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, pipelines *pipeline.Manager, watchdog *recovery.Watchdog, sc *scanner.Scanner, bus *events.Bus, notifier notifications.Service) (*Daemon, error) {
	if cfg == nil || st == nil || pipelines == nil || watchdog == nil || bus == nil {
		return nil, errors.New("daemon requires config, store, pipelines, watchdog, and bus")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "trawlerd.lock")
	return &Daemon{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		pipelines: pipelines,
		watchdog:  watchdog,
		scanner:   sc,
		bus:       bus,
		notifier:  notifier,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Start recovers persisted state and launches the background services.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another trawler daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	// Recovery runs before any worker exists, so every in_progress row is
	// provably stale.
	if err := d.watchdog.RecoverStartup(d.ctx); err != nil {
		d.releaseLock()
		return fmt.Errorf("startup recovery: %w", err)
	}
	if err := d.pipelines.LoadBacklog(d.ctx); err != nil {
		d.releaseLock()
		return fmt.Errorf("load backlog: %w", err)
	}
	if err := d.pipelines.Start(d.ctx); err != nil {
		d.releaseLock()
		return fmt.Errorf("start pipelines: %w", err)
	}

	dispatcher := notifications.NewDispatcher(d.cfg, d.notifier, d.bus, d.logger)
	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		dispatcher.Run(d.ctx)
	}()
	go func() {
		defer d.wg.Done()
		d.watchdog.Run(d.ctx)
	}()

	if d.scanner != nil && d.cfg.Scanner.Enabled {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.scanner.RunLoop(d.ctx)
		}()
	}

	d.startedAt = time.Now().UTC()
	d.running.Store(true)
	d.logger.Info("trawler daemon started",
		logging.String("lock", d.lockPath),
		logging.String("database", d.store.Path()),
	)
	return nil
}

// Stop shuts the services down and releases the lock. Items mid-flight stay
// in_progress and are reset on the next start.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.pipelines.Stop()
	d.wg.Wait()
	d.releaseLock()
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("trawler daemon stopped")
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

func (d *Daemon) releaseLock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

// Running reports whether Start has completed.
func (d *Daemon) Running() bool { return d.running.Load() }

// Store exposes the item store for the IPC layer.
func (d *Daemon) Store() *store.Store { return d.store }

// Notifier exposes the notification service for the IPC layer.
func (d *Daemon) Notifier() notifications.Service { return d.notifier }
