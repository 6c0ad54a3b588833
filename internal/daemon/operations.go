package daemon

import (
	"context"
	"errors"
	"os"
	"time"

	"trawler/internal/events"
	"trawler/internal/logging"
	"trawler/internal/pipeline"
	"trawler/internal/scanner"
	"trawler/internal/store"
)

// Status is the daemon state snapshot exposed over IPC.
type Status struct {
	Running     bool
	Paused      map[pipeline.Kind]bool
	PID         int
	StartedAt   time.Time
	LockPath    string
	DBPath      string
	QueueDepths map[pipeline.Kind]int
	Active      []pipeline.Slot
	Stats       store.Stats
	LocalSize   int64
	Sources     int
	Scanner     *scanner.Status
}

// Status assembles the current daemon snapshot.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	stats, err := d.store.ItemStats(ctx)
	if err != nil {
		return Status{}, err
	}
	localSize, err := d.store.TotalLocalSize(ctx)
	if err != nil {
		return Status{}, err
	}
	sources, err := d.store.CountSources(ctx, true)
	if err != nil {
		return Status{}, err
	}

	status := Status{
		Running:     d.running.Load(),
		Paused:      d.pipelines.PauseStates(),
		PID:         os.Getpid(),
		StartedAt:   d.startedAt,
		LockPath:    d.lockPath,
		DBPath:      d.store.Path(),
		QueueDepths: d.pipelines.QueueDepths(),
		Active:      d.pipelines.Tracker().Snapshot(),
		Stats:       stats,
		LocalSize:   localSize,
		Sources:     sources,
	}
	if d.scanner != nil {
		sc := d.scanner.Status(ctx)
		status.Scanner = &sc
	}
	return status, nil
}

// resolvePipelines maps a pause target to concrete pipelines. Empty and
// "all" cover every pool; "retrieval" covers both retrieval pools.
func resolvePipelines(target string) ([]pipeline.Kind, error) {
	switch target {
	case "", "all":
		return pipeline.Kinds, nil
	case "retrieval":
		return []pipeline.Kind{pipeline.KindStandard, pipeline.KindShort}, nil
	}
	kind, err := pipeline.ParseKind(target)
	if err != nil {
		return nil, err
	}
	return []pipeline.Kind{kind}, nil
}

// Pause stops the targeted pipelines from claiming new items. In-flight
// items finish. Returns whether any pipeline changed state.
func (d *Daemon) Pause(target string) (bool, error) {
	kinds, err := resolvePipelines(target)
	if err != nil {
		return false, err
	}
	changed := false
	for _, kind := range kinds {
		gate := d.pipelines.GateFor(kind)
		if gate.Paused() {
			continue
		}
		gate.Pause()
		changed = true
		d.bus.Publish(events.Payload{Type: events.TypePipelinesPaused, Pipeline: string(kind)})
		d.logger.Info("pipeline paused", logging.String(logging.FieldPipeline, string(kind)))
	}
	return changed, nil
}

// Resume releases the targeted paused pipelines.
func (d *Daemon) Resume(target string) (bool, error) {
	kinds, err := resolvePipelines(target)
	if err != nil {
		return false, err
	}
	changed := false
	for _, kind := range kinds {
		gate := d.pipelines.GateFor(kind)
		if !gate.Paused() {
			continue
		}
		gate.Resume()
		changed = true
		d.bus.Publish(events.Payload{Type: events.TypePipelinesResumed, Pipeline: string(kind)})
		d.logger.Info("pipeline resumed", logging.String(logging.FieldPipeline, string(kind)))
	}
	return changed, nil
}

// ErrScannerDisabled is returned when a scan is requested without a
// configured scanner.
var ErrScannerDisabled = errors.New("scanner not configured")

// Scan runs one discovery pass synchronously and returns its result.
func (d *Daemon) Scan(ctx context.Context, force bool) (*scanner.ScanResult, error) {
	if d.scanner == nil {
		return nil, ErrScannerDisabled
	}
	return d.scanner.Run(ctx, force)
}

// RetryItems resets errored items of the phase back to pending and
// re-queues them. With no IDs given, every errored item of the phase is
// retried. Returns how many items were reset.
func (d *Daemon) RetryItems(ctx context.Context, phase store.Phase, ids []int64) (int64, error) {
	if len(ids) == 0 {
		errored, err := d.store.ListByStatus(ctx, phase, store.StatusError)
		if err != nil {
			return 0, err
		}
		for _, item := range errored {
			ids = append(ids, item.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	updated, err := d.store.ResetToPending(ctx, phase, ids...)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		item, err := d.store.GetItem(ctx, id)
		if err != nil || item == nil {
			continue
		}
		if phase == store.PhaseRelay {
			d.pipelines.EnqueueRelay(item)
		} else {
			d.pipelines.EnqueueRetrieval(item)
		}
	}
	return updated, nil
}

// SetSourceEnabled includes or excludes a source from future scans.
func (d *Daemon) SetSourceEnabled(ctx context.Context, externalID string, enabled bool) error {
	return d.store.SetSourceEnabled(ctx, externalID, enabled)
}
