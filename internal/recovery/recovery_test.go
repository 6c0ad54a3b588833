package recovery_test

import (
	"context"
	"testing"
	"time"

	"trawler/internal/events"
	"trawler/internal/logging"
	"trawler/internal/pipeline"
	"trawler/internal/recovery"
	"trawler/internal/store"
	"trawler/internal/testsupport"
)

type idleFetcher struct{}

func (idleFetcher) Fetch(ctx context.Context, item *store.Item, progress pipeline.ProgressFunc) (pipeline.FetchResult, error) {
	<-ctx.Done()
	return pipeline.FetchResult{}, ctx.Err()
}

func newWatchdog(t *testing.T) (*recovery.Watchdog, *store.Store, *pipeline.Manager) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	mgr := pipeline.NewManager(cfg, st, logging.NewNop(), events.NewBus(), idleFetcher{}, nil)
	wd := recovery.NewWatchdog(st, mgr, logging.NewNop(), time.Minute, cfg.Pipelines.MaxAttempts)
	return wd, st, mgr
}

func TestRecoverStartupResetsInProgressRows(t *testing.T) {
	wd, st, _ := newWatchdog(t)
	ctx := context.Background()

	stuck := testsupport.MustInsertItem(t, st, "stuck-1", "Stuck", 100)
	if err := st.MarkRetrievalStarted(ctx, stuck.ID); err != nil {
		t.Fatal(err)
	}
	untouched := testsupport.MustInsertItem(t, st, "fine-1", "Fine", 100)

	if err := wd.RecoverStartup(ctx); err != nil {
		t.Fatalf("RecoverStartup failed: %v", err)
	}

	got, _ := st.GetItem(ctx, stuck.ID)
	if got.RetrievalStatus != store.StatusPending {
		t.Fatalf("expected stuck item reset to pending, got %s", got.RetrievalStatus)
	}
	got, _ = st.GetItem(ctx, untouched.ID)
	if got.RetrievalStatus != store.StatusPending {
		t.Fatalf("expected untouched item unchanged, got %s", got.RetrievalStatus)
	}
}

func TestSweepReclaimsOnlyOrphans(t *testing.T) {
	wd, st, mgr := newWatchdog(t)
	ctx := context.Background()

	// Three in_progress rows, one backed by a live tracker slot.
	var ids []int64
	for _, ext := range []string{"orph-1", "orph-2", "live-1"} {
		item := testsupport.MustInsertItem(t, st, ext, ext, 100)
		if err := st.MarkRetrievalStarted(ctx, item.ID); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, item.ID)
	}
	live, _ := st.GetItem(ctx, ids[2])
	mgr.Tracker().Begin(live, pipeline.KindStandard, store.PhaseRetrieval)

	if err := wd.Sweep(ctx); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	for _, id := range ids[:2] {
		got, _ := st.GetItem(ctx, id)
		if got.RetrievalStatus != store.StatusPending {
			t.Fatalf("expected orphan %d reset, got %s", id, got.RetrievalStatus)
		}
	}
	got, _ := st.GetItem(ctx, ids[2])
	if got.RetrievalStatus != store.StatusInProgress {
		t.Fatalf("expected live item untouched, got %s", got.RetrievalStatus)
	}
	if depths := mgr.QueueDepths(); depths[pipeline.KindStandard] != 2 {
		t.Fatalf("expected 2 reclaimed items re-queued, got %v", depths)
	}
}

func TestSweepSparesFreshlyClaimedWork(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	mgr := pipeline.NewManager(cfg, st, logging.NewNop(), events.NewBus(), idleFetcher{}, nil)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("start pipelines: %v", err)
	}
	t.Cleanup(mgr.Stop)
	wd := recovery.NewWatchdog(st, mgr, logging.NewNop(), time.Minute, cfg.Pipelines.MaxAttempts)
	ctx := context.Background()

	// A worker claims the item and blocks inside the fetch. The tracker
	// slot must already exist by the time the row reads in_progress, so a
	// sweep racing the claim cannot reset live work.
	item := testsupport.MustInsertItem(t, st, "claimed-1", "Being Fetched", 100)
	mgr.EnqueueRetrieval(item)

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := st.GetItem(ctx, item.ID)
		if err == nil && got.RetrievalStatus == store.StatusInProgress {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for claim")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := wd.Sweep(ctx); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	got, _ := st.GetItem(ctx, item.ID)
	if got.RetrievalStatus != store.StatusInProgress {
		t.Fatalf("expected live claim untouched, got %s", got.RetrievalStatus)
	}
	if depths := mgr.QueueDepths(); depths[pipeline.KindStandard] != 0 {
		t.Fatalf("expected nothing re-queued, got %v", depths)
	}
}

func TestSweepRequeuesRecoverableErrors(t *testing.T) {
	wd, st, mgr := newWatchdog(t)
	ctx := context.Background()

	transient := testsupport.MustInsertItem(t, st, "tran-1", "Transient", 100)
	if err := st.MarkRetrievalStarted(ctx, transient.ID); err != nil {
		t.Fatal(err)
	}
	if err := st.MarkRetrievalFailed(ctx, transient.ID, "HTTP Error 503: Service Unavailable"); err != nil {
		t.Fatal(err)
	}

	fatal := testsupport.MustInsertItem(t, st, "dead-1", "Dead", 100)
	if err := st.MarkRetrievalStarted(ctx, fatal.ID); err != nil {
		t.Fatal(err)
	}
	if err := st.MarkRetrievalFailed(ctx, fatal.ID, "This video is private"); err != nil {
		t.Fatal(err)
	}

	if err := wd.Sweep(ctx); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	got, _ := st.GetItem(ctx, transient.ID)
	if got.RetrievalStatus != store.StatusPending {
		t.Fatalf("expected transient item re-queued, got %s", got.RetrievalStatus)
	}
	got, _ = st.GetItem(ctx, fatal.ID)
	if got.RetrievalStatus != store.StatusError {
		t.Fatalf("expected fatal item left errored, got %s", got.RetrievalStatus)
	}
	if depths := mgr.QueueDepths(); depths[pipeline.KindStandard] != 1 {
		t.Fatalf("expected 1 re-queued item, got %v", depths)
	}
}

func TestSweepLeavesExhaustedItemsErrored(t *testing.T) {
	wd, st, _ := newWatchdog(t)
	ctx := context.Background()

	item := testsupport.MustInsertItem(t, st, "worn-1", "Worn Out", 100)
	for i := 0; i < 3; i++ {
		if err := st.MarkRetrievalStarted(ctx, item.ID); err != nil {
			t.Fatal(err)
		}
		if err := st.MarkRetrievalFailed(ctx, item.ID, "timed out"); err != nil {
			t.Fatal(err)
		}
		if i < 2 {
			if _, err := st.ResetToPending(ctx, store.PhaseRetrieval, item.ID); err != nil {
				t.Fatal(err)
			}
		}
	}

	if err := wd.Sweep(ctx); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	got, _ := st.GetItem(ctx, item.ID)
	if got.RetrievalStatus != store.StatusError {
		t.Fatalf("expected exhausted item to stay errored, got %s", got.RetrievalStatus)
	}
}
