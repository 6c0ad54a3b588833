package pipeline

import (
	"testing"
	"time"

	"trawler/internal/events"
	"trawler/internal/store"
)

func TestTrackerSlotLifecycle(t *testing.T) {
	tracker := NewTracker(events.NewBus())
	item := &store.Item{ID: 1, Title: "First", Source: "chan-1"}

	tracker.Begin(item, KindStandard, store.PhaseRetrieval)
	tracker.Update(1, 42.5, 1024, 4096)

	slots := tracker.Snapshot()
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if slots[0].Percent != 42.5 || slots[0].Bytes != 1024 {
		t.Fatalf("unexpected slot state: %#v", slots[0])
	}
	if slots[0].BytesTotal != 4096 {
		t.Fatalf("expected total 4096, got %d", slots[0].BytesTotal)
	}

	tracker.Finish(1)
	if len(tracker.Snapshot()) != 0 {
		t.Fatal("expected empty snapshot after Finish")
	}
}

func TestTrackerThrottlesProgressEvents(t *testing.T) {
	bus := events.NewBus()
	ch, cancel := bus.Subscribe(events.TypeRetrievalProgress)
	defer cancel()

	tracker := NewTracker(bus)
	tracker.Begin(&store.Item{ID: 2, Title: "Throttled"}, KindStandard, store.PhaseRetrieval)

	// A burst of updates immediately after Begin is within the throttle
	// window, so no progress events should escape.
	for i := 0; i < 50; i++ {
		tracker.Update(2, float64(i), int64(i), 0)
	}

	select {
	case evt := <-ch:
		t.Fatalf("expected throttled burst to publish nothing, got %#v", evt)
	case <-time.After(50 * time.Millisecond):
	}

	// The slot itself always carries the latest values.
	slots := tracker.Snapshot()
	if slots[0].Percent != 49 {
		t.Fatalf("expected latest percent 49, got %v", slots[0].Percent)
	}
}

func TestTrackerComputesTransferRate(t *testing.T) {
	tracker := NewTracker(nil)
	tracker.Begin(&store.Item{ID: 3, Title: "Rated"}, KindStandard, store.PhaseRetrieval)

	time.Sleep(20 * time.Millisecond)
	tracker.Update(3, 10, 2048, 20480)

	slots := tracker.Snapshot()
	if slots[0].Rate <= 0 {
		t.Fatalf("expected positive transfer rate, got %v", slots[0].Rate)
	}

	// A later update with no byte movement keeps the previous rate.
	prev := slots[0].Rate
	tracker.Update(3, 10, 2048, 20480)
	if got := tracker.Snapshot()[0].Rate; got != prev {
		t.Fatalf("expected rate unchanged without progress, got %v", got)
	}
}

func TestTrackerActiveIDsFiltersByPhase(t *testing.T) {
	tracker := NewTracker(nil)
	tracker.Begin(&store.Item{ID: 10}, KindStandard, store.PhaseRetrieval)
	tracker.Begin(&store.Item{ID: 11}, KindRelay, store.PhaseRelay)

	retrieving := tracker.ActiveIDs(store.PhaseRetrieval)
	if len(retrieving) != 1 || !retrieving[10] {
		t.Fatalf("unexpected retrieval set: %v", retrieving)
	}
	relaying := tracker.ActiveIDs(store.PhaseRelay)
	if len(relaying) != 1 || !relaying[11] {
		t.Fatalf("unexpected relay set: %v", relaying)
	}
}

func TestTrackerUpdateIgnoresUnknownItem(t *testing.T) {
	tracker := NewTracker(nil)
	tracker.Update(404, 50, 0, 0)
	if len(tracker.Snapshot()) != 0 {
		t.Fatal("update must not create slots")
	}
}
