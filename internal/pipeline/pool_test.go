package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"trawler/internal/config"
	"trawler/internal/events"
	"trawler/internal/logging"
	"trawler/internal/pipeline"
	"trawler/internal/store"
	"trawler/internal/testsupport"
)

type stubFetcher struct {
	calls atomic.Int32
	fetch func(ctx context.Context, item *store.Item, progress pipeline.ProgressFunc) (pipeline.FetchResult, error)
}

func (f *stubFetcher) Fetch(ctx context.Context, item *store.Item, progress pipeline.ProgressFunc) (pipeline.FetchResult, error) {
	f.calls.Add(1)
	if f.fetch != nil {
		return f.fetch(ctx, item, progress)
	}
	return pipeline.FetchResult{LocalPath: "/tmp/" + item.ExternalID + ".mp4", Size: 100}, nil
}

type stubTransferrer struct {
	calls    atomic.Int32
	transfer func(ctx context.Context, item *store.Item, progress pipeline.ProgressFunc) (pipeline.RelayResult, error)
}

func (s *stubTransferrer) Transfer(ctx context.Context, item *store.Item, progress pipeline.ProgressFunc) (pipeline.RelayResult, error) {
	s.calls.Add(1)
	if s.transfer != nil {
		return s.transfer(ctx, item, progress)
	}
	return pipeline.RelayResult{RemoteRef: "remote/" + item.ExternalID}, nil
}

func newManager(t *testing.T, cfg *config.Config, st *store.Store, fetcher pipeline.Fetcher, transferrer pipeline.Transferrer) *pipeline.Manager {
	t.Helper()
	mgr := pipeline.NewManager(cfg, st, logging.NewNop(), events.NewBus(), fetcher, transferrer)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("start pipelines: %v", err)
	}
	t.Cleanup(mgr.Stop)
	return mgr
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRetrievalSuccessPersistsResult(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	fetcher := &stubFetcher{}
	mgr := newManager(t, cfg, st, fetcher, nil)

	item := testsupport.MustInsertItem(t, st, "ok-1", "Works", 600)
	mgr.EnqueueRetrieval(item)

	waitFor(t, "retrieval to complete", func() bool {
		got, err := st.GetItem(context.Background(), item.ID)
		return err == nil && got.RetrievalStatus == store.StatusCompleted
	})

	got, _ := st.GetItem(context.Background(), item.ID)
	if got.LocalPath == "" || got.LocalSize != 100 {
		t.Fatalf("unexpected persisted result: %#v", got)
	}
	if got.RetrievalAttempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", got.RetrievalAttempts)
	}
}

func TestDurationRoutesToShortPipeline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	mgr := pipeline.NewManager(cfg, st, logging.NewNop(), events.NewBus(), &stubFetcher{}, nil)

	short := testsupport.MustInsertItem(t, st, "short-1", "Short", 45)
	long := testsupport.MustInsertItem(t, st, "long-1", "Long", 61)
	boundary := testsupport.MustInsertItem(t, st, "edge-1", "Boundary", 60)

	if kind := mgr.EnqueueRetrieval(short); kind != pipeline.KindShort {
		t.Fatalf("45s item routed to %s", kind)
	}
	if kind := mgr.EnqueueRetrieval(long); kind != pipeline.KindStandard {
		t.Fatalf("61s item routed to %s", kind)
	}
	if kind := mgr.EnqueueRetrieval(boundary); kind != pipeline.KindShort {
		t.Fatalf("60s item routed to %s at threshold 60", kind)
	}

	depths := mgr.QueueDepths()
	if depths[pipeline.KindShort] != 2 || depths[pipeline.KindStandard] != 1 {
		t.Fatalf("unexpected depths: %v", depths)
	}
}

func TestUnknownDurationRoutesStandard(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	item := &store.Item{ID: 1, Duration: 0}
	if kind := pipeline.RetrievalKind(item, cfg.Pipelines.ShortMaxDuration); kind != pipeline.KindStandard {
		t.Fatalf("unknown duration routed to %s", kind)
	}
}

func TestPauseGateHoldsQueuedWork(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	fetcher := &stubFetcher{}
	mgr := newManager(t, cfg, st, fetcher, nil)

	for _, kind := range pipeline.Kinds {
		mgr.GateFor(kind).Pause()
	}
	ids := make([]int64, 0, 5)
	for i := 0; i < 5; i++ {
		item := testsupport.MustInsertItem(t, st, fmt.Sprintf("paused-%d", i), "Held", 600)
		ids = append(ids, item.ID)
		mgr.EnqueueRetrieval(item)
	}

	time.Sleep(100 * time.Millisecond)
	if n := fetcher.calls.Load(); n != 0 {
		t.Fatalf("expected zero fetches while paused, got %d", n)
	}

	for _, kind := range pipeline.Kinds {
		mgr.GateFor(kind).Resume()
	}
	waitFor(t, "all items to complete after resume", func() bool {
		for _, id := range ids {
			got, err := st.GetItem(context.Background(), id)
			if err != nil || got.RetrievalStatus != store.StatusCompleted {
				return false
			}
		}
		return true
	})
}

func TestPauseIsScopedToOnePipeline(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRelayEnabled())
	st := testsupport.MustOpenStore(t, cfg)

	downloads := t.TempDir()
	fetcher := &stubFetcher{}
	fetcher.fetch = func(ctx context.Context, item *store.Item, progress pipeline.ProgressFunc) (pipeline.FetchResult, error) {
		path := filepath.Join(downloads, item.ExternalID+".mp4")
		if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
			return pipeline.FetchResult{}, err
		}
		return pipeline.FetchResult{LocalPath: path, Size: 7}, nil
	}
	transferrer := &stubTransferrer{}
	mgr := newManager(t, cfg, st, fetcher, transferrer)

	mgr.GateFor(pipeline.KindRelay).Pause()

	item := testsupport.MustInsertItem(t, st, "held-relay-1", "Retrieval Still Runs", 600)
	mgr.EnqueueRetrieval(item)

	waitFor(t, "retrieval to finish with relay paused", func() bool {
		got, err := st.GetItem(context.Background(), item.ID)
		return err == nil && got.RetrievalStatus == store.StatusCompleted
	})

	time.Sleep(100 * time.Millisecond)
	if n := transferrer.calls.Load(); n != 0 {
		t.Fatalf("expected no transfers while relay paused, got %d", n)
	}
	got, _ := st.GetItem(context.Background(), item.ID)
	if got.RelayStatus != store.StatusPending {
		t.Fatalf("expected relay held at pending, got %s", got.RelayStatus)
	}

	states := mgr.PauseStates()
	if !states[pipeline.KindRelay] || states[pipeline.KindStandard] || states[pipeline.KindShort] {
		t.Fatalf("unexpected pause states: %v", states)
	}

	mgr.GateFor(pipeline.KindRelay).Resume()
	waitFor(t, "relay to complete after resume", func() bool {
		got, err := st.GetItem(context.Background(), item.ID)
		return err == nil && got.RelayStatus == store.StatusCompleted
	})
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProgressLoggingIsSampled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	out := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(out, nil))

	fetcher := &stubFetcher{}
	fetcher.fetch = func(ctx context.Context, item *store.Item, progress pipeline.ProgressFunc) (pipeline.FetchResult, error) {
		for i := 0; i <= 1000; i++ {
			progress(float64(i)/10, int64(i*10), 10000)
		}
		return pipeline.FetchResult{LocalPath: "/tmp/sampled.mp4", Size: 100}, nil
	}
	mgr := pipeline.NewManager(cfg, st, logger, events.NewBus(), fetcher, nil)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("start pipelines: %v", err)
	}
	t.Cleanup(mgr.Stop)

	item := testsupport.MustInsertItem(t, st, "sampled-1", "Chatty Download", 600)
	mgr.EnqueueRetrieval(item)

	waitFor(t, "sampled retrieval to complete", func() bool {
		got, err := st.GetItem(context.Background(), item.ID)
		return err == nil && got.RetrievalStatus == store.StatusCompleted
	})

	lines := strings.Count(out.String(), "retrieval progress")
	if lines == 0 {
		t.Fatal("expected progress log lines")
	}
	// 1001 updates must collapse to roughly one line per percent bucket.
	if lines > 30 {
		t.Fatalf("expected sampled progress logging, got %d lines", lines)
	}
}

func TestRecoverableFailureRetriesUntilSuccess(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	fetcher := &stubFetcher{}
	fetcher.fetch = func(ctx context.Context, item *store.Item, progress pipeline.ProgressFunc) (pipeline.FetchResult, error) {
		if fetcher.calls.Load() < 3 {
			return pipeline.FetchResult{}, errors.New("read tcp: Connection reset by peer")
		}
		return pipeline.FetchResult{LocalPath: "/tmp/retry.mp4", Size: 10}, nil
	}
	mgr := newManager(t, cfg, st, fetcher, nil)

	item := testsupport.MustInsertItem(t, st, "retry-1", "Flaky", 600)
	mgr.EnqueueRetrieval(item)

	waitFor(t, "flaky retrieval to eventually complete", func() bool {
		got, err := st.GetItem(context.Background(), item.ID)
		return err == nil && got.RetrievalStatus == store.StatusCompleted
	})

	got, _ := st.GetItem(context.Background(), item.ID)
	if got.RetrievalAttempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", got.RetrievalAttempts)
	}
}

func TestTerminalFailureIsNotRetried(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	fetcher := &stubFetcher{}
	fetcher.fetch = func(ctx context.Context, item *store.Item, progress pipeline.ProgressFunc) (pipeline.FetchResult, error) {
		return pipeline.FetchResult{}, errors.New("HTTP Error 404: Not Found")
	}
	mgr := newManager(t, cfg, st, fetcher, nil)

	item := testsupport.MustInsertItem(t, st, "gone-1", "Removed", 600)
	mgr.EnqueueRetrieval(item)

	waitFor(t, "terminal failure to persist", func() bool {
		got, err := st.GetItem(context.Background(), item.ID)
		return err == nil && got.RetrievalStatus == store.StatusError
	})

	time.Sleep(100 * time.Millisecond)
	if n := fetcher.calls.Load(); n != 1 {
		t.Fatalf("expected exactly 1 fetch for terminal error, got %d", n)
	}
	got, _ := st.GetItem(context.Background(), item.ID)
	if got.RetrievalError == "" {
		t.Fatal("expected persisted error text")
	}
}

func TestRecoverableFailureStopsAtAttemptCeiling(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	fetcher := &stubFetcher{}
	fetcher.fetch = func(ctx context.Context, item *store.Item, progress pipeline.ProgressFunc) (pipeline.FetchResult, error) {
		return pipeline.FetchResult{}, errors.New("dial tcp: Connection refused")
	}
	mgr := newManager(t, cfg, st, fetcher, nil)

	item := testsupport.MustInsertItem(t, st, "down-1", "Unreachable", 600)
	mgr.EnqueueRetrieval(item)

	waitFor(t, "retries to exhaust", func() bool {
		got, err := st.GetItem(context.Background(), item.ID)
		return err == nil && got.RetrievalStatus == store.StatusError && got.RetrievalAttempts == cfg.Pipelines.MaxAttempts
	})

	time.Sleep(100 * time.Millisecond)
	if n := int(fetcher.calls.Load()); n != cfg.Pipelines.MaxAttempts {
		t.Fatalf("expected %d fetches, got %d", cfg.Pipelines.MaxAttempts, n)
	}
}

func TestRelayFollowsRetrievalAndCleansUp(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRelayEnabled())
	cfg.Relay.DeleteAfterRelay = true
	st := testsupport.MustOpenStore(t, cfg)

	downloads := t.TempDir()
	fetcher := &stubFetcher{}
	fetcher.fetch = func(ctx context.Context, item *store.Item, progress pipeline.ProgressFunc) (pipeline.FetchResult, error) {
		path := filepath.Join(downloads, item.ExternalID+".mp4")
		if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
			return pipeline.FetchResult{}, err
		}
		return pipeline.FetchResult{LocalPath: path, Size: 7}, nil
	}
	transferrer := &stubTransferrer{}
	mgr := newManager(t, cfg, st, fetcher, transferrer)

	item := testsupport.MustInsertItem(t, st, "relay-1", "Full Flow", 600)
	mgr.EnqueueRetrieval(item)

	waitFor(t, "relay to complete", func() bool {
		got, err := st.GetItem(context.Background(), item.ID)
		return err == nil && got.RelayStatus == store.StatusCompleted
	})

	got, _ := st.GetItem(context.Background(), item.ID)
	if got.RemoteRef != "remote/relay-1" {
		t.Fatalf("unexpected remote ref %q", got.RemoteRef)
	}
	if got.LocalPath != "" {
		t.Fatalf("expected local path cleared after relay, got %q", got.LocalPath)
	}
	if _, err := os.Stat(filepath.Join(downloads, "relay-1.mp4")); !os.IsNotExist(err) {
		t.Fatal("expected local file removed after relay")
	}
}

func TestRelayRequiresRetrievedFile(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRelayEnabled())
	st := testsupport.MustOpenStore(t, cfg)
	transferrer := &stubTransferrer{}
	mgr := newManager(t, cfg, st, &stubFetcher{}, transferrer)

	// Enqueued for relay without a completed retrieval: the claim fails and
	// the item is dropped, never handed to the transferrer.
	item := testsupport.MustInsertItem(t, st, "norelay-1", "Not Ready", 600)
	mgr.EnqueueRelay(item)

	time.Sleep(100 * time.Millisecond)
	if n := transferrer.calls.Load(); n != 0 {
		t.Fatalf("expected no transfer for unretrieved item, got %d", n)
	}
	got, _ := st.GetItem(context.Background(), item.ID)
	if got.RelayStatus != store.StatusPending {
		t.Fatalf("expected relay status unchanged, got %s", got.RelayStatus)
	}
}
