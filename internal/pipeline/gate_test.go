package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestGateStartsRunning(t *testing.T) {
	g := NewGate()
	if g.Paused() {
		t.Fatal("new gate must not be paused")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := g.Wait(ctx); err != nil {
		t.Fatalf("Wait on running gate failed: %v", err)
	}
}

func TestPauseBlocksAllWaiters(t *testing.T) {
	g := NewGate()
	g.Pause()
	g.Pause() // idempotent

	var passed atomic.Int32
	for i := 0; i < 5; i++ {
		go func() {
			if err := g.Wait(context.Background()); err == nil {
				passed.Add(1)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	if n := passed.Load(); n != 0 {
		t.Fatalf("expected no waiters through a paused gate, got %d", n)
	}

	g.Resume()
	deadline := time.Now().Add(time.Second)
	for passed.Load() != 5 {
		if time.Now().After(deadline) {
			t.Fatalf("expected all 5 waiters released, got %d", passed.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWaitHonorsContextWhilePaused(t *testing.T) {
	g := NewGate()
	g.Pause()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := g.Wait(ctx); err == nil {
		t.Fatal("expected context error from Wait on paused gate")
	}
}
