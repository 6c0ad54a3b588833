package pipeline

import (
	"context"
	"sync"
)

// Gate pauses and resumes the workers of one pool. Workers call Wait before
// claiming an item; while paused, Wait blocks every caller until Resume.
// Items already being processed when Pause is called run to completion.
type Gate struct {
	mu      sync.Mutex
	running chan struct{}
	paused  bool
}

// NewGate constructs a gate in the running state.
func NewGate() *Gate {
	running := make(chan struct{})
	close(running)
	return &Gate{running: running}
}

// Pause blocks future Wait calls until Resume. Idempotent.
func (g *Gate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return
	}
	g.paused = true
	g.running = make(chan struct{})
}

// Resume releases every goroutine blocked in Wait. Idempotent.
func (g *Gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return
	}
	g.paused = false
	close(g.running)
}

// Paused reports the current state.
func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Wait blocks while the gate is paused. It returns ctx.Err when the context
// ends first.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		running := g.running
		g.mu.Unlock()

		select {
		case <-running:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
