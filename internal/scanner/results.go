package scanner

import (
	"context"
	"fmt"
	"time"
)

// sourceResultLimit caps the per-source history kept for status display.
const sourceResultLimit = 20

// ScanResult summarizes one scan run.
type ScanResult struct {
	RunID           string    `json:"run_id"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	SourcesScanned  int       `json:"sources_scanned"`
	ItemsDiscovered int       `json:"items_discovered"`
	Aborted         bool      `json:"aborted"`
	Error           string    `json:"error,omitempty"`
}

// Summary renders a one-line description for notifications and logs.
func (r *ScanResult) Summary() string {
	if r.Aborted {
		return fmt.Sprintf("scan aborted after %d sources, %d new items", r.SourcesScanned, r.ItemsDiscovered)
	}
	return fmt.Sprintf("scanned %d sources, %d new items", r.SourcesScanned, r.ItemsDiscovered)
}

// SourceResult records the outcome of one source within a scan.
type SourceResult struct {
	SourceID   string    `json:"source_id"`
	SourceName string    `json:"source_name"`
	Discovered int       `json:"discovered"`
	ScannedAt  time.Time `json:"scanned_at"`
	Error      string    `json:"error,omitempty"`
}

// resultRing keeps the most recent source results, oldest evicted first.
type resultRing struct {
	capacity int
	entries  []SourceResult
}

func newResultRing(capacity int) *resultRing {
	return &resultRing{capacity: capacity}
}

func (r *resultRing) add(res SourceResult) {
	if len(r.entries) == r.capacity {
		copy(r.entries, r.entries[1:])
		r.entries = r.entries[:r.capacity-1]
	}
	r.entries = append(r.entries, res)
}

func (r *resultRing) snapshot() []SourceResult {
	out := make([]SourceResult, len(r.entries))
	copy(out, r.entries)
	return out
}

func (s *Scanner) addResult(res SourceResult) {
	s.mu.Lock()
	s.results.add(res)
	s.mu.Unlock()
}

// Status is the scanner view exposed over IPC.
type Status struct {
	Scanning      bool           `json:"scanning"`
	LastScan      *ScanResult    `json:"last_scan,omitempty"`
	SourceResults []SourceResult `json:"source_results,omitempty"`
	QuotaDeferred bool           `json:"quota_deferred"`
	QuotaResetAt  *time.Time     `json:"quota_reset_at,omitempty"`
}

// Status reports the current scanner state.
func (s *Scanner) Status(ctx context.Context) Status {
	s.mu.Lock()
	status := Status{
		Scanning:      s.scanning,
		SourceResults: s.results.snapshot(),
	}
	if s.lastScan != nil {
		last := *s.lastScan
		status.LastScan = &last
	}
	s.mu.Unlock()

	if status.LastScan == nil {
		// Fresh process: fall back to the persisted result of a prior run.
		var persisted ScanResult
		if found, err := s.store.GetStateJSON(ctx, lastScanStateKey, &persisted); err == nil && found {
			status.LastScan = &persisted
		}
	}

	var state quotaState
	if found, err := s.store.GetStateJSON(ctx, quotaStateKey, &state); err == nil && found && state.Exhausted {
		if time.Now().Before(state.ResetAt) {
			status.QuotaDeferred = true
			reset := state.ResetAt
			status.QuotaResetAt = &reset
		}
	}
	return status
}
