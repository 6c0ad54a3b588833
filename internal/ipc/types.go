package ipc

import (
	"time"

	"trawler/internal/pipeline"
	"trawler/internal/scanner"
)

// Item is the queue DTO shared between daemon and CLI.
type Item struct {
	ID                int64      `json:"id"`
	ExternalID        string     `json:"external_id"`
	Title             string     `json:"title"`
	Source            string     `json:"source"`
	Duration          int        `json:"duration"`
	RetrievalStatus   string     `json:"retrieval_status"`
	RetrievalAttempts int        `json:"retrieval_attempts"`
	RetrievalError    string     `json:"retrieval_error,omitempty"`
	LocalPath         string     `json:"local_path,omitempty"`
	LocalSize         int64      `json:"local_size,omitempty"`
	RelayStatus       string     `json:"relay_status"`
	RelayAttempts     int        `json:"relay_attempts"`
	RelayError        string     `json:"relay_error,omitempty"`
	RemoteRef         string     `json:"remote_ref,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	RetrievedAt       *time.Time `json:"retrieved_at,omitempty"`
	RelayedAt         *time.Time `json:"relayed_at,omitempty"`
}

// SourceInfo is the tracked-source DTO.
type SourceInfo struct {
	ExternalID    string     `json:"external_id"`
	Name          string     `json:"name"`
	Enabled       bool       `json:"enabled"`
	LastSeenItem  string     `json:"last_seen_item,omitempty"`
	LastScannedAt *time.Time `json:"last_scanned_at,omitempty"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse is the combined daemon snapshot.
type StatusResponse struct {
	Running     bool             `json:"running"`
	Paused      map[string]bool  `json:"paused"`
	PID         int              `json:"pid"`
	StartedAt   time.Time        `json:"started_at"`
	LockPath    string           `json:"lock_path"`
	DBPath      string           `json:"db_path"`
	QueueDepths map[string]int   `json:"queue_depths"`
	Active      []pipeline.Slot  `json:"active"`
	Retrieval   map[string]int   `json:"retrieval_stats"`
	Relay       map[string]int   `json:"relay_stats"`
	TotalItems  int              `json:"total_items"`
	LocalSize   int64            `json:"local_size"`
	Sources     int              `json:"sources"`
	Scanner     *scanner.Status  `json:"scanner,omitempty"`
}

// PauseRequest pauses worker pools. Pipeline selects one pool; empty or
// "all" pauses every pool.
type PauseRequest struct {
	Pipeline string `json:"pipeline,omitempty"`
}

// PauseResponse reports whether the state changed.
type PauseResponse struct {
	Changed bool `json:"changed"`
}

// ResumeRequest resumes worker pools, with the same targeting as pause.
type ResumeRequest struct {
	Pipeline string `json:"pipeline,omitempty"`
}

// ResumeResponse reports whether the state changed.
type ResumeResponse struct {
	Changed bool `json:"changed"`
}

// ScanRequest triggers a discovery scan. Force overrides quota deferral.
type ScanRequest struct {
	Force bool `json:"force"`
}

// ScanResponse carries the scan outcome.
type ScanResponse struct {
	Result scanner.ScanResult `json:"result"`
}

// QueueListRequest filters item listing by phase and statuses. An empty
// phase lists recent items regardless of state.
type QueueListRequest struct {
	Phase    string   `json:"phase"`
	Statuses []string `json:"statuses"`
	Limit    int      `json:"limit"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Items []Item `json:"items"`
}

// QueueRetryRequest retries errored items of a phase. Empty IDs retries all.
type QueueRetryRequest struct {
	Phase string  `json:"phase"`
	IDs   []int64 `json:"ids"`
}

// QueueRetryResponse reports how many items were reset.
type QueueRetryResponse struct {
	Updated int64 `json:"updated"`
}

// SourcesRequest lists tracked sources.
type SourcesRequest struct {
	EnabledOnly bool `json:"enabled_only"`
}

// SourcesResponse contains tracked sources.
type SourcesResponse struct {
	Sources []SourceInfo `json:"sources"`
}

// SourceEnableRequest toggles a source's participation in scans.
type SourceEnableRequest struct {
	ExternalID string `json:"external_id"`
	Enabled    bool   `json:"enabled"`
}

// SourceEnableResponse acknowledges the toggle.
type SourceEnableResponse struct {
	Updated bool `json:"updated"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
