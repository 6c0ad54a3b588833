package store

import "time"

// Status represents one lifecycle state of an item phase.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Phase names the two independent item lifecycles.
type Phase string

const (
	PhaseRetrieval Phase = "retrieval"
	PhaseRelay     Phase = "relay"
)

// maxErrorLength bounds stored error text so a pathological collaborator
// error cannot bloat the database.
const maxErrorLength = 1000

// Item is one discovered media unit with independent retrieval and relay
// lifecycles.
type Item struct {
	ID         int64
	ExternalID string
	Title      string
	Source     string
	Duration   int
	Thumbnail  string

	RetrievalStatus   Status
	RetrievalAttempts int
	RetrievalError    string
	LocalPath         string
	LocalSize         int64
	RetrievedAt       *time.Time

	RelayStatus   Status
	RelayAttempts int
	RelayError    string
	RemoteRef     string
	RelayedAt     *time.Time

	CreatedAt time.Time
}

// PhaseStatus returns the item's status for the given phase.
func (i *Item) PhaseStatus(phase Phase) Status {
	if phase == PhaseRelay {
		return i.RelayStatus
	}
	return i.RetrievalStatus
}

// PhaseAttempts returns the item's attempt counter for the given phase.
func (i *Item) PhaseAttempts(phase Phase) int {
	if phase == PhaseRelay {
		return i.RelayAttempts
	}
	return i.RetrievalAttempts
}

// PhaseError returns the item's stored error text for the given phase.
func (i *Item) PhaseError(phase Phase) string {
	if phase == PhaseRelay {
		return i.RelayError
	}
	return i.RetrievalError
}

// Source is one tracked discovery origin and its scan checkpoint.
type Source struct {
	ID         int64
	ExternalID string
	Name       string
	Thumbnail  string
	Enabled    bool

	LastSeenItemID string
	LastSeenAt     *time.Time
	LastScannedAt  *time.Time

	CreatedAt time.Time
}

// Stats aggregates item counts per phase and status.
type Stats struct {
	Total     int
	Retrieval map[Status]int
	Relay     map[Status]int
}
