package pipeline

import (
	"sort"
	"sync"
	"time"

	"trawler/internal/events"
	"trawler/internal/store"
)

// progressEventInterval throttles per-item progress broadcasts.
const progressEventInterval = 500 * time.Millisecond

// Slot describes one item currently being processed by a worker. Rate is
// the instantaneous transfer speed in bytes per second.
type Slot struct {
	ItemID     int64       `json:"item_id"`
	Title      string      `json:"title"`
	SourceID   string      `json:"source_id,omitempty"`
	Pipeline   Kind        `json:"pipeline"`
	Phase      store.Phase `json:"phase"`
	Percent    float64     `json:"percent"`
	Bytes      int64       `json:"bytes"`
	BytesTotal int64       `json:"bytes_total"`
	Rate       float64     `json:"rate"`
	StartedAt  time.Time   `json:"started_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Tracker holds the live view of in-flight work. It is the authority the
// watchdog compares against the store: an in_progress row with no slot here
// is an orphan.
type Tracker struct {
	bus *events.Bus

	mu        sync.Mutex
	slots     map[int64]*Slot
	lastEvent map[int64]time.Time
}

// NewTracker constructs a tracker that broadcasts progress on bus. A nil bus
// disables broadcasting.
func NewTracker(bus *events.Bus) *Tracker {
	return &Tracker{
		bus:       bus,
		slots:     make(map[int64]*Slot),
		lastEvent: make(map[int64]time.Time),
	}
}

// Begin registers an item as actively processing.
func (t *Tracker) Begin(item *store.Item, kind Kind, phase store.Phase) {
	now := time.Now().UTC()
	t.mu.Lock()
	t.slots[item.ID] = &Slot{
		ItemID:    item.ID,
		Title:     item.Title,
		SourceID:  item.Source,
		Pipeline:  kind,
		Phase:     phase,
		StartedAt: now,
		UpdatedAt: now,
	}
	t.lastEvent[item.ID] = now
	t.mu.Unlock()
}

// Update records progress for an item. The slot always reflects the latest
// values; event broadcasts are rate limited per item.
func (t *Tracker) Update(itemID int64, percent float64, bytes, total int64) {
	now := time.Now().UTC()

	t.mu.Lock()
	slot, ok := t.slots[itemID]
	if !ok {
		t.mu.Unlock()
		return
	}
	if elapsed := now.Sub(slot.UpdatedAt).Seconds(); elapsed > 0 && bytes > slot.Bytes {
		slot.Rate = float64(bytes-slot.Bytes) / elapsed
	}
	slot.Percent = percent
	slot.Bytes = bytes
	if total > 0 {
		slot.BytesTotal = total
	}
	slot.UpdatedAt = now

	publish := now.Sub(t.lastEvent[itemID]) >= progressEventInterval
	if publish {
		t.lastEvent[itemID] = now
	}
	evt := t.progressPayload(slot)
	t.mu.Unlock()

	if publish {
		t.bus.Publish(evt)
	}
}

// Finish removes the item's slot.
func (t *Tracker) Finish(itemID int64) {
	t.mu.Lock()
	delete(t.slots, itemID)
	delete(t.lastEvent, itemID)
	t.mu.Unlock()
}

// Snapshot returns a copy of every active slot ordered by start time.
func (t *Tracker) Snapshot() []Slot {
	t.mu.Lock()
	out := make([]Slot, 0, len(t.slots))
	for _, slot := range t.slots {
		out = append(out, *slot)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// ActiveIDs reports the item IDs with a live slot for the given phase.
func (t *Tracker) ActiveIDs(phase store.Phase) map[int64]bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[int64]bool, len(t.slots))
	for id, slot := range t.slots {
		if slot.Phase == phase {
			out[id] = true
		}
	}
	return out
}

func (t *Tracker) progressPayload(slot *Slot) events.Payload {
	evtType := events.TypeRetrievalProgress
	if slot.Phase == store.PhaseRelay {
		evtType = events.TypeRelayProgress
	}
	return events.Payload{
		Type:       evtType,
		ItemID:     slot.ItemID,
		Title:      slot.Title,
		SourceID:   slot.SourceID,
		Pipeline:   string(slot.Pipeline),
		Percent:    slot.Percent,
		Bytes:      slot.Bytes,
		BytesTotal: slot.BytesTotal,
		Rate:       slot.Rate,
	}
}
