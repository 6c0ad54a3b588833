// Package events provides an in-process fan-out bus that decouples the
// pipelines from observers such as notifications and the IPC status surface.
package events

import (
	"sync"
	"time"
)

// Type identifies the kind of lifecycle event carried by a Payload.
type Type string

const (
	TypeItemDiscovered     Type = "item:discovered"
	TypeRetrievalStarted   Type = "retrieval:started"
	TypeRetrievalProgress  Type = "retrieval:progress"
	TypeRetrievalCompleted Type = "retrieval:completed"
	TypeRetrievalFailed    Type = "retrieval:failed"
	TypeRelayStarted       Type = "relay:started"
	TypeRelayProgress      Type = "relay:progress"
	TypeRelayCompleted     Type = "relay:completed"
	TypeRelayFailed        Type = "relay:failed"
	TypeScanStarted        Type = "scan:started"
	TypeScanCompleted      Type = "scan:completed"
	TypePipelinesPaused    Type = "pipelines:paused"
	TypePipelinesResumed   Type = "pipelines:resumed"
)

// Payload describes a single event. Fields beyond Type are populated as
// relevant for the event kind.
type Payload struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"ts"`

	ItemID   int64  `json:"item_id,omitempty"`
	SourceID string `json:"source_id,omitempty"`
	Title    string `json:"title,omitempty"`
	Pipeline string `json:"pipeline,omitempty"`

	Percent    float64 `json:"percent,omitempty"`
	Bytes      int64   `json:"bytes,omitempty"`
	BytesTotal int64   `json:"bytes_total,omitempty"`
	Rate       float64 `json:"rate,omitempty"`
	Message    string  `json:"message,omitempty"`
	Error      string  `json:"error,omitempty"`
}

const defaultBuffer = 64

// Bus fans events out to subscriber channels. Publishing never blocks: a
// subscriber whose buffer is full misses the event and the drop is counted.
type Bus struct {
	mu      sync.Mutex
	subs    map[int]*subscriber
	nextID  int
	dropped uint64
}

type subscriber struct {
	ch    chan Payload
	types map[Type]bool
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscribe registers interest in the given event types and returns the
// delivery channel plus a cancel function. With no types listed the
// subscriber receives every event. The cancel function closes the channel.
func (b *Bus) Subscribe(types ...Type) (<-chan Payload, func()) {
	sub := &subscriber{ch: make(chan Payload, defaultBuffer)}
	if len(types) > 0 {
		sub.types = make(map[Type]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub.ch)
		}
		b.mu.Unlock()
	}
	return sub.ch, cancel
}

// Publish delivers the payload to every matching subscriber without blocking.
func (b *Bus) Publish(evt Payload) {
	if b == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if sub.types != nil && !sub.types[evt.Type] {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.dropped++
		}
	}
}

// Dropped reports how many events were discarded due to slow subscribers.
func (b *Bus) Dropped() uint64 {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
