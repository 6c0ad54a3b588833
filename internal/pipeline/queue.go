package pipeline

import (
	"context"
	"sync"

	"trawler/internal/store"
)

// Queue is an unbounded in-memory FIFO. Enqueue never blocks; Dequeue blocks
// until an item arrives or the context ends. Durability is the store's job,
// so losing queue contents on shutdown is fine.
type Queue struct {
	mu     sync.Mutex
	items  []*store.Item
	queued map[int64]bool
	signal chan struct{}
}

// NewQueue constructs an empty queue.
func NewQueue() *Queue {
	return &Queue{
		queued: make(map[int64]bool),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends the item. An item already waiting in this queue is not
// added twice, which keeps watchdog and scanner re-submissions idempotent.
func (q *Queue) Enqueue(item *store.Item) {
	if item == nil {
		return
	}
	q.mu.Lock()
	if q.queued[item.ID] {
		q.mu.Unlock()
		return
	}
	q.queued[item.ID] = true
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Dequeue removes and returns the oldest item, blocking until one is
// available or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (*store.Item, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			delete(q.queued, item.ID)
			if len(q.items) > 0 {
				select {
				case q.signal <- struct{}{}:
				default:
				}
			}
			q.mu.Unlock()
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.signal:
		}
	}
}

// Len reports how many items are waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
