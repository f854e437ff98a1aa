package eventbus

import (
	"sync"

	"github.com/osa/runtime/pkg/models"
)

// boundedQueue is a per-subscriber FIFO with a fixed capacity. On overflow
// the oldest undelivered event is dropped to make room for the new one, so
// a slow subscriber never blocks the publisher.
type boundedQueue struct {
	mu       sync.Mutex
	items    []models.Event
	capacity int
	dropped  uint64
	notify   chan struct{}
	closed   bool
}

func newBoundedQueue(capacity int) *boundedQueue {
	if capacity <= 0 {
		capacity = 64
	}
	return &boundedQueue{
		capacity: capacity,
		notify: make(chan struct{}, 1),
	}
}

func (q *boundedQueue) push(ev models.Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if len(q.items) >= q.capacity {
		q.items = q.items[1:]
		q.dropped++
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *boundedQueue) pop() (models.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return models.Event{}, false
	}
	ev := q.items[0]
	q.items = q.items[1:]
	return ev, true
}

func (q *boundedQueue) droppedCount() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *boundedQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
