package runtime

import (
	"relay-lab/domain"
	"relay-lab/errors"
	"relay-lab/observability"
	"sync"
	"time"
)

// Queue is the bounded FIFO of not-yet-confirmed messages. It applies
// backpressure by rejecting enqueues at capacity; the caller decides whether
// to drop, block or surface the error upstream. FIFO order only holds for
// messages that succeed on the first attempt: deferred and retried messages
// are re-appended at the tail.
type Queue struct {
	mu       sync.Mutex
	capacity int
	items    []*domain.QueuedMessage
	stats    *observability.Stats
}

func NewQueue(capacity int, stats *observability.Stats) *Queue {
	return &Queue{capacity: capacity, stats: stats}
}

// Enqueue appends a message with status Pending. Rejects with ErrQueueFull
// at capacity and ErrMessageExpired when the expiry already passed; an
// already-dead message must not consume a slot.
func (q *Queue) Enqueue(m *domain.QueuedMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if m.ExpiredAt(time.Now().UTC()) {
		return errors.ErrMessageExpired
	}
	if len(q.items) >= q.capacity {
		return errors.ErrQueueFull
	}
	m.Status = domain.StatusPending
	q.items = append(q.items, m)
	q.stats.IncrEnqueued()
	return nil
}

// Dequeue pops the head. The worker owns the message until it reaches a
// terminal status or is requeued.
func (q *Queue) Dequeue() (*domain.QueuedMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	m := q.items[0]
	q.items = q.items[1:]
	return m, true
}

// Requeue re-appends an already-admitted message at the tail. It bypasses
// the capacity check: the message consumed its slot at Enqueue time and a
// deferred or retried message must not be lost to backpressure.
func (q *Queue) Requeue(m *domain.QueuedMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, m)
}

// DiscardExpired drops every queued message whose expiry predates the
// cutoff, marking it Expired. Returns how many were dropped.
func (q *Queue) DiscardExpired(cutoff time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.items[:0]
	dropped := 0
	for _, m := range q.items {
		if m.ExpiresAt != nil && m.ExpiresAt.Before(cutoff) {
			m.Status = domain.StatusExpired
			q.stats.IncrExpired()
			dropped++
			continue
		}
		kept = append(kept, m)
	}
	q.items = kept
	return dropped
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) Capacity() int {
	return q.capacity
}

func (q *Queue) Status() domain.QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return domain.QueueStatus{Depth: len(q.items), Capacity: q.capacity}
}
