package workers

import (
	"context"
	"fmt"
	"log/slog"
	"relay-lab/contract"
	"relay-lab/domain"
	"relay-lab/domain/event"
	"relay-lab/errors"
	"relay-lab/observability"
	"time"

	"golang.org/x/time/rate"
)

// Ensure *RetryWorker implements the contract.Worker interface at compile time.
var _ contract.Worker = (*RetryWorker)(nil)

// DeliveryQueue is the slice of queue behavior the worker needs.
type DeliveryQueue interface {
	Dequeue() (*domain.QueuedMessage, bool)
	Requeue(m *domain.QueuedMessage)
}

// Deliverer routes one message to its target.
type Deliverer interface {
	Deliver(ctx context.Context, m *domain.QueuedMessage) error
}

// RetryWorker drains the delivery queue, up to batchSize messages per cycle.
// It is the single owner of a message's status once dequeued: expiry,
// scheduling, the retry budget and the terminal transitions all happen here.
// The rate limiter paces transport attempts so a flapping transport cannot
// turn the loop into a hot spin.
type RetryWorker struct {
	log       *slog.Logger
	queue     DeliveryQueue
	deliverer Deliverer
	archiver  contract.Archiver
	stats     *observability.Stats
	events    chan<- event.Event
	limiter   *rate.Limiter
	batchSize int
	poll      time.Duration
}

func NewRetryWorker(log *slog.Logger, queue DeliveryQueue, deliverer Deliverer,
	archiver contract.Archiver, stats *observability.Stats, events chan<- event.Event,
	limiter *rate.Limiter, batchSize int, poll time.Duration) *RetryWorker {
	return &RetryWorker{
		log:       log,
		queue:     queue,
		deliverer: deliverer,
		archiver:  archiver,
		stats:     stats,
		events:    events,
		limiter:   limiter,
		batchSize: batchSize,
		poll:      poll,
	}
}

func (w *RetryWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping worker")
			return nil
		default:
		}

		if acted := w.ProcessBatch(ctx); acted > 0 {
			continue
		}
		// Nothing due, back off until the next poll.
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping worker")
			return nil
		case <-time.After(w.poll):
		}
	}
}

// ProcessBatch handles up to batchSize messages and returns how many it
// acted on. Deferred messages cycle back to the tail without counting as
// progress, so a queue with nothing due lets Run fall through to the poll
// sleep instead of spinning on its own requeues. The in-flight message is
// always finished before a shutdown takes effect.
func (w *RetryWorker) ProcessBatch(ctx context.Context) int {
	acted := 0
	for i := 0; i < w.batchSize; i++ {
		m, ok := w.queue.Dequeue()
		if !ok {
			break
		}
		if w.process(ctx, m) {
			acted++
		}
	}
	return acted
}

// process reports whether it acted on the message: a delivery attempt or a
// terminal transition. Requeues without an attempt are not progress.
func (w *RetryWorker) process(ctx context.Context, m *domain.QueuedMessage) bool {
	now := time.Now().UTC()

	// Expired messages are never delivered: no attempt, no retry.
	if m.ExpiredAt(now) {
		m.Status = domain.StatusExpired
		w.stats.IncrExpired()
		w.publish(event.New(event.MessageExpiredType, event.MessageExpired{Message: *m}))
		return true
	}

	// Not due yet: back to the tail, does not count as an attempt.
	if !m.DueAt(now) {
		w.queue.Requeue(m)
		return false
	}

	m.Status = domain.StatusSending
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			// Shutdown mid-batch: the message stays pending for the next run.
			m.Status = domain.StatusPending
			w.queue.Requeue(m)
			return false
		}
	}

	err := w.deliverer.Deliver(ctx, m)
	if err == nil {
		m.Status = domain.StatusSent
		w.publish(event.New(event.MessageSentType, event.MessageSent{Message: *m}))
		w.archive(m)
		return true
	}

	if m.RetryCount < m.Policy.MaxRetries {
		m.RetryCount++
		m.Status = domain.StatusPending
		if m.Policy.Backoff > 0 {
			m.Defer(now.Add(m.Policy.Backoff * time.Duration(m.RetryCount)))
		}
		w.log.Debug("Delivery failed, requeueing", "message", m.ID, "retry", m.RetryCount, "error", err)
		w.queue.Requeue(m)
		return true
	}

	// Budget exhausted: terminal, never reverts to pending.
	m.Status = domain.StatusFailed
	w.stats.IncrFailed()
	err = fmt.Errorf("%w: %v", errors.ErrRetryExhausted, err)
	w.log.Warn("Giving up on message", "message", m.ID, "retries", m.RetryCount, "error", err)
	w.publish(event.New(event.MessageFailedType, event.MessageFailed{Message: *m, LastError: err.Error()}))
	w.archive(m)
	return true
}

// archive persists a terminal message for the inspector; best effort.
func (w *RetryWorker) archive(m *domain.QueuedMessage) {
	if w.archiver == nil {
		return
	}
	if err := w.archiver.Archive(*m); err != nil {
		w.log.Warn("History archive failed", "message", m.ID, "error", err)
	}
}

func (w *RetryWorker) publish(evt event.Event) {
	if w.events == nil {
		return
	}
	select {
	case w.events <- evt:
	default:
		w.log.Debug("Audit event lost, channel full")
	}
}
