package workers

import (
	"context"
	"fmt"
	"log/slog"
	"relay-lab/domain"
	"relay-lab/domain/event"
	"relay-lab/mocks"
	"relay-lab/observability"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// fakeQueue is a minimal in-memory DeliveryQueue for worker tests.
type fakeQueue struct {
	items []*domain.QueuedMessage
}

func (q *fakeQueue) Dequeue() (*domain.QueuedMessage, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	m := q.items[0]
	q.items = q.items[1:]
	return m, true
}

func (q *fakeQueue) Requeue(m *domain.QueuedMessage) {
	q.items = append(q.items, m)
}

// scriptedDeliverer returns its errors in order, then succeeds.
type scriptedDeliverer struct {
	errs     []error
	attempts int
}

func (d *scriptedDeliverer) Deliver(ctx context.Context, m *domain.QueuedMessage) error {
	d.attempts++
	if len(d.errs) == 0 {
		return nil
	}
	err := d.errs[0]
	d.errs = d.errs[1:]
	return err
}

// Batch size 1 keeps one ProcessBatch call equal to one delivery cycle, so
// requeued messages wait for the next call instead of spinning in-batch.
func newRetryWorkerUnderTest(queue *fakeQueue, deliverer *scriptedDeliverer,
	stats *observability.Stats, events chan event.Event) *RetryWorker {
	return NewRetryWorker(slog.Default(), queue, deliverer, nil, stats, events,
		nil, 1, 10*time.Millisecond)
}

func TestRetryWorker_Delivers_Pending_Message(t *testing.T) {
	req := require.New(t)
	stats := observability.NewStats()
	events := make(chan event.Event, 4)
	m := domain.NewQueuedMessage(domain.UserTarget("alice"), []byte("hi"),
		domain.TypeChat, domain.RetryPolicy{MaxRetries: 3})
	queue := &fakeQueue{items: []*domain.QueuedMessage{m}}
	deliverer := &scriptedDeliverer{}
	worker := newRetryWorkerUnderTest(queue, deliverer, stats, events)

	processed := worker.ProcessBatch(context.Background())

	req.Equal(1, processed)
	req.Equal(domain.StatusSent, m.Status)
	req.Equal(1, deliverer.attempts)
	req.Empty(queue.items)

	evt := <-events
	req.Equal(event.MessageSentType, evt.Type)
	req.Equal(event.MessageSent{Message: *m}, evt.Payload)
}

func TestRetryWorker_Zero_Budget_Fails_After_One_Attempt(t *testing.T) {
	req := require.New(t)
	stats := observability.NewStats()
	events := make(chan event.Event, 4)
	// Given maxRetries = 0: the single allowed attempt fails
	m := domain.NewQueuedMessage(domain.UserTarget("alice"), []byte("hi"),
		domain.TypeChat, domain.RetryPolicy{MaxRetries: 0})
	queue := &fakeQueue{items: []*domain.QueuedMessage{m}}
	deliverer := &scriptedDeliverer{errs: []error{fmt.Errorf("user offline")}}
	worker := newRetryWorkerUnderTest(queue, deliverer, stats, events)

	worker.ProcessBatch(context.Background())

	// Then the message is terminally failed, never retried
	req.Equal(domain.StatusFailed, m.Status)
	req.Zero(m.RetryCount)
	req.Equal(1, deliverer.attempts)
	req.Equal(uint64(1), stats.Failed())
	req.Empty(queue.items)

	evt := <-events
	req.Equal(event.MessageFailedType, evt.Type)
	payload, ok := evt.Payload.(event.MessageFailed)
	req.True(ok)
	req.Contains(payload.LastError, "user offline")
}

func TestRetryWorker_Retries_Then_Succeeds(t *testing.T) {
	req := require.New(t)
	stats := observability.NewStats()
	events := make(chan event.Event, 8)
	m := domain.NewQueuedMessage(domain.UserTarget("alice"), []byte("hi"),
		domain.TypeChat, domain.RetryPolicy{MaxRetries: 3})
	queue := &fakeQueue{items: []*domain.QueuedMessage{m}}
	deliverer := &scriptedDeliverer{errs: []error{
		fmt.Errorf("transient"),
		fmt.Errorf("transient"),
	}}
	worker := newRetryWorkerUnderTest(queue, deliverer, stats, events)

	// Two failing batches, then the third attempt lands
	for i := 0; i < 3; i++ {
		worker.ProcessBatch(context.Background())
	}

	req.Equal(domain.StatusSent, m.Status)
	req.Equal(2, m.RetryCount)
	req.Equal(3, deliverer.attempts)
	req.Zero(stats.Failed())
}

func TestRetryWorker_Exhausted_Budget_Never_Reverts(t *testing.T) {
	req := require.New(t)
	stats := observability.NewStats()
	events := make(chan event.Event, 8)
	m := domain.NewQueuedMessage(domain.UserTarget("alice"), []byte("hi"),
		domain.TypeChat, domain.RetryPolicy{MaxRetries: 2})
	queue := &fakeQueue{items: []*domain.QueuedMessage{m}}
	deliverer := &scriptedDeliverer{errs: []error{
		fmt.Errorf("down"), fmt.Errorf("down"), fmt.Errorf("down"), fmt.Errorf("down"),
	}}
	worker := newRetryWorkerUnderTest(queue, deliverer, stats, events)

	for i := 0; i < 4; i++ {
		worker.ProcessBatch(context.Background())
	}

	// retryCount never exceeds the budget, attempts stop at budget + 1
	req.Equal(domain.StatusFailed, m.Status)
	req.Equal(2, m.RetryCount)
	req.Equal(3, deliverer.attempts)
	req.Equal(uint64(1), stats.Failed())
	req.Empty(queue.items)
}

func TestRetryWorker_Expired_Message_Gets_No_Attempt(t *testing.T) {
	req := require.New(t)
	stats := observability.NewStats()
	events := make(chan event.Event, 4)
	m := domain.NewQueuedMessage(domain.UserTarget("alice"), []byte("hi"),
		domain.TypeChat, domain.RetryPolicy{MaxRetries: 3})
	m.Expire(time.Now().UTC().Add(-time.Minute))
	queue := &fakeQueue{items: []*domain.QueuedMessage{m}}
	deliverer := &scriptedDeliverer{}
	worker := newRetryWorkerUnderTest(queue, deliverer, stats, events)

	worker.ProcessBatch(context.Background())

	req.Equal(domain.StatusExpired, m.Status)
	req.Zero(deliverer.attempts)
	req.Equal(uint64(1), stats.Expired())

	evt := <-events
	req.Equal(event.MessageExpiredType, evt.Type)
}

func TestRetryWorker_Scheduled_Message_Waits_Its_Turn(t *testing.T) {
	req := require.New(t)
	stats := observability.NewStats()
	events := make(chan event.Event, 4)
	m := domain.NewQueuedMessage(domain.UserTarget("alice"), []byte("hi"),
		domain.TypeChat, domain.RetryPolicy{MaxRetries: 3})
	m.Schedule(time.Now().UTC().Add(time.Hour))
	queue := &fakeQueue{items: []*domain.QueuedMessage{m}}
	deliverer := &scriptedDeliverer{}
	worker := newRetryWorkerUnderTest(queue, deliverer, stats, events)

	processed := worker.ProcessBatch(context.Background())

	// The message cycles back to the tail without consuming an attempt,
	// and the requeue is not reported as progress
	req.Zero(processed)
	req.Zero(deliverer.attempts)
	req.Len(queue.items, 1)
	req.Equal(domain.StatusPending, m.Status)
}

// countingQueue tracks how often the worker reaches for the head of the queue.
type countingQueue struct {
	fakeQueue
	dequeues int
}

func (q *countingQueue) Dequeue() (*domain.QueuedMessage, bool) {
	q.dequeues++
	return q.fakeQueue.Dequeue()
}

func TestRetryWorker_Run_Sleeps_While_Nothing_Is_Due(t *testing.T) {
	req := require.New(t)
	stats := observability.NewStats()
	m := domain.NewQueuedMessage(domain.UserTarget("alice"), []byte("hi"),
		domain.TypeChat, domain.RetryPolicy{MaxRetries: 3})
	m.Schedule(time.Now().UTC().Add(time.Hour))
	queue := &countingQueue{fakeQueue: fakeQueue{items: []*domain.QueuedMessage{m}}}
	deliverer := &scriptedDeliverer{}
	worker := NewRetryWorker(slog.Default(), queue, deliverer, nil, stats, nil,
		nil, 1, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	req.NoError(worker.Run(ctx))

	// A deferred message triggers the poll backoff between cycles instead of
	// being re-dequeued in a tight loop until it comes due
	req.LessOrEqual(queue.dequeues, 20)
	req.Zero(deliverer.attempts)
	req.Len(queue.items, 1)
}

func TestRetryWorker_Backoff_Defers_The_Next_Attempt(t *testing.T) {
	req := require.New(t)
	stats := observability.NewStats()
	events := make(chan event.Event, 4)
	m := domain.NewQueuedMessage(domain.UserTarget("alice"), []byte("hi"),
		domain.TypeChat, domain.RetryPolicy{MaxRetries: 3, Backoff: time.Minute})
	queue := &fakeQueue{items: []*domain.QueuedMessage{m}}
	deliverer := &scriptedDeliverer{errs: []error{fmt.Errorf("transient")}}
	worker := newRetryWorkerUnderTest(queue, deliverer, stats, events)

	worker.ProcessBatch(context.Background())

	// First retry is pushed roughly one backoff into the future
	req.Equal(1, m.RetryCount)
	req.NotNil(m.ScheduledAt)
	req.WithinDuration(time.Now().UTC().Add(time.Minute), *m.ScheduledAt, 5*time.Second)

	// The deferred message is parked, not attempted again this cycle
	worker.ProcessBatch(context.Background())
	req.Equal(1, deliverer.attempts)
	req.Len(queue.items, 1)
}

func TestRetryWorker_Archives_Terminal_Messages(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	archiver := mocks.NewMockArchiver(ctrl)
	stats := observability.NewStats()
	events := make(chan event.Event, 4)
	m := domain.NewQueuedMessage(domain.UserTarget("alice"), []byte("hi"),
		domain.TypeChat, domain.RetryPolicy{})
	queue := &fakeQueue{items: []*domain.QueuedMessage{m}}
	worker := NewRetryWorker(slog.Default(), queue, &scriptedDeliverer{}, archiver, stats,
		events, nil, 10, 10*time.Millisecond)

	archiver.EXPECT().Archive(gomock.Any()).
		DoAndReturn(func(archived domain.QueuedMessage) error {
			req.Equal(m.ID, archived.ID)
			req.Equal(domain.StatusSent, archived.Status)
			return nil
		})

	worker.ProcessBatch(context.Background())
}
