package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"ncrflow/internal/bootstrap/logging"
	"ncrflow/internal/errs"
	"ncrflow/internal/ports"
)

const (
	defaultCapacity        = 256
	defaultWorkers         = 2
	defaultDeliveryTimeout = 10 * time.Second
)

// Sink delivers one notification. Sinks run on queue workers, never on the
// caller's goroutine.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event ports.NotificationEvent) error
}

type QueueOptions struct {
	Capacity        int
	Workers         int
	DeliveryTimeout time.Duration
}

// Queue is a bounded in-process notifier. Dispatch never blocks: a full or
// stopped queue rejects the event so the caller can roll back and retry.
type Queue struct {
	events  chan ports.NotificationEvent
	sinks   []Sink
	workers int
	timeout time.Duration

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

var _ ports.Notifier = (*Queue)(nil)

func NewQueue(opts QueueOptions, sinks ...Sink) *Queue {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	timeout := opts.DeliveryTimeout
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}

	filtered := make([]Sink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			filtered = append(filtered, sink)
		}
	}

	return &Queue{
		events:  make(chan ports.NotificationEvent, capacity),
		sinks:   filtered,
		workers: workers,
		timeout: timeout,
	}
}

func (q *Queue) Dispatch(ctx context.Context, event ports.NotificationEvent) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return errs.Wrap(ports.ErrNotifierUnavailable, "queue stopped")
	}

	select {
	case q.events <- event:
		return nil
	default:
		return errs.Wrapf(ports.ErrNotifierUnavailable, "queue full (capacity %d)", cap(q.events))
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.run(i)
	}
}

// Stop rejects new events, drains what is queued, and waits for the workers
// until ctx ends.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.events)
	started := q.started
	q.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errs.Wrap(ctx.Err(), "wait notification workers")
	}
}

// Pending reports how many events wait for a worker.
func (q *Queue) Pending() int {
	return len(q.events)
}

func (q *Queue) run(worker int) {
	defer q.wg.Done()

	base := logging.WithAttrs(context.Background(),
		slog.String("component", "notify.queue"),
		slog.Int("worker", worker),
	)
	for event := range q.events {
		q.deliver(base, event)
	}
}

func (q *Queue) deliver(base context.Context, event ports.NotificationEvent) {
	ctx := logging.WithAttrs(base,
		slog.String("ncr_id", event.NCRID),
		slog.String("kind", event.Kind),
	)
	for _, sink := range q.sinks {
		deliverCtx, cancel := context.WithTimeout(ctx, q.timeout)
		err := sink.Deliver(deliverCtx, event)
		cancel()
		if err != nil {
			logging.Error(ctx, "notification delivery failed",
				slog.String("sink", sink.Name()),
				slog.Any("err", errs.Loggable(err)),
			)
		}
	}
}
