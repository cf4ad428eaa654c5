package cartsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTaskTimeout bounds task execution when no timeout is configured.
const DefaultTaskTimeout = 30 * time.Second

// Task is a unit of work executed by the Queue.
type Task func(ctx context.Context) error

type queueItem struct {
	ctx  context.Context
	task Task
	done chan error
}

// Queue executes submitted tasks one at a time, in submission order. The
// concurrency limit is fixed at one for the lifetime of the queue. A task
// failure does not disturb tasks queued behind it.
type Queue struct {
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	items   []*queueItem
	pending int // queued plus in-flight
	idle    []func()
	closed  bool
}

func NewQueue(timeout time.Duration, logger *zap.Logger) *Queue {
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	q := &Queue{
		timeout: timeout,
		logger:  logger,
	}
	q.cond = sync.NewCond(&q.mu)
	go q.worker()
	return q
}

// Submit enqueues the task and blocks until it settles, returning the task's
// failure if any. Execution of task n+1 never begins before task n settles.
func (q *Queue) Submit(ctx context.Context, task Task) error {
	item := &queueItem{
		ctx:  ctx,
		task: task,
		done: make(chan error, 1),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, item)
	q.pending++
	q.cond.Signal()
	q.mu.Unlock()

	return <-item.done
}

// OnIdle registers a watcher invoked exactly once each time the pending count
// transitions from nonzero to zero. Watchers never fire while a task is in
// flight and never fire for a queue that was already empty. Watchers run
// inline on the worker, before the submitter of the draining task is
// released; a watcher that needs to submit follow-up tasks must hop to
// another goroutine.
func (q *Queue) OnIdle(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.idle = append(q.idle, fn)
}

// Pending reports the number of tasks queued or in flight.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// Close stops the worker once the queue has drained. Submissions after Close
// fail with ErrQueueClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

func (q *Queue) worker() {
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		item := q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
		q.mu.Unlock()

		err := q.run(item)

		q.mu.Lock()
		q.pending--
		drained := q.pending == 0
		var watchers []func()
		if drained {
			watchers = append(watchers, q.idle...)
		}
		q.mu.Unlock()

		// Watchers run before the draining task's submitter is released, so a
		// drain observation can never see state from a later batch.
		for _, fn := range watchers {
			fn()
		}

		item.done <- err
	}
}

// run executes a single task under the per-task execution bound. A task that
// fails to settle in time surfaces ErrTaskTimeout instead of stalling the
// queue; its context is cancelled and the late result is discarded.
func (q *Queue) run(item *queueItem) error {
	ctx, cancel := context.WithTimeout(item.ctx, q.timeout)
	defer cancel()

	settled := make(chan error, 1)
	go func() {
		settled <- item.task(ctx)
	}()

	var err error
	select {
	case err = <-settled:
	case <-ctx.Done():
		// A result that settled at the same instant the deadline fired wins.
		select {
		case err = <-settled:
		default:
			err = ctx.Err()
		}
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) && errors.Is(err, context.DeadlineExceeded) {
		if item.ctx.Err() != nil {
			// The caller's own context expired, not the queue's bound.
			return err
		}
		q.logger.Warn("task exceeded execution timeout", zap.Duration("timeout", q.timeout))
		return fmt.Errorf("%w after %s", ErrTaskTimeout, q.timeout)
	}
	return err
}
