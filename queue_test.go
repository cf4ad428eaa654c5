package cartsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestQueue(t *testing.T, timeout time.Duration) *Queue {
	t.Helper()
	q := NewQueue(timeout, zap.NewNop())
	t.Cleanup(q.Close)
	return q
}

func TestQueue_ExecutesInSubmissionOrder(t *testing.T) {
	q := newTestQueue(t, 0)

	gate := make(chan struct{})
	var mu sync.Mutex
	var order []int

	record := func(n int) Task {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			return nil
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		require.NoError(t, q.Submit(context.Background(), func(context.Context) error {
			<-gate
			mu.Lock()
			order = append(order, 1)
			mu.Unlock()
			return nil
		}))
	}()
	require.Eventually(t, func() bool { return q.Pending() == 1 }, time.Second, time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		require.NoError(t, q.Submit(context.Background(), record(2)))
	}()
	require.Eventually(t, func() bool { return q.Pending() == 2 }, time.Second, time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		require.NoError(t, q.Submit(context.Background(), record(3)))
	}()
	require.Eventually(t, func() bool { return q.Pending() == 3 }, time.Second, time.Millisecond)

	close(gate)
	wg.Wait()

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestQueue_SingleFlight(t *testing.T) {
	q := newTestQueue(t, 0)

	var inflight, overlapped atomic.Int32
	task := func(context.Context) error {
		if inflight.Add(1) > 1 {
			overlapped.Store(1)
		}
		time.Sleep(5 * time.Millisecond)
		inflight.Add(-1)
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, q.Submit(context.Background(), task))
		}()
	}
	wg.Wait()

	assert.Zero(t, overlapped.Load(), "two tasks were in flight at once")
}

func TestQueue_IdleFiresOncePerDrain(t *testing.T) {
	q := newTestQueue(t, 0)

	var idles atomic.Int32
	q.OnIdle(func() { idles.Add(1) })

	gate := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, q.Submit(context.Background(), func(context.Context) error {
				<-gate
				return nil
			}))
		}()
	}
	require.Eventually(t, func() bool { return q.Pending() == 3 }, time.Second, time.Millisecond)
	assert.Zero(t, idles.Load(), "idle must not fire while tasks are in flight")

	close(gate)
	wg.Wait()

	require.Eventually(t, func() bool { return idles.Load() == 1 }, time.Second, time.Millisecond)

	// A fresh drain fires again.
	require.NoError(t, q.Submit(context.Background(), func(context.Context) error { return nil }))
	require.Eventually(t, func() bool { return idles.Load() == 2 }, time.Second, time.Millisecond)
}

func TestQueue_IdleNotFiredWhenNeverUsed(t *testing.T) {
	q := newTestQueue(t, 0)

	var idles atomic.Int32
	q.OnIdle(func() { idles.Add(1) })

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, idles.Load())
}

func TestQueue_FailureDoesNotDisturbLaterTasks(t *testing.T) {
	q := newTestQueue(t, 0)

	boom := errors.New("boom")
	err := q.Submit(context.Background(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	ran := false
	require.NoError(t, q.Submit(context.Background(), func(context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
}

func TestQueue_TaskTimeout(t *testing.T) {
	q := newTestQueue(t, 20*time.Millisecond)

	err := q.Submit(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, ErrTaskTimeout)

	// The queue keeps serving after a timeout.
	ran := false
	require.NoError(t, q.Submit(context.Background(), func(context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
}

func TestQueue_SubmitAfterClose(t *testing.T) {
	q := NewQueue(0, zap.NewNop())
	q.Close()

	err := q.Submit(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueue_CallerDeadlineSurfacesAsContextError(t *testing.T) {
	q := newTestQueue(t, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.Submit(ctx, func(taskCtx context.Context) error {
		<-taskCtx.Done()
		return taskCtx.Err()
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrTaskTimeout, "the caller's deadline is not the queue's bound")
}

func TestQueue_CancelledSubmissionContext(t *testing.T) {
	q := newTestQueue(t, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := q.Submit(ctx, func(taskCtx context.Context) error {
		<-taskCtx.Done()
		return taskCtx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
}
