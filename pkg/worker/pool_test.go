package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fleetbus/errors"
	"github.com/c360/fleetbus/metric"
)

type testWork struct {
	id   int
	fail bool
}

func TestNewPool(t *testing.T) {
	handler := func(context.Context, testWork) error { return nil }

	pool, err := NewPool("test", 5, 100, handler)
	require.NoError(t, err)
	assert.Equal(t, 5, pool.workers)
	assert.Equal(t, 100, pool.queueSize)
	assert.Equal(t, "test", pool.Name())

	pool, err = NewPool("test", 0, 0, handler)
	require.NoError(t, err)
	assert.Equal(t, 10, pool.workers)
	assert.Equal(t, 1000, pool.queueSize)

	_, err = NewPool[testWork]("test", 1, 1, nil)
	assert.ErrorIs(t, err, ErrNilHandler)
	assert.True(t, errors.IsFatal(err))
}

func TestPool_Lifecycle(t *testing.T) {
	var processed atomic.Int64
	pool, err := NewPool("test", 2, 10, func(context.Context, testWork) error {
		processed.Add(1)
		return nil
	})
	require.NoError(t, err)

	assert.ErrorIs(t, pool.Submit(testWork{}), ErrPoolNotStarted)

	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))
	assert.ErrorIs(t, pool.Start(ctx), ErrPoolAlreadyStarted)

	for i := range 5 {
		require.NoError(t, pool.Submit(testWork{id: i}))
	}

	require.NoError(t, pool.Stop(time.Second))
	assert.Equal(t, int64(5), processed.Load(), "queued work drains on stop")

	assert.ErrorIs(t, pool.Submit(testWork{}), ErrPoolStopped)
	assert.NoError(t, pool.Stop(time.Second), "second stop is a no-op")

	stats := pool.Stats()
	assert.Equal(t, int64(5), stats.Submitted)
	assert.Equal(t, int64(5), stats.Processed)
	assert.Zero(t, stats.Failed)
}

func TestPool_QueueFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	pool, err := NewPool("test", 1, 1, func(context.Context, testWork) error {
		started <- struct{}{}
		<-release
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))

	require.NoError(t, pool.Submit(testWork{id: 1}))
	<-started // worker holds item 1
	require.NoError(t, pool.Submit(testWork{id: 2}))
	assert.ErrorIs(t, pool.Submit(testWork{id: 3}), ErrQueueFull)
	assert.Equal(t, int64(1), pool.Stats().Dropped)

	close(release)
	require.NoError(t, pool.Stop(time.Second))
}

func TestPool_SubmitWait(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	pool, err := NewPool("test", 1, 1, func(context.Context, testWork) error {
		started <- struct{}{}
		<-release
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))

	require.NoError(t, pool.Submit(testWork{id: 1}))
	<-started
	require.NoError(t, pool.Submit(testWork{id: 2}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.SubmitWait(ctx, testWork{id: 3}), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- pool.SubmitWait(context.Background(), testWork{id: 4}) }()

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, pool.Stop(time.Second))
	assert.Equal(t, int64(3), pool.Stats().Processed)
}

func TestPool_Failures(t *testing.T) {
	var mu sync.Mutex
	var failedIDs []int

	pool, err := NewPool("test", 1, 10,
		func(_ context.Context, w testWork) error {
			if w.fail {
				return fmt.Errorf("work %d: %w", w.id, errors.ErrInvalidData)
			}
			return nil
		},
		WithErrorHandler(func(w testWork, err error) {
			mu.Lock()
			defer mu.Unlock()
			failedIDs = append(failedIDs, w.id)
		}),
	)
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))

	require.NoError(t, pool.Submit(testWork{id: 1}))
	require.NoError(t, pool.Submit(testWork{id: 2, fail: true}))
	require.NoError(t, pool.Submit(testWork{id: 3, fail: true}))
	require.NoError(t, pool.Stop(time.Second))

	assert.Equal(t, int64(2), pool.Stats().Failed)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{2, 3}, failedIDs)
}

func TestPool_ContextCancelStopsWorkers(t *testing.T) {
	pool, err := NewPool("test", 2, 10, func(ctx context.Context, _ testWork) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, pool.Start(ctx))
	require.NoError(t, pool.Submit(testWork{}))

	cancel()
	assert.NoError(t, pool.Stop(time.Second))
}

func TestPool_StopTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	started := make(chan struct{})

	pool, err := NewPool("test", 1, 1, func(context.Context, testWork) error {
		close(started)
		<-block
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Submit(testWork{}))
	<-started

	assert.ErrorIs(t, pool.Stop(10*time.Millisecond), ErrStopTimeout)
}

func TestPool_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	pool, err := NewPool("requests", 1, 10,
		func(_ context.Context, w testWork) error {
			if w.fail {
				return errors.ErrInvalidData
			}
			return nil
		},
		WithMetricsRegistry[testWork](registry))
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))

	require.NoError(t, pool.Submit(testWork{id: 1}))
	require.NoError(t, pool.Submit(testWork{id: 2, fail: true}))
	require.NoError(t, pool.Stop(time.Second))

	assert.Equal(t, 2.0, testutil.ToFloat64(pool.metrics.submitted))
	assert.Equal(t, 2.0, testutil.ToFloat64(pool.metrics.processed))
	assert.Equal(t, 1.0, testutil.ToFloat64(pool.metrics.failed))

	_, err = NewPool("requests", 1, 1, func(context.Context, testWork) error { return nil },
		WithMetricsRegistry[testWork](registry))
	assert.Error(t, err, "same pool name registers twice")
}
