package facts

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fleetbus/errors"
	"github.com/c360/fleetbus/metric"
	fleettest "github.com/c360/fleetbus/testutil"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestNewCache_Validation(t *testing.T) {
	_, err := NewCache(nil, time.Second)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
	assert.True(t, errors.IsFatal(err))

	_, err = NewCache(fleettest.NewMockFactSource(nil), -time.Second)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	c, err := NewCache(fleettest.NewMockFactSource(nil), 0)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), c.TTL())
	assert.True(t, c.State().LastRefresh().IsZero())
	assert.Equal(t, 0, c.State().Len())
}

func TestCache_ServesWithinTTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	src := fleettest.NewMockFactSource(map[string]string{"os": "linux", "role": "web"})

	c, err := NewCache(src, 10*time.Second, WithClock(clock.Now))
	require.NoError(t, err)

	v, ok, err := c.GetFact(ctx, "os")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "linux", v)
	assert.Equal(t, 1, src.Calls())

	src.SetFacts(map[string]string{"os": "freebsd"})
	clock.Advance(5 * time.Second)

	v, ok, err = c.GetFact(ctx, "os")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "linux", v, "served from cache")
	assert.Equal(t, 1, src.Calls())

	v, ok, err = c.GetFact(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)

	clock.Advance(6 * time.Second)
	v, _, err = c.GetFact(ctx, "os")
	require.NoError(t, err)
	assert.Equal(t, "freebsd", v)
	assert.Equal(t, 2, src.Calls())

	stats := c.Stats()
	assert.Equal(t, int64(3), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(2), stats.Refreshes)
	assert.Equal(t, int64(1), stats.Size)
}

func TestCache_ConcurrentExpiryCollectsOnce(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	src := fleettest.NewMockFactSource(map[string]string{"os": "linux"})

	c, err := NewCache(src, 10*time.Second, WithClock(clock.Now))
	require.NoError(t, err)

	_, _, err = c.GetFact(ctx, "os")
	require.NoError(t, err)
	require.Equal(t, 1, src.Calls())

	clock.Advance(11 * time.Second)
	release := src.Hold()

	const callers = 16
	var wg sync.WaitGroup
	results := make(chan string, callers)
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := c.GetFact(ctx, "os")
			if err != nil {
				errs <- err
				return
			}
			results <- v
		}()
	}

	require.Eventually(t, func() bool { return src.Calls() == 2 }, time.Second, time.Millisecond)
	release()
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	count := 0
	for v := range results {
		assert.Equal(t, "linux", v)
		count++
	}
	assert.Equal(t, callers, count)
	assert.Equal(t, 2, src.Calls(), "one collect for all callers racing past expiry")
}

func TestCache_ConcurrentFailureSharesError(t *testing.T) {
	ctx := context.Background()
	src := fleettest.NewMockFactSource(map[string]string{"os": "linux"})
	src.SetError(fmt.Errorf("facter exploded: %w", errors.ErrDataCorrupted))

	c, err := NewCache(src, time.Minute)
	require.NoError(t, err)

	release := src.Hold()

	const callers = 8
	var started, done sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		started.Add(1)
		done.Add(1)
		go func() {
			defer done.Done()
			started.Done()
			_, _, err := c.GetFact(ctx, "os")
			errs <- err
		}()
	}

	started.Wait()
	require.Eventually(t, func() bool { return src.Calls() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	release()
	done.Wait()
	close(errs)

	for err := range errs {
		assert.ErrorIs(t, err, errors.ErrDataCorrupted)
	}
	assert.Equal(t, 1, src.Calls(), "waiters share the failed collect")
	assert.Equal(t, int64(1), c.Stats().Failures)
	assert.Equal(t, 0, c.State().Len())
}

func TestCache_FailureKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	src := fleettest.NewMockFactSource(map[string]string{"os": "linux"})

	c, err := NewCache(src, time.Second, WithClock(clock.Now))
	require.NoError(t, err)

	_, _, err = c.GetFact(ctx, "os")
	require.NoError(t, err)
	before := c.State().LastRefresh()

	clock.Advance(2 * time.Second)
	boom := fmt.Errorf("facter exploded: %w", errors.ErrDataCorrupted)
	src.SetError(boom)

	_, _, err = c.GetFact(ctx, "os")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDataCorrupted)
	assert.Equal(t, before, c.State().LastRefresh())
	assert.Equal(t, 1, c.State().Len())
	assert.Equal(t, int64(1), c.Stats().Failures)

	src.SetError(nil)
	v, ok, err := c.GetFact(ctx, "os")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "linux", v)
	assert.True(t, c.State().LastRefresh().After(before))
}

func TestCache_HasFactUsesTTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	src := fleettest.NewMockFactSource(map[string]string{"role": "db"})

	c, err := NewCache(src, time.Minute, WithClock(clock.Now))
	require.NoError(t, err)

	ok, err := c.HasFact(ctx, "role")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.HasFact(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, src.Calls())
}

func TestCache_ZeroTTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	src := fleettest.NewMockFactSource(map[string]string{"a": "1"})

	c, err := NewCache(src, 0, WithClock(clock.Now))
	require.NoError(t, err)

	_, _, _ = c.GetFact(ctx, "a")
	_, _, _ = c.GetFact(ctx, "a")
	assert.Equal(t, 1, src.Calls(), "same instant is not stale")

	clock.Advance(time.Nanosecond)
	_, _, _ = c.GetFact(ctx, "a")
	assert.Equal(t, 2, src.Calls())
}

func TestCache_EmptyMappingIsStale(t *testing.T) {
	ctx := context.Background()
	src := fleettest.NewMockFactSource(nil)

	c, err := NewCache(src, time.Hour)
	require.NoError(t, err)

	_, ok, err := c.GetFact(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	src.SetFacts(map[string]string{"a": "1"})
	v, ok, err := c.GetFact(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	assert.Equal(t, 2, src.Calls())
}

func TestCache_FactsReturnsCopy(t *testing.T) {
	ctx := context.Background()
	c, err := NewCache(fleettest.NewMockFactSource(map[string]string{"a": "1"}), time.Hour)
	require.NoError(t, err)

	all, err := c.Facts(ctx)
	require.NoError(t, err)
	all["a"] = "mutated"

	v, _, err := c.GetFact(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestCache_Refresh(t *testing.T) {
	ctx := context.Background()
	src := fleettest.NewMockFactSource(map[string]string{"a": "1"})
	c, err := NewCache(src, time.Hour)
	require.NoError(t, err)

	require.NoError(t, c.Refresh(ctx))
	require.NoError(t, c.Refresh(ctx))
	assert.Equal(t, 2, src.Calls())
	assert.Same(t, src, c.Source())
}

func TestCache_Metrics(t *testing.T) {
	ctx := context.Background()
	registry := metric.NewMetricsRegistry()

	c, err := NewCache(fleettest.NewMockFactSource(map[string]string{"a": "1", "b": "2"}), time.Hour,
		WithMetrics(registry, "facts"))
	require.NoError(t, err)

	_, _, _ = c.GetFact(ctx, "a")
	_, _, _ = c.GetFact(ctx, "zzz")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.hits))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.misses))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.refreshes))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.metrics.size))

	// Second cache under the same owner collides.
	_, err = NewCache(fleettest.NewMockFactSource(nil), time.Hour, WithMetrics(registry, "facts"))
	assert.Error(t, err)
}
