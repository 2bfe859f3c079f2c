package facts

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/c360/fleetbus/errors"
	"github.com/c360/fleetbus/metric"
	"github.com/c360/fleetbus/provider"
)

// State is one published view of the facts: the mapping and when it was collected.
// A State is never modified after it is published.
type State struct {
	lastRefresh time.Time
	facts       map[string]string
}

// LastRefresh returns when the mapping was collected (zero before the first refresh).
func (s *State) LastRefresh() time.Time { return s.lastRefresh }

// Len returns the number of facts.
func (s *State) Len() int { return len(s.facts) }

// Cache bounds the call rate into a FactSource behind a TTL.
//
// Reads load the published State without locking. Reads that find the State
// stale (older than the TTL, or empty) join one in-flight refresh and share its
// result, so callers racing past expiry cause a single Collect. A failed
// Collect leaves the previous State in place and its error goes to every caller
// that joined that refresh. The refresh runs with the first caller's context.
type Cache struct {
	source  provider.FactSource
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	stats   *Statistics
	metrics *cacheMetrics

	metricsRegistry *metric.MetricsRegistry
	metricsOwner    string

	mu     sync.Mutex // serializes refreshes
	flight singleflight.Group
	state  atomic.Pointer[State]
}

var _ provider.FactReader = (*Cache)(nil)

// Option is a functional option for configuring the Cache
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the cache's logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics exposes the cache statistics as Prometheus metrics owned by owner.
func WithMetrics(registry *metric.MetricsRegistry, owner string) Option {
	return func(c *Cache) {
		c.metricsRegistry = registry
		c.metricsOwner = owner
	}
}

// NewCache wraps source. Returns an error if metrics registration fails when requested.
func NewCache(source provider.FactSource, ttl time.Duration, opts ...Option) (*Cache, error) {
	if source == nil {
		return nil, errors.WrapFatal(errors.Detail(errors.ErrMissingConfig, "no fact source"),
			"Cache", "NewCache", "source validation")
	}
	if ttl < 0 {
		return nil, errors.WrapFatal(errors.Detail(errors.ErrInvalidConfig, "negative cache time %v", ttl),
			"Cache", "NewCache", "ttl validation")
	}

	c := &Cache{
		source: source,
		ttl:    ttl,
		now:    time.Now,
		logger: slog.Default(),
		stats:  NewStatistics(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.metricsRegistry != nil && c.metricsOwner != "" {
		m, err := newCacheMetrics(c.metricsRegistry, c.metricsOwner)
		if err != nil {
			return nil, errors.WrapTransient(err, "Cache", "NewCache", "metrics registration")
		}
		c.metrics = m
	}

	c.state.Store(&State{})
	return c, nil
}

// TTL returns the cache time.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Source returns the wrapped fact source.
func (c *Cache) Source() provider.FactSource { return c.source }

// State returns the currently published State without refreshing.
func (c *Cache) State() *State { return c.state.Load() }

// Stats returns a snapshot of the cache statistics.
func (c *Cache) Stats() StatsSummary { return c.stats.Summary() }

// GetFact returns the value of fact name. An unknown fact is ("", false, nil).
func (c *Cache) GetFact(ctx context.Context, name string) (string, bool, error) {
	s, err := c.current(ctx)
	if err != nil {
		return "", false, err
	}

	v, ok := s.facts[name]
	if ok {
		c.stats.Hit()
		c.metrics.recordHit()
	} else {
		c.stats.Miss()
		c.metrics.recordMiss()
	}
	return v, ok, nil
}

// HasFact reports whether fact name exists. It goes through the same TTL as GetFact.
func (c *Cache) HasFact(ctx context.Context, name string) (bool, error) {
	_, ok, err := c.GetFact(ctx, name)
	return ok, err
}

// Facts returns a copy of the whole mapping.
func (c *Cache) Facts(ctx context.Context) (map[string]string, error) {
	s, err := c.current(ctx)
	if err != nil {
		return nil, err
	}
	return maps.Clone(s.facts), nil
}

// Refresh collects unconditionally.
func (c *Cache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.refreshLocked(ctx, c.state.Load())
	return err
}

func (c *Cache) stale(s *State) bool {
	return len(s.facts) == 0 || c.now().Sub(s.lastRefresh) > c.ttl
}

func (c *Cache) current(ctx context.Context) (*State, error) {
	s := c.state.Load()
	if !c.stale(s) {
		return s, nil
	}

	v, err, _ := c.flight.Do("refresh", func() (any, error) {
		c.mu.Lock()
		defer c.mu.Unlock()

		// A previous flight or Refresh may have finished since the load above.
		if s := c.state.Load(); !c.stale(s) {
			return s, nil
		}
		return c.refreshLocked(ctx, c.state.Load())
	})
	if err != nil {
		return nil, err
	}
	return v.(*State), nil
}

// refreshLocked must be called with mu held.
func (c *Cache) refreshLocked(ctx context.Context, prev *State) (*State, error) {
	start := c.now()

	collected, err := c.source.Collect(ctx)
	if err != nil {
		c.stats.Failure()
		c.metrics.recordFailure()
		c.logger.Error("Fact refresh failed", "error", err, "last_refresh", prev.lastRefresh)
		return nil, errors.Wrap(err, "Cache", "refresh", "collect facts")
	}

	stamp := c.now()
	if stamp.Before(prev.lastRefresh) {
		stamp = prev.lastRefresh
	}

	next := &State{lastRefresh: stamp, facts: maps.Clone(collected)}
	if next.facts == nil {
		next.facts = map[string]string{}
	}
	c.state.Store(next)

	c.stats.Refresh(len(next.facts))
	c.metrics.recordRefresh(len(next.facts))
	c.logger.Debug("Facts refreshed", "count", len(next.facts), "duration", stamp.Sub(start))

	return next, nil
}
