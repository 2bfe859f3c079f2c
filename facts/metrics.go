package facts

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/fleetbus/metric"
)

// cacheMetrics holds Prometheus metrics for fact cache operations. A nil
// *cacheMetrics records nothing.
type cacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	refreshes prometheus.Counter
	failures  prometheus.Counter
	size      prometheus.Gauge
}

func newCacheMetrics(registry *metric.MetricsRegistry, owner string) (*cacheMetrics, error) {
	labels := prometheus.Labels{"source": owner}
	m := &cacheMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "fleetbus",
			Subsystem:   "facts",
			Name:        "hits_total",
			ConstLabels: labels,
			Help:        "Total number of fact lookups that found the fact",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "fleetbus",
			Subsystem:   "facts",
			Name:        "misses_total",
			ConstLabels: labels,
			Help:        "Total number of fact lookups for unknown facts",
		}),
		refreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "fleetbus",
			Subsystem:   "facts",
			Name:        "refreshes_total",
			ConstLabels: labels,
			Help:        "Total number of successful fact collections",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "fleetbus",
			Subsystem:   "facts",
			Name:        "refresh_failures_total",
			ConstLabels: labels,
			Help:        "Total number of failed fact collections",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "fleetbus",
			Subsystem:   "facts",
			Name:        "size",
			ConstLabels: labels,
			Help:        "Number of facts in the last collection",
		}),
	}

	if err := registry.RegisterCounter(owner, "facts_hits", m.hits); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(owner, "facts_misses", m.misses); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(owner, "facts_refreshes", m.refreshes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(owner, "facts_refresh_failures", m.failures); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(owner, "facts_size", m.size); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *cacheMetrics) recordHit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *cacheMetrics) recordMiss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *cacheMetrics) recordRefresh(size int) {
	if m != nil {
		m.refreshes.Inc()
		m.size.Set(float64(size))
	}
}

func (m *cacheMetrics) recordFailure() {
	if m != nil {
		m.failures.Inc()
	}
}
