// Package stats counts request outcomes for the running daemon.
package stats

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/fleetbus/errors"
	"github.com/c360/fleetbus/metric"
	"github.com/c360/fleetbus/plugin"
	"github.com/c360/fleetbus/provider"
)

// ImplementationRunner is the registry name of RunnerStats.
const ImplementationRunner = "Runner"

// Outcome labels, also the keys of Snapshot.
const (
	Total       = "total"
	Validated   = "validated"
	Unvalidated = "unvalidated"
	Passed      = "passed"
	Filtered    = "filtered"
	Replies     = "replies"
	TTLExpired  = "ttlexpired"
)

var outcomes = []string{Total, Validated, Unvalidated, Passed, Filtered, Replies, TTLExpired}

// RunnerStats is the global_stats provider.
type RunnerStats struct {
	started  time.Time
	counters map[string]*atomic.Int64
	requests *prometheus.CounterVec
}

var _ provider.StatsCollector = (*RunnerStats)(nil)

// NewRunnerStats creates the collector. With a registry the counters are also
// exported as fleetbus_requests_total{outcome=...}.
func NewRunnerStats(registry *metric.MetricsRegistry) (*RunnerStats, error) {
	s := &RunnerStats{
		started:  time.Now(),
		counters: make(map[string]*atomic.Int64, len(outcomes)),
	}
	for _, o := range outcomes {
		s.counters[o] = &atomic.Int64{}
	}

	if registry != nil {
		s.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleetbus",
			Name:      "requests_total",
			Help:      "Requests seen by the daemon by outcome",
		}, []string{"outcome"})
		if err := registry.RegisterCounterVec("global_stats", "requests_total", s.requests); err != nil {
			return nil, errors.WrapTransient(err, "RunnerStats", "NewRunnerStats", "metrics registration")
		}
		for _, o := range outcomes {
			s.requests.WithLabelValues(o)
		}
	}
	return s, nil
}

func (s *RunnerStats) inc(outcome string) {
	s.counters[outcome].Add(1)
	if s.requests != nil {
		s.requests.WithLabelValues(outcome).Inc()
	}
}

// Received counts a message taken off the connector.
func (s *RunnerStats) Received() { s.inc(Total) }

// Sent counts a reply.
func (s *RunnerStats) Sent() { s.inc(Replies) }

// Filtered counts a request not addressed to this node.
func (s *RunnerStats) Filtered() { s.inc(Filtered) }

// Validated counts a request whose envelope verified.
func (s *RunnerStats) Validated() { s.inc(Validated) }

// Unvalidated counts a request rejected by the security provider.
func (s *RunnerStats) Unvalidated() { s.inc(Unvalidated) }

// Passed counts a request handed to an agent.
func (s *RunnerStats) Passed() { s.inc(Passed) }

// TTLExpired counts a request dropped for being too old.
func (s *RunnerStats) TTLExpired() { s.inc(TTLExpired) }

// StartTime returns when the collector was created.
func (s *RunnerStats) StartTime() time.Time { return s.started }

// Snapshot returns every counter plus starttime (unix seconds) and uptime (seconds).
func (s *RunnerStats) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(outcomes)+2)
	for o, c := range s.counters {
		out[o] = float64(c.Load())
	}
	out["starttime"] = float64(s.started.Unix())
	out["uptime"] = time.Since(s.started).Seconds()
	return out
}

// Factory builds Global_stats::Runner.
func Factory(deps plugin.Dependencies) (any, error) {
	return NewRunnerStats(deps.MetricsRegistry)
}
