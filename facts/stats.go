package facts

import (
	"sync/atomic"
	"time"
)

// Statistics tracks cache activity.
type Statistics struct {
	// Atomic counters for thread-safe updates
	hits      atomic.Int64
	misses    atomic.Int64
	refreshes atomic.Int64
	failures  atomic.Int64
	size      atomic.Int64

	startTime time.Time
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

// Hit records a lookup of a known fact.
func (s *Statistics) Hit() { s.hits.Add(1) }

// Miss records a lookup of an unknown fact.
func (s *Statistics) Miss() { s.misses.Add(1) }

// Refresh records a successful collect of size facts.
func (s *Statistics) Refresh(size int) {
	s.refreshes.Add(1)
	s.size.Store(int64(size))
}

// Failure records a failed collect.
func (s *Statistics) Failure() { s.failures.Add(1) }

// StatsSummary returns a snapshot of all statistics.
type StatsSummary struct {
	Hits      int64         `json:"hits"`
	Misses    int64         `json:"misses"`
	Refreshes int64         `json:"refreshes"`
	Failures  int64         `json:"failures"`
	Size      int64         `json:"size"`
	Uptime    time.Duration `json:"uptime"`
}

// Summary returns the current counters.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Refreshes: s.refreshes.Load(),
		Failures:  s.failures.Load(),
		Size:      s.size.Load(),
		Uptime:    time.Since(s.startTime),
	}
}
