package testutil

import (
	"context"
	"maps"
	"sync"

	"github.com/c360/fleetbus/provider"
)

// MockFactSource is a provider.FactSource for testing that counts Collect calls.
type MockFactSource struct {
	mu sync.Mutex

	// CollectFunc overrides the canned facts when set
	CollectFunc func(ctx context.Context) (map[string]string, error)

	facts map[string]string
	err   error
	gate  chan struct{}

	// Call counts for verification
	CollectCalls int
}

// NewMockFactSource creates a source that returns a copy of facts.
func NewMockFactSource(facts map[string]string) *MockFactSource {
	return &MockFactSource{facts: maps.Clone(facts)}
}

// SetFacts replaces the facts returned by later Collect calls.
func (m *MockFactSource) SetFacts(facts map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.facts = maps.Clone(facts)
}

// SetError makes later Collect calls fail with err (nil clears it).
func (m *MockFactSource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Hold makes Collect block until the returned release func is called.
func (m *MockFactSource) Hold() (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.gate = gate
	m.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Collect implements provider.FactSource.
func (m *MockFactSource) Collect(ctx context.Context) (map[string]string, error) {
	m.mu.Lock()
	m.CollectCalls++
	gate := m.gate
	fn := m.CollectFunc
	facts, err := maps.Clone(m.facts), m.err
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if fn != nil {
		return fn(ctx)
	}
	if err != nil {
		return nil, err
	}
	if facts == nil {
		facts = map[string]string{}
	}
	return facts, nil
}

// Calls returns the number of Collect calls.
func (m *MockFactSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CollectCalls
}

// MockAuditSink records audit records in memory.
type MockAuditSink struct {
	mu      sync.Mutex
	records []provider.AuditRecord
	err     error
}

// NewMockAuditSink creates an empty sink.
func NewMockAuditSink() *MockAuditSink {
	return &MockAuditSink{}
}

// SetError makes later Audit calls fail with err.
func (m *MockAuditSink) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Audit implements provider.AuditSink.
func (m *MockAuditSink) Audit(_ context.Context, rec provider.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

// Records returns a copy of the recorded audit records.
func (m *MockAuditSink) Records() []provider.AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]provider.AuditRecord, len(m.records))
	copy(out, m.records)
	return out
}
