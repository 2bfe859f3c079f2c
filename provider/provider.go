// Package provider defines the capability contracts that providers registered in
// the plugin registry implement. Consumers depend on these interfaces only; the
// concrete types live in the connector, facts, security, registration, audit and
// stats packages.
package provider

import (
	"context"
	"time"
)

// Request is an inbound message as seen by the daemon: the opaque body plus the
// time it was taken off the transport. Transport headers are not carried.
type Request struct {
	Body       []byte
	ReceivedAt time.Time
}

// Connector is the messaging transport contract.
//
// Connect is idempotent. Send, Subscribe and Unsubscribe fail with
// errors.ErrNotConnected before the first successful Connect. Receive blocks until
// a message arrives on any subscribed destination or ctx is done.
type Connector interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, target string, payload []byte) error
	Receive(ctx context.Context) (*Request, error)
	Subscribe(ctx context.Context, destination string) error
	Unsubscribe(ctx context.Context, destination string) error
	Disconnect(ctx context.Context) error
}

// FactSource collects the complete fact mapping of the local node.
type FactSource interface {
	Collect(ctx context.Context) (map[string]string, error)
}

// FactReader answers fact queries, typically from a cache in front of a FactSource.
type FactReader interface {
	GetFact(ctx context.Context, name string) (string, bool, error)
	HasFact(ctx context.Context, name string) (bool, error)
	Facts(ctx context.Context) (map[string]string, error)
}

// SecuritySigner seals outgoing bodies and opens incoming ones.
type SecuritySigner interface {
	Encode(ctx context.Context, body []byte) ([]byte, error)
	Decode(ctx context.Context, raw []byte) ([]byte, error)
}

// RegistrationEmitter announces the node on the fabric every Interval.
// A zero Interval disables periodic registration.
type RegistrationEmitter interface {
	Emit(ctx context.Context, conn Connector) error
	Interval() time.Duration
}

// AuditRecord describes one handled request for the audit trail.
type AuditRecord struct {
	RequestID string
	Sender    string
	Agent     string
	Action    string
	Data      map[string]any
	Time      time.Time
}

// AuditSink persists audit records.
type AuditSink interface {
	Audit(ctx context.Context, rec AuditRecord) error
}

// StatsCollector counts request outcomes for the running daemon.
type StatsCollector interface {
	Received()
	Sent()
	Filtered()
	Validated()
	Unvalidated()
	Passed()
	Snapshot() map[string]float64
}
