// Package testutil provides test doubles for fleetbus providers.
//
// # Loopback
//
// Loopback is an in-memory broker. A connector under test gets a dialer that
// calls Loopback.Dial, and the test asserts on what the broker saw:
//
//	lb := testutil.NewLoopback()
//	conn := connector.New(pool, connector.WithDialer(
//	    func(ctx context.Context, _ connector.Pool) (connector.Transport, error) {
//	        return lb.Dial(ctx)
//	    }))
//
//	_ = conn.Connect(ctx)
//	_ = conn.Connect(ctx)
//	assert.Equal(t, 1, lb.Dials())
//
// Inject plays the part of a remote peer publishing to a subscribed subject.
// SendOnly wraps a transport so that its only outbound primitive is Send.
//
// # Mocks
//
// MockFactSource counts Collect calls and can be held open with Hold to line
// up concurrent callers. MockAuditSink keeps audit records in memory.
//
// All types are safe for concurrent use from multiple goroutines.
//
// Use testcontainers (natsclient.NewTestClient, integration build tag) when the
// behaviour under test belongs to the real broker.
package testutil
