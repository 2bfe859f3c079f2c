// Package connector implements the Connector::Nats provider: the broker-backed
// transport that publishes requests onto the fleet fabric and receives replies.
//
// # Configuration
//
// Settings live under plugin.nats.*. Without plugin.nats.pool.size a single
// endpoint is read, with the environment taking precedence:
//
//	host      NATS_SERVER    > plugin.nats.host      (required)
//	port      NATS_PORT      > plugin.nats.port      (default 6163)
//	user      NATS_USER      > plugin.nats.user      (required)
//	password  NATS_PASSWORD  > plugin.nats.password  (required)
//	tls       plugin.nats.ssl (default false)
//
// With plugin.nats.pool.size = N, members 1..N are read from pool.host{i},
// pool.port{i}, pool.user{i}, pool.password{i} and pool.ssl{i}. The failover
// policy keys (pool.initial_reconnect_delay, pool.max_reconnect_delay,
// pool.use_exponential_back_off, pool.back_off_multiplier,
// pool.max_reconnect_attempts, pool.randomize, pool.backup, pool.timeout) apply
// in both modes and are handed to the NATS client unchanged.
//
// # Transport
//
// The connector never retries on its own. Connect calls a Dialer once, and the
// default dialer builds a natsclient.Client that owns the retry loop. Tests
// replace it with WithDialer, typically around a testutil.Loopback.
//
// Outbound messages use the transport's Publish method, or Send when the
// transport only has that.
package connector
