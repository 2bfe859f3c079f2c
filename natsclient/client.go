package natsclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/fleetbus/errors"
	"github.com/c360/fleetbus/metric"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusClosed
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned by operations that need a live connection.
var ErrNotConnected = errors.ErrNotConnected

// Status holds runtime status information for the client
type Status struct {
	Status     ConnectionStatus
	Server     string
	Reconnects uint64
	RTT        time.Duration
}

// Client is a single-use NATS connection over an ordered list of servers.
//
// Every subscription delivers into one shared inbox which Next drains, so a
// caller can block on "the next message from anything I subscribed to". The
// inbox is bounded; when it is full NATS reports a slow consumer and drops.
type Client struct {
	servers []string
	status  atomic.Value // stores ConnectionStatus
	logger  Logger

	conn  *nats.Conn
	subs  map[string]*nats.Subscription
	inbox chan *nats.Msg
	done  chan struct{}

	// Reconnect policy
	maxReconnects     int
	connectAttempts   int
	reconnectWait     time.Duration
	maxReconnectWait  time.Duration
	exponential       bool
	backOffMultiplier float64
	randomize         bool
	retryOnFailed     bool

	pingInterval time.Duration
	timeout      time.Duration
	drainTimeout time.Duration
	inboxSize    int

	tlsConfig  *tls.Config
	clientName string

	metrics *metric.Metrics

	// Callbacks
	onDisconnect func(error)
	onReconnect  func()

	mu      sync.RWMutex
	closeMu sync.Mutex
	closed  atomic.Bool
}

// NewClient creates a client for servers, given as nats:// or tls:// URLs with
// optional user:password@ credentials.
func NewClient(servers []string, opts ...ClientOption) (*Client, error) {
	if len(servers) == 0 {
		return nil, errors.WrapInvalid(errors.Detail(errors.ErrMissingConfig, "no servers given"),
			"Client", "NewClient", "server validation")
	}

	c := &Client{
		servers:           append([]string(nil), servers...),
		logger:            &defaultLogger{},
		subs:              make(map[string]*nats.Subscription),
		done:              make(chan struct{}),
		maxReconnects:     -1, // infinite by default
		reconnectWait:     10 * time.Millisecond,
		maxReconnectWait:  30 * time.Second,
		exponential:       true,
		backOffMultiplier: 2,
		pingInterval:      30 * time.Second,
		timeout:           5 * time.Second,
		drainTimeout:      30 * time.Second,
		inboxSize:         1024,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}

	c.inbox = make(chan *nats.Msg, c.inboxSize)
	c.status.Store(StatusDisconnected)

	c.logger.Debugf("Created NATS client for %d server(s)", len(c.servers))

	return c, nil
}

// Servers returns the configured server URLs with credentials removed
func (m *Client) Servers() []string {
	out := make([]string, len(m.servers))
	for i, s := range m.servers {
		out[i] = redact(s)
	}
	return out
}

// Status returns the current connection status
func (m *Client) Status() ConnectionStatus {
	val := m.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnectionStatus)
}

func (m *Client) setStatus(status ConnectionStatus) {
	m.status.Store(status)
}

// IsHealthy returns true if the connection is healthy
func (m *Client) IsHealthy() bool {
	return m.Status() == StatusConnected
}

// GetConnection returns the current NATS connection
func (m *Client) GetConnection() *nats.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn
}

// GetStatus returns current status information
func (m *Client) GetStatus() *Status {
	status := &Status{Status: m.Status()}

	conn := m.GetConnection()
	if conn != nil && conn.IsConnected() {
		status.Server = redact(conn.ConnectedUrl())
		status.Reconnects = conn.Stats().Reconnects
		if rtt, err := conn.RTT(); err == nil {
			status.RTT = rtt
		}
	}

	return status
}

// WaitForConnection waits for the connection to be established
func (m *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if m.IsHealthy() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", errors.ErrConnectionTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

// ReconnectDelay returns the wait before reconnect attempt n (1-based) under
// the configured policy.
func (m *Client) ReconnectDelay(attempt int) time.Duration {
	if !m.exponential || attempt <= 1 {
		return min(m.reconnectWait, m.maxReconnectWait)
	}
	delay := float64(m.reconnectWait) * math.Pow(m.backOffMultiplier, float64(attempt-1))
	if delay > float64(m.maxReconnectWait) || math.IsInf(delay, 0) {
		return m.maxReconnectWait
	}
	return time.Duration(delay)
}

// ConnectionOptions returns the NATS connection options
func (m *Client) ConnectionOptions() []nats.Option {
	return m.buildConnectionOptions()
}

func (m *Client) buildConnectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(m.maxReconnects),
		nats.ReconnectWait(m.reconnectWait),
		nats.PingInterval(m.pingInterval),
		nats.DrainTimeout(m.drainTimeout),
		nats.DisconnectErrHandler(m.handleDisconnect),
		nats.ReconnectHandler(m.handleReconnect),
		nats.ClosedHandler(m.handleClosed),
		nats.ErrorHandler(m.handleError),
	}

	if m.exponential {
		opts = append(opts, nats.CustomReconnectDelay(m.ReconnectDelay))
	}
	if !m.randomize {
		opts = append(opts, nats.DontRandomize())
	}
	if m.timeout > 0 {
		opts = append(opts, nats.Timeout(m.timeout))
	}
	if m.retryOnFailed {
		opts = append(opts, nats.RetryOnFailedConnect(true))
	}
	if m.tlsConfig != nil {
		opts = append(opts, nats.Secure(m.tlsConfig))
	}
	if m.clientName != "" {
		opts = append(opts, nats.Name(m.clientName))
	}

	return opts
}

// Connect establishes the connection, retrying the whole server list under
// the reconnect policy until it succeeds, the attempt budget is spent, or ctx
// ends. Exhaustion returns errors.ErrConnectFailed wrapping the last cause.
func (m *Client) Connect(ctx context.Context) error {
	if m.closed.Load() {
		return errors.WrapFatal(errors.Detail(errors.ErrConnectFailed, "client is closed"),
			"Client", "Connect", "closed check")
	}
	if m.IsHealthy() {
		return nil
	}

	m.setStatus(StatusConnecting)
	m.logger.Printf("Connecting to NATS at %s", strings.Join(m.Servers(), ","))

	var lastErr error
	for attempt := 1; ; attempt++ {
		conn, err := m.dial(ctx)
		if err == nil {
			m.mu.Lock()
			m.conn = conn
			m.mu.Unlock()
			break
		}
		lastErr = err

		if ctx.Err() != nil {
			m.setStatus(StatusDisconnected)
			return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrConnectFailed, ctx.Err()),
				"Client", "Connect", "connection cancelled")
		}
		if m.connectAttempts > 0 && attempt >= m.connectAttempts {
			m.setStatus(StatusDisconnected)
			return errors.WrapTransient(
				fmt.Errorf("%w after %d attempt(s): %w", errors.ErrConnectFailed, attempt, lastErr),
				"Client", "Connect", "establish connection")
		}

		delay := m.ReconnectDelay(attempt)
		m.logger.Errorf("Connect attempt %d failed, retrying in %v: %v", attempt, delay, err)

		select {
		case <-ctx.Done():
			m.setStatus(StatusDisconnected)
			return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrConnectFailed, ctx.Err()),
				"Client", "Connect", "connection cancelled")
		case <-time.After(delay):
		}
	}

	if m.retryOnFailed {
		// RetryOnFailedConnect hands back a reconnecting connection.
		if err := m.WaitForConnection(ctx); err != nil {
			m.setStatus(StatusDisconnected)
			return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrConnectFailed, err),
				"Client", "Connect", "wait for connection")
		}
	}

	m.setStatus(StatusConnected)
	if m.metrics != nil {
		m.metrics.RecordConnected(true)
	}

	m.logger.Printf("Successfully connected to NATS at %s", redact(m.GetConnection().ConnectedUrl()))
	return nil
}

// dial runs one nats.Connect across the server list, abandoning it when ctx ends.
func (m *Client) dial(ctx context.Context) (*nats.Conn, error) {
	type result struct {
		conn *nats.Conn
		err  error
	}

	url := strings.Join(m.servers, ",")
	opts := m.buildConnectionOptions()

	connectDone := make(chan result, 1)
	go func() {
		conn, err := nats.Connect(url, opts...)
		connectDone <- result{conn, err}
	}()

	select {
	case r := <-connectDone:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-connectDone; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Subscribe adds subject to the shared inbox. Subscribing to a subject that is
// already subscribed is a no-op.
func (m *Client) Subscribe(_ context.Context, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.conn.IsClosed() {
		return ErrNotConnected
	}
	if _, ok := m.subs[subject]; ok {
		return nil
	}

	sub, err := m.conn.ChanSubscribe(subject, m.inbox)
	if err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrSubscriptionFailed, err),
			"Client", "Subscribe", "subscribe "+subject)
	}

	m.subs[subject] = sub
	m.logger.Debugf("Subscribed to %s", subject)
	return nil
}

// Unsubscribe removes subject. Unknown subjects are ignored.
func (m *Client) Unsubscribe(_ context.Context, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[subject]
	if !ok {
		return nil
	}
	delete(m.subs, subject)

	if err := sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed {
		return errors.Wrap(err, "Client", "Unsubscribe", "unsubscribe "+subject)
	}

	m.logger.Debugf("Unsubscribed from %s", subject)
	return nil
}

// Subjects returns the currently subscribed subjects
func (m *Client) Subjects() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.subs))
	for s := range m.subs {
		out = append(out, s)
	}
	return out
}

// Publish publishes a message to a NATS subject
func (m *Client) Publish(_ context.Context, subject string, data []byte) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return ErrNotConnected
	}

	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "Client", "Publish", "publish "+subject)
	}
	return nil
}

// NextMsg blocks until a message arrives on any subscription, ctx ends, or the
// client is closed.
func (m *Client) NextMsg(ctx context.Context) (*nats.Msg, error) {
	select {
	case msg := <-m.inbox:
		return msg, nil
	case <-m.done:
		return nil, errors.WrapTransient(errors.ErrConnectionLost, "Client", "NextMsg", "client closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Next returns the body of the next message.
func (m *Client) Next(ctx context.Context) ([]byte, error) {
	msg, err := m.NextMsg(ctx)
	if err != nil {
		return nil, err
	}
	return msg.Data, nil
}

// RTT returns the round-trip time to the NATS server
func (m *Client) RTT() (time.Duration, error) {
	conn := m.GetConnection()
	if conn == nil || !conn.IsConnected() {
		return 0, ErrNotConnected
	}
	return conn.RTT()
}

// Close drains and closes the connection. It is safe to call more than once.
func (m *Client) Close(ctx context.Context) error {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()

	if m.closed.Load() {
		return nil
	}
	m.closed.Store(true)
	close(m.done)

	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error

	for subject, sub := range m.subs {
		if err := sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed {
			errs = append(errs, errors.Wrap(err, "Client", "Close", "unsubscribe "+subject))
			m.logger.Errorf("Failed to unsubscribe from %s: %v", subject, err)
		}
	}
	m.subs = make(map[string]*nats.Subscription)

	if m.conn != nil {
		drainTimeout := m.drainTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining > 0 && remaining < drainTimeout {
				drainTimeout = remaining
			}
		}

		drainDone := make(chan error, 1)
		conn := m.conn
		go func() {
			drainDone <- conn.Drain()
		}()

		select {
		case err := <-drainDone:
			if err != nil && err != nats.ErrConnectionClosed {
				errs = append(errs, errors.Wrap(err, "Client", "Close", "drain connection"))
				m.logger.Errorf("Drain error: %v", err)
			}
		case <-time.After(drainTimeout):
			errs = append(errs, errors.WrapTransient(
				fmt.Errorf("drain timeout after %v", drainTimeout),
				"Client", "Close", "drain timeout"))
			m.logger.Errorf("Drain timeout after %v, force closing", drainTimeout)
		case <-ctx.Done():
			errs = append(errs, errors.Wrap(ctx.Err(), "Client", "Close", "context cancelled during drain"))
			m.logger.Errorf("Context cancelled during drain, force closing")
		}

		conn.Close()
		m.conn = nil
	}

	m.setStatus(StatusClosed)
	if m.metrics != nil {
		m.metrics.RecordConnected(false)
	}

	if len(errs) > 0 {
		errMsg := "cleanup errors:"
		for i, err := range errs {
			errMsg += fmt.Sprintf("\n  [%d] %v", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

// Event handlers for NATS connection
func (m *Client) handleDisconnect(_ *nats.Conn, err error) {
	if m.closed.Load() {
		return
	}
	m.setStatus(StatusReconnecting)
	if m.metrics != nil {
		m.metrics.RecordConnected(false)
	}
	if err != nil {
		m.logger.Errorf("Disconnected from NATS: %v", err)
	}

	if m.onDisconnect != nil {
		go m.onDisconnect(err)
	}
}

func (m *Client) handleReconnect(conn *nats.Conn) {
	m.setStatus(StatusConnected)
	if m.metrics != nil {
		m.metrics.RecordReconnect()
		m.metrics.RecordConnected(true)
	}
	m.logger.Printf("Reconnected to NATS at %s", redact(conn.ConnectedUrl()))

	if m.onReconnect != nil {
		go m.onReconnect()
	}
}

func (m *Client) handleClosed(_ *nats.Conn) {
	if m.closed.Load() {
		m.setStatus(StatusClosed)
		return
	}
	m.setStatus(StatusDisconnected)
}

func (m *Client) handleError(_ *nats.Conn, sub *nats.Subscription, err error) {
	if sub != nil {
		m.logger.Errorf("NATS error on %s: %v", sub.Subject, err)
		return
	}
	m.logger.Errorf("NATS error: %v", err)
}

// redact strips credentials from a server URL.
func redact(server string) string {
	scheme, rest, ok := strings.Cut(server, "://")
	if !ok {
		return server
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = rest[at+1:]
	}
	return scheme + "://" + rest
}
