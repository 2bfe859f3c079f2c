package connector

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/c360/fleetbus/errors"
	"github.com/c360/fleetbus/metric"
	"github.com/c360/fleetbus/pkg/tlsutil"
	"github.com/c360/fleetbus/provider"
)

// Transport is one live broker connection as the connector sees it. Outbound
// messages go through Publish or Send, whichever the transport implements.
type Transport interface {
	Subscribe(ctx context.Context, subject string) error
	Unsubscribe(ctx context.Context, subject string) error
	Next(ctx context.Context) ([]byte, error)
	Close(ctx context.Context) error
}

// Publisher is a transport with a publish primitive.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Sender is a transport with a generic send primitive.
type Sender interface {
	Send(ctx context.Context, subject string, data []byte) error
}

// Dialer opens a transport to the pool. It owns the retry loop: when it
// returns an error the policy is exhausted.
type Dialer func(ctx context.Context, pool Pool) (Transport, error)

// Connector implements provider.Connector on top of a broker transport.
//
// It holds at most one transport. Connect is idempotent; Disconnect closes the
// transport and returns the connector to the disconnected state, from which a
// later Connect dials again.
//
// The subscription set belongs to the connector, not the transport. It is kept
// across Disconnect and every destination in it is subscribed again on the
// next Connect, so Subscriptions always describes what the broker will
// deliver once connected.
type Connector struct {
	name    string
	pool    Pool
	dial    Dialer
	tls     tlsutil.ClientConfig
	logger  *slog.Logger
	metrics *metric.Metrics
	now     func() time.Time

	metricsRegistry *metric.MetricsRegistry
	clientName      string

	mu            sync.Mutex
	transport     Transport
	subscriptions map[string]struct{}
}

var _ provider.Connector = (*Connector)(nil)

// Option is a functional option for configuring the Connector
type Option func(*Connector)

// WithDialer replaces the NATS dialer, e.g. with a loopback for tests.
func WithDialer(d Dialer) Option {
	return func(c *Connector) {
		if d != nil {
			c.dial = d
		}
	}
}

// WithLogger sets the connector's logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records connector activity in the registry's core metrics.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(c *Connector) {
		if registry != nil {
			c.metricsRegistry = registry
			c.metrics = registry.CoreMetrics()
		}
	}
}

// WithTLS sets the client TLS material used for tls endpoints.
func WithTLS(cfg tlsutil.ClientConfig) Option {
	return func(c *Connector) {
		c.tls = cfg
	}
}

// WithClientName sets the name the connection reports to the broker.
func WithClientName(name string) Option {
	return func(c *Connector) {
		c.clientName = name
	}
}

// WithClock overrides the time source used for Request.ReceivedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Connector) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a disconnected connector for pool.
func New(pool Pool, opts ...Option) *Connector {
	c := &Connector{
		name:          "nats",
		pool:          pool,
		logger:        slog.Default(),
		now:           time.Now,
		subscriptions: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dial == nil {
		c.dial = c.natsDialer
	}
	return c
}

// Connect dials the pool unless a transport is already open.
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport != nil {
		c.logger.Debug("Already connected, ignoring connect")
		return nil
	}

	c.logger.Info("Connecting", "endpoints", c.endpointList())

	t, err := c.dial(ctx, c.pool)
	if err != nil {
		c.recordError("connect", err)
		if !errors.Is(err, errors.ErrConnectFailed) {
			err = fmt.Errorf("%w: %w", errors.ErrConnectFailed, err)
		}
		return errors.WrapTransient(err, "Connector", "Connect", "dial pool")
	}

	for _, dest := range c.subscriptionList() {
		if err := t.Subscribe(ctx, dest); err != nil {
			_ = t.Close(ctx)
			c.recordError("subscribe", err)
			return errors.WrapTransient(fmt.Errorf("%w: %s: %w", errors.ErrSubscriptionFailed, dest, err),
				"Connector", "Connect", "restore subscriptions")
		}
	}

	c.transport = t
	if c.metrics != nil {
		c.metrics.RecordConnect()
		c.metrics.RecordConnected(true)
	}

	c.logger.Info("Connected", "subscriptions", len(c.subscriptions))
	return nil
}

// Send publishes payload to target.
func (c *Connector) Send(ctx context.Context, target string, payload []byte) error {
	t, err := c.current("Send")
	if err != nil {
		return err
	}

	switch out := t.(type) {
	case Publisher:
		err = out.Publish(ctx, target, payload)
	case Sender:
		err = out.Send(ctx, target, payload)
	default:
		return errors.WrapFatal(errors.Detail(errors.ErrInvalidConfig, "transport %T can neither publish nor send", t),
			"Connector", "Send", "outbound primitive lookup")
	}
	if err != nil {
		c.recordError("send", err)
		return errors.WrapTransient(err, "Connector", "Send", "publish to "+target)
	}

	if c.metrics != nil {
		c.metrics.RecordMessageSent(c.name)
	}
	return nil
}

// Receive blocks until a message arrives on any subscribed destination or ctx
// is done. Only the body is kept.
func (c *Connector) Receive(ctx context.Context) (*provider.Request, error) {
	t, err := c.current("Receive")
	if err != nil {
		return nil, err
	}

	body, err := t.Next(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.recordError("receive", err)
		return nil, errors.WrapTransient(err, "Connector", "Receive", "next message")
	}

	if c.metrics != nil {
		c.metrics.RecordMessageReceived(c.name)
	}
	return &provider.Request{Body: body, ReceivedAt: c.now()}, nil
}

// Subscribe adds destination to the subscription set. Subscribing twice is a
// no-op. While disconnected only the set changes; the next Connect subscribes it.
func (c *Connector) Subscribe(ctx context.Context, destination string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subscriptions[destination]; ok {
		return nil
	}

	if c.transport != nil {
		if err := c.transport.Subscribe(ctx, destination); err != nil {
			c.recordError("subscribe", err)
			return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrSubscriptionFailed, err),
				"Connector", "Subscribe", "subscribe "+destination)
		}
	}

	c.subscriptions[destination] = struct{}{}
	c.logger.Debug("Subscribed", "destination", destination, "connected", c.transport != nil)
	return nil
}

// Unsubscribe removes destination from the subscription set. Removing an
// absent destination is a no-op. The entry is kept when the broker refuses.
func (c *Connector) Unsubscribe(ctx context.Context, destination string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subscriptions[destination]; !ok {
		return nil
	}

	if c.transport != nil {
		if err := c.transport.Unsubscribe(ctx, destination); err != nil {
			c.recordError("unsubscribe", err)
			return errors.WrapTransient(err, "Connector", "Unsubscribe", "unsubscribe "+destination)
		}
	}

	delete(c.subscriptions, destination)
	c.logger.Debug("Unsubscribed", "destination", destination, "connected", c.transport != nil)
	return nil
}

// Disconnect closes the transport. The subscription set is kept.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport == nil {
		return nil
	}

	t := c.transport
	c.transport = nil
	if c.metrics != nil {
		c.metrics.RecordConnected(false)
	}

	if err := t.Close(ctx); err != nil {
		c.recordError("disconnect", err)
		return errors.Wrap(err, "Connector", "Disconnect", "close transport")
	}

	c.logger.Info("Disconnected", "subscriptions", len(c.subscriptions))
	return nil
}

// Subscriptions returns the subscription set, sorted.
func (c *Connector) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscriptionList()
}

// Connected reports whether a transport is open.
func (c *Connector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport != nil
}

// Pool returns a copy of the connection pool.
func (c *Connector) Pool() Pool {
	p := c.pool
	p.Endpoints = append([]Endpoint(nil), c.pool.Endpoints...)
	return p
}

func (c *Connector) current(method string) (Transport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport == nil {
		return nil, errors.WrapTransient(errors.ErrNotConnected, "Connector", method, "connection check")
	}
	return c.transport, nil
}

// subscriptionList must be called with mu held.
func (c *Connector) subscriptionList() []string {
	out := make([]string, 0, len(c.subscriptions))
	for d := range c.subscriptions {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func (c *Connector) endpointList() string {
	parts := make([]string, len(c.pool.Endpoints))
	for i, e := range c.pool.Endpoints {
		parts[i] = e.String()
	}
	return strings.Join(parts, ",")
}

func (c *Connector) recordError(op string, err error) {
	c.logger.Error("Connector operation failed", "op", op, "error", err)
	if c.metrics != nil {
		c.metrics.RecordError("connector", errors.Classify(err).String())
	}
}
