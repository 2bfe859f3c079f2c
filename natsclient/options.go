package natsclient

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/fleetbus/errors"
	"github.com/c360/fleetbus/metric"
)

// Logger interface for injecting custom loggers
type Logger interface {
	Printf(format string, v ...any)
	Errorf(format string, v ...any)
	Debugf(format string, v ...any)
}

// defaultLogger writes to slog.Default at the matching levels.
type defaultLogger struct{}

func (l *defaultLogger) Printf(format string, v ...any) {
	slog.Default().Info(fmt.Sprintf(format, v...), "component", "natsclient")
}

func (l *defaultLogger) Errorf(format string, v ...any) {
	slog.Default().Error(fmt.Sprintf(format, v...), "component", "natsclient")
}

func (l *defaultLogger) Debugf(format string, v ...any) {
	slog.Default().Debug(fmt.Sprintf(format, v...), "component", "natsclient")
}

type slogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger adapts a structured logger to Logger.
func NewSlogLogger(logger *slog.Logger) Logger {
	if logger == nil {
		return &defaultLogger{}
	}
	return &slogLogger{logger: logger}
}

func (l *slogLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l *slogLogger) Errorf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

func (l *slogLogger) Debugf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

// ClientOption is a functional option for configuring the Client
type ClientOption func(*Client) error

// WithMaxReconnects sets the maximum number of reconnection attempts after a
// connection is lost (-1 for infinite)
func WithMaxReconnects(max int) ClientOption {
	return func(c *Client) error {
		c.maxReconnects = max
		return nil
	}
}

// WithConnectAttempts bounds the initial connect loop (0 for unlimited)
func WithConnectAttempts(n int) ClientOption {
	return func(c *Client) error {
		if n < 0 {
			return errors.Detail(errors.ErrInvalidConfig, "connect attempts must not be negative, got %d", n)
		}
		c.connectAttempts = n
		return nil
	}
}

// WithReconnectWait sets the initial wait between reconnection attempts
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.reconnectWait = d
		return nil
	}
}

// WithBackoff configures exponential back-off between reconnection attempts.
// With exponential disabled every attempt waits the reconnect wait.
func WithBackoff(exponential bool, multiplier float64, max time.Duration) ClientOption {
	return func(c *Client) error {
		if exponential && multiplier < 1 {
			return errors.Detail(errors.ErrInvalidConfig, "back-off multiplier must be at least 1, got %v", multiplier)
		}
		c.exponential = exponential
		c.backOffMultiplier = multiplier
		if max > 0 {
			c.maxReconnectWait = max
		}
		return nil
	}
}

// WithRandomize shuffles the server list before connecting
func WithRandomize(enabled bool) ClientOption {
	return func(c *Client) error {
		c.randomize = enabled
		return nil
	}
}

// WithRetryOnFailedConnect lets NATS keep retrying in the background when the
// first connect fails
func WithRetryOnFailedConnect(enabled bool) ClientOption {
	return func(c *Client) error {
		c.retryOnFailed = enabled
		return nil
	}
}

// WithPingInterval sets the ping interval for connection health checks
func WithPingInterval(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.pingInterval = d
		return nil
	}
}

// WithLogger sets a custom logger for the client
func WithLogger(logger Logger) ClientOption {
	return func(c *Client) error {
		if logger == nil {
			logger = &defaultLogger{}
		}
		c.logger = logger
		return nil
	}
}

// WithDisconnectCallback sets a callback for disconnection events
func WithDisconnectCallback(fn func(error)) ClientOption {
	return func(c *Client) error {
		c.onDisconnect = fn
		return nil
	}
}

// WithReconnectCallback sets a callback for reconnection events
func WithReconnectCallback(fn func()) ClientOption {
	return func(c *Client) error {
		c.onReconnect = fn
		return nil
	}
}

// WithTLSConfig enables TLS with a prepared configuration
func WithTLSConfig(cfg *tls.Config) ClientOption {
	return func(c *Client) error {
		c.tlsConfig = cfg
		return nil
	}
}

// WithName sets the client name for identification
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}

// WithTimeout sets the per-dial connection timeout (<= 0 leaves the NATS default)
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.timeout = d
		return nil
	}
}

// WithDrainTimeout sets the timeout for draining on close
func WithDrainTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.drainTimeout = d
		return nil
	}
}

// WithInboxSize sets the capacity of the shared message inbox
func WithInboxSize(n int) ClientOption {
	return func(c *Client) error {
		if n < 1 {
			return errors.Detail(errors.ErrInvalidConfig, "inbox size must be positive, got %d", n)
		}
		c.inboxSize = n
		return nil
	}
}

// WithMetrics records connection state and reconnects in the registry's core metrics.
func WithMetrics(registry *metric.MetricsRegistry) ClientOption {
	return func(c *Client) error {
		if registry == nil {
			return nil
		}
		c.metrics = registry.CoreMetrics()
		return nil
	}
}
