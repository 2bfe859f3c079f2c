package connector

import (
	"context"
	"strings"

	"github.com/c360/fleetbus/config"
	"github.com/c360/fleetbus/errors"
	"github.com/c360/fleetbus/natsclient"
	"github.com/c360/fleetbus/pkg/tlsutil"
	"github.com/c360/fleetbus/plugin"
)

// Implementation is the registry name of the NATS connector.
const Implementation = "Nats"

// natsDialer is the default Dialer. The pool policy is translated into
// natsclient options; the client then owns both the initial connect loop and
// reconnection after a lost connection.
func (c *Connector) natsDialer(ctx context.Context, pool Pool) (Transport, error) {
	if len(pool.Endpoints) == 0 {
		return nil, errors.Detail(errors.ErrMissingConfig, "connection pool has no endpoints")
	}

	opts := []natsclient.ClientOption{
		natsclient.WithLogger(natsclient.NewSlogLogger(c.logger.With("component", "natsclient"))),
		natsclient.WithReconnectWait(pool.Policy.InitialReconnectDelay),
		natsclient.WithBackoff(pool.Policy.UseExponentialBackOff, pool.Policy.BackOffMultiplier, pool.Policy.MaxReconnectDelay),
		natsclient.WithMaxReconnects(maxReconnects(pool.Policy.MaxReconnectAttempts)),
		natsclient.WithConnectAttempts(pool.Policy.MaxReconnectAttempts),
		natsclient.WithRandomize(pool.Policy.Randomize),
		natsclient.WithRetryOnFailedConnect(pool.Policy.Backup),
		natsclient.WithTimeout(pool.Policy.Timeout),
		natsclient.WithMetrics(c.metricsRegistry),
	}
	if c.clientName != "" {
		opts = append(opts, natsclient.WithName(c.clientName))
	}

	if pool.UsesTLS() {
		tlsConfig, err := tlsutil.LoadClientTLSConfig(c.tls)
		if err != nil {
			return nil, err
		}
		opts = append(opts, natsclient.WithTLSConfig(tlsConfig))
	}

	client, err := natsclient.NewClient(pool.URLs(), opts...)
	if err != nil {
		return nil, err
	}

	if err := client.Connect(ctx); err != nil {
		_ = client.Close(context.Background())
		return nil, err
	}
	return client, nil
}

// maxReconnects maps "0 is unlimited" onto the NATS convention of -1.
func maxReconnects(attempts int) int {
	if attempts == 0 {
		return -1
	}
	return attempts
}

// TLSFromSettings reads the client TLS material for tls endpoints from
// plugin.nats.ssl_ca (colon separated), ssl_cert, ssl_key, ssl_min_version and
// ssl_insecure.
func TLSFromSettings(settings config.PluginSettings) tlsutil.ClientConfig {
	cfg := tlsutil.ClientConfig{
		CertFile:           settings.String(key("ssl_cert"), ""),
		KeyFile:            settings.String(key("ssl_key"), ""),
		MinVersion:         settings.String(key("ssl_min_version"), ""),
		InsecureSkipVerify: settings.Bool(key("ssl_insecure"), false),
	}
	if ca := settings.String(key("ssl_ca"), ""); ca != "" {
		for _, f := range strings.Split(ca, ":") {
			if f = strings.TrimSpace(f); f != "" {
				cfg.CAFiles = append(cfg.CAFiles, f)
			}
		}
	}
	return cfg
}

// Factory builds the Connector::Nats provider from plugin.nats.* settings.
// It parses the pool but does not dial.
func Factory(deps plugin.Dependencies) (any, error) {
	settings := deps.Settings()

	pool, err := ParsePool(settings)
	if err != nil {
		return nil, err
	}

	name := "fleetbus"
	if deps.Config != nil && deps.Config.Identity() != "" {
		name = "fleetbus-" + deps.Config.Identity()
	}

	return New(pool,
		WithLogger(deps.GetLoggerWithProvider(plugin.ImplementationName(plugin.CategoryConnector, Implementation))),
		WithMetrics(deps.MetricsRegistry),
		WithTLS(TLSFromSettings(settings)),
		WithClientName(name),
	), nil
}
