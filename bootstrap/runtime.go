package bootstrap

import (
	"context"
	"io"
	"log/slog"

	"github.com/c360/fleetbus/catalog"
	"github.com/c360/fleetbus/config"
	"github.com/c360/fleetbus/errors"
	"github.com/c360/fleetbus/metric"
	"github.com/c360/fleetbus/plugin"
	"github.com/c360/fleetbus/provider"
)

// Runtime is the application root: the configuration and everything built from it.
type Runtime struct {
	Config   *config.Snapshot
	Logger   *slog.Logger
	Metrics  *metric.MetricsRegistry
	Registry *plugin.Registry
}

// Option configures New.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	metrics  *metric.MetricsRegistry
	catalogs []func(*plugin.Registry) error
}

// WithLogger sets the runtime logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics uses registry instead of a fresh metrics registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(o *options) { o.metrics = registry }
}

// WithCatalog registers extra factories after the built-in catalog.
func WithCatalog(register func(*plugin.Registry) error) Option {
	return func(o *options) { o.catalogs = append(o.catalogs, register) }
}

// New builds the registry for snap and loads every provider. Nothing connects
// yet; the connector dials on its first Connect.
func New(ctx context.Context, snap *config.Snapshot, opts ...Option) (*Runtime, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = metric.NewMetricsRegistry()
	}

	registry := plugin.NewRegistry()
	if err := catalog.Register(registry); err != nil {
		return nil, err
	}
	for _, register := range o.catalogs {
		if err := register(registry); err != nil {
			return nil, errors.WrapFatal(err, "Runtime", "New", "register catalog")
		}
	}

	if err := NewSequencer(snap, registry, o.logger, o.metrics).Run(ctx); err != nil {
		return nil, err
	}

	return &Runtime{
		Config:   snap,
		Logger:   o.logger,
		Metrics:  o.metrics,
		Registry: registry,
	}, nil
}

// Connector returns the loaded connector.
func (r *Runtime) Connector() provider.Connector {
	return mustGet[provider.Connector](r.Registry, plugin.CategoryConnector)
}

// Facts returns the fact cache.
func (r *Runtime) Facts() provider.FactReader {
	return mustGet[provider.FactReader](r.Registry, plugin.CategoryFacts)
}

// Security returns the loaded signer.
func (r *Runtime) Security() provider.SecuritySigner {
	return mustGet[provider.SecuritySigner](r.Registry, plugin.CategorySecurity)
}

// Registration returns the loaded emitter.
func (r *Runtime) Registration() provider.RegistrationEmitter {
	return mustGet[provider.RegistrationEmitter](r.Registry, plugin.CategoryRegistration)
}

// Stats returns the global statistics collector.
func (r *Runtime) Stats() provider.StatsCollector {
	return mustGet[provider.StatsCollector](r.Registry, plugin.CategoryGlobalStats)
}

// Audit returns the audit sink, or nil when rpcaudit is off.
func (r *Runtime) Audit() provider.AuditSink {
	sink, err := plugin.GetAs[provider.AuditSink](r.Registry, plugin.CategoryAudit)
	if err != nil {
		return nil
	}
	return sink
}

// mustGet reads a category that a successful Run always fills.
func mustGet[T any](r *plugin.Registry, category string) T {
	v, err := plugin.GetAs[T](r, category)
	if err != nil {
		panic("bootstrap: " + err.Error())
	}
	return v
}

// Close disconnects the connector and closes the audit sink.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error

	if err := r.Connector().Disconnect(ctx); err != nil {
		errs = append(errs, errors.Wrap(err, "Runtime", "Close", "disconnect"))
	}
	if c, ok := r.Audit().(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "Runtime", "Close", "close audit sink"))
		}
	}

	r.Logger.Info("Runtime closed")
	return errors.Join(errs...)
}
