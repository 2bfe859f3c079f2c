package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360/fleetbus/config"
	"github.com/c360/fleetbus/errors"
	"github.com/c360/fleetbus/facts"
	"github.com/c360/fleetbus/metric"
	"github.com/c360/fleetbus/plugin"
	"github.com/c360/fleetbus/provider"
	"github.com/c360/fleetbus/stats"
)

// step loads one category. check asserts the provider contract; wrap may
// replace the instance before it is registered.
type step struct {
	category string
	name     func(*config.Snapshot) string
	check    func(any) bool
	wrap     func(any, plugin.Dependencies) (any, error)
	enabled  func(*config.Snapshot) bool
}

func implements[T any](inst any) bool {
	_, ok := inst.(T)
	return ok
}

// steps is the load order. Registration resolves after security so it can seal
// its payloads.
var steps = []step{
	{
		category: plugin.CategoryFacts,
		name:     (*config.Snapshot).FactSource,
		check:    implements[provider.FactSource],
		wrap: func(inst any, deps plugin.Dependencies) (any, error) {
			return facts.NewCacheFromDependencies(inst.(provider.FactSource), deps)
		},
	},
	{
		category: plugin.CategoryConnector,
		name:     (*config.Snapshot).Connector,
		check:    implements[provider.Connector],
	},
	{
		category: plugin.CategorySecurity,
		name:     (*config.Snapshot).SecurityProvider,
		check:    implements[provider.SecuritySigner],
	},
	{
		category: plugin.CategoryRegistration,
		name:     (*config.Snapshot).Registration,
		check:    implements[provider.RegistrationEmitter],
	},
	{
		category: plugin.CategoryAudit,
		name:     (*config.Snapshot).RPCAuditProvider,
		check:    implements[provider.AuditSink],
		enabled:  (*config.Snapshot).RPCAudit,
	},
	{
		category: plugin.CategoryGlobalStats,
		name:     func(*config.Snapshot) string { return stats.ImplementationRunner },
		check:    implements[provider.StatsCollector],
	},
}

// Sequencer populates a registry from a configuration snapshot.
type Sequencer struct {
	snap     *config.Snapshot
	registry *plugin.Registry
	logger   *slog.Logger
	metrics  *metric.MetricsRegistry
}

// NewSequencer creates a sequencer. registry must already hold the factory catalog.
func NewSequencer(snap *config.Snapshot, registry *plugin.Registry, logger *slog.Logger, metrics *metric.MetricsRegistry) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{snap: snap, registry: registry, logger: logger, metrics: metrics}
}

// Run resolves and registers one provider per category, then seals the
// registry. Any failure is fatal and leaves the registry unsealed; the caller
// must discard it.
func (s *Sequencer) Run(ctx context.Context) error {
	if s.snap == nil || s.registry == nil {
		return errors.WrapFatal(errors.Detail(errors.ErrMissingConfig, "sequencer needs a snapshot and a registry"),
			"Sequencer", "Run", "validate")
	}

	deps := plugin.Dependencies{
		Config:          s.snap,
		Logger:          s.logger,
		MetricsRegistry: s.metrics,
		Registry:        s.registry,
	}

	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			return errors.WrapFatal(err, "Sequencer", "Run", "load "+st.category)
		}
		if st.enabled != nil && !st.enabled(s.snap) {
			s.logger.Debug("Provider disabled", "category", st.category)
			continue
		}
		if err := s.load(st, deps); err != nil {
			return err
		}
	}

	s.registry.Seal()
	s.logger.Info("Providers loaded", "categories", s.registry.Categories())
	return nil
}

func (s *Sequencer) load(st step, deps plugin.Dependencies) error {
	name := st.name(s.snap)
	impl := plugin.ImplementationName(st.category, name)

	inst, err := s.registry.Resolve(st.category, name, deps)
	if err != nil {
		return errors.WrapFatal(err, "Sequencer", "load", "resolve "+impl)
	}
	if !st.check(inst) {
		msg := fmt.Errorf("%w: %s is a %T", errors.ErrProviderTypeMismatch, impl, inst)
		return errors.WrapFatal(msg, "Sequencer", "load", "check "+impl)
	}
	if st.wrap != nil {
		if inst, err = st.wrap(inst, deps); err != nil {
			return errors.WrapFatal(err, "Sequencer", "load", "wrap "+impl)
		}
	}
	if err := s.registry.Register(st.category, name, inst); err != nil {
		return errors.WrapFatal(err, "Sequencer", "load", "register "+impl)
	}

	s.logger.Info("Loaded provider", "category", st.category, "provider", impl)
	return nil
}
