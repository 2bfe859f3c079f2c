// Package catalog registers the built-in provider factories.
package catalog

import (
	"github.com/c360/fleetbus/audit"
	"github.com/c360/fleetbus/connector"
	"github.com/c360/fleetbus/errors"
	"github.com/c360/fleetbus/facts"
	"github.com/c360/fleetbus/plugin"
	"github.com/c360/fleetbus/registration"
	"github.com/c360/fleetbus/security"
	"github.com/c360/fleetbus/stats"
)

type builtin struct {
	category string
	name     string
	factory  plugin.Factory
}

var builtins = []builtin{
	{plugin.CategoryConnector, connector.Implementation, connector.Factory},
	{plugin.CategoryFacts, facts.ImplementationYaml, facts.YamlFactory},
	{plugin.CategoryFacts, facts.ImplementationEnv, facts.EnvFactory},
	{plugin.CategorySecurity, security.ImplementationPsk, security.PskFactory},
	{plugin.CategorySecurity, security.ImplementationNone, security.NoneFactory},
	{plugin.CategoryRegistration, registration.ImplementationAgentlist, registration.AgentlistFactory},
	{plugin.CategoryRegistration, registration.ImplementationDisabled, registration.DisabledFactory},
	{plugin.CategoryAudit, audit.ImplementationLogfile, audit.LogfileFactory},
	{plugin.CategoryGlobalStats, stats.ImplementationRunner, stats.Factory},
}

// Register adds every built-in factory to r and lists the fact source factories
// under facts_plugin.
func Register(r *plugin.Registry) error {
	for _, b := range builtins {
		if err := r.RegisterFactory(b.category, b.name, b.factory); err != nil {
			return errors.WrapFatal(err, "catalog", "Register", "register "+plugin.ImplementationName(b.category, b.name))
		}
		if b.category != plugin.CategoryFacts {
			continue
		}
		if err := r.Register(plugin.CategoryFactsPlugin, b.name, b.factory); err != nil {
			return errors.WrapFatal(err, "catalog", "Register", "list fact source "+b.name)
		}
	}
	return nil
}
