package registration

import (
	"strings"

	"github.com/c360/fleetbus/errors"
	"github.com/c360/fleetbus/plugin"
	"github.com/c360/fleetbus/provider"
)

// Registry names of the built-in emitters.
const (
	ImplementationAgentlist = "Agentlist"
	ImplementationDisabled  = "Disabled"
)

// AgentlistFactory builds Registration::Agentlist. Payloads are sealed with the
// security provider when one is already registered.
func AgentlistFactory(deps plugin.Dependencies) (any, error) {
	if deps.Config == nil {
		return nil, errors.WrapFatal(errors.Detail(errors.ErrMissingConfig, "no configuration"),
			"registration", "AgentlistFactory", "config")
	}

	var agents []string
	for _, a := range strings.Split(deps.Settings().String("agentlist.agents", ""), ",") {
		if a = strings.TrimSpace(a); a != "" {
			agents = append(agents, a)
		}
	}

	var signer provider.SecuritySigner
	if deps.Registry != nil {
		if s, err := plugin.GetAs[provider.SecuritySigner](deps.Registry, plugin.CategorySecurity); err == nil {
			signer = s
		}
	}

	logger := deps.GetLoggerWithProvider(plugin.ImplementationName(plugin.CategoryRegistration, ImplementationAgentlist))
	return NewAgentlist(
		deps.Config.Identity(),
		deps.Config.Topic("registration", "agent"),
		agents,
		deps.Config.RegisterInterval(),
		signer,
		logger,
	), nil
}

// DisabledFactory builds Registration::Disabled.
func DisabledFactory(plugin.Dependencies) (any, error) {
	return Disabled{}, nil
}
