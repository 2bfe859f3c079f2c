package security

import (
	"github.com/c360/fleetbus/errors"
	"github.com/c360/fleetbus/plugin"
)

// Registry names of the built-in signers.
const (
	ImplementationPsk  = "Psk"
	ImplementationNone = "None"
)

// PskFactory builds Security::Psk. The key comes from FLEETBUS_PSK or plugin.psk.
func PskFactory(deps plugin.Dependencies) (any, error) {
	material, ok := deps.Settings().EnvOrString(EnvPSK, "psk")
	if !ok {
		return nil, errors.WrapFatal(
			errors.Detail(errors.ErrMissingConfig, "set plugin.psk or %s", EnvPSK),
			"security", "PskFactory", "key material")
	}

	sender := ""
	if deps.Config != nil {
		sender = deps.Config.Identity()
	}
	return NewPsk([]byte(material), sender,
		deps.GetLoggerWithProvider(plugin.ImplementationName(plugin.CategorySecurity, ImplementationPsk)))
}

// NoneFactory builds Security::None.
func NoneFactory(deps plugin.Dependencies) (any, error) {
	deps.GetLogger().Warn("Message signing is disabled", "provider", "Security::None")
	return None{}, nil
}
