package plugin

import (
	"log/slog"

	"github.com/c360/fleetbus/config"
	"github.com/c360/fleetbus/metric"
)

// Dependencies provides everything a provider factory may need to build an instance.
// Factories must not perform I/O; connecting, reading files and similar work belongs
// in the provider's own methods.
type Dependencies struct {
	Config          *config.Snapshot        // Loaded configuration (required)
	Logger          *slog.Logger            // Structured logger (can be nil, defaults to slog.Default())
	MetricsRegistry *metric.MetricsRegistry // Metrics registry for Prometheus (can be nil)
	Registry        *Registry               // Registry being populated, for providers that look up peers
}

// GetLogger returns the configured logger or a default logger if none is provided
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithProvider returns a logger tagged with the provider's implementation name
func (d *Dependencies) GetLoggerWithProvider(implementation string) *slog.Logger {
	return d.GetLogger().With("provider", implementation)
}

// Settings returns the plugin settings of the snapshot, or an empty view when no
// snapshot was supplied.
func (d *Dependencies) Settings() config.PluginSettings {
	if d.Config == nil {
		return config.NewPluginSettings(nil)
	}
	return d.Config.PluginSettings()
}
