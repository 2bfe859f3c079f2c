package facts

import (
	"github.com/c360/fleetbus/errors"
	"github.com/c360/fleetbus/plugin"
	"github.com/c360/fleetbus/provider"
)

// Registry names of the built-in fact sources.
const (
	ImplementationYaml = "Yaml"
	ImplementationEnv  = "Env"
)

// YamlFactory builds Facts::Yaml from plugin.yaml (colon separated files,
// relative to the configuration directory).
func YamlFactory(deps plugin.Dependencies) (any, error) {
	files := ParseFileList(deps.Settings().String("yaml", DefaultYamlFile))
	if len(files) == 0 {
		return nil, errors.WrapFatal(errors.Detail(errors.ErrMissingConfig, "plugin.yaml lists no files"),
			"facts", "YamlFactory", "file list")
	}

	baseDir := ""
	if deps.Config != nil {
		baseDir = deps.Config.ConfigDir()
	}

	logger := deps.GetLoggerWithProvider(plugin.ImplementationName(plugin.CategoryFacts, ImplementationYaml))
	return NewYamlSource(files, baseDir, logger), nil
}

// EnvFactory builds Facts::Env from plugin.env.prefix.
func EnvFactory(deps plugin.Dependencies) (any, error) {
	return NewEnvSource(deps.Settings().String("env.prefix", DefaultEnvPrefix)), nil
}

// NewCacheFromDependencies wraps source in a Cache whose TTL is plugin.facts.cachetime
// seconds (default 0).
func NewCacheFromDependencies(source provider.FactSource, deps plugin.Dependencies) (*Cache, error) {
	ttl, err := deps.Settings().Seconds("facts.cachetime", 0)
	if err != nil {
		return nil, errors.WrapFatal(err, "facts", "NewCacheFromDependencies", "cache time")
	}

	opts := []Option{WithLogger(deps.GetLogger().With("component", "facts_cache"))}
	if deps.MetricsRegistry != nil {
		opts = append(opts, WithMetrics(deps.MetricsRegistry, "facts"))
	}
	return NewCache(source, ttl, opts...)
}
