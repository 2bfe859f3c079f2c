package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/c360/fleetbus/errors"
)

// PluginSettings is a read-only view of the plugin.* keys of a configuration file,
// with the "plugin." prefix removed. Typed getters never expose the backing map.
type PluginSettings struct {
	values map[string]string
}

// NewPluginSettings copies values into a settings view. Used by tests and by
// providers that build settings programmatically.
func NewPluginSettings(values map[string]string) PluginSettings {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return PluginSettings{values: copied}
}

// Lookup returns the raw value of key and whether it was set.
func (p PluginSettings) Lookup(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Has reports whether key was set.
func (p PluginSettings) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// String returns the value of key, or def when unset.
func (p PluginSettings) String(key, def string) string {
	if v, ok := p.values[key]; ok {
		return v
	}
	return def
}

// EnvOrString resolves a value with the environment taking precedence over the
// setting. A variable that is set but empty still wins. The bool result is false
// when neither source provides a value.
func (p PluginSettings) EnvOrString(env, key string) (string, bool) {
	if env != "" {
		if v, ok := os.LookupEnv(env); ok {
			return v, true
		}
	}
	return p.Lookup(key)
}

// Int parses key as a base-10 integer. Unset keys yield def; unparsable values
// yield ErrInvalidConfig.
func (p PluginSettings) Int(key string, def int) (int, error) {
	v, ok := p.values[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, errors.Detail(errors.ErrInvalidConfig, "plugin.%s: %q is not an integer", key, v)
	}
	return n, nil
}

// Float parses key as a floating point number.
func (p PluginSettings) Float(key string, def float64) (float64, error) {
	v, ok := p.values[key]
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def, errors.Detail(errors.ErrInvalidConfig, "plugin.%s: %q is not a number", key, v)
	}
	return f, nil
}

// Seconds parses key as a (possibly fractional) number of seconds.
func (p PluginSettings) Seconds(key string, def time.Duration) (time.Duration, error) {
	v, ok := p.values[key]
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def, errors.Detail(errors.ErrInvalidConfig, "plugin.%s: %q is not a number of seconds", key, v)
	}
	return time.Duration(f * float64(time.Second)), nil
}

// Bool interprets key leniently: a value starting with "1" or containing "yes" or
// "true" is true, one starting with "0" or containing "no" or "false" is false.
// Anything else, including an unset key, yields def.
func (p PluginSettings) Bool(key string, def bool) bool {
	v, ok := p.values[key]
	if !ok {
		return def
	}
	return ParseBool(v, def)
}

// ParseBool applies the lenient boolean rules used by Bool.
func ParseBool(v string, def bool) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	switch {
	case strings.HasPrefix(v, "1") || strings.Contains(v, "yes") || strings.Contains(v, "true"):
		return true
	case strings.HasPrefix(v, "0") || strings.Contains(v, "no") || strings.Contains(v, "false"):
		return false
	default:
		return def
	}
}

// Sub returns the settings below prefix with the prefix removed, so
// Sub("nats.").String("host", "") reads plugin.nats.host.
func (p PluginSettings) Sub(prefix string) PluginSettings {
	out := make(map[string]string)
	for k, v := range p.values {
		if rest, ok := strings.CutPrefix(k, prefix); ok {
			out[rest] = v
		}
	}
	return PluginSettings{values: out}
}

// Keys returns the setting names in sorted order.
func (p PluginSettings) Keys() []string {
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of settings.
func (p PluginSettings) Len() int {
	return len(p.values)
}
