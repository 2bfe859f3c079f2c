package facts

import (
	"context"
	"os"
	"strings"
)

// DefaultEnvPrefix selects the environment variables read by EnvSource.
const DefaultEnvPrefix = "FACTER_"

// EnvSource reads facts from environment variables carrying a prefix.
// FACTER_ROLE=web becomes the fact "role".
type EnvSource struct {
	prefix  string
	environ func() []string
}

// NewEnvSource creates a source over the process environment.
func NewEnvSource(prefix string) *EnvSource {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return &EnvSource{prefix: prefix, environ: os.Environ}
}

// Collect implements provider.FactSource.
func (e *EnvSource) Collect(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]string)
	for _, kv := range e.environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		name, ok := strings.CutPrefix(k, e.prefix)
		if !ok || name == "" {
			continue
		}
		out[strings.ToLower(name)] = v
	}
	return out, nil
}
