package facts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/fleetbus/errors"
)

// DefaultYamlFile is read when plugin.yaml is not set.
const DefaultYamlFile = "/etc/fleetbus/facts.yaml"

// YamlSource reads facts from YAML files. Files are merged in order, later
// files overriding earlier ones; nested maps are flattened with "." and every
// scalar is rendered as a string.
type YamlSource struct {
	files  []string
	logger *slog.Logger
}

// NewYamlSource creates a source over files. Relative paths are resolved
// against baseDir.
func NewYamlSource(files []string, baseDir string, logger *slog.Logger) *YamlSource {
	if logger == nil {
		logger = slog.Default()
	}
	resolved := make([]string, 0, len(files))
	for _, f := range files {
		if !filepath.IsAbs(f) && baseDir != "" {
			f = filepath.Join(baseDir, f)
		}
		resolved = append(resolved, f)
	}
	return &YamlSource{files: resolved, logger: logger}
}

// Files returns the files read by Collect, in merge order.
func (y *YamlSource) Files() []string {
	return append([]string(nil), y.files...)
}

// Collect reads and merges every file.
func (y *YamlSource) Collect(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)

	for _, file := range y.files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := os.ReadFile(file)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errors.WrapFatal(errors.Detail(errors.ErrConfigNotFound, "fact file %s", file),
					"YamlSource", "Collect", "read facts")
			}
			return nil, errors.WrapTransient(err, "YamlSource", "Collect", "read "+file)
		}

		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %s: %w", errors.ErrParsingFailed, file, err),
				"YamlSource", "Collect", "parse facts")
		}

		flatten("", doc, out)
		y.logger.Debug("Loaded fact file", "file", file, "facts", len(doc))
	}

	return out, nil
}

// ParseFileList splits a colon separated list, dropping empty entries.
func ParseFileList(v string) []string {
	var out []string
	for _, f := range strings.Split(v, ":") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		name := k
		if prefix != "" {
			name = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(name, nested, out)
			continue
		}
		out[name] = stringify(v)
	}
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = stringify(item)
		}
		return strings.Join(parts, ",")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + stringify(val[k])
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(val)
	}
}
