package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"github.com/magiconair/properties"

	"github.com/c360/fleetbus/errors"
)

const pluginKeyPrefix = "plugin."

// Loader reads key = value configuration files into a Snapshot.
type Loader struct {
	logger *slog.Logger
	props  *properties.Loader
}

// NewLoader creates a configuration loader. A nil logger discards output.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{
		logger: logger,
		props: &properties.Loader{
			Encoding:         properties.UTF8,
			DisableExpansion: true,
		},
	}
}

// LoadFile reads and validates the configuration file at path.
func (l *Loader) LoadFile(path string) (*Snapshot, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "LoadFile", "read config file")
	}

	snap, err := l.Parse(data, path)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Configuration loaded",
		"file", path,
		"connector", snap.Connector(),
		"facts", snap.FactSource(),
		"security", snap.SecurityProvider(),
		"plugin_settings", snap.PluginSettings().Len())
	return snap, nil
}

// Parse builds a Snapshot from configuration text. path is recorded as the
// snapshot's ConfigFile and may be empty.
func (l *Loader) Parse(data []byte, path string) (*Snapshot, error) {
	props, err := l.props.LoadBytes(data)
	if err != nil {
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"Loader", "Parse", "parse properties")
	}

	snap := newSnapshot(path)
	plugins := make(map[string]string)

	for _, key := range props.Keys() {
		raw, _ := props.Get(key)
		val := strings.TrimSpace(raw)
		if val == "" {
			// Lines without a value carry no setting.
			continue
		}
		if err := snap.apply(key, val, plugins); err != nil {
			return nil, errors.WrapFatal(err, "Loader", "Parse", "apply "+key)
		}
	}
	snap.plugins = PluginSettings{values: plugins}

	if err := snap.Validate(); err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Parse", "validate")
	}
	return snap, nil
}

// ParseString is a convenience wrapper around Parse for inline configuration.
func ParseString(text string) (*Snapshot, error) {
	return NewLoader(nil).Parse([]byte(text), "")
}

func (s *Snapshot) apply(key, val string, plugins map[string]string) error {
	switch key {
	case "topicsep":
		s.topicSeparator = val
	case "topicprefix":
		s.topicPrefix = val
	case "identity":
		s.identity = val
	case "connector":
		s.connector = capitalize(val)
	case "securityprovider":
		s.securityProvider = capitalize(val)
	case "factsource":
		s.factSource = capitalize(val)
	case "registration":
		s.registration = capitalize(val)
	case "registerinterval":
		n, err := atoi(key, val)
		if err != nil {
			return err
		}
		s.registerInterval = n
	case "rpcaudit":
		s.rpcAudit = flag(val)
	case "rpcauditprovider":
		s.rpcAuditProvider = capitalize(val)
	case "rpcauthorization":
		s.rpcAuthorization = flag(val)
	case "rpcauthprovider":
		s.rpcAuthProvider = capitalize(val)
	case "logfile":
		s.logFile = val
	case "loglevel":
		s.logLevel = strings.ToLower(val)
	case "logger_type":
		s.logMechanism = strings.ToLower(val)
	case "keeplogs":
		n, err := atoi(key, val)
		if err != nil {
			return err
		}
		s.keepLogs = n
	case "max_log_size":
		n, err := atoi(key, val)
		if err != nil {
			return err
		}
		s.maxLogSize = n
	case "libdir":
		s.libDir = val
	case "daemonize":
		s.daemonize = flag(val)
	case "color":
		s.color = flag(val)
	case "classesfile":
		s.classesFile = val
	case "rpchelptemplate":
		s.rpcHelpTemplate = val
	default:
		name, ok := strings.CutPrefix(key, pluginKeyPrefix)
		if !ok || name == "" {
			return errors.Detail(errors.ErrInvalidConfig, "unknown config parameter %q", key)
		}
		plugins[name] = val
	}
	return nil
}

// capitalize upper-cases the first letter and lower-cases the rest, so "nats"
// and "NATS" both select the "Nats" provider.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// flag reports whether a top-level switch is on: values starting with 1 or
// containing y (yes, y, Y) enable it.
func flag(v string) bool {
	v = strings.ToLower(v)
	return strings.HasPrefix(v, "1") || strings.Contains(v, "y")
}

func atoi(key, val string) (int, error) {
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, errors.Detail(errors.ErrInvalidConfig, "%s: %q is not an integer", key, val)
	}
	return n, nil
}
