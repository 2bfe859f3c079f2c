package config

import (
	"os"
	"path/filepath"
	"time"
)

// Default provider selections and tunables applied before the file is read.
const (
	DefaultConnector        = "Nats"
	DefaultSecurityProvider = "Psk"
	DefaultFactSource       = "Yaml"
	DefaultRegistration     = "Agentlist"
	DefaultTopicSeparator   = "."
	DefaultClassesFile      = "/var/lib/puppet/classes.txt"
	DefaultRPCHelpTemplate  = "/etc/fleetbus/rpc-help.tmpl"
	DefaultKeepLogs         = 5
	DefaultMaxLogSize       = 2097152
	DefaultLogLevel         = "info"
	DefaultLogMechanism     = "console"
)

// Snapshot is the immutable result of loading a configuration file.
// Fields are exposed only through getters so nothing downstream can mutate them.
type Snapshot struct {
	identity         string
	topicSeparator   string
	topicPrefix      string
	connector        string
	securityProvider string
	factSource       string
	registration     string
	registerInterval int
	rpcAudit         bool
	rpcAuditProvider string
	rpcAuthorization bool
	rpcAuthProvider  string
	logFile          string
	logLevel         string
	logMechanism     string
	keepLogs         int
	maxLogSize       int
	libDir           string
	classesFile      string
	daemonize        bool
	color            bool
	rpcHelpTemplate  string
	configDir        string
	configFile       string

	plugins PluginSettings
}

// newSnapshot returns a snapshot carrying the built-in defaults.
func newSnapshot(configFile string) *Snapshot {
	identity, err := os.Hostname()
	if err != nil || identity == "" {
		identity = "localhost"
	}

	s := &Snapshot{
		identity:         identity,
		topicSeparator:   DefaultTopicSeparator,
		connector:        DefaultConnector,
		securityProvider: DefaultSecurityProvider,
		factSource:       DefaultFactSource,
		registration:     DefaultRegistration,
		logLevel:         DefaultLogLevel,
		logMechanism:     DefaultLogMechanism,
		keepLogs:         DefaultKeepLogs,
		maxLogSize:       DefaultMaxLogSize,
		classesFile:      DefaultClassesFile,
		color:            true,
		rpcHelpTemplate:  DefaultRPCHelpTemplate,
		configFile:       configFile,
		plugins:          PluginSettings{values: map[string]string{}},
	}
	if configFile != "" {
		s.configDir = filepath.Dir(configFile)
	}
	return s
}

// Identity is the node name announced on the fabric. Defaults to the hostname.
func (s *Snapshot) Identity() string { return s.identity }

// TopicSeparator joins topic segments.
func (s *Snapshot) TopicSeparator() string { return s.topicSeparator }

// TopicPrefix is prepended to every topic the daemon builds.
func (s *Snapshot) TopicPrefix() string { return s.topicPrefix }

// Connector is the capitalised name of the selected connector provider.
func (s *Snapshot) Connector() string { return s.connector }

// SecurityProvider is the capitalised name of the selected security provider.
func (s *Snapshot) SecurityProvider() string { return s.securityProvider }

// FactSource is the capitalised name of the selected fact source.
func (s *Snapshot) FactSource() string { return s.factSource }

// Registration is the capitalised name of the selected registration emitter.
func (s *Snapshot) Registration() string { return s.registration }

// RegisterInterval is the registration period. Zero disables registration.
func (s *Snapshot) RegisterInterval() time.Duration {
	return time.Duration(s.registerInterval) * time.Second
}

// RPCAudit reports whether handled requests are written to the audit sink.
func (s *Snapshot) RPCAudit() bool { return s.rpcAudit }

// RPCAuditProvider is the capitalised name of the selected audit sink.
func (s *Snapshot) RPCAuditProvider() string { return s.rpcAuditProvider }

// RPCAuthorization reports whether request authorization is enabled.
func (s *Snapshot) RPCAuthorization() bool { return s.rpcAuthorization }

// RPCAuthProvider is the capitalised name of the authorization provider.
func (s *Snapshot) RPCAuthProvider() string { return s.rpcAuthProvider }

// LogFile is the log destination when the file mechanism is selected.
func (s *Snapshot) LogFile() string { return s.logFile }

// LogLevel is one of debug, info, warn, error or fatal.
func (s *Snapshot) LogLevel() string { return s.logLevel }

// LogMechanism selects console or file logging.
func (s *Snapshot) LogMechanism() string { return s.logMechanism }

// KeepLogs is the number of rotated log files to keep.
func (s *Snapshot) KeepLogs() int { return s.keepLogs }

// MaxLogSize is the size in bytes at which the log file rotates.
func (s *Snapshot) MaxLogSize() int { return s.maxLogSize }

// LibDir is the plugin library directory.
func (s *Snapshot) LibDir() string { return s.libDir }

// ClassesFile lists the configuration classes applied to this node.
func (s *Snapshot) ClassesFile() string { return s.classesFile }

// Daemonize reports whether the process should detach.
func (s *Snapshot) Daemonize() bool { return s.daemonize }

// Color reports whether console output may be colourised.
func (s *Snapshot) Color() bool { return s.color }

// RPCHelpTemplate is the path of the help output template.
func (s *Snapshot) RPCHelpTemplate() string { return s.rpcHelpTemplate }

// ConfigDir is the directory of the loaded file, used to resolve relative paths.
func (s *Snapshot) ConfigDir() string { return s.configDir }

// ConfigFile is the path the snapshot was loaded from, empty for ParseString.
func (s *Snapshot) ConfigFile() string { return s.configFile }

// PluginSettings returns the plugin.* keys with the prefix removed.
func (s *Snapshot) PluginSettings() PluginSettings { return s.plugins }

// Topic joins the topic prefix and the given segments with the topic separator.
// An empty prefix is skipped.
func (s *Snapshot) Topic(segments ...string) string {
	out := s.topicPrefix
	for _, seg := range segments {
		if out == "" {
			out = seg
			continue
		}
		out += s.topicSeparator + seg
	}
	return out
}
