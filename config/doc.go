// Package config loads the daemon configuration file into an immutable Snapshot.
//
// The file is a list of "key = value" lines with "#" comments, parsed with
// github.com/magiconair/properties (variable expansion disabled). Top-level keys
// select providers and daemon behaviour; keys beginning with "plugin." are
// collected verbatim, without the prefix, into PluginSettings for providers to read.
//
// # Basic Usage
//
//	loader := config.NewLoader(logger)
//	snap, err := loader.LoadFile("/etc/fleetbus/server.cfg")
//	if err != nil {
//		return err
//	}
//
//	nats := snap.PluginSettings().Sub("nats.")
//	host, ok := nats.EnvOrString("NATS_SERVER", "host")
//
// # Provider Selection
//
// connector, securityprovider, factsource, registration, rpcauditprovider and
// rpcauthprovider are capitalised on load, so "connector = nats" selects the
// provider registered as "Connector::Nats".
//
// # Errors
//
// Unknown top-level keys and malformed integers fail with errors.ErrInvalidConfig.
// Settings that are required by another setting (logfile for logger_type file,
// rpcauditprovider for rpcaudit) fail with errors.ErrMissingConfig. A missing
// file fails with errors.ErrConfigNotFound. All loader failures are fatal-class.
//
// # Immutability
//
// Snapshot has no setters and PluginSettings copies on construction, so a
// snapshot may be shared freely once loaded.
package config
