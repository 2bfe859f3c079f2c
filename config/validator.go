package config

import (
	"slices"

	"github.com/c360/fleetbus/errors"
)

// LogLevels lists the accepted loglevel values, least to most severe.
var LogLevels = []string{"debug", "info", "warn", "error", "fatal"}

// LogMechanisms lists the accepted logger_type values.
var LogMechanisms = []string{"console", "file"}

// Validate checks cross-field constraints that single keys cannot express.
func (s *Snapshot) Validate() error {
	if s.topicSeparator == "" {
		return errors.Detail(errors.ErrInvalidConfig, "topicsep must not be empty")
	}
	if s.registerInterval < 0 {
		return errors.Detail(errors.ErrInvalidConfig, "registerinterval must not be negative, got %d", s.registerInterval)
	}
	if s.keepLogs < 0 {
		return errors.Detail(errors.ErrInvalidConfig, "keeplogs must not be negative, got %d", s.keepLogs)
	}
	if s.maxLogSize <= 0 {
		return errors.Detail(errors.ErrInvalidConfig, "max_log_size must be positive, got %d", s.maxLogSize)
	}
	if !slices.Contains(LogLevels, s.logLevel) {
		return errors.Detail(errors.ErrInvalidConfig, "loglevel %q is not one of %v", s.logLevel, LogLevels)
	}
	if !slices.Contains(LogMechanisms, s.logMechanism) {
		return errors.Detail(errors.ErrInvalidConfig, "logger_type %q is not one of %v", s.logMechanism, LogMechanisms)
	}
	if s.logMechanism == "file" && s.logFile == "" {
		return errors.Detail(errors.ErrMissingConfig, "logger_type file requires logfile")
	}

	for key, val := range map[string]string{
		"connector":        s.connector,
		"securityprovider": s.securityProvider,
		"factsource":       s.factSource,
		"registration":     s.registration,
	} {
		if val == "" {
			return errors.Detail(errors.ErrMissingConfig, "%s must name a provider", key)
		}
	}

	if s.rpcAudit && s.rpcAuditProvider == "" {
		return errors.Detail(errors.ErrMissingConfig, "rpcaudit is enabled but rpcauditprovider is not set")
	}
	if s.rpcAuthorization && s.rpcAuthProvider == "" {
		return errors.Detail(errors.ErrMissingConfig, "rpcauthorization is enabled but rpcauthprovider is not set")
	}

	return nil
}
