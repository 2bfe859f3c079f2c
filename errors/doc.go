// Package errors provides standardized error handling patterns for fleetbus.
//
// # Overview
//
// The package implements a three-class error classification system: Transient
// (temporary, retryable), Invalid (bad input, non-retryable), and Fatal
// (unrecoverable, stop processing). Classification lets the daemon decide whether a
// failure aborts startup, is reported to the caller, or can be retried later.
//
// # Taxonomy
//
// The registry, connector and fact cache report failures through sentinel errors that
// callers test with errors.Is:
//
//   - Configuration: ErrInvalidConfig, ErrMissingConfig, ErrConfigNotFound
//   - Registry: ErrPluginNotFound, ErrDuplicateProvider, ErrAmbiguousProvider,
//     ErrNoProvider, ErrRegistrySealed, ErrProviderTypeMismatch
//   - Connection: ErrNotConnected, ErrConnectFailed, ErrConnectionLost,
//     ErrConnectionTimeout, ErrSubscriptionFailed
//   - Data: ErrInvalidData, ErrDataCorrupted, ErrParsingFailed
//
// IsConfiguration and IsConnection group the sentinels into the two families the
// daemon reports on.
//
// # Error Wrapping Pattern
//
// All error wrapping follows the format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Connector", "Connect", "dial pool")
//	errors.WrapInvalid(err, "Registry", "Register", "duplicate check")
//	errors.WrapFatal(err, "Sequencer", "Run", "resolve connector")
//
// Wrap preserves the original error's classification:
//
//	errors.Wrap(err, "Cache", "GetFact", "refresh")
//
// Detail attaches a human-readable message to a sentinel without losing errors.Is:
//
//	return errors.Detail(errors.ErrMissingConfig, "no NATS_USER environment or plugin.nats.user option given")
//
// # Context Cancellation
//
// context.DeadlineExceeded and context.Canceled classify as Transient.
package errors
