// Package audit records handled requests when rpcaudit is enabled.
//
// Audit::Logfile writes each provider.AuditRecord as a JSON object on its own
// line, using the slog JSON handler so the format matches the daemon log.
package audit
