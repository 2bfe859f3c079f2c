package main

import (
	"io"
	"log/slog"

	"github.com/c360/fleetbus/config"
	"github.com/c360/fleetbus/logging"
)

// setupLogger builds the daemon logger from the loglevel, logger_type, logfile,
// max_log_size and keeplogs settings.
func setupLogger(snap *config.Snapshot, format string) (*slog.Logger, io.Closer, error) {
	return logging.New(logging.Options{
		Level:     snap.LogLevel(),
		Format:    format,
		Mechanism: snap.LogMechanism(),
		File:      snap.LogFile(),
		MaxSize:   int64(snap.MaxLogSize()),
		KeepLogs:  snap.KeepLogs(),
		Service:   appName,
		Version:   Version,
	})
}
