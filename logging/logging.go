// Package logging builds the daemon's slog logger from configuration.
//
// Levels are debug, info, warn, error and fatal; LevelFatal sits above
// slog.LevelError. The console mechanism writes to stdout, the file mechanism to
// a size-rotated file. When the primary sink fails, records are re-emitted to a
// fallback writer (stderr by default) so a broken log never hides the event.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/c360/fleetbus/errors"
)

// LevelFatal is the severity of unrecoverable conditions.
const LevelFatal = slog.LevelError + 4

// Options selects where and how the daemon logs.
type Options struct {
	Level     string    // debug, info, warn, error or fatal
	Format    string    // json or text
	Mechanism string    // console or file
	File      string    // required for the file mechanism
	MaxSize   int64     // rotate the file beyond this many bytes; 0 disables rotation
	KeepLogs  int       // rotated files to keep
	Service   string    // attached to every record
	Version   string    // attached to every record
	Console   io.Writer // console sink, stdout when nil
	Fallback  io.Writer // fallback sink, stderr when nil
}

// ParseLevel maps a configured level name to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "fatal":
		return LevelFatal, nil
	default:
		return slog.LevelInfo, errors.Detail(errors.ErrInvalidConfig, "unknown log level %q", level)
	}
}

// New builds a logger. The returned closer releases the file sink, if any.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, errors.WrapFatal(err, "logging", "New", "parse level")
	}

	var (
		sink   io.Writer
		closer io.Closer = nopCloser{}
	)
	switch strings.ToLower(opts.Mechanism) {
	case "", "console":
		sink = opts.Console
		if sink == nil {
			sink = os.Stdout
		}
	case "file":
		if opts.File == "" {
			return nil, nil, errors.WrapFatal(
				errors.Detail(errors.ErrMissingConfig, "file logging requires a logfile"),
				"logging", "New", "open log file")
		}
		rf, err := OpenRotatingFile(opts.File, opts.MaxSize, opts.KeepLogs)
		if err != nil {
			return nil, nil, errors.WrapFatal(err, "logging", "New", "open log file")
		}
		sink, closer = rf, rf
	default:
		return nil, nil, errors.WrapFatal(
			errors.Detail(errors.ErrInvalidConfig, "unknown logger type %q", opts.Mechanism),
			"logging", "New", "select mechanism")
	}

	fallback := opts.Fallback
	if fallback == nil {
		fallback = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   level == slog.LevelDebug,
		ReplaceAttr: replaceLevelName,
	}

	handler := NewFallbackHandler(newHandler(opts.Format, sink, handlerOpts), slog.NewTextHandler(fallback, handlerOpts))

	logger := slog.New(handler)
	if opts.Service != "" {
		logger = logger.With("service", opts.Service)
	}
	if opts.Version != "" {
		logger = logger.With("version", opts.Version)
	}
	return logger.With("pid", os.Getpid()), closer, nil
}

func newHandler(format string, w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	switch strings.ToLower(format) {
	case "text":
		return slog.NewTextHandler(w, opts)
	default:
		return slog.NewJSONHandler(w, opts)
	}
}

// replaceLevelName renders LevelFatal as "FATAL" instead of "ERROR+4".
func replaceLevelName(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= LevelFatal {
		a.Value = slog.StringValue("FATAL")
	}
	return a
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// Fatal logs msg at LevelFatal. It does not exit; the caller decides.
func Fatal(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelFatal, msg, args...)
}
