package audit

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/c360/fleetbus/errors"
	"github.com/c360/fleetbus/plugin"
	"github.com/c360/fleetbus/provider"
)

// DefaultLogfile is used when plugin.rpcaudit.logfile is not set.
const DefaultLogfile = "/var/log/fleetbus-audit.log"

// ImplementationLogfile is the registry name of the file sink.
const ImplementationLogfile = "Logfile"

// Logfile appends one JSON line per audit record. The file is opened on the
// first record.
type Logfile struct {
	path string

	mu     sync.Mutex
	file   io.WriteCloser
	logger *slog.Logger
	open   func(path string) (io.WriteCloser, error)
}

var _ provider.AuditSink = (*Logfile)(nil)

// NewLogfile creates a sink writing to path.
func NewLogfile(path string) *Logfile {
	return &Logfile{path: path, open: openAppend}
}

// Path returns the audit log location.
func (l *Logfile) Path() string { return l.path }

// Audit writes rec. Failures to open or write the file are returned.
func (l *Logfile) Audit(ctx context.Context, rec provider.AuditRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logger == nil {
		f, err := l.open(l.path)
		if err != nil {
			return errors.WrapTransient(err, "Logfile", "Audit", "open "+l.path)
		}
		l.file = f
		l.logger = slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	ts := rec.Time
	attrs := []slog.Attr{
		slog.String("requestid", rec.RequestID),
		slog.String("sender", rec.Sender),
		slog.String("agent", rec.Agent),
		slog.String("action", rec.Action),
		slog.Any("data", rec.Data),
	}
	if !ts.IsZero() {
		attrs = append(attrs, slog.Time("request_time", ts))
	}

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "request", 0)
	r.AddAttrs(attrs...)
	if err := l.logger.Handler().Handle(ctx, r); err != nil {
		return errors.WrapTransient(err, "Logfile", "Audit", "write record")
	}
	return nil
}

// Close closes the file if it was opened.
func (l *Logfile) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.logger = nil
	return err
}

func openAppend(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
}

// LogfileFactory builds Audit::Logfile from plugin.rpcaudit.logfile.
func LogfileFactory(deps plugin.Dependencies) (any, error) {
	return NewLogfile(deps.Settings().String("rpcaudit.logfile", DefaultLogfile)), nil
}
