package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fleetbus/config"
	"github.com/c360/fleetbus/errors"
	"github.com/c360/fleetbus/plugin"
	"github.com/c360/fleetbus/provider"
)

func TestLogfile_Audit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	sink := NewLogfile(path)
	t.Cleanup(func() { _ = sink.Close() })

	ctx := context.Background()
	require.NoError(t, sink.Audit(ctx, provider.AuditRecord{
		RequestID: "req-1",
		Sender:    "admin.example.com",
		Agent:     "service",
		Action:    "restart",
		Data:      map[string]any{"service": "nginx"},
		Time:      time.Unix(1700000000, 0).UTC(),
	}))
	require.NoError(t, sink.Audit(ctx, provider.AuditRecord{RequestID: "req-2", Agent: "puppet", Action: "runonce"}))
	require.NoError(t, sink.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 2)

	assert.Equal(t, "request", lines[0]["msg"])
	assert.Equal(t, "req-1", lines[0]["requestid"])
	assert.Equal(t, "admin.example.com", lines[0]["sender"])
	assert.Equal(t, "restart", lines[0]["action"])
	assert.Equal(t, map[string]any{"service": "nginx"}, lines[0]["data"])
	assert.Equal(t, "2023-11-14T22:13:20Z", lines[0]["request_time"])

	assert.Equal(t, "req-2", lines[1]["requestid"])
	assert.NotContains(t, lines[1], "request_time")
}

func TestLogfile_AppendsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		sink := NewLogfile(path)
		require.NoError(t, sink.Audit(ctx, provider.AuditRecord{RequestID: "r"}))
		require.NoError(t, sink.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, countLines(data))
}

type brokenFile struct{}

func (brokenFile) Write([]byte) (int, error) { return 0, io.ErrShortWrite }
func (brokenFile) Close() error              { return nil }

func TestLogfile_Failures(t *testing.T) {
	ctx := context.Background()

	sink := NewLogfile(filepath.Join(t.TempDir(), "missing", "audit.log"))
	err := sink.Audit(ctx, provider.AuditRecord{RequestID: "r"})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))

	sink = NewLogfile("ignored")
	sink.open = func(string) (io.WriteCloser, error) { return brokenFile{}, nil }
	err = sink.Audit(ctx, provider.AuditRecord{RequestID: "r"})
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrShortWrite)

	assert.NoError(t, NewLogfile("never-opened").Close())
}

func TestLogfileFactory(t *testing.T) {
	inst, err := LogfileFactory(plugin.Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, DefaultLogfile, inst.(*Logfile).Path())

	snap, err := config.ParseString("plugin.rpcaudit.logfile = /tmp/a.log\n")
	require.NoError(t, err)
	inst, err = LogfileFactory(plugin.Dependencies{Config: snap})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/a.log", inst.(*Logfile).Path())
}

func countLines(data []byte) int {
	n := 0
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	return n
}
