package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fleettest "github.com/c360/fleetbus/testutil"
)

func TestParseFlags_Defaults(t *testing.T) {
	for _, k := range []string{"FLEETBUS_CONFIG", "FLEETBUS_LOG_FORMAT", "FLEETBUS_METRICS_PORT", "FLEETBUS_WORKERS", "FLEETBUS_SHUTDOWN_TIMEOUT"} {
		t.Setenv(k, "")
	}

	cfg, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, "/etc/fleetbus/server.cfg", cfg.ConfigPath)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 9090, cfg.MetricsPort)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestParseFlags_EnvAndArgs(t *testing.T) {
	t.Setenv("FLEETBUS_CONFIG", "/tmp/env.cfg")
	t.Setenv("FLEETBUS_METRICS_PORT", "0")
	t.Setenv("FLEETBUS_SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("FLEETBUS_LOG_FORMAT", "")

	cfg, err := parseFlags([]string{"--log-format=text", "--workers", "9"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env.cfg", cfg.ConfigPath)
	assert.Equal(t, 0, cfg.MetricsPort)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 9, cfg.Workers)

	cfg, err = parseFlags([]string{"-c", "/tmp/flag.cfg"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/flag.cfg", cfg.ConfigPath)

	_, err = parseFlags([]string{"--no-such-flag"})
	assert.Error(t, err)
}

func TestValidateFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.cfg")
	require.NoError(t, os.WriteFile(path, []byte("identity = x\n"), 0o600))

	valid := func() *CLIConfig {
		return &CLIConfig{ConfigPath: path, LogFormat: "json", MetricsPort: 9090, Workers: 1, ShutdownTimeout: time.Second}
	}
	require.NoError(t, validateFlags(valid()))

	tests := map[string]func(*CLIConfig){
		"missing config": func(c *CLIConfig) { c.ConfigPath = path + ".missing" },
		"bad format":     func(c *CLIConfig) { c.LogFormat = "xml" },
		"bad port":       func(c *CLIConfig) { c.MetricsPort = 70000 },
		"no workers":     func(c *CLIConfig) { c.Workers = 0 },
		"no timeout":     func(c *CLIConfig) { c.ShutdownTimeout = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, validateFlags(cfg))
		})
	}

	assert.NoError(t, validateFlags(&CLIConfig{ShowVersion: true}))
}

func TestRun_Validate(t *testing.T) {
	fleettest.UnsetEnv(t, "NATS_SERVER", "NATS_PORT", "NATS_USER", "NATS_PASSWORD", "FLEETBUS_PSK")
	path := filepath.Join(t.TempDir(), "server.cfg")
	cfg := "identity = node1\nconnector = nats\nsecurityprovider = none\n" +
		"plugin.nats.host = localhost\nplugin.nats.user = fleet\nplugin.nats.password = s3cret\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))

	assert.NoError(t, run([]string{"--config", path, "--validate", "--log-format", "text"}))

	require.NoError(t, os.WriteFile(path, []byte("connector = nats\n"), 0o600))
	assert.Error(t, run([]string{"--config", path, "--validate"}))
}
