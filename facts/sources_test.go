package facts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fleetbus/config"
	"github.com/c360/fleetbus/errors"
	"github.com/c360/fleetbus/plugin"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestYamlSource_FlattenAndMerge(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "base.yaml", `
os: linux
role: web
cpus: 4
virtual: true
network:
  eth0:
    ip: 10.0.0.5
  hostname: node1
classes:
  - base
  - nginx
empty:
`)
	override := writeFile(t, dir, "override.yaml", `
role: db
network:
  hostname: node2
`)

	src := NewYamlSource([]string{base, override}, "", nil)
	facts, err := src.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"os":               "linux",
		"role":             "db",
		"cpus":             "4",
		"virtual":          "true",
		"network.eth0.ip":  "10.0.0.5",
		"network.hostname": "node2",
		"classes":          "base,nginx",
		"empty":            "",
	}, facts)
}

func TestYamlSource_RelativePaths(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "facts.yaml", "os: linux\n")

	src := NewYamlSource([]string{"facts.yaml", "/abs/other.yaml"}, dir, nil)
	assert.Equal(t, []string{filepath.Join(dir, "facts.yaml"), "/abs/other.yaml"}, src.Files())
}

func TestYamlSource_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewYamlSource([]string{filepath.Join(dir, "missing.yaml")}, "", nil).Collect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConfigNotFound)

	bad := writeFile(t, dir, "bad.yaml", "os: [linux\n")
	_, err = NewYamlSource([]string{bad}, "", nil).Collect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrParsingFailed)
	assert.True(t, errors.IsInvalid(err))
}

func TestParseFileList(t *testing.T) {
	assert.Equal(t, []string{"/a.yaml", "b.yaml"}, ParseFileList("/a.yaml: :b.yaml:"))
	assert.Nil(t, ParseFileList(""))
}

func TestEnvSource(t *testing.T) {
	src := NewEnvSource("")
	src.environ = func() []string {
		return []string{
			"FACTER_ROLE=web",
			"FACTER_Location=dc=1",
			"FACTER_=ignored",
			"HOME=/root",
			"malformed",
		}
	}

	facts, err := src.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"role": "web", "location": "dc=1"}, facts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Collect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEnvFactory_Prefix(t *testing.T) {
	snap, err := config.ParseString("plugin.env.prefix = FLEET_FACT_\n")
	require.NoError(t, err)

	inst, err := EnvFactory(plugin.Dependencies{Config: snap})
	require.NoError(t, err)

	src := inst.(*EnvSource)
	src.environ = func() []string { return []string{"FLEET_FACT_ZONE=a", "FACTER_ZONE=b"} }
	facts, err := src.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"zone": "a"}, facts)
}

func TestYamlFactory(t *testing.T) {
	inst, err := YamlFactory(plugin.Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultYamlFile}, inst.(*YamlSource).Files())

	snap, err := config.ParseString("plugin.yaml = /etc/a.yaml:/etc/b.yaml\n")
	require.NoError(t, err)
	inst, err = YamlFactory(plugin.Dependencies{Config: snap})
	require.NoError(t, err)
	assert.Equal(t, []string{"/etc/a.yaml", "/etc/b.yaml"}, inst.(*YamlSource).Files())

	snap, err = config.ParseString("plugin.yaml = :\n")
	require.NoError(t, err)
	_, err = YamlFactory(plugin.Dependencies{Config: snap})
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestNewCacheFromDependencies(t *testing.T) {
	snap, err := config.ParseString("plugin.facts.cachetime = 300\n")
	require.NoError(t, err)

	c, err := NewCacheFromDependencies(NewEnvSource(""), plugin.Dependencies{Config: snap})
	require.NoError(t, err)
	assert.Equal(t, "5m0s", c.TTL().String())

	snap, err = config.ParseString("plugin.facts.cachetime = soon\n")
	require.NoError(t, err)
	_, err = NewCacheFromDependencies(NewEnvSource(""), plugin.Dependencies{Config: snap})
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}
