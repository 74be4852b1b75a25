package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
freeswitch_instances:
  - name: fs1
    host: 10.0.0.5
    port: 8021
    password: ClueCon
buffer:
  capacity: 4096
  zero_delta: error
  monotonic_check: true
storage:
  type: redis
  key_prefix: lab
  redis:
    host: localhost
    port: 6379
export:
  interval: 30s
logging:
  level: debug
  format: text
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	require.Len(t, cfg.FreeSwitchInstances, 1)
	assert.Equal(t, "10.0.0.5:8021", cfg.FreeSwitchInstances[0].Address())
	assert.Equal(t, 4096, cfg.Buffer.Capacity)
	assert.Equal(t, 100, cfg.Buffer.Window)
	assert.Equal(t, "error", cfg.Buffer.ZeroDelta)
	assert.True(t, cfg.Buffer.MonotonicCheck)
	assert.Equal(t, "redis", cfg.Storage.Type)
	assert.Equal(t, "lab", cfg.Storage.KeyPrefix)
	assert.Equal(t, 30*time.Second, cfg.Export.Interval)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestDefaults(t *testing.T) {
	t.Setenv("FSMEASURE_FREESWITCH_INSTANCES", `[{"name":"fs1","host":"127.0.0.1","port":8021,"password":"ClueCon"}]`)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1<<20, cfg.Buffer.Capacity)
	assert.Equal(t, 100, cfg.Buffer.Window)
	assert.Equal(t, "clamp", cfg.Buffer.ZeroDelta)
	assert.Equal(t, "file", cfg.Storage.Type)
	assert.Equal(t, "./snapshots", cfg.Storage.Dir)
	assert.Equal(t, "fsmeasure", cfg.Storage.KeyPrefix)
	assert.Equal(t, 10*time.Second, cfg.Export.Interval)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("FSMEASURE_BUFFER_CAPACITY", "16")
	t.Setenv("FSMEASURE_REDIS_PORT", "6380")
	t.Setenv("FSMEASURE_EXPORT_INTERVAL", "1m")
	t.Setenv("FSMEASURE_HTTP_PORT", "9090")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Buffer.Capacity)
	assert.Equal(t, 6380, cfg.Storage.Redis.Port)
	assert.Equal(t, time.Minute, cfg.Export.Interval)
	assert.Equal(t, 9090, cfg.HTTP.Port)
}

func TestMissingFileFallsBackToEnv(t *testing.T) {
	t.Setenv("FSMEASURE_FREESWITCH_INSTANCES", `[{"name":"fs1","host":"127.0.0.1","port":8021,"password":"ClueCon"}]`)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NoError(t, err)
}

func TestInvalidEnv(t *testing.T) {
	t.Setenv("FSMEASURE_BUFFER_CAPACITY", "lots")
	_, err := Load(writeConfig(t, sampleYAML))
	assert.ErrorContains(t, err, "FSMEASURE_BUFFER_CAPACITY")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{FreeSwitchInstances: []FSConfig{{Name: "fs1", Host: "h", Port: 8021, Password: "p"}}}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"no instances", func(c *Config) { c.FreeSwitchInstances = nil }, "at least one"},
		{"bad port", func(c *Config) { c.FreeSwitchInstances[0].Port = 70000 }, "invalid port"},
		{"no password", func(c *Config) { c.FreeSwitchInstances[0].Password = "" }, "password is required"},
		{"negative capacity", func(c *Config) { c.Buffer.Capacity = -1 }, "capacity"},
		{"zero delta", func(c *Config) { c.Buffer.ZeroDelta = "ignore" }, "zero_delta"},
		{"storage type", func(c *Config) { c.Storage.Type = "s3" }, "storage type"},
		{"redis missing", func(c *Config) { c.Storage.Type = "redis" }, "Redis configuration"},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, "invalid log level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.ErrorContains(t, c.Validate(), tt.errMsg)
		})
	}

	c := valid()
	assert.NoError(t, c.Validate())
}
