package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDefaults(t *testing.T) *Config {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Log.Path = t.TempDir()
	return cfg
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := validDefaults(t)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 256, cfg.Monitor.ChunkSize)
	assert.Equal(t, 300*time.Second, cfg.Monitor.DefaultCycleTime)
	assert.Equal(t, 12*time.Hour, cfg.Monitor.ConfigCycleInterval)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"zero chunk size":       func(c *Config) { c.Monitor.ChunkSize = 0 },
		"negative chunk size":   func(c *Config) { c.Monitor.ChunkSize = -1 },
		"fractional cycle":      func(c *Config) { c.Monitor.DefaultCycleTime = 1500 * time.Millisecond },
		"tiny refresh":          func(c *Config) { c.Monitor.ConfigCycleInterval = time.Second },
		"unknown authority":     func(c *Config) { c.Authority.Mode = "zookeeper" },
		"http without url":      func(c *Config) { c.Authority.Mode = "http" },
		"remote without url":    func(c *Config) { c.Fetcher.Type = "remote" },
		"postgres without dsn":  func(c *Config) { c.Sink.Type = "postgres" },
		"unknown absent policy": func(c *Config) { c.Sink.AbsentValue = "zero" },
		"bad addr":              func(c *Config) { c.Server.Addr = "nope" },
		"bad level":             func(c *Config) { c.Log.Level = "trace" },
		"both retentions":       func(c *Config) { c.Log.MaxBackup = 5 },
		"no retention":          func(c *Config) { c.Log.MaxAge = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validDefaults(t)
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
monitor:
  chunk_size: 100
  default_cycle_time: 60s
  config_cycle_interval: 1h
authority:
  mode: http
  url: http://authority:9000
fetcher:
  type: remote
sink:
  type: postgres
  dsn: postgres://u:p@localhost/db?sslmode=disable
  absent_value: "null"
log:
  path: ` + filepath.Join(dir, "logs") + `
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Monitor.ChunkSize)
	assert.Equal(t, time.Minute, cfg.Monitor.DefaultCycleTime)
	assert.Equal(t, time.Hour, cfg.Monitor.ConfigCycleInterval)
	assert.Equal(t, 30*time.Second, cfg.Monitor.FetchTimeout)
	assert.Equal(t, "http", cfg.Authority.Mode)
	assert.Equal(t, "remote", cfg.Fetcher.Type)
	assert.Equal(t, "postgres", cfg.Sink.Type)
	assert.Equal(t, "datapoints", cfg.Sink.Table)
	assert.Equal(t, "null", cfg.Sink.AbsentValue)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr)
}

func TestLoadConfigWithCliFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("monitor:\n  chunk_size: 100\nlog:\n  path: "+filepath.Join(dir, "logs")+"\n"), 0o644))

	cmd := &cobra.Command{Use: "test"}
	f := cmd.Flags()
	f.String("config", "", "")
	f.Int("monitor.chunk-size", 256, "")
	f.Duration("monitor.fetch-timeout", 30*time.Second, "")
	require.NoError(t, f.Parse([]string{"--config", path, "--monitor.fetch-timeout", "5s"}))

	cfg, err := LoadConfigWithCli(cmd)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Monitor.ChunkSize)
	assert.Equal(t, 5*time.Second, cfg.Monitor.FetchTimeout)
}
