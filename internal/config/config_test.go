package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/newthinker/quantguard/internal/backtest"
	"github.com/newthinker/quantguard/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9090

storage:
  sqlite:
    path: "/tmp/quantguard/risk.db"
  archive:
    type: s3
    s3:
      bucket: reports

risk:
  max_daily_loss: 3000
  max_open_positions: 5

backtest:
  commission_rate: 0.001
  sizing: units
  units: 100

monitor:
  poll_interval: 500ms
  timezone: America/New_York
  session_reset: "09:30"

strategies:
  ma_crossover:
    enabled: true
    params:
      fast_period: 5
      slow_period: 20
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/tmp/quantguard/risk.db", cfg.Storage.SQLite.Path)
	assert.Equal(t, "s3", cfg.Storage.Archive.Type)
	assert.Equal(t, "reports", cfg.Storage.Archive.S3.Bucket)

	limits := cfg.Risk.Limits()
	assert.Equal(t, 3000.0, limits.MaxDailyLoss)
	assert.Equal(t, 5, limits.MaxOpenPositions)
	assert.Equal(t, 0.02, limits.MaxRiskFraction, "unset keys keep defaults")

	sim := cfg.Backtest.SimConfig()
	assert.Equal(t, backtest.SizingUnits, sim.Sizing)
	assert.Equal(t, 100.0, sim.Units)
	assert.Equal(t, 100000.0, sim.InitialCash)

	assert.Equal(t, 500*time.Millisecond, cfg.Monitor.PollInterval)
	h, m, ok, err := cfg.Monitor.ResetTime()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 9, h)
	assert.Equal(t, 30, m)

	assert.True(t, cfg.Strategies["ma_crossover"].Enabled)
	assert.EqualValues(t, 5, cfg.Strategies["ma_crossover"].Params["fast_period"])

	require.NoError(t, cfg.Validate())
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("QG_TEST_API_KEY", "secret")
	path := writeConfig(t, `
server:
  api_key: "${QG_TEST_API_KEY}"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Server.APIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, time.Second, cfg.Monitor.PollInterval)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr *core.Error
	}{
		{"invalid port - zero", func(c *Config) { c.Server.Port = 0 }, core.ErrConfigInvalid},
		{"invalid port - too high", func(c *Config) { c.Server.Port = 70000 }, core.ErrConfigInvalid},
		{"bad risk limit", func(c *Config) { c.Risk.MaxDailyLoss = 0 }, core.ErrConfigInvalid},
		{"bad sim config", func(c *Config) { c.Backtest.Fraction = 2 }, core.ErrConfigInvalid},
		{"bad poll interval", func(c *Config) { c.Monitor.PollInterval = 0 }, core.ErrConfigInvalid},
		{"bad timezone", func(c *Config) { c.Monitor.Timezone = "Mars/Olympus" }, core.ErrConfigInvalid},
		{"bad reset time", func(c *Config) { c.Monitor.SessionReset = "9h30" }, core.ErrConfigInvalid},
		{"negative cooldown", func(c *Config) { c.Router.Cooldown = -time.Second }, core.ErrConfigInvalid},
		{"unknown alert kind", func(c *Config) { c.Router.EnabledKinds = []string{"margin_call"} }, core.ErrConfigInvalid},
		{"s3 without bucket", func(c *Config) { c.Storage.Archive.Type = "s3" }, core.ErrConfigMissing},
		{"unknown archive", func(c *Config) { c.Storage.Archive.Type = "ftp" }, core.ErrConfigInvalid},
		{"telegram without token", func(c *Config) {
			c.Notifiers = map[string]NotifierConfig{"telegram": {Enabled: true, ChatID: "1"}}
		}, core.ErrConfigMissing},
		{"webhook without url", func(c *Config) {
			c.Notifiers = map[string]NotifierConfig{"webhook": {Enabled: true}}
		}, core.ErrConfigMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestConfig_DisabledNotifierSkipsValidation(t *testing.T) {
	cfg := Defaults()
	cfg.Notifiers = map[string]NotifierConfig{"telegram": {Enabled: false}}
	assert.NoError(t, cfg.Validate())
}
