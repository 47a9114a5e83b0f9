// Package config loads the quantguard YAML configuration through viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // monitor.timezone must resolve in minimal containers

	"github.com/newthinker/quantguard/internal/backtest"
	"github.com/newthinker/quantguard/internal/core"
	"github.com/newthinker/quantguard/internal/risk"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig              `mapstructure:"server"`
	Storage    StorageConfig             `mapstructure:"storage"`
	Risk       RiskConfig                `mapstructure:"risk"`
	Backtest   BacktestConfig            `mapstructure:"backtest"`
	Monitor    MonitorConfig             `mapstructure:"monitor"`
	Strategies map[string]StrategyConfig `mapstructure:"strategies"`
	Notifiers  map[string]NotifierConfig `mapstructure:"notifiers"`
	Router     RouterConfig              `mapstructure:"router"`
	Metrics    MetricsConfig             `mapstructure:"metrics"`
	Log        LogConfig                 `mapstructure:"log"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	APIKey      string `mapstructure:"api_key"`
	JobTTLHours int    `mapstructure:"job_ttl_hours"`
	MaxJobs     int    `mapstructure:"max_jobs"`
}

type StorageConfig struct {
	SQLite  SQLiteConfig  `mapstructure:"sqlite"`
	Archive ArchiveConfig `mapstructure:"archive"`
	// DataPath is the bar file or directory backtests read from
	DataPath string `mapstructure:"data_path"`
}

// SQLiteConfig locates the risk database. An empty path keeps orders and
// breaker events in memory.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type ArchiveConfig struct {
	Type string   `mapstructure:"type"` // "localfs" or "s3"
	Path string   `mapstructure:"path"` // For localfs
	S3   S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

type RiskConfig struct {
	MaxPositionValue  float64 `mapstructure:"max_position_value"`
	MaxDailyLoss      float64 `mapstructure:"max_daily_loss"`
	MaxRiskFraction   float64 `mapstructure:"max_risk_fraction"`
	MaxOpenPositions  int     `mapstructure:"max_open_positions"`
	MaxSectorExposure float64 `mapstructure:"max_sector_exposure"`
}

// Limits converts the section to risk limits
func (r RiskConfig) Limits() risk.Config {
	return risk.Config{
		MaxPositionValue:  r.MaxPositionValue,
		MaxDailyLoss:      r.MaxDailyLoss,
		MaxRiskFraction:   r.MaxRiskFraction,
		MaxOpenPositions:  r.MaxOpenPositions,
		MaxSectorExposure: r.MaxSectorExposure,
	}
}

type BacktestConfig struct {
	InitialCash     float64 `mapstructure:"initial_cash"`
	CommissionRate  float64 `mapstructure:"commission_rate"`
	SlippageRate    float64 `mapstructure:"slippage_rate"`
	Sizing          string  `mapstructure:"sizing"`
	Fraction        float64 `mapstructure:"fraction"`
	Units           float64 `mapstructure:"units"`
	AllowPyramiding bool    `mapstructure:"allow_pyramiding"`
	CloseAtEnd      bool    `mapstructure:"close_at_end"`
	PeriodsPerYear  float64 `mapstructure:"periods_per_year"`
	RiskFreeRate    float64 `mapstructure:"risk_free_rate"`
	Workers         int     `mapstructure:"workers"`
	Interval        string  `mapstructure:"interval"`
}

// SimConfig converts the section to simulator settings
func (b BacktestConfig) SimConfig() backtest.SimConfig {
	return backtest.SimConfig{
		InitialCash:     b.InitialCash,
		CommissionRate:  b.CommissionRate,
		SlippageRate:    b.SlippageRate,
		Sizing:          backtest.SizingMode(b.Sizing),
		Fraction:        b.Fraction,
		Units:           b.Units,
		AllowPyramiding: b.AllowPyramiding,
		CloseAtEnd:      b.CloseAtEnd,
	}
}

// Analytics converts the section to annualization settings
func (b BacktestConfig) Analytics() backtest.AnalyticsConfig {
	return backtest.AnalyticsConfig{
		PeriodsPerYear: b.PeriodsPerYear,
		RiskFreeRate:   b.RiskFreeRate,
	}
}

type MonitorConfig struct {
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	EvaluateInterval time.Duration `mapstructure:"evaluate_interval"`
	QuoteMaxAge      time.Duration `mapstructure:"quote_max_age"`
	Timezone         string        `mapstructure:"timezone"`
	// SessionReset is an HH:MM local time at which an open breaker is reset.
	// Empty disables the scheduled reset.
	SessionReset string `mapstructure:"session_reset"`
}

// Location resolves the configured time zone
func (m MonitorConfig) Location() (*time.Location, error) {
	if m.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(m.Timezone)
	if err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("monitor.timezone: %w", err))
	}
	return loc, nil
}

// ResetTime parses SessionReset. ok is false when no reset is scheduled.
func (m MonitorConfig) ResetTime() (hour, minute int, ok bool, err error) {
	if m.SessionReset == "" {
		return 0, 0, false, nil
	}
	t, perr := time.Parse("15:04", m.SessionReset)
	if perr != nil {
		return 0, 0, false, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("monitor.session_reset must be HH:MM, got %q", m.SessionReset))
	}
	return t.Hour(), t.Minute(), true, nil
}

type StrategyConfig struct {
	Enabled bool           `mapstructure:"enabled"`
	Params  map[string]any `mapstructure:"params"`
}

type NotifierConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	BaseURL  string `mapstructure:"base_url"`
	// Webhook notifier fields
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

type RouterConfig struct {
	Cooldown     time.Duration `mapstructure:"cooldown"`
	EnabledKinds []string      `mapstructure:"enabled_kinds"`
	QueueSize    int           `mapstructure:"queue_size"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load reads configuration from file on top of Defaults
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	limits := risk.DefaultConfig()
	sim := backtest.DefaultSimConfig()
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			JobTTLHours: 1,
			MaxJobs:     100,
		},
		Storage: StorageConfig{
			Archive: ArchiveConfig{
				Type: "localfs",
				Path: "./data/archive",
			},
			DataPath: "./data/bars",
		},
		Risk: RiskConfig{
			MaxPositionValue:  limits.MaxPositionValue,
			MaxDailyLoss:      limits.MaxDailyLoss,
			MaxRiskFraction:   limits.MaxRiskFraction,
			MaxOpenPositions:  limits.MaxOpenPositions,
			MaxSectorExposure: limits.MaxSectorExposure,
		},
		Backtest: BacktestConfig{
			InitialCash:    sim.InitialCash,
			CommissionRate: sim.CommissionRate,
			Sizing:         string(sim.Sizing),
			Fraction:       sim.Fraction,
			PeriodsPerYear: backtest.DefaultPeriodsPerYear,
			Workers:        4,
			Interval:       "1d",
		},
		Monitor: MonitorConfig{
			PollInterval:     time.Second,
			EvaluateInterval: time.Minute,
			Timezone:         "UTC",
		},
		Router: RouterConfig{
			Cooldown:  time.Minute,
			QueueSize: 256,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	if err := c.Risk.Limits().Validate(); err != nil {
		return err
	}
	if err := c.Backtest.SimConfig().Validate(); err != nil {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("backtest: %w", err))
	}
	if c.Backtest.Workers < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("backtest.workers cannot be negative, got %d", c.Backtest.Workers))
	}

	if c.Monitor.PollInterval <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("monitor.poll_interval must be positive, got %s", c.Monitor.PollInterval))
	}
	if _, err := c.Monitor.Location(); err != nil {
		return err
	}
	if _, _, _, err := c.Monitor.ResetTime(); err != nil {
		return err
	}

	if c.Router.Cooldown < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("router.cooldown cannot be negative, got %s", c.Router.Cooldown))
	}
	for _, k := range c.Router.EnabledKinds {
		switch core.AlertKind(k) {
		case core.AlertStopTriggered, core.AlertBreakerOpened, core.AlertBreakerReset:
		default:
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("router.enabled_kinds: unknown kind %q", k))
		}
	}

	switch c.Storage.Archive.Type {
	case "", "localfs":
	case "s3":
		if c.Storage.Archive.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("storage.archive.s3.bucket required when type is s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("storage.archive.type must be localfs or s3, got %q", c.Storage.Archive.Type))
	}

	for name, n := range c.Notifiers {
		if !n.Enabled {
			continue
		}
		switch name {
		case "telegram":
			if n.BotToken == "" || n.ChatID == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("telegram bot_token and chat_id required when enabled"))
			}
		case "webhook":
			if n.URL == "" {
				return core.WrapError(core.ErrConfigMissing, fmt.Errorf("webhook url required when enabled"))
			}
		default:
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown notifier %q", name))
		}
	}

	return nil
}
