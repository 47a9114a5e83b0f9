package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/newthinker/quantguard/internal/app"
	"github.com/newthinker/quantguard/internal/config"
	"github.com/newthinker/quantguard/internal/logger"
	"go.uber.org/zap"
)

// loadConfig reads --config, or the defaults when it is not set, and validates it
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if cfgFile != "" {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	} else {
		cfg = config.Defaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	opts := logger.Options{
		Development: cfg.Log.Development || debug,
		Level:       cfg.Log.Level,
	}
	if debug {
		opts.Level = "debug"
	}
	return logger.New(opts)
}

// setup loads config, builds the logger and opens the app on the configured
// store with persisted state restored
func setup(ctx context.Context) (*config.Config, *zap.Logger, *app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	if cfgFile == "" {
		log.Warn("no config file specified, using defaults")
	}
	if cfg.Storage.SQLite.Path == "" {
		log.Warn("storage.sqlite.path not set, orders and breaker events are kept in memory only")
	}

	store, err := app.OpenStore(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening risk store: %w", err)
	}
	a, err := app.New(cfg, store, nil, log)
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}
	if err := a.Restore(ctx); err != nil {
		a.Close()
		return nil, nil, nil, err
	}
	return cfg, log, a, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
