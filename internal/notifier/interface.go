// Package notifier delivers risk alerts to external channels.
package notifier

import (
	"context"

	"github.com/newthinker/quantguard/internal/core"
)

// Config holds notifier configuration
type Config struct {
	Type   string         `mapstructure:"type"`
	Params map[string]any `mapstructure:"params"`
}

// Notifier delivers alerts to one channel
type Notifier interface {
	// Name returns the unique identifier for this notifier
	Name() string

	// Init applies configuration and validates it
	Init(cfg Config) error

	// Send delivers a single alert
	Send(ctx context.Context, alert core.Alert) error
}
