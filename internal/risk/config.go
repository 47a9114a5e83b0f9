// Package risk implements live risk control: the stop-loss monitor, the
// account-level circuit breaker and entry planning.
package risk

import (
	"fmt"
	"sync"

	"github.com/newthinker/quantguard/internal/core"
	"go.uber.org/zap"
)

// Config defines risk management limits.
type Config struct {
	// MaxPositionValue caps the notional value of a single position.
	MaxPositionValue float64 `json:"max_position_value"`
	// MaxDailyLoss is the realized loss that opens the circuit breaker.
	MaxDailyLoss float64 `json:"max_daily_loss"`
	// MaxRiskFraction is the share of balance risked per trade.
	MaxRiskFraction float64 `json:"max_risk_fraction"`
	// MaxOpenPositions is the maximum number of concurrent protected positions.
	MaxOpenPositions int `json:"max_open_positions"`
	// MaxSectorExposure is the maximum share of balance held in one sector.
	// Zero disables the check.
	MaxSectorExposure float64 `json:"max_sector_exposure"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxPositionValue:  100000,
		MaxDailyLoss:      5000,
		MaxRiskFraction:   0.02,
		MaxOpenPositions:  20,
		MaxSectorExposure: 0.3,
	}
}

// Validate checks every limit is usable
func (c Config) Validate() error {
	switch {
	case c.MaxPositionValue <= 0:
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("max_position_value must be positive"))
	case c.MaxDailyLoss <= 0:
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("max_daily_loss must be positive"))
	case c.MaxRiskFraction <= 0 || c.MaxRiskFraction > 1:
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("max_risk_fraction must be in (0, 1]"))
	case c.MaxOpenPositions <= 0:
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("max_open_positions must be positive"))
	case c.MaxSectorExposure < 0 || c.MaxSectorExposure > 1:
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("max_sector_exposure must be in [0, 1]"))
	}
	return nil
}

// ConfigHolder owns the process-wide risk limits. The limits change only
// through Update.
type ConfigHolder struct {
	mu     sync.RWMutex
	cfg    Config
	logger *zap.Logger
}

// NewConfigHolder validates cfg and wraps it
func NewConfigHolder(cfg Config, logger *zap.Logger) (*ConfigHolder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigHolder{cfg: cfg, logger: logger}, nil
}

// Get returns the current limits
func (h *ConfigHolder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Update replaces the limits after validation. An invalid config leaves the
// current limits in place.
func (h *ConfigHolder) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	h.mu.Lock()
	old := h.cfg
	h.cfg = cfg
	h.mu.Unlock()

	h.logger.Info("risk config updated",
		zap.Float64("max_position_value", cfg.MaxPositionValue),
		zap.Float64("max_daily_loss", cfg.MaxDailyLoss),
		zap.Float64("max_risk_fraction", cfg.MaxRiskFraction),
		zap.Int("max_open_positions", cfg.MaxOpenPositions),
		zap.Float64("max_sector_exposure", cfg.MaxSectorExposure),
		zap.Float64("previous_max_daily_loss", old.MaxDailyLoss),
	)
	return nil
}
