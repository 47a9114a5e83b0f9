// Package builtins registers the strategies shipped with quantguard.
package builtins

import (
	"github.com/newthinker/quantguard/internal/strategy"
	"github.com/newthinker/quantguard/internal/strategy/ma_crossover"
	"github.com/newthinker/quantguard/internal/strategy/rsi_reversion"
	"go.uber.org/zap"
)

// Register adds every built-in strategy to reg
func Register(reg *strategy.Registry) {
	reg.Register(ma_crossover.Name, ma_crossover.Factory)
	reg.Register(rsi_reversion.Name, rsi_reversion.Factory)
}

// NewRegistry returns a registry preloaded with the built-in strategies
func NewRegistry(logger *zap.Logger) *strategy.Registry {
	reg := strategy.NewRegistry(logger)
	Register(reg)
	return reg
}
