package strategy

import (
	"github.com/newthinker/quantguard/internal/core"
)

// Params holds strategy parameters as decoded from config, CLI flags or API bodies
type Params map[string]any

// Generator converts a price series into an ordered sequence of signals.
//
// Generate must be a pure function of its inputs: no hidden state, no I/O and
// no wall-clock reads. Identical input always yields identical output.
// A series shorter than Lookback yields an empty sequence, not an error.
type Generator interface {
	Name() string
	Description() string
	Lookback() int
	Generate(series core.Series) ([]core.Signal, error)
}

// Factory builds a configured generator
type Factory func(params Params) (Generator, error)
