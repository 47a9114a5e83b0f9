package rsi_reversion

import (
	"fmt"

	"github.com/newthinker/quantguard/internal/core"
	"github.com/newthinker/quantguard/internal/indicator"
	"github.com/newthinker/quantguard/internal/strategy"
)

// Name is the registry key for this strategy
const Name = "rsi_reversion"

// RSIReversion buys when the oscillator falls into oversold territory and
// exits when it climbs into overbought territory.
type RSIReversion struct {
	period     int
	oversold   float64
	overbought float64
}

// New creates the strategy. Thresholds must satisfy 0 < oversold < overbought < 100.
func New(period int, oversold, overbought float64) (*RSIReversion, error) {
	if period <= 1 {
		return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("period must be greater than 1, got %d", period))
	}
	if oversold <= 0 || overbought >= 100 || oversold >= overbought {
		return nil, core.WrapError(core.ErrInvalidInput,
			fmt.Errorf("thresholds must satisfy 0 < oversold < overbought < 100, got %.2f/%.2f", oversold, overbought))
	}
	return &RSIReversion{
		period:     period,
		oversold:   oversold,
		overbought: overbought,
	}, nil
}

// Factory builds the strategy from period, oversold and overbought
func Factory(params strategy.Params) (strategy.Generator, error) {
	period, err := params.Int("period", 14)
	if err != nil {
		return nil, err
	}
	oversold, err := params.Float("oversold", 30)
	if err != nil {
		return nil, err
	}
	overbought, err := params.Float("overbought", 70)
	if err != nil {
		return nil, err
	}
	return New(period, oversold, overbought)
}

func (r *RSIReversion) Name() string {
	return Name
}

func (r *RSIReversion) Description() string {
	return fmt.Sprintf("RSI Reversion (%d, %.0f/%.0f)", r.period, r.oversold, r.overbought)
}

// Lookback is period changes for the first value plus one more bar to see a cross
func (r *RSIReversion) Lookback() int {
	return r.period + 2
}

func (r *RSIReversion) Generate(series core.Series) ([]core.Signal, error) {
	if series.Len() < r.Lookback() {
		return nil, nil
	}

	rsi := indicator.RSI(series.Closes(), r.period)

	var signals []core.Signal
	for k := 1; k < len(rsi); k++ {
		prev, curr := rsi[k-1], rsi[k]
		bar := series.Bars[k+r.period]

		var dir core.Direction
		var reason string
		switch {
		case prev >= r.oversold && curr < r.oversold:
			dir = core.LongEntry
			reason = fmt.Sprintf("RSI%d (%.2f) crossed below oversold %.0f", r.period, curr, r.oversold)
		case prev <= r.overbought && curr > r.overbought:
			dir = core.LongExit
			reason = fmt.Sprintf("RSI%d (%.2f) crossed above overbought %.0f", r.period, curr, r.overbought)
		default:
			continue
		}

		signals = append(signals, core.Signal{
			Symbol:    series.Symbol,
			Direction: dir,
			Price:     bar.Close,
			Strategy:  Name,
			Reason:    reason,
			Metadata: map[string]float64{
				"rsi":        curr,
				"oversold":   r.oversold,
				"overbought": r.overbought,
			},
			Time: bar.Time,
		})
	}

	return signals, nil
}
