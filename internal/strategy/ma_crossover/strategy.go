package ma_crossover

import (
	"fmt"
	"math"

	"github.com/newthinker/quantguard/internal/core"
	"github.com/newthinker/quantguard/internal/indicator"
	"github.com/newthinker/quantguard/internal/strategy"
)

// Name is the registry key for this strategy
const Name = "ma_crossover"

// MACrossover implements a moving average crossover strategy
type MACrossover struct {
	fastPeriod int
	slowPeriod int
	allowShort bool
}

// New creates a new MA Crossover strategy. Periods must satisfy 1 < fast < slow.
func New(fastPeriod, slowPeriod int) (*MACrossover, error) {
	if fastPeriod <= 1 || slowPeriod <= 1 {
		return nil, core.WrapError(core.ErrInvalidInput,
			fmt.Errorf("periods must be greater than 1, got fast=%d slow=%d", fastPeriod, slowPeriod))
	}
	if fastPeriod >= slowPeriod {
		return nil, core.WrapError(core.ErrInvalidInput,
			fmt.Errorf("fast period %d must be less than slow period %d", fastPeriod, slowPeriod))
	}
	return &MACrossover{
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
	}, nil
}

// Factory builds the strategy from fast_period, slow_period and allow_short
func Factory(params strategy.Params) (strategy.Generator, error) {
	fast, err := params.Int("fast_period", 5)
	if err != nil {
		return nil, err
	}
	slow, err := params.Int("slow_period", 20)
	if err != nil {
		return nil, err
	}
	allowShort, err := params.Bool("allow_short", false)
	if err != nil {
		return nil, err
	}
	m, err := New(fast, slow)
	if err != nil {
		return nil, err
	}
	m.allowShort = allowShort
	return m, nil
}

// WithShort makes death crosses open short positions as well
func (m *MACrossover) WithShort() *MACrossover {
	m.allowShort = true
	return m
}

func (m *MACrossover) Name() string {
	return Name
}

func (m *MACrossover) Description() string {
	return fmt.Sprintf("MA Crossover (%d/%d)", m.fastPeriod, m.slowPeriod)
}

// Lookback is the shortest series that can produce a crossover: the slow
// average needs slowPeriod bars and a crossover needs one more.
func (m *MACrossover) Lookback() int {
	return m.slowPeriod + 1
}

func (m *MACrossover) Generate(series core.Series) ([]core.Signal, error) {
	if series.Len() < m.Lookback() {
		return nil, nil
	}

	prices := series.Closes()
	fastMA, fastOK := indicator.SMAAligned(prices, m.fastPeriod)
	slowMA, slowOK := indicator.SMAAligned(prices, m.slowPeriod)

	var signals []core.Signal
	prevSign := 0

	for i := range prices {
		if !fastOK[i] || !slowOK[i] {
			continue
		}
		sign := compare(fastMA[i], slowMA[i])
		if sign == 0 {
			// touching averages keep the previous regime
			continue
		}
		if prevSign != 0 && sign != prevSign {
			signals = append(signals, m.crossSignals(series, i, sign, fastMA[i], slowMA[i])...)
		}
		prevSign = sign
	}

	return signals, nil
}

func (m *MACrossover) crossSignals(series core.Series, i, sign int, fast, slow float64) []core.Signal {
	bar := series.Bars[i]
	mk := func(d core.Direction, reason string) core.Signal {
		return core.Signal{
			Symbol:    series.Symbol,
			Direction: d,
			Price:     bar.Close,
			Strategy:  Name,
			Reason:    reason,
			Metadata: map[string]float64{
				"fast_ma": fast,
				"slow_ma": slow,
			},
			Time: bar.Time,
		}
	}

	if sign > 0 {
		reason := fmt.Sprintf("Golden Cross: MA%d (%.2f) crossed above MA%d (%.2f)", m.fastPeriod, fast, m.slowPeriod, slow)
		if m.allowShort {
			return []core.Signal{mk(core.ShortExit, reason), mk(core.LongEntry, reason)}
		}
		return []core.Signal{mk(core.LongEntry, reason)}
	}

	reason := fmt.Sprintf("Death Cross: MA%d (%.2f) crossed below MA%d (%.2f)", m.fastPeriod, fast, m.slowPeriod, slow)
	if m.allowShort {
		return []core.Signal{mk(core.LongExit, reason), mk(core.ShortEntry, reason)}
	}
	return []core.Signal{mk(core.LongExit, reason)}
}

// compare returns the sign of fast-slow, treating differences within
// floating-point noise of the rolling sums as equality.
func compare(fast, slow float64) int {
	diff := fast - slow
	if math.Abs(diff) <= 1e-9*math.Max(math.Abs(slow), 1) {
		return 0
	}
	if diff > 0 {
		return 1
	}
	return -1
}
