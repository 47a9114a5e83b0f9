package backtest

import (
	"time"

	"github.com/newthinker/quantguard/internal/core"
)

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func seriesFrom(symbol string, prices []float64) core.Series {
	bars := make([]core.Bar, len(prices))
	for i, p := range prices {
		bars[i] = core.Bar{
			Time:   day0.AddDate(0, 0, i),
			Open:   p,
			High:   p,
			Low:    p,
			Close:  p,
			Volume: 1000,
		}
	}
	return core.Series{Symbol: symbol, Interval: "1d", Bars: bars}
}

// risingThenFalling is 60 daily closes: drifting from 102 to 100, rising to
// 130 at bar 39, then falling to 110.
func risingThenFalling() []float64 {
	prices := make([]float64, 60)
	for i := range prices {
		switch {
		case i < 20:
			prices[i] = 102 - 2*float64(i)/19
		case i < 40:
			prices[i] = 100 + 1.5*float64(i-19)
		default:
			prices[i] = 130 - float64(i-39)
		}
	}
	return prices
}

func sig(series core.Series, i int, d core.Direction) core.Signal {
	return core.Signal{
		Symbol:    series.Symbol,
		Direction: d,
		Price:     series.Bars[i].Close,
		Time:      series.Bars[i].Time,
	}
}
