package backtest

import (
	"math"
)

// DefaultPeriodsPerYear is the number of equity sessions per year
const DefaultPeriodsPerYear = 252

const daysPerYear = 365.25

// stdevFloor treats deviations below float noise as zero variance
const stdevFloor = 1e-12

// AnalyticsConfig holds annualization settings
type AnalyticsConfig struct {
	PeriodsPerYear float64 `json:"periods_per_year"`
	RiskFreeRate   float64 `json:"risk_free_rate"` // annual, e.g. 0.02
}

// DefaultAnalyticsConfig annualizes over equity sessions with no risk-free rate
func DefaultAnalyticsConfig() AnalyticsConfig {
	return AnalyticsConfig{PeriodsPerYear: DefaultPeriodsPerYear}
}

// Analyze computes the performance report for a completed equity curve
func Analyze(equity []EquityPoint, trades []Trade, initialCash float64, cfg AnalyticsConfig) Report {
	if cfg.PeriodsPerYear <= 0 {
		cfg.PeriodsPerYear = DefaultPeriodsPerYear
	}

	r := Report{InitialCash: initialCash}
	tradeStats(&r, trades)
	if len(equity) == 0 {
		return r
	}

	first, last := equity[0], equity[len(equity)-1]
	r.FinalEquity = last.Equity
	r.ElapsedDays = last.Time.Sub(first.Time).Hours() / 24

	if initialCash > 0 {
		r.TotalReturn = r.FinalEquity/initialCash - 1
		r.CAGR = calculateCAGR(initialCash, r.FinalEquity, r.ElapsedDays)
	}

	dd := calculateMaxDrawdown(equity)
	r.MaxDrawdown = dd.value
	r.PeakIndex, r.TroughIndex = dd.peak, dd.trough
	r.PeakTime, r.TroughTime = equity[dd.peak].Time, equity[dd.trough].Time

	excess := excessReturns(equity, cfg)
	r.SharpeRatio = calculateSharpeRatio(excess, cfg.PeriodsPerYear)
	r.SortinoRatio = calculateSortinoRatio(excess, cfg.PeriodsPerYear)
	if r.MaxDrawdown > 0 {
		r.CalmarRatio = r.CAGR / math.Abs(r.MaxDrawdown)
	}

	var exposed int
	for _, p := range equity {
		if p.PositionValue != 0 {
			exposed++
		}
	}
	r.Exposure = float64(exposed) / float64(len(equity))

	return r
}

func tradeStats(r *Report, trades []Trade) {
	r.TotalTrades = len(trades)
	if len(trades) == 0 {
		return
	}

	var grossProfit, grossLoss, total float64
	for _, t := range trades {
		total += t.PnL
		r.TotalCost += t.Cost
		if t.IsWin() {
			r.WinningTrades++
			grossProfit += t.PnL
		} else {
			r.LosingTrades++
			grossLoss -= t.PnL
		}
	}

	r.WinRate = float64(r.WinningTrades) / float64(len(trades))
	r.AvgTradePnL = total / float64(len(trades))
	if grossLoss > 0 {
		r.ProfitFactor = grossProfit / grossLoss
	}
}

// calculateCAGR annualizes over calendar days, not bar count
func calculateCAGR(initial, final, elapsedDays float64) float64 {
	if elapsedDays <= 0 || initial <= 0 {
		return 0
	}
	if final <= 0 {
		return -1
	}
	return math.Pow(final/initial, daysPerYear/elapsedDays) - 1
}

type drawdown struct {
	value  float64
	peak   int
	trough int
}

// calculateMaxDrawdown finds the largest peak-to-trough decline
func calculateMaxDrawdown(equity []EquityPoint) drawdown {
	var dd drawdown
	if len(equity) == 0 {
		return dd
	}

	peak := equity[0].Equity
	peakIdx := 0
	for i, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
			peakIdx = i
		}
		if peak <= 0 {
			continue
		}
		v := math.Min((peak-p.Equity)/peak, 1)
		if v > dd.value {
			dd = drawdown{value: v, peak: peakIdx, trough: i}
		}
	}
	return dd
}

// excessReturns derives per-period returns net of the risk-free rate
func excessReturns(equity []EquityPoint, cfg AnalyticsConfig) []float64 {
	if len(equity) < 2 {
		return nil
	}
	rf := cfg.RiskFreeRate / cfg.PeriodsPerYear

	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		var r float64
		if prev > 0 {
			r = equity[i].Equity/prev - 1
		}
		out = append(out, r-rf)
	}
	return out
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// calculateSharpeRatio computes annualized risk-adjusted return
func calculateSharpeRatio(excess []float64, periodsPerYear float64) float64 {
	if len(excess) < 2 {
		return 0
	}

	m := mean(excess)
	var variance float64
	for _, r := range excess {
		variance += (r - m) * (r - m)
	}
	stdDev := math.Sqrt(variance / float64(len(excess)-1))
	if stdDev < stdevFloor {
		return 0
	}

	return m / stdDev * math.Sqrt(periodsPerYear)
}

// calculateSortinoRatio divides by downside deviation, the root mean square
// of the negative excess returns
func calculateSortinoRatio(excess []float64, periodsPerYear float64) float64 {
	if len(excess) < 2 {
		return 0
	}

	var sumSq float64
	var n int
	for _, r := range excess {
		if r < 0 {
			sumSq += r * r
			n++
		}
	}
	if n == 0 {
		return 0
	}
	downside := math.Sqrt(sumSq / float64(n))
	if downside < stdevFloor {
		return 0
	}

	return mean(excess) / downside * math.Sqrt(periodsPerYear)
}
