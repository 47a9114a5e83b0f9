package backtest

import (
	"fmt"
	"time"

	"github.com/newthinker/quantguard/internal/core"
	"github.com/newthinker/quantguard/internal/strategy"
)

// SizingMode selects how entries are sized during simulation
type SizingMode string

const (
	SizingFixedFraction SizingMode = "fixed_fraction"
	SizingUnits         SizingMode = "units"
)

// ExitEndOfData marks trades liquidated at the last bar
const ExitEndOfData = "end_of_data"

// SimConfig parameterizes a simulation run
type SimConfig struct {
	InitialCash     float64    `json:"initial_cash"`
	CommissionRate  float64    `json:"commission_rate"`
	SlippageRate    float64    `json:"slippage_rate"`
	Sizing          SizingMode `json:"sizing"`
	Fraction        float64    `json:"fraction"` // share of cash committed per entry
	Units           float64    `json:"units"`    // quantity per entry in units mode
	AllowPyramiding bool       `json:"allow_pyramiding"`
	CloseAtEnd      bool       `json:"close_at_end"`
}

// DefaultSimConfig commits all cash per entry at 5 bps commission
func DefaultSimConfig() SimConfig {
	return SimConfig{
		InitialCash:    100000,
		CommissionRate: 0.0005,
		Sizing:         SizingFixedFraction,
		Fraction:       1.0,
	}
}

// Validate rejects configurations the simulator cannot run
func (c SimConfig) Validate() error {
	switch {
	case c.InitialCash <= 0:
		return core.WrapError(core.ErrInvalidInput, fmt.Errorf("initial cash must be positive, got %f", c.InitialCash))
	case c.CommissionRate < 0 || c.CommissionRate >= 1:
		return core.WrapError(core.ErrInvalidInput, fmt.Errorf("commission rate must be in [0, 1), got %f", c.CommissionRate))
	case c.SlippageRate < 0 || c.SlippageRate >= 1:
		return core.WrapError(core.ErrInvalidInput, fmt.Errorf("slippage rate must be in [0, 1), got %f", c.SlippageRate))
	case c.CommissionRate+c.SlippageRate >= 1:
		return core.WrapError(core.ErrInvalidInput, fmt.Errorf("commission plus slippage must be below 1"))
	}

	switch c.Sizing {
	case SizingFixedFraction, "":
		if c.Fraction <= 0 || c.Fraction > 1 {
			return core.WrapError(core.ErrInvalidInput, fmt.Errorf("fraction must be in (0, 1], got %f", c.Fraction))
		}
	case SizingUnits:
		if c.Units <= 0 {
			return core.WrapError(core.ErrInvalidInput, fmt.Errorf("units must be positive, got %f", c.Units))
		}
	default:
		return core.WrapError(core.ErrInvalidInput, fmt.Errorf("unknown sizing mode %q", c.Sizing))
	}
	return nil
}

// costRate is the combined per-leg cost applied to notional
func (c SimConfig) costRate() float64 {
	return c.CommissionRate + c.SlippageRate
}

// Position is an open simulated position
type Position struct {
	Symbol     string    `json:"symbol"`
	Side       core.Side `json:"side"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entry_price"` // volume-weighted when pyramiding
	EntryTime  time.Time `json:"entry_time"`
	Notional   float64   `json:"notional"`   // sum of quantity x price over entry fills
	EntryCost  float64   `json:"entry_cost"` // commission and slippage paid on entry fills
	Reason     string    `json:"reason,omitempty"`
}

// MarketValue marks the position at price; shorts carry negative value
func (p Position) MarketValue(price float64) float64 {
	return p.Side.Sign() * p.Quantity * price
}

// Trade is a closed entry/exit pair
type Trade struct {
	Symbol      string    `json:"symbol"`
	Side        core.Side `json:"side"`
	EntryTime   time.Time `json:"entry_time"`
	EntryPrice  float64   `json:"entry_price"`
	ExitTime    time.Time `json:"exit_time"`
	ExitPrice   float64   `json:"exit_price"`
	Quantity    float64   `json:"quantity"`
	GrossPnL    float64   `json:"gross_pnl"`
	Cost        float64   `json:"cost"`
	PnL         float64   `json:"pnl"`    // exit proceeds minus entry cost
	Return      float64   `json:"return"` // PnL over entry notional
	EntryReason string    `json:"entry_reason,omitempty"`
	ExitReason  string    `json:"exit_reason,omitempty"`
}

// IsWin returns true if the trade was profitable after costs
func (t Trade) IsWin() bool {
	return t.PnL > 0
}

// EquityPoint is one sample of the equity curve
type EquityPoint struct {
	Time          time.Time `json:"time"`
	Cash          float64   `json:"cash"`
	PositionValue float64   `json:"position_value"`
	Equity        float64   `json:"equity"`
}

// Report holds performance statistics
type Report struct {
	InitialCash   float64   `json:"initial_cash"`
	FinalEquity   float64   `json:"final_equity"`
	TotalReturn   float64   `json:"total_return"`
	CAGR          float64   `json:"cagr"`
	SharpeRatio   float64   `json:"sharpe_ratio"`
	SortinoRatio  float64   `json:"sortino_ratio"`
	CalmarRatio   float64   `json:"calmar_ratio"`
	MaxDrawdown   float64   `json:"max_drawdown"` // fraction of peak, in [0, 1]
	PeakIndex     int       `json:"peak_index"`
	TroughIndex   int       `json:"trough_index"`
	PeakTime      time.Time `json:"peak_time"`
	TroughTime    time.Time `json:"trough_time"`
	ElapsedDays   float64   `json:"elapsed_days"`
	TotalTrades   int       `json:"total_trades"`
	WinningTrades int       `json:"winning_trades"`
	LosingTrades  int       `json:"losing_trades"`
	WinRate       float64   `json:"win_rate"`
	TotalCost     float64   `json:"total_cost"`
	ProfitFactor  float64   `json:"profit_factor"`
	AvgTradePnL   float64   `json:"avg_trade_pnl"`
	Exposure      float64   `json:"exposure"` // fraction of bars holding a position
}

// Result holds the complete backtest output
type Result struct {
	ID           string          `json:"id"`
	Strategy     string          `json:"strategy"`
	Params       strategy.Params `json:"params,omitempty"`
	Symbol       string          `json:"symbol"`
	Interval     string          `json:"interval"`
	StartDate    time.Time       `json:"start_date"`
	EndDate      time.Time       `json:"end_date"`
	Config       SimConfig       `json:"config"`
	Signals      []core.Signal   `json:"signals"`
	Trades       []Trade         `json:"trades"`
	Equity       []EquityPoint   `json:"equity"`
	OpenPosition *Position       `json:"open_position,omitempty"`
	Report       Report          `json:"report"`
}
