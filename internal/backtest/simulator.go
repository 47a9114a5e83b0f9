package backtest

import (
	"fmt"
	"math"
	"time"

	"github.com/newthinker/quantguard/internal/core"
)

// Simulation is the raw output of one simulator run
type Simulation struct {
	Trades []Trade
	Equity []EquityPoint
	Open   *Position
	Cash   float64
}

// Simulate replays signals against series and produces the trade log and
// one equity point per bar.
//
// Fills happen at the close of the bar a signal is stamped with. A second
// entry while a position is open is ignored unless cfg.AllowPyramiding is
// set; an entry against an open position of the other side is ignored.
func Simulate(series core.Series, signals []core.Signal, cfg SimConfig) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if series.Len() == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("series %s has no bars", series.Symbol))
	}

	byTime, err := indexSignals(series, signals)
	if err != nil {
		return nil, err
	}

	s := &simulator{cfg: cfg, symbol: series.Symbol, cash: cfg.InitialCash}
	equity := make([]EquityPoint, 0, series.Len())

	for _, bar := range series.Bars {
		for _, sig := range byTime[bar.Time.UnixNano()] {
			s.apply(sig, bar)
		}
		equity = append(equity, s.mark(bar))
	}

	if cfg.CloseAtEnd && s.pos != nil {
		last := series.Bars[series.Len()-1]
		s.close(last.Close, last.Time, ExitEndOfData)
		equity[len(equity)-1] = s.mark(last)
	}

	return &Simulation{
		Trades: s.trades,
		Equity: equity,
		Open:   s.pos,
		Cash:   s.cash,
	}, nil
}

// indexSignals groups signals by bar timestamp, preserving their order
func indexSignals(series core.Series, signals []core.Signal) (map[int64][]core.Signal, error) {
	bars := make(map[int64]struct{}, series.Len())
	for _, bar := range series.Bars {
		bars[bar.Time.UnixNano()] = struct{}{}
	}

	out := make(map[int64][]core.Signal)
	for _, sig := range signals {
		if sig.Symbol != "" && sig.Symbol != series.Symbol {
			return nil, core.WrapError(core.ErrInvalidInput,
				fmt.Errorf("signal for %s in series %s", sig.Symbol, series.Symbol))
		}
		key := sig.Time.UnixNano()
		if _, ok := bars[key]; !ok {
			return nil, core.WrapError(core.ErrInvalidInput,
				fmt.Errorf("signal at %s matches no bar", sig.Time.Format(time.RFC3339)))
		}
		out[key] = append(out[key], sig)
	}
	return out, nil
}

type simulator struct {
	cfg    SimConfig
	symbol string
	cash   float64
	pos    *Position
	trades []Trade
}

func (s *simulator) apply(sig core.Signal, bar core.Bar) {
	switch sig.Direction {
	case core.LongEntry:
		s.open(core.SideLong, bar, sig.Reason)
	case core.ShortEntry:
		s.open(core.SideShort, bar, sig.Reason)
	case core.LongExit:
		if s.pos != nil && s.pos.Side == core.SideLong {
			s.close(bar.Close, bar.Time, sig.Reason)
		}
	case core.ShortExit:
		if s.pos != nil && s.pos.Side == core.SideShort {
			s.close(bar.Close, bar.Time, sig.Reason)
		}
	}
}

func (s *simulator) open(side core.Side, bar core.Bar, reason string) {
	if s.pos != nil && (s.pos.Side != side || !s.cfg.AllowPyramiding) {
		return
	}

	price := bar.Close
	qty := s.quantity(side, price)
	if qty <= 0 {
		return
	}

	notional := qty * price
	cost := notional * s.cfg.costRate()
	if side == core.SideLong {
		s.cash -= notional + cost
	} else {
		s.cash += notional - cost
	}

	if s.pos == nil {
		s.pos = &Position{
			Symbol:    s.symbol,
			Side:      side,
			EntryTime: bar.Time,
			Reason:    reason,
		}
	}
	s.pos.Quantity += qty
	s.pos.Notional += notional
	s.pos.EntryCost += cost
	s.pos.EntryPrice = s.pos.Notional / s.pos.Quantity
}

// quantity sizes an entry at price under the configured mode
func (s *simulator) quantity(side core.Side, price float64) float64 {
	unitCost := price * (1 + s.cfg.costRate())

	if s.cfg.Sizing == SizingUnits {
		if side == core.SideLong && s.cfg.Units*unitCost > s.cash {
			return 0
		}
		return s.cfg.Units
	}

	budget := s.cash * s.cfg.Fraction
	if s.pos != nil && s.pos.Side == core.SideShort {
		// short proceeds sit in cash; size additions from equity instead
		budget = (s.cash - s.pos.Notional) * s.cfg.Fraction
	}
	if budget <= 0 {
		return 0
	}
	return math.Floor(budget / unitCost)
}

func (s *simulator) close(price float64, at time.Time, reason string) {
	p := s.pos
	notional := p.Quantity * price
	exitCost := notional * s.cfg.costRate()

	var gross float64
	if p.Side == core.SideLong {
		s.cash += notional - exitCost
		gross = notional - p.Notional
	} else {
		s.cash -= notional + exitCost
		gross = p.Notional - notional
	}

	cost := p.EntryCost + exitCost
	pnl := gross - cost
	var ret float64
	if p.Notional > 0 {
		ret = pnl / p.Notional
	}

	s.trades = append(s.trades, Trade{
		Symbol:      p.Symbol,
		Side:        p.Side,
		EntryTime:   p.EntryTime,
		EntryPrice:  p.EntryPrice,
		ExitTime:    at,
		ExitPrice:   price,
		Quantity:    p.Quantity,
		GrossPnL:    gross,
		Cost:        cost,
		PnL:         pnl,
		Return:      ret,
		EntryReason: p.Reason,
		ExitReason:  reason,
	})
	s.pos = nil
}

func (s *simulator) mark(bar core.Bar) EquityPoint {
	var value float64
	if s.pos != nil {
		value = s.pos.MarketValue(bar.Close)
	}
	return EquityPoint{
		Time:          bar.Time,
		Cash:          s.cash,
		PositionValue: value,
		Equity:        s.cash + value,
	}
}
