package core

import (
	"fmt"
	"time"
)

// Bar represents one OHLCV sample for a fixed interval
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Series is an ordered sequence of bars for one symbol and one interval
type Series struct {
	Symbol   string
	Interval string // "1m", "5m", "1d"
	Bars     []Bar
}

// Len returns the number of bars
func (s Series) Len() int {
	return len(s.Bars)
}

// Closes extracts closing prices in bar order
func (s Series) Closes() []float64 {
	prices := make([]float64, len(s.Bars))
	for i, bar := range s.Bars {
		prices[i] = bar.Close
	}
	return prices
}

// First returns the timestamp of the first bar
func (s Series) First() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[0].Time
}

// Last returns the timestamp of the last bar
func (s Series) Last() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[len(s.Bars)-1].Time
}

// Validate rejects malformed series before any computation.
// Timestamps must be strictly increasing and each bar internally consistent.
func (s Series) Validate() error {
	if s.Symbol == "" {
		return WrapError(ErrInvalidInput, fmt.Errorf("series symbol is empty"))
	}
	for i, bar := range s.Bars {
		if err := bar.Validate(); err != nil {
			return WrapError(ErrInvalidInput, fmt.Errorf("bar %d (%s): %w", i, bar.Time.Format(time.RFC3339), err))
		}
		if i > 0 && !bar.Time.After(s.Bars[i-1].Time) {
			return WrapError(ErrInvalidInput,
				fmt.Errorf("bar %d: timestamp %s not after %s", i, bar.Time.Format(time.RFC3339), s.Bars[i-1].Time.Format(time.RFC3339)))
		}
	}
	return nil
}

// Validate checks OHLC consistency of a single bar
func (b Bar) Validate() error {
	if b.Time.IsZero() {
		return fmt.Errorf("missing timestamp")
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("non-positive price")
	}
	if b.Volume < 0 {
		return fmt.Errorf("negative volume")
	}
	if b.High < b.Open || b.High < b.Close || b.High < b.Low {
		return fmt.Errorf("high %.4f below open/close/low", b.High)
	}
	if b.Low > b.Open || b.Low > b.Close {
		return fmt.Errorf("low %.4f above open/close", b.Low)
	}
	return nil
}

// Direction represents a discrete directional decision
type Direction string

const (
	LongEntry  Direction = "LONG_ENTRY"
	LongExit   Direction = "LONG_EXIT"
	ShortEntry Direction = "SHORT_ENTRY"
	ShortExit  Direction = "SHORT_EXIT"
	Hold       Direction = "HOLD"
)

// IsEntry reports whether the direction opens a position
func (d Direction) IsEntry() bool {
	return d == LongEntry || d == ShortEntry
}

// IsExit reports whether the direction closes a position
func (d Direction) IsExit() bool {
	return d == LongExit || d == ShortExit
}

// Side of a position
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Sign returns +1 for long and -1 for short
func (s Side) Sign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// Signal represents a trading decision produced by one generator run
type Signal struct {
	Symbol    string
	Direction Direction
	Price     float64 // Reference price, the bar close
	Strategy  string
	Reason    string
	Metadata  map[string]float64
	Time      time.Time
}

// AlertKind classifies risk alerts
type AlertKind string

const (
	AlertStopTriggered AlertKind = "stop_triggered"
	AlertBreakerOpened AlertKind = "breaker_opened"
	AlertBreakerReset  AlertKind = "breaker_reset"
)

// Alert is a notification emitted by the live risk path
type Alert struct {
	Kind    AlertKind
	Symbol  string
	Message string
	Fields  map[string]any
	At      time.Time
}

// Key identifies alerts for cooldown purposes
func (a Alert) Key() string {
	if a.Symbol == "" {
		return string(a.Kind)
	}
	return string(a.Kind) + ":" + a.Symbol
}
