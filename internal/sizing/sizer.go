// Package sizing computes capital-at-risk position sizes.
//
// All arithmetic is done in decimal so the quantity floor is exact.
package sizing

import (
	"fmt"

	"github.com/newthinker/quantguard/internal/core"
	"github.com/shopspring/decimal"
)

// Recommendation tells the caller whether to place the order
type Recommendation string

const (
	Proceed Recommendation = "PROCEED"
	Skip    Recommendation = "SKIP"
)

// Request holds sizing inputs
type Request struct {
	EntryPrice       decimal.Decimal
	StopPrice        decimal.Decimal
	AccountBalance   decimal.Decimal
	RiskFraction     decimal.Decimal // e.g. 0.02 for 2% of balance
	MaxPositionValue decimal.Decimal
}

// Result is the recommended position
type Result struct {
	Quantity       int64           `json:"quantity"`
	RiskPerUnit    decimal.Decimal `json:"risk_per_unit"`
	RiskBudget     decimal.Decimal `json:"risk_budget"`    // balance x risk fraction
	RiskAmount     decimal.Decimal `json:"risk_amount"`    // quantity x risk per unit
	PositionValue  decimal.Decimal `json:"position_value"` // quantity x entry
	Capped         bool            `json:"capped"`         // max position value bound the quantity
	Recommendation Recommendation  `json:"recommendation"`
	Reason         string          `json:"reason,omitempty"`
}

// Size computes the quantity that risks RiskFraction of the balance if the
// stop is hit, bounded by MaxPositionValue.
//
// An entry equal to the stop returns a SKIP result together with
// core.ErrInvalidStopPrice; the result is still meaningful to the caller.
func Size(req Request) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{Recommendation: Skip, Reason: err.Error()}, err
	}

	riskPerUnit := req.EntryPrice.Sub(req.StopPrice).Abs()
	budget := req.AccountBalance.Mul(req.RiskFraction)

	if riskPerUnit.IsZero() {
		return Result{
			RiskPerUnit:    riskPerUnit,
			RiskBudget:     budget,
			RiskAmount:     decimal.Zero,
			PositionValue:  decimal.Zero,
			Recommendation: Skip,
			Reason:         core.ErrInvalidStopPrice.Message,
		}, core.ErrInvalidStopPrice
	}

	qty := floorDiv(budget, riskPerUnit)
	capped := false
	if qty.Mul(req.EntryPrice).GreaterThan(req.MaxPositionValue) {
		qty = floorDiv(req.MaxPositionValue, req.EntryPrice)
		capped = true
	}

	res := Result{
		Quantity:      qty.IntPart(),
		RiskPerUnit:   riskPerUnit,
		RiskBudget:    budget,
		RiskAmount:    qty.Mul(riskPerUnit),
		PositionValue: qty.Mul(req.EntryPrice),
		Capped:        capped,
	}
	if res.Quantity > 0 {
		res.Recommendation = Proceed
	} else {
		res.Recommendation = Skip
		res.Reason = "risk budget too small for one unit"
	}
	return res, nil
}

// SizeFloat is Size for callers holding float prices
func SizeFloat(entry, stop, balance, riskFraction, maxPositionValue float64) (Result, error) {
	return Size(Request{
		EntryPrice:       decimal.NewFromFloat(entry),
		StopPrice:        decimal.NewFromFloat(stop),
		AccountBalance:   decimal.NewFromFloat(balance),
		RiskFraction:     decimal.NewFromFloat(riskFraction),
		MaxPositionValue: decimal.NewFromFloat(maxPositionValue),
	})
}

func (r Request) validate() error {
	switch {
	case !r.EntryPrice.IsPositive():
		return core.WrapError(core.ErrInvalidInput, fmt.Errorf("entry price must be positive, got %s", r.EntryPrice))
	case !r.StopPrice.IsPositive():
		return core.WrapError(core.ErrInvalidInput, fmt.Errorf("stop price must be positive, got %s", r.StopPrice))
	case r.AccountBalance.IsNegative():
		return core.WrapError(core.ErrInvalidInput, fmt.Errorf("account balance must not be negative, got %s", r.AccountBalance))
	case !r.RiskFraction.IsPositive() || r.RiskFraction.GreaterThan(decimal.NewFromInt(1)):
		return core.WrapError(core.ErrInvalidInput, fmt.Errorf("risk fraction must be in (0, 1], got %s", r.RiskFraction))
	case !r.MaxPositionValue.IsPositive():
		return core.WrapError(core.ErrInvalidInput, fmt.Errorf("max position value must be positive, got %s", r.MaxPositionValue))
	}
	return nil
}

// floorDiv returns floor(a/b) for non-negative a and positive b
func floorDiv(a, b decimal.Decimal) decimal.Decimal {
	q, _ := a.QuoRem(b, 0)
	return q
}
