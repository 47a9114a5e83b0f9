package risk

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/newthinker/quantguard/internal/core"
	"github.com/newthinker/quantguard/internal/sizing"
	"go.uber.org/zap"
)

// PlanRequest is an entry under consideration
type PlanRequest struct {
	Symbol         string  `json:"symbol"`
	EntryPrice     float64 `json:"entry_price"`
	StopPrice      float64 `json:"stop_price"`
	AccountBalance float64 `json:"account_balance"`
	// SectorExposure is the value already held in the symbol's sector
	SectorExposure float64 `json:"sector_exposure"`
}

// Plan is a sized entry that passed every gate
type Plan struct {
	Symbol string    `json:"symbol"`
	Side   core.Side `json:"side"`
	sizing.Result
}

// Planner sizes entries against the current limits after checking the
// monitor's breaker gate and the position limits
type Planner struct {
	limits  *ConfigHolder
	monitor *Monitor
	logger  *zap.Logger
}

// NewPlanner creates a planner
func NewPlanner(limits *ConfigHolder, monitor *Monitor, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		limits:  limits,
		monitor: monitor,
		logger:  logger,
	}
}

// Plan returns the recommended size for req.
//
// It fails with core.ErrBreakerOpen while the breaker is open and with
// core.ErrLimitExceeded when the open-position or sector limit leaves no
// room. Sector headroom below the position cap shrinks the position rather
// than rejecting it. An entry equal to the stop returns a SKIP plan along
// with core.ErrInvalidStopPrice.
func (p *Planner) Plan(ctx context.Context, req PlanRequest) (Plan, error) {
	if err := ctx.Err(); err != nil {
		return Plan{}, err
	}
	if req.Symbol == "" {
		return Plan{}, core.WrapError(core.ErrInvalidInput, fmt.Errorf("symbol is required"))
	}
	// gate and open positions from one view, so a trigger in flight is
	// seen together with the breaker state it produces
	snap := p.monitor.Snapshot()
	if snap.Breaker.Open {
		return Plan{}, core.ErrBreakerOpen
	}

	cfg := p.limits.Get()

	if open := len(snap.Active); open >= cfg.MaxOpenPositions {
		return Plan{}, core.WrapError(core.ErrLimitExceeded,
			fmt.Errorf("max open positions reached: %d >= %d", open, cfg.MaxOpenPositions))
	}

	maxValue := cfg.MaxPositionValue
	if cfg.MaxSectorExposure > 0 && req.AccountBalance > 0 {
		headroom := req.AccountBalance*cfg.MaxSectorExposure - req.SectorExposure
		if headroom <= 0 {
			return Plan{}, core.WrapError(core.ErrLimitExceeded,
				fmt.Errorf("sector exposure %.2f at limit %.0f%% of balance", req.SectorExposure, cfg.MaxSectorExposure*100))
		}
		maxValue = math.Min(maxValue, headroom)
	}

	res, err := sizing.SizeFloat(req.EntryPrice, req.StopPrice, req.AccountBalance, cfg.MaxRiskFraction, maxValue)
	plan := Plan{Symbol: req.Symbol, Side: core.SideLong, Result: res}
	if req.StopPrice > req.EntryPrice {
		plan.Side = core.SideShort
	}
	if err != nil && !errors.Is(err, core.ErrInvalidStopPrice) {
		return Plan{}, err
	}

	p.logger.Debug("entry planned",
		zap.String("symbol", req.Symbol),
		zap.Int64("quantity", res.Quantity),
		zap.String("recommendation", string(res.Recommendation)),
		zap.Bool("capped", res.Capped),
	)
	return plan, err
}
