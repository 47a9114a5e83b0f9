package risk

import (
	"context"
	"time"

	"github.com/newthinker/quantguard/internal/core"
	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of a stop-loss order
type OrderStatus string

const (
	StatusActive    OrderStatus = "ACTIVE"
	StatusTriggered OrderStatus = "TRIGGERED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// StopOrder is a protective stop-loss instruction. Side is fixed when the
// order is placed and decides which way the stop triggers.
type StopOrder struct {
	ID          string      `json:"id"`
	Symbol      string      `json:"symbol"`
	Side        core.Side   `json:"side"`
	EntryPrice  float64     `json:"entry_price"`
	StopPrice   float64     `json:"stop_price"`
	Quantity    float64     `json:"quantity"`
	Status      OrderStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	TriggeredAt *time.Time  `json:"triggered_at,omitempty"`
	ExitPrice   float64     `json:"exit_price,omitempty"`
	RealizedPnL float64     `json:"realized_pnl,omitempty"`
	CancelledAt *time.Time  `json:"cancelled_at,omitempty"`
}

// Crossed reports whether price has moved through the stop in the adverse
// direction for the order's side
func (o StopOrder) Crossed(price float64) bool {
	if o.Side == core.SideShort {
		return price >= o.StopPrice
	}
	return price <= o.StopPrice
}

// PnLAt is the realized P&L of closing the order at exit
func (o StopOrder) PnLAt(exit float64) float64 {
	pnl := decimal.NewFromFloat(exit).
		Sub(decimal.NewFromFloat(o.EntryPrice)).
		Mul(decimal.NewFromFloat(o.Quantity))
	if o.Side == core.SideShort {
		pnl = pnl.Neg()
	}
	return pnl.InexactFloat64()
}

// BreakerEvent records one opening of the circuit breaker. It is open until
// ResetAt is stamped.
type BreakerEvent struct {
	ID             string     `json:"id"`
	Day            string     `json:"day"` // YYYY-MM-DD in the breaker's time zone
	Reason         string     `json:"reason"`
	DailyPnL       float64    `json:"daily_pnl"`
	LossPercentage float64    `json:"loss_percentage"` // daily loss as a percentage of the limit
	TriggeredAt    time.Time  `json:"triggered_at"`
	ResetAt        *time.Time `json:"reset_at,omitempty"`
	ResetReason    string     `json:"reset_reason,omitempty"`
}

// IsOpen reports whether the event has not been reset
func (e BreakerEvent) IsOpen() bool {
	return e.ResetAt == nil
}

// OrderFilter narrows ListOrders
type OrderFilter struct {
	Symbol string
	Status OrderStatus
	Limit  int
}

// Store persists stop-loss orders and breaker events.
//
// Infrastructure failures are returned as core.ErrPersistenceFailure.
// MarkTriggered and MarkCancelled are conditional on the order still being
// ACTIVE and return core.ErrOrderNotActive otherwise.
type Store interface {
	InsertOrder(ctx context.Context, o StopOrder) error
	GetOrder(ctx context.Context, id string) (StopOrder, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]StopOrder, error)
	ActiveBySymbol(ctx context.Context, symbol string) ([]StopOrder, error)
	ListActive(ctx context.Context) ([]StopOrder, error)
	MarkTriggered(ctx context.Context, id string, exitPrice, pnl float64, at time.Time) error
	MarkCancelled(ctx context.Context, id string, at time.Time) error

	// DailyRealizedPnL sums realized P&L of orders triggered in [start, end)
	DailyRealizedPnL(ctx context.Context, start, end time.Time) (float64, error)

	// InsertBreakerEvent fails with core.ErrBreakerOpen if the day already
	// has an open event
	InsertBreakerEvent(ctx context.Context, e BreakerEvent) error
	OpenBreakerEvent(ctx context.Context, day string) (*BreakerEvent, error)
	LatestOpenBreakerEvent(ctx context.Context) (*BreakerEvent, error)
	ResolveBreakerEvent(ctx context.Context, id string, at time.Time, reason string) error
	ListBreakerEvents(ctx context.Context, limit int) ([]BreakerEvent, error)

	Close() error
}

// Recorder receives live risk metrics
type Recorder interface {
	SetStopOrdersActive(n int)
	RecordStopTrigger(side string)
	RecordDuplicateTrigger()
	RecordPersistenceFailure(op string)
	SetBreakerOpen(open bool)
	RecordBreakerTrip()
	SetDailyPnL(pnl float64)
}

type nopRecorder struct{}

func (nopRecorder) SetStopOrdersActive(int)         {}
func (nopRecorder) RecordStopTrigger(string)        {}
func (nopRecorder) RecordDuplicateTrigger()         {}
func (nopRecorder) RecordPersistenceFailure(string) {}
func (nopRecorder) SetBreakerOpen(bool)             {}
func (nopRecorder) RecordBreakerTrip()              {}
func (nopRecorder) SetDailyPnL(float64)             {}
