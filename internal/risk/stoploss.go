package risk

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/quantguard/internal/core"
	"go.uber.org/zap"
)

// PriceFeed supplies the latest price for a symbol
type PriceFeed interface {
	CurrentPrice(symbol string) (float64, bool)
}

// PlaceRequest describes a new protective order
type PlaceRequest struct {
	Symbol     string  `json:"symbol"`
	EntryPrice float64 `json:"entry_price"`
	StopPrice  float64 `json:"stop_price"`
	Quantity   float64 `json:"quantity"`
}

// TriggerEvent reports one order crossing its stop, together with the
// breaker state evaluated right after the trigger was stored
type TriggerEvent struct {
	Order   StopOrder `json:"order"`
	Breaker Status    `json:"breaker"`
}

// Snapshot is a consistent view of the active orders and the breaker
type Snapshot struct {
	Active  []StopOrder `json:"active"`
	Breaker Status      `json:"breaker"`
}

// Monitor owns the ACTIVE stop-loss orders. All order transitions and the
// breaker evaluation that follows a trigger run under one lock, so a tick
// delivered twice cannot trigger an order twice.
type Monitor struct {
	mu       sync.Mutex
	store    Store
	breaker  *Breaker
	clock    core.Clock
	logger   *zap.Logger
	recorder Recorder
	active   map[string]StopOrder

	lmu       sync.RWMutex
	listeners []func(core.Alert)
}

// NewMonitor creates a monitor with no orders loaded; call Restore to load
// ACTIVE orders from store
func NewMonitor(store Store, breaker *Breaker, clock core.Clock, logger *zap.Logger) *Monitor {
	if clock == nil {
		clock = core.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		store:    store,
		breaker:  breaker,
		clock:    clock,
		logger:   logger,
		recorder: nopRecorder{},
		active:   make(map[string]StopOrder),
	}
}

// SetRecorder attaches a metrics recorder
func (m *Monitor) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	m.mu.Lock()
	m.recorder = r
	m.mu.Unlock()
}

// OnAlert registers fn for stop_triggered alerts. Breaker alerts caused by
// a trigger go to the breaker's listeners.
func (m *Monitor) OnAlert(fn func(core.Alert)) {
	m.lmu.Lock()
	m.listeners = append(m.listeners, fn)
	m.lmu.Unlock()
}

// Restore replaces the in-memory set with the store's ACTIVE orders
func (m *Monitor) Restore(ctx context.Context) error {
	orders, err := m.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("restoring stop orders: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.active = make(map[string]StopOrder, len(orders))
	for _, o := range orders {
		m.active[o.ID] = o
	}
	m.recorder.SetStopOrdersActive(len(m.active))
	m.logger.Info("stop orders restored", zap.Int("active", len(m.active)))
	return nil
}

// Place validates and stores a new ACTIVE order. The side is derived here,
// once: a stop below entry protects a long, above entry a short.
func (m *Monitor) Place(ctx context.Context, req PlaceRequest) (StopOrder, error) {
	switch {
	case req.Symbol == "":
		return StopOrder{}, core.WrapError(core.ErrInvalidInput, fmt.Errorf("symbol is required"))
	case req.EntryPrice <= 0 || req.StopPrice <= 0:
		return StopOrder{}, core.WrapError(core.ErrInvalidInput, fmt.Errorf("prices must be positive"))
	case req.Quantity <= 0:
		return StopOrder{}, core.WrapError(core.ErrInvalidInput, fmt.Errorf("quantity must be positive"))
	case req.EntryPrice == req.StopPrice:
		return StopOrder{}, core.ErrInvalidStopPrice
	}

	side := core.SideLong
	if req.StopPrice > req.EntryPrice {
		side = core.SideShort
	}
	o := StopOrder{
		ID:         uuid.NewString(),
		Symbol:     req.Symbol,
		Side:       side,
		EntryPrice: req.EntryPrice,
		StopPrice:  req.StopPrice,
		Quantity:   req.Quantity,
		Status:     StatusActive,
		CreatedAt:  m.clock.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.InsertOrder(ctx, o); err != nil {
		m.recorder.RecordPersistenceFailure("insert_order")
		m.logger.Error("failed to persist stop order",
			zap.String("symbol", o.Symbol),
			zap.Error(err),
		)
		return StopOrder{}, err
	}
	m.active[o.ID] = o
	m.recorder.SetStopOrdersActive(len(m.active))

	m.logger.Info("stop order placed",
		zap.String("order_id", o.ID),
		zap.String("symbol", o.Symbol),
		zap.String("side", string(o.Side)),
		zap.Float64("entry_price", o.EntryPrice),
		zap.Float64("stop_price", o.StopPrice),
		zap.Float64("quantity", o.Quantity),
	)
	return o, nil
}

// Cancel moves an ACTIVE order to CANCELLED
func (m *Monitor) Cancel(ctx context.Context, id string) (StopOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.active[id]
	if !ok {
		stored, err := m.store.GetOrder(ctx, id)
		if err != nil {
			return StopOrder{}, err
		}
		return stored, core.WrapError(core.ErrOrderNotActive, fmt.Errorf("order %s is %s", id, stored.Status))
	}

	now := m.clock.Now()
	if err := m.store.MarkCancelled(ctx, id, now); err != nil {
		if errors.Is(err, core.ErrOrderNotActive) {
			delete(m.active, id)
			m.recorder.SetStopOrdersActive(len(m.active))
			return o, err
		}
		m.recorder.RecordPersistenceFailure("mark_cancelled")
		return StopOrder{}, err
	}

	delete(m.active, id)
	m.recorder.SetStopOrdersActive(len(m.active))
	o.Status = StatusCancelled
	o.CancelledAt = &now

	m.logger.Info("stop order cancelled",
		zap.String("order_id", id),
		zap.String("symbol", o.Symbol),
	)
	return o, nil
}

// Get returns an order in any state
func (m *Monitor) Get(ctx context.Context, id string) (StopOrder, error) {
	return m.store.GetOrder(ctx, id)
}

// List returns stored orders matching filter
func (m *Monitor) List(ctx context.Context, filter OrderFilter) ([]StopOrder, error) {
	return m.store.ListOrders(ctx, filter)
}

// Active returns the ACTIVE orders for symbol, or all of them when symbol
// is empty, oldest first
func (m *Monitor) Active(symbol string) []StopOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked(symbol)
}

// ActiveSymbols lists symbols that have at least one ACTIVE order
func (m *Monitor) ActiveSymbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{})
	for _, o := range m.active {
		seen[o.Symbol] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns active orders and breaker state as one consistent view
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Active:  m.activeLocked(""),
		Breaker: m.breaker.Status(),
	}
}

// OnTick checks symbol's ACTIVE orders against price. Each crossed order is
// durably marked TRIGGERED with its P&L before memory changes; then the
// breaker is evaluated and only after that are alerts delivered.
//
// A persistence failure leaves the order ACTIVE and is returned; other
// orders in the same tick are still processed.
func (m *Monitor) OnTick(ctx context.Context, symbol string, price float64, at time.Time) ([]TriggerEvent, error) {
	if symbol == "" || price <= 0 {
		return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("tick %q at %f", symbol, price))
	}

	m.mu.Lock()
	events, alerts, err := m.evaluateLocked(ctx, symbol, price, at)
	m.mu.Unlock()

	m.dispatch(alerts)
	return events, err
}

// Poll runs one pass over every symbol with ACTIVE orders. Symbols without a
// current quote are skipped for this pass.
func (m *Monitor) Poll(ctx context.Context, feed PriceFeed) ([]TriggerEvent, error) {
	var events []TriggerEvent
	var errs []error

	for _, symbol := range m.ActiveSymbols() {
		if err := ctx.Err(); err != nil {
			return events, err
		}
		price, ok := feed.CurrentPrice(symbol)
		if !ok {
			m.logger.Debug("no quote, skipping", zap.String("symbol", symbol))
			continue
		}
		ev, err := m.OnTick(ctx, symbol, price, m.clock.Now())
		events = append(events, ev...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return events, errors.Join(errs...)
}

func (m *Monitor) evaluateLocked(ctx context.Context, symbol string, price float64, at time.Time) ([]TriggerEvent, []core.Alert, error) {
	var triggered []StopOrder
	var errs []error

	for _, o := range m.activeLocked(symbol) {
		if !o.Crossed(price) {
			continue
		}

		pnl := o.PnLAt(price)
		if err := m.store.MarkTriggered(ctx, o.ID, price, pnl, at); err != nil {
			if errors.Is(err, core.ErrOrderNotActive) {
				// already terminal in the store
				delete(m.active, o.ID)
				m.recorder.RecordDuplicateTrigger()
				m.logger.Debug("duplicate trigger ignored",
					zap.String("order_id", o.ID),
					zap.String("symbol", o.Symbol),
				)
				continue
			}
			m.recorder.RecordPersistenceFailure("mark_triggered")
			m.logger.Error("failed to persist stop trigger",
				zap.String("order_id", o.ID),
				zap.String("symbol", o.Symbol),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("order %s: %w", o.ID, err))
			continue
		}

		ts := at
		o.Status = StatusTriggered
		o.TriggeredAt = &ts
		o.ExitPrice = price
		o.RealizedPnL = pnl
		delete(m.active, o.ID)

		m.recorder.RecordStopTrigger(string(o.Side))
		m.logger.Warn("stop-loss triggered",
			zap.String("order_id", o.ID),
			zap.String("symbol", o.Symbol),
			zap.String("side", string(o.Side)),
			zap.Float64("stop_price", o.StopPrice),
			zap.Float64("exit_price", price),
			zap.Float64("pnl", pnl),
		)
		triggered = append(triggered, o)
	}
	m.recorder.SetStopOrdersActive(len(m.active))

	if len(triggered) == 0 {
		return nil, nil, errors.Join(errs...)
	}

	status, breakerAlerts, err := m.breaker.evaluate(ctx, at)
	if err != nil {
		errs = append(errs, fmt.Errorf("evaluating breaker: %w", err))
	}

	events := make([]TriggerEvent, 0, len(triggered))
	alerts := make([]core.Alert, 0, len(triggered)+len(breakerAlerts))
	for _, o := range triggered {
		events = append(events, TriggerEvent{Order: o, Breaker: status})
		alerts = append(alerts, triggeredAlert(o))
	}
	alerts = append(alerts, breakerAlerts...)

	return events, alerts, errors.Join(errs...)
}

func (m *Monitor) activeLocked(symbol string) []StopOrder {
	out := make([]StopOrder, 0, len(m.active))
	for _, o := range m.active {
		if symbol == "" || o.Symbol == symbol {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// dispatch delivers monitor alerts, then hands breaker alerts to the
// breaker's own listeners
func (m *Monitor) dispatch(alerts []core.Alert) {
	if len(alerts) == 0 {
		return
	}
	m.lmu.RLock()
	listeners := append([]func(core.Alert){}, m.listeners...)
	m.lmu.RUnlock()

	var breakerAlerts []core.Alert
	for _, a := range alerts {
		if a.Kind != core.AlertStopTriggered {
			breakerAlerts = append(breakerAlerts, a)
			continue
		}
		for _, fn := range listeners {
			fn(a)
		}
	}
	m.breaker.dispatch(breakerAlerts)
}

func triggeredAlert(o StopOrder) core.Alert {
	return core.Alert{
		Kind:   core.AlertStopTriggered,
		Symbol: o.Symbol,
		Message: fmt.Sprintf("%s %s stop %.4f hit at %.4f, realized P&L %.2f",
			o.Symbol, o.Side, o.StopPrice, o.ExitPrice, o.RealizedPnL),
		Fields: map[string]any{
			"order_id":     o.ID,
			"side":         string(o.Side),
			"entry_price":  o.EntryPrice,
			"stop_price":   o.StopPrice,
			"exit_price":   o.ExitPrice,
			"quantity":     o.Quantity,
			"realized_pnl": o.RealizedPnL,
		},
		At: *o.TriggeredAt,
	}
}
