// Package riskstore persists stop-loss orders and circuit breaker events.
package riskstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/newthinker/quantguard/internal/core"
	"github.com/newthinker/quantguard/internal/risk"
)

var _ risk.Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory risk store. State is lost on restart; use it
// for tests, replay and dry runs.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]risk.StopOrder
	events []risk.BreakerEvent
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[string]risk.StopOrder),
	}
}

// InsertOrder adds a new order.
func (m *MemoryStore) InsertOrder(ctx context.Context, o risk.StopOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.orders[o.ID]; exists {
		return core.WrapError(core.ErrPersistenceFailure, fmt.Errorf("order %s already exists", o.ID))
	}
	m.orders[o.ID] = o
	return nil
}

// GetOrder retrieves an order by ID.
func (m *MemoryStore) GetOrder(ctx context.Context, id string) (risk.StopOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[id]
	if !ok {
		return risk.StopOrder{}, core.WrapError(core.ErrNotFound, fmt.Errorf("order %s", id))
	}
	return o, nil
}

// ListOrders returns orders matching the filter, oldest first.
func (m *MemoryStore) ListOrders(ctx context.Context, filter risk.OrderFilter) ([]risk.StopOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]risk.StopOrder, 0)
	for _, o := range m.orders {
		if filter.Symbol != "" && o.Symbol != filter.Symbol {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		result = append(result, o)
	}
	sortOrders(result)

	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

// ActiveBySymbol returns ACTIVE orders for a symbol.
func (m *MemoryStore) ActiveBySymbol(ctx context.Context, symbol string) ([]risk.StopOrder, error) {
	return m.ListOrders(ctx, risk.OrderFilter{Symbol: symbol, Status: risk.StatusActive})
}

// ListActive returns every ACTIVE order.
func (m *MemoryStore) ListActive(ctx context.Context) ([]risk.StopOrder, error) {
	return m.ListOrders(ctx, risk.OrderFilter{Status: risk.StatusActive})
}

// MarkTriggered records the trigger and its P&L in one step.
func (m *MemoryStore) MarkTriggered(ctx context.Context, id string, exitPrice, pnl float64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, err := m.activeLocked(id)
	if err != nil {
		return err
	}
	o.Status = risk.StatusTriggered
	o.TriggeredAt = &at
	o.ExitPrice = exitPrice
	o.RealizedPnL = pnl
	m.orders[id] = o
	return nil
}

// MarkCancelled moves an ACTIVE order to CANCELLED.
func (m *MemoryStore) MarkCancelled(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, err := m.activeLocked(id)
	if err != nil {
		return err
	}
	o.Status = risk.StatusCancelled
	o.CancelledAt = &at
	m.orders[id] = o
	return nil
}

func (m *MemoryStore) activeLocked(id string) (risk.StopOrder, error) {
	o, ok := m.orders[id]
	if !ok {
		return risk.StopOrder{}, core.WrapError(core.ErrNotFound, fmt.Errorf("order %s", id))
	}
	if o.Status != risk.StatusActive {
		return risk.StopOrder{}, core.WrapError(core.ErrOrderNotActive, fmt.Errorf("order %s is %s", id, o.Status))
	}
	return o, nil
}

// DailyRealizedPnL sums realized P&L of orders triggered in [start, end).
func (m *MemoryStore) DailyRealizedPnL(ctx context.Context, start, end time.Time) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total float64
	for _, o := range m.orders {
		if o.Status != risk.StatusTriggered || o.TriggeredAt == nil {
			continue
		}
		if o.TriggeredAt.Before(start) || !o.TriggeredAt.Before(end) {
			continue
		}
		total += o.RealizedPnL
	}
	return total, nil
}

// InsertBreakerEvent appends an event unless the day already has an open one.
func (m *MemoryStore) InsertBreakerEvent(ctx context.Context, e risk.BreakerEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ev := range m.events {
		if ev.Day == e.Day && ev.IsOpen() {
			return core.WrapError(core.ErrBreakerOpen, fmt.Errorf("day %s already has open event %s", e.Day, ev.ID))
		}
	}
	m.events = append(m.events, e)
	return nil
}

// OpenBreakerEvent returns the unresolved event for day, or nil.
func (m *MemoryStore) OpenBreakerEvent(ctx context.Context, day string) (*risk.BreakerEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := range m.events {
		if m.events[i].Day == day && m.events[i].IsOpen() {
			ev := m.events[i]
			return &ev, nil
		}
	}
	return nil, nil
}

// LatestOpenBreakerEvent returns the most recent unresolved event, or nil.
func (m *MemoryStore) LatestOpenBreakerEvent(ctx context.Context) (*risk.BreakerEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].IsOpen() {
			ev := m.events[i]
			return &ev, nil
		}
	}
	return nil, nil
}

// ResolveBreakerEvent stamps the reset time on an open event.
func (m *MemoryStore) ResolveBreakerEvent(ctx context.Context, id string, at time.Time, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.events {
		if m.events[i].ID != id {
			continue
		}
		if !m.events[i].IsOpen() {
			return core.WrapError(core.ErrNotFound, fmt.Errorf("breaker event %s already resolved", id))
		}
		m.events[i].ResetAt = &at
		m.events[i].ResetReason = reason
		return nil
	}
	return core.WrapError(core.ErrNotFound, fmt.Errorf("breaker event %s", id))
}

// ListBreakerEvents returns events newest first.
func (m *MemoryStore) ListBreakerEvents(ctx context.Context, limit int) ([]risk.BreakerEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]risk.BreakerEvent, 0, len(m.events))
	for i := len(m.events) - 1; i >= 0; i-- {
		result = append(result, m.events[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

func sortOrders(orders []risk.StopOrder) {
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.Before(orders[j].CreatedAt)
		}
		return orders[i].ID < orders[j].ID
	})
}
