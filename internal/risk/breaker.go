package risk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/quantguard/internal/core"
	"go.uber.org/zap"
)

// Status is a point-in-time view of the circuit breaker
type Status struct {
	Open         bool          `json:"open"`
	Event        *BreakerEvent `json:"event,omitempty"`
	Day          string        `json:"day,omitempty"`
	DailyPnL     float64       `json:"daily_pnl"`
	MaxDailyLoss float64       `json:"max_daily_loss"`
}

// Breaker halts new entries once the day's realized stop-loss P&L falls
// below the configured loss limit. It opens at most one event per day and
// only an explicit Reset closes it.
type Breaker struct {
	mu       sync.RWMutex
	store    Store
	limits   *ConfigHolder
	clock    core.Clock
	loc      *time.Location
	logger   *zap.Logger
	recorder Recorder

	open     *BreakerEvent
	day      string
	dailyPnL float64

	lmu       sync.RWMutex
	listeners []func(core.Alert)
}

// NewBreaker creates a closed breaker. Call Restore before use to pick up
// an event left open by a previous process.
func NewBreaker(store Store, limits *ConfigHolder, clock core.Clock, loc *time.Location, logger *zap.Logger) *Breaker {
	if clock == nil {
		clock = core.SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		store:    store,
		limits:   limits,
		clock:    clock,
		loc:      loc,
		logger:   logger,
		recorder: nopRecorder{},
	}
}

// SetRecorder attaches a metrics recorder
func (b *Breaker) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	b.mu.Lock()
	b.recorder = r
	b.mu.Unlock()
}

// OnAlert registers fn for breaker_opened and breaker_reset alerts
func (b *Breaker) OnAlert(fn func(core.Alert)) {
	b.lmu.Lock()
	b.listeners = append(b.listeners, fn)
	b.lmu.Unlock()
}

// Restore reconciles the in-memory flag with the latest unresolved event
func (b *Breaker) Restore(ctx context.Context) error {
	open, err := b.store.LatestOpenBreakerEvent(ctx)
	if err != nil {
		return fmt.Errorf("restoring breaker: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.open = open
	b.recorder.SetBreakerOpen(open != nil)

	if open != nil {
		b.logger.Warn("circuit breaker restored open",
			zap.String("event_id", open.ID),
			zap.String("day", open.Day),
			zap.String("reason", open.Reason),
		)
	}
	return nil
}

// Allowed is the entry gate: false while the breaker is open
func (b *Breaker) Allowed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.open == nil
}

// Status returns the last evaluated state
func (b *Breaker) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.statusLocked()
}

// Evaluate recomputes the realized P&L for the day containing at and opens
// the breaker if it is beyond the loss limit
func (b *Breaker) Evaluate(ctx context.Context, at time.Time) (Status, error) {
	st, alerts, err := b.evaluate(ctx, at)
	b.dispatch(alerts)
	return st, err
}

// evaluate does the work of Evaluate and hands back alerts for the caller
// to deliver once it has released its own locks
func (b *Breaker) evaluate(ctx context.Context, at time.Time) (Status, []core.Alert, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start, end := core.DayBounds(at, b.loc)
	pnl, err := b.store.DailyRealizedPnL(ctx, start, end)
	if err != nil {
		b.recorder.RecordPersistenceFailure("daily_pnl")
		return b.statusLocked(), nil, err
	}
	b.day = core.DayKey(at, b.loc)
	b.dailyPnL = pnl
	b.recorder.SetDailyPnL(pnl)

	limit := b.limits.Get().MaxDailyLoss
	if b.open != nil || pnl >= -limit {
		return b.statusLocked(), nil, nil
	}

	ev := BreakerEvent{
		ID:             uuid.NewString(),
		Day:            b.day,
		Reason:         fmt.Sprintf("daily realized loss %.2f exceeds limit %.2f", -pnl, limit),
		DailyPnL:       pnl,
		LossPercentage: lossPercentage(pnl, limit),
		TriggeredAt:    at,
	}
	created, err := b.openLocked(ctx, ev)
	if err != nil || !created {
		return b.statusLocked(), nil, err
	}
	return b.statusLocked(), []core.Alert{openedAlert(ev)}, nil
}

// Trip opens the breaker by hand
func (b *Breaker) Trip(ctx context.Context, reason string) (BreakerEvent, error) {
	b.mu.Lock()
	if b.open != nil {
		ev := *b.open
		b.mu.Unlock()
		return ev, core.WrapError(core.ErrBreakerOpen, fmt.Errorf("event %s already open", ev.ID))
	}

	now := b.clock.Now()
	start, end := core.DayBounds(now, b.loc)
	pnl, err := b.store.DailyRealizedPnL(ctx, start, end)
	if err != nil {
		b.recorder.RecordPersistenceFailure("daily_pnl")
		b.mu.Unlock()
		return BreakerEvent{}, err
	}
	b.day = core.DayKey(now, b.loc)
	b.dailyPnL = pnl
	b.recorder.SetDailyPnL(pnl)

	limit := b.limits.Get().MaxDailyLoss
	if reason == "" {
		reason = "manual trip"
	}
	ev := BreakerEvent{
		ID:             uuid.NewString(),
		Day:            b.day,
		Reason:         reason,
		DailyPnL:       pnl,
		LossPercentage: lossPercentage(pnl, limit),
		TriggeredAt:    now,
	}
	created, err := b.openLocked(ctx, ev)
	if err == nil && !created {
		ev = *b.open
	}
	b.mu.Unlock()

	if err != nil {
		return BreakerEvent{}, err
	}
	if created {
		b.dispatch([]core.Alert{openedAlert(ev)})
	}
	return ev, nil
}

// openLocked persists ev and sets the flag. An open event already stored for
// the day is adopted instead, reporting created as false.
func (b *Breaker) openLocked(ctx context.Context, ev BreakerEvent) (bool, error) {
	if err := b.store.InsertBreakerEvent(ctx, ev); err != nil {
		if errors.Is(err, core.ErrBreakerOpen) {
			existing, gerr := b.store.OpenBreakerEvent(ctx, ev.Day)
			if gerr == nil && existing != nil {
				b.open = existing
				b.recorder.SetBreakerOpen(true)
				return false, nil
			}
		}
		b.recorder.RecordPersistenceFailure("insert_breaker_event")
		b.logger.Error("failed to persist breaker event",
			zap.String("day", ev.Day),
			zap.Error(err),
		)
		return false, err
	}

	b.open = &ev
	b.recorder.SetBreakerOpen(true)
	b.recorder.RecordBreakerTrip()
	b.logger.Warn("circuit breaker opened",
		zap.String("event_id", ev.ID),
		zap.String("day", ev.Day),
		zap.Float64("daily_pnl", ev.DailyPnL),
		zap.Float64("loss_percentage", ev.LossPercentage),
		zap.String("reason", ev.Reason),
	)
	return true, nil
}

// Reset closes the open event and re-enables entries. It is a no-op
// returning nil when the breaker is already closed.
func (b *Breaker) Reset(ctx context.Context, reason string) (*BreakerEvent, error) {
	b.mu.Lock()
	if b.open == nil {
		b.mu.Unlock()
		return nil, nil
	}

	now := b.clock.Now()
	if reason == "" {
		reason = "manual reset"
	}
	if err := b.store.ResolveBreakerEvent(ctx, b.open.ID, now, reason); err != nil {
		b.recorder.RecordPersistenceFailure("resolve_breaker_event")
		b.mu.Unlock()
		return nil, err
	}

	ev := *b.open
	ev.ResetAt = &now
	ev.ResetReason = reason
	b.open = nil
	b.recorder.SetBreakerOpen(false)
	b.mu.Unlock()

	b.logger.Info("circuit breaker reset",
		zap.String("event_id", ev.ID),
		zap.String("reason", reason),
	)
	b.dispatch([]core.Alert{{
		Kind:    core.AlertBreakerReset,
		Message: fmt.Sprintf("circuit breaker reset: %s", reason),
		Fields: map[string]any{
			"event_id": ev.ID,
			"day":      ev.Day,
		},
		At: now,
	}})
	return &ev, nil
}

// Events lists recent breaker events, newest first
func (b *Breaker) Events(ctx context.Context, limit int) ([]BreakerEvent, error) {
	return b.store.ListBreakerEvents(ctx, limit)
}

func (b *Breaker) statusLocked() Status {
	st := Status{
		Open:         b.open != nil,
		Day:          b.day,
		DailyPnL:     b.dailyPnL,
		MaxDailyLoss: b.limits.Get().MaxDailyLoss,
	}
	if b.open != nil {
		ev := *b.open
		st.Event = &ev
	}
	return st
}

func (b *Breaker) dispatch(alerts []core.Alert) {
	if len(alerts) == 0 {
		return
	}
	b.lmu.RLock()
	listeners := append([]func(core.Alert){}, b.listeners...)
	b.lmu.RUnlock()

	for _, a := range alerts {
		for _, fn := range listeners {
			fn(a)
		}
	}
}

// lossPercentage is the day's loss as a percentage of limit, 0 without a loss
func lossPercentage(pnl, limit float64) float64 {
	if pnl >= 0 || limit <= 0 {
		return 0
	}
	return -pnl / limit * 100
}

func openedAlert(ev BreakerEvent) core.Alert {
	return core.Alert{
		Kind:    core.AlertBreakerOpened,
		Message: "circuit breaker opened: " + ev.Reason,
		Fields: map[string]any{
			"event_id":        ev.ID,
			"day":             ev.Day,
			"daily_pnl":       ev.DailyPnL,
			"loss_percentage": ev.LossPercentage,
		},
		At: ev.TriggeredAt,
	}
}
