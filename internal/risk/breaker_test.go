package risk_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/quantguard/internal/core"
	"github.com/newthinker/quantguard/internal/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedTriggered books realized P&L straight into the store, bypassing the
// monitor so gains can be recorded too
func seedTriggered(t *testing.T, f *fixture, at time.Time, pnls ...float64) {
	t.Helper()
	ctx := context.Background()
	for _, pnl := range pnls {
		o := risk.StopOrder{
			ID:         uuid.NewString(),
			Symbol:     "SEED",
			Side:       core.SideLong,
			EntryPrice: 100,
			StopPrice:  90,
			Quantity:   1,
			Status:     risk.StatusActive,
			CreatedAt:  at,
		}
		require.NoError(t, f.store.InsertOrder(ctx, o))
		require.NoError(t, f.store.Store.MarkTriggered(ctx, o.ID, 90, pnl, at))
	}
}

func TestBreaker_OpensOnDailyLoss(t *testing.T) {
	f := newFixture(t, 3000)
	ctx := context.Background()

	seedTriggered(t, f, t0, -2000, -1500, 200)

	st, err := f.breaker.Evaluate(ctx, t0)
	require.NoError(t, err)

	assert.True(t, st.Open)
	assert.False(t, f.breaker.Allowed())
	assert.InDelta(t, -3300, st.DailyPnL, 1e-9)
	require.NotNil(t, st.Event)
	assert.InDelta(t, 110, st.Event.LossPercentage, 1e-9)
	assert.Equal(t, "2024-03-04", st.Event.Day)
	assert.Equal(t, []core.AlertKind{core.AlertBreakerOpened}, f.alerts.kinds())

	ev, err := f.breaker.Reset(ctx, "new session")
	require.NoError(t, err)
	require.NotNil(t, ev)
	require.NotNil(t, ev.ResetAt)
	assert.Equal(t, "new session", ev.ResetReason)
	assert.True(t, f.breaker.Allowed())

	open, err := f.store.LatestOpenBreakerEvent(ctx)
	require.NoError(t, err)
	assert.Nil(t, open)
	assert.Equal(t, []core.AlertKind{core.AlertBreakerOpened, core.AlertBreakerReset}, f.alerts.kinds())
}

func TestBreaker_StaysClosedWithinLimit(t *testing.T) {
	f := newFixture(t, 3000)
	seedTriggered(t, f, t0, -2000, -1000)

	st, err := f.breaker.Evaluate(context.Background(), t0)
	require.NoError(t, err)
	assert.False(t, st.Open, "exactly at the limit is not below it")
	assert.True(t, f.breaker.Allowed())
}

func TestBreaker_SingleOpenEventPerDay(t *testing.T) {
	f := newFixture(t, 3000)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		seedTriggered(t, f, t0.Add(time.Duration(i)*time.Minute), -1500)
		_, err := f.breaker.Evaluate(ctx, t0.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	events, err := f.store.ListBreakerEvents(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.True(t, events[0].IsOpen())
}

func TestBreaker_NeverAutoResets(t *testing.T) {
	f := newFixture(t, 3000)
	ctx := context.Background()
	seedTriggered(t, f, t0, -5000)
	_, err := f.breaker.Evaluate(ctx, t0)
	require.NoError(t, err)

	// next day, no losses: the gate stays shut until an explicit reset
	next := t0.AddDate(0, 0, 1)
	f.clock.Set(next)
	st, err := f.breaker.Evaluate(ctx, next)
	require.NoError(t, err)
	assert.True(t, st.Open)
	assert.Zero(t, st.DailyPnL)
	assert.False(t, f.breaker.Allowed())
}

func TestBreaker_ResetKeepsWholeDayWindow(t *testing.T) {
	f := newFixture(t, 3000)
	ctx := context.Background()
	seedTriggered(t, f, t0, -2000, -1500, 200)
	_, err := f.breaker.Evaluate(ctx, t0)
	require.NoError(t, err)

	f.clock.Set(t0.Add(time.Hour))
	_, err = f.breaker.Reset(ctx, "operator override")
	require.NoError(t, err)
	assert.True(t, f.breaker.Allowed())
	assert.InDelta(t, -3300, f.breaker.Status().DailyPnL, 1e-9)

	// losses booked before the reset still count toward the day
	later := t0.Add(2 * time.Hour)
	seedTriggered(t, f, later, -100)
	st, err := f.breaker.Evaluate(ctx, later)
	require.NoError(t, err)
	assert.True(t, st.Open)
	assert.InDelta(t, -3400, st.DailyPnL, 1e-9)
	require.NotNil(t, st.Event)
	assert.InDelta(t, 3400.0/3000*100, st.Event.LossPercentage, 1e-9)

	st, err = f.breaker.Evaluate(ctx, later.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, st.Open)

	events, err := f.store.ListBreakerEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 1, countOpen(events))
}

func countOpen(events []risk.BreakerEvent) int {
	n := 0
	for _, e := range events {
		if e.IsOpen() {
			n++
		}
	}
	return n
}

func TestBreaker_DayWindowUsesLocation(t *testing.T) {
	ny := time.FixedZone("EST", -5*60*60)

	f := newFixture(t, 3000)
	breaker := risk.NewBreaker(f.store, f.limits, f.clock, ny, nil)
	ctx := context.Background()

	// 2024-03-05 02:00 UTC is still 2024-03-04 in New York
	late := time.Date(2024, 3, 5, 2, 0, 0, 0, time.UTC)
	seedTriggered(t, f, t0, -2000)
	seedTriggered(t, f, late, -1500)

	st, err := breaker.Evaluate(ctx, late)
	require.NoError(t, err)
	assert.True(t, st.Open)
	assert.Equal(t, "2024-03-04", st.Day)

	// the UTC breaker sees them on different days
	st, err = f.breaker.Evaluate(ctx, late)
	require.NoError(t, err)
	assert.InDelta(t, -1500, st.DailyPnL, 1e-9)
}

func TestBreaker_Restore(t *testing.T) {
	f := newFixture(t, 3000)
	ctx := context.Background()
	seedTriggered(t, f, t0, -4000)
	_, err := f.breaker.Evaluate(ctx, t0)
	require.NoError(t, err)

	restarted := risk.NewBreaker(f.store, f.limits, f.clock, time.UTC, nil)
	assert.True(t, restarted.Allowed(), "flag unknown before restore")
	require.NoError(t, restarted.Restore(ctx))
	assert.False(t, restarted.Allowed())
	require.NotNil(t, restarted.Status().Event)

	_, err = restarted.Reset(ctx, "")
	require.NoError(t, err)
	assert.True(t, restarted.Allowed())
}

func TestBreaker_PersistenceFailureKeepsFlagClosed(t *testing.T) {
	f := newFixture(t, 3000)
	ctx := context.Background()
	seedTriggered(t, f, t0, -4000)

	f.store.set(false, true)
	_, err := f.breaker.Evaluate(ctx, t0)
	assert.ErrorIs(t, err, core.ErrPersistenceFailure)
	assert.True(t, f.breaker.Allowed(), "flag follows the durable event")

	f.store.set(false, false)
	st, err := f.breaker.Evaluate(ctx, t0)
	require.NoError(t, err)
	assert.True(t, st.Open)
}

func TestBreaker_TripAndResetNoop(t *testing.T) {
	f := newFixture(t, 3000)
	ctx := context.Background()

	ev, err := f.breaker.Reset(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, ev, "reset of a closed breaker is a no-op")

	tripped, err := f.breaker.Trip(ctx, "halt for news")
	require.NoError(t, err)
	assert.Equal(t, "halt for news", tripped.Reason)
	assert.False(t, f.breaker.Allowed())

	_, err = f.breaker.Trip(ctx, "again")
	assert.ErrorIs(t, err, core.ErrBreakerOpen)

	events, err := f.breaker.Events(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestBreaker_TripRecordsTodaysLoss(t *testing.T) {
	f := newFixture(t, 3000)
	ctx := context.Background()
	seedTriggered(t, f, t0.Add(-24*time.Hour), -2500)
	seedTriggered(t, f, t0, -1000, -200)

	// no Evaluate has run in this process
	ev, err := f.breaker.Trip(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "manual trip", ev.Reason)
	assert.Equal(t, "2024-03-04", ev.Day)
	assert.InDelta(t, -1200, ev.DailyPnL, 1e-9)
	assert.InDelta(t, 40, ev.LossPercentage, 1e-9)
	assert.InDelta(t, -1200, f.breaker.Status().DailyPnL, 1e-9)
}

func TestBreaker_TripAfterMidnightIgnoresYesterday(t *testing.T) {
	f := newFixture(t, 3000)
	ctx := context.Background()
	seedTriggered(t, f, t0, -2500)
	_, err := f.breaker.Evaluate(ctx, t0)
	require.NoError(t, err)

	f.clock.Set(time.Date(2024, 3, 5, 0, 5, 0, 0, time.UTC))
	ev, err := f.breaker.Trip(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05", ev.Day)
	assert.Zero(t, ev.DailyPnL)
	assert.Zero(t, ev.LossPercentage)
}

func TestBreaker_HotReloadedLimit(t *testing.T) {
	f := newFixture(t, 3000)
	ctx := context.Background()
	seedTriggered(t, f, t0, -2500)

	st, err := f.breaker.Evaluate(ctx, t0)
	require.NoError(t, err)
	assert.False(t, st.Open)

	cfg := f.limits.Get()
	cfg.MaxDailyLoss = 2000
	require.NoError(t, f.limits.Update(cfg))

	st, err = f.breaker.Evaluate(ctx, t0)
	require.NoError(t, err)
	assert.True(t, st.Open)
	assert.InDelta(t, 125, st.Event.LossPercentage, 1e-9)
}
