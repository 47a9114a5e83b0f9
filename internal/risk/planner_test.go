package risk_test

import (
	"context"
	"testing"
	"time"

	"github.com/newthinker/quantguard/internal/core"
	"github.com/newthinker/quantguard/internal/risk"
	"github.com/newthinker/quantguard/internal/sizing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPlanner(f *fixture) *risk.Planner {
	return risk.NewPlanner(f.limits, f.monitor, nil)
}

func TestPlanner_SizesEntry(t *testing.T) {
	f := newFixture(t, 5000)
	plan, err := newPlanner(f).Plan(context.Background(), risk.PlanRequest{
		Symbol:         "ETH",
		EntryPrice:     1800,
		StopPrice:      1750,
		AccountBalance: 100000,
	})
	require.NoError(t, err)

	assert.Equal(t, core.SideLong, plan.Side)
	assert.Equal(t, int64(40), plan.Quantity)
	assert.Equal(t, sizing.Proceed, plan.Recommendation)
	assert.False(t, plan.Capped)
}

func TestPlanner_ShortSide(t *testing.T) {
	f := newFixture(t, 5000)
	plan, err := newPlanner(f).Plan(context.Background(), risk.PlanRequest{
		Symbol:         "ETH",
		EntryPrice:     1800,
		StopPrice:      1880,
		AccountBalance: 100000,
	})
	require.NoError(t, err)
	assert.Equal(t, core.SideShort, plan.Side)
	assert.Equal(t, int64(25), plan.Quantity)
}

func TestPlanner_BreakerOpenBlocksEntries(t *testing.T) {
	f := newFixture(t, 5000)
	ctx := context.Background()
	_, err := f.breaker.Trip(ctx, "test")
	require.NoError(t, err)

	_, err = newPlanner(f).Plan(ctx, risk.PlanRequest{
		Symbol: "ETH", EntryPrice: 1800, StopPrice: 1750, AccountBalance: 100000,
	})
	assert.ErrorIs(t, err, core.ErrBreakerOpen)

	_, err = f.breaker.Reset(ctx, "")
	require.NoError(t, err)
	_, err = newPlanner(f).Plan(ctx, risk.PlanRequest{
		Symbol: "ETH", EntryPrice: 1800, StopPrice: 1750, AccountBalance: 100000,
	})
	assert.NoError(t, err)
}

func TestPlanner_WaitsForTriggerInFlight(t *testing.T) {
	f := newFixture(t, 500)
	ctx := context.Background()
	f.place(t, "AAPL", 100, 95, 100)

	release := f.store.holdPnL()
	tickDone := make(chan error, 1)
	go func() {
		_, err := f.monitor.OnTick(ctx, "AAPL", 94, t0)
		tickDone <- err
	}()
	// the trigger is committed and the breaker not yet evaluated
	<-f.store.pnlEntered

	planDone := make(chan error, 1)
	go func() {
		_, err := newPlanner(f).Plan(ctx, risk.PlanRequest{
			Symbol: "MSFT", EntryPrice: 300, StopPrice: 290, AccountBalance: 100000,
		})
		planDone <- err
	}()

	select {
	case err := <-planDone:
		t.Fatalf("plan returned mid-trigger: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	release()
	require.NoError(t, <-tickDone)
	assert.ErrorIs(t, <-planDone, core.ErrBreakerOpen)
}

func TestPlanner_MaxOpenPositions(t *testing.T) {
	f := newFixture(t, 5000)
	cfg := f.limits.Get()
	cfg.MaxOpenPositions = 2
	require.NoError(t, f.limits.Update(cfg))

	f.place(t, "AAPL", 100, 90, 10)
	f.place(t, "MSFT", 300, 280, 5)

	_, err := newPlanner(f).Plan(context.Background(), risk.PlanRequest{
		Symbol: "ETH", EntryPrice: 1800, StopPrice: 1750, AccountBalance: 100000,
	})
	assert.ErrorIs(t, err, core.ErrLimitExceeded)
}

func TestPlanner_SectorHeadroomCapsSize(t *testing.T) {
	f := newFixture(t, 5000)
	planner := newPlanner(f)

	// 30% of 100000 leaves 5000 of headroom once 25000 is held
	plan, err := planner.Plan(context.Background(), risk.PlanRequest{
		Symbol:         "ETH",
		EntryPrice:     1800,
		StopPrice:      1750,
		AccountBalance: 100000,
		SectorExposure: 25000,
	})
	require.NoError(t, err)
	assert.True(t, plan.Capped)
	assert.Equal(t, int64(2), plan.Quantity)

	_, err = planner.Plan(context.Background(), risk.PlanRequest{
		Symbol:         "ETH",
		EntryPrice:     1800,
		StopPrice:      1750,
		AccountBalance: 100000,
		SectorExposure: 30000,
	})
	assert.ErrorIs(t, err, core.ErrLimitExceeded)
}

func TestPlanner_InvalidStopReturnsSkip(t *testing.T) {
	f := newFixture(t, 5000)
	plan, err := newPlanner(f).Plan(context.Background(), risk.PlanRequest{
		Symbol: "ETH", EntryPrice: 1800, StopPrice: 1800, AccountBalance: 100000,
	})
	assert.ErrorIs(t, err, core.ErrInvalidStopPrice)
	assert.Equal(t, sizing.Skip, plan.Recommendation)
	assert.Zero(t, plan.Quantity)
}

func TestPlanner_RequiresSymbol(t *testing.T) {
	f := newFixture(t, 5000)
	_, err := newPlanner(f).Plan(context.Background(), risk.PlanRequest{
		EntryPrice: 1800, StopPrice: 1750, AccountBalance: 100000,
	})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}
