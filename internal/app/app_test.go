package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/newthinker/quantguard/internal/backtest"
	"github.com/newthinker/quantguard/internal/collector"
	"github.com/newthinker/quantguard/internal/config"
	"github.com/newthinker/quantguard/internal/core"
	"github.com/newthinker/quantguard/internal/risk"
	"github.com/newthinker/quantguard/internal/storage/riskstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day1 = time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Storage.DataPath = t.TempDir()
	cfg.Risk.MaxDailyLoss = 500
	cfg.Monitor.QuoteMaxAge = 0
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, clock core.Clock) *App {
	t.Helper()
	a, err := New(cfg, riskstore.NewMemoryStore(), clock, nil)
	require.NoError(t, err)
	return a
}

func backtestRequest() backtest.Request {
	return backtest.Request{Strategy: "ma_crossover", Symbol: "AAPL", Interval: "1d"}
}

func TestApp_New(t *testing.T) {
	a := newTestApp(t, testConfig(t), core.NewFixedClock(day1))

	assert.NotNil(t, a.Breaker())
	assert.NotNil(t, a.Monitor())
	assert.NotNil(t, a.Planner())
	assert.NotNil(t, a.Backtester())
	assert.Nil(t, a.Reports())
	assert.Equal(t, []string{"ma_crossover", "rsi_reversion"}, a.Strategies().Names())

	stats := a.Stats()
	assert.Equal(t, false, stats["running"])
	assert.Equal(t, 0, stats["active_orders"])
	assert.Equal(t, 0, stats["notifiers"])
}

func TestApp_UnknownNotifier(t *testing.T) {
	cfg := testConfig(t)
	cfg.Notifiers = map[string]config.NotifierConfig{"pager": {Enabled: true}}

	_, err := New(cfg, riskstore.NewMemoryStore(), nil, nil)
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
}

func TestApp_DisabledNotifierSkipped(t *testing.T) {
	cfg := testConfig(t)
	cfg.Notifiers = map[string]config.NotifierConfig{"telegram": {Enabled: false}}

	a := newTestApp(t, cfg, nil)
	assert.Equal(t, 0, a.Notifiers().Len())
}

func TestApp_StrategiesConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Strategies = map[string]config.StrategyConfig{
		"ma_crossover":  {Enabled: true, Params: map[string]any{"fast_period": 3, "slow_period": 7}},
		"rsi_reversion": {Enabled: false},
	}

	a := newTestApp(t, cfg, nil)
	assert.Equal(t, []string{"ma_crossover"}, a.Strategies().Names())

	_, err := a.Strategies().Build("ma_crossover", nil)
	assert.NoError(t, err)

	cfg.Strategies = map[string]config.StrategyConfig{
		"ma_crossover": {Enabled: true, Params: map[string]any{"fast_period": 30, "slow_period": 7}},
	}
	_, err = New(cfg, riskstore.NewMemoryStore(), nil, nil)
	assert.True(t, errors.Is(err, core.ErrConfigInvalid), "fast >= slow must fail: %v", err)

	cfg.Strategies = map[string]config.StrategyConfig{"breakout": {Enabled: true}}
	_, err = New(cfg, riskstore.NewMemoryStore(), nil, nil)
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
}

func TestApp_BadTimezone(t *testing.T) {
	cfg := testConfig(t)
	cfg.Monitor.Timezone = "Mars/Olympus_Mons"

	_, err := New(cfg, riskstore.NewMemoryStore(), nil, nil)
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
}

func TestApp_BacktestWithoutDataFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.DataPath = t.TempDir() + "/missing"
	a := newTestApp(t, cfg, nil)

	_, err := a.Backtester().Run(context.Background(), backtestRequest())
	assert.True(t, errors.Is(err, core.ErrNoData))
}

func TestApp_StopTriggerDeliveredToWebhook(t *testing.T) {
	var mu sync.Mutex
	var kinds []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		kinds = append(kinds, body["kind"].(string))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Notifiers = map[string]config.NotifierConfig{"webhook": {Enabled: true, URL: srv.URL}}
	cfg.Monitor.PollInterval = 10 * time.Millisecond
	cfg.Monitor.EvaluateInterval = time.Hour

	a := newTestApp(t, cfg, core.NewFixedClock(day1))
	require.Equal(t, 1, a.Notifiers().Len())

	ctx := context.Background()
	_, err := a.Monitor().Place(ctx, risk.PlaceRequest{Symbol: "AAPL", EntryPrice: 100, StopPrice: 95, Quantity: 10})
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- a.Start(runCtx) }()

	require.NoError(t, a.Quotes().Set("AAPL", 94, day1))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(kinds) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	assert.Equal(t, []string{"stop_triggered"}, kinds)
	mu.Unlock()
	assert.Empty(t, a.Monitor().Snapshot().Active)
	assert.Equal(t, false, a.Stats()["running"])
}

func TestApp_StartRestoresActiveOrders(t *testing.T) {
	store := riskstore.NewMemoryStore()
	clock := core.NewFixedClock(day1)
	cfg := testConfig(t)
	cfg.Monitor.PollInterval = time.Hour

	first, err := New(cfg, store, clock, nil)
	require.NoError(t, err)
	_, err = first.Monitor().Place(context.Background(), risk.PlaceRequest{Symbol: "MSFT", EntryPrice: 300, StopPrice: 290, Quantity: 1})
	require.NoError(t, err)

	second, err := New(cfg, store, clock, nil)
	require.NoError(t, err)
	require.NoError(t, second.Restore(context.Background()))
	assert.Len(t, second.Monitor().Active("MSFT"), 1)
}

func TestApp_CannotStartTwice(t *testing.T) {
	cfg := testConfig(t)
	cfg.Monitor.PollInterval = time.Second
	a := newTestApp(t, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Start(ctx) }()

	require.Eventually(t, func() bool { return a.Stats()["running"] == true }, time.Second, 5*time.Millisecond)
	assert.Error(t, a.Start(context.Background()))

	a.Stop()
	<-done
	cancel()
}

func TestApp_SessionReset(t *testing.T) {
	cfg := testConfig(t)
	cfg.Monitor.SessionReset = "09:00"
	clock := core.NewFixedClock(day1)
	a := newTestApp(t, cfg, clock)
	ctx := context.Background()

	ev, err := a.Breaker().Trip(ctx, "manual halt")
	require.NoError(t, err)

	// opened after today's reset time: stays open
	a.RunOnce(ctx)
	assert.True(t, a.Breaker().Status().Open)

	clock.Set(time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC))
	a.RunOnce(ctx)
	assert.True(t, a.Breaker().Status().Open, "reset time not reached yet")

	clock.Set(time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC))
	a.RunOnce(ctx)
	assert.False(t, a.Breaker().Status().Open)

	events, err := a.Breaker().Events(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ev.ID, events[0].ID)
	assert.Equal(t, "scheduled session reset", events[0].ResetReason)
}

func TestApp_SessionResetOncePerDay(t *testing.T) {
	cfg := testConfig(t)
	cfg.Monitor.SessionReset = "09:00"
	clock := core.NewFixedClock(time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC))
	a := newTestApp(t, cfg, clock)
	ctx := context.Background()

	a.RunOnce(ctx)

	// tripped after the day's reset already ran
	clock.Set(time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC))
	_, err := a.Breaker().Trip(ctx, "")
	require.NoError(t, err)
	a.RunOnce(ctx)
	assert.True(t, a.Breaker().Status().Open)
}

func TestApp_NoScheduledResetByDefault(t *testing.T) {
	clock := core.NewFixedClock(day1)
	a := newTestApp(t, testConfig(t), clock)
	ctx := context.Background()

	_, err := a.Breaker().Trip(ctx, "")
	require.NoError(t, err)

	clock.Advance(72 * time.Hour)
	a.RunOnce(ctx)
	assert.True(t, a.Breaker().Status().Open)
}

func TestApp_Replay(t *testing.T) {
	clock := core.NewFixedClock(day1)
	a := newTestApp(t, testConfig(t), clock)
	ctx := context.Background()

	_, err := a.Monitor().Place(ctx, risk.PlaceRequest{Symbol: "AAPL", EntryPrice: 100, StopPrice: 95, Quantity: 100})
	require.NoError(t, err)

	ticks := []collector.Tick{
		{Time: day1.Add(time.Minute), Symbol: "AAPL", Price: 99},
		{Time: day1.Add(2 * time.Minute), Symbol: "AAPL", Price: 0},
		{Time: day1.Add(3 * time.Minute), Symbol: "AAPL", Price: 94},
		{Time: day1.Add(4 * time.Minute), Symbol: "AAPL", Price: 90},
	}
	report, err := a.Replay(ctx, ticks)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Ticks)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Failed)
	require.Len(t, report.Triggers, 1)
	assert.Equal(t, 94.0, report.Triggers[0].Order.ExitPrice)
	assert.Equal(t, -600.0, report.Triggers[0].Order.RealizedPnL)

	// -600 breaches the 500 limit
	assert.True(t, report.Breaker.Open)
	assert.Equal(t, "2024-03-04", report.Breaker.Day)
	assert.False(t, a.Breaker().Allowed())

	quote, ok := a.Quotes().Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, 90.0, quote.Price)
}

func TestApp_ReplayStopsOnCancel(t *testing.T) {
	a := newTestApp(t, testConfig(t), core.NewFixedClock(day1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := a.Replay(ctx, []collector.Tick{{Time: day1, Symbol: "AAPL", Price: 10}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, report.Ticks)
}

func TestOpenStore(t *testing.T) {
	cfg := testConfig(t)

	store, err := OpenStore(cfg)
	require.NoError(t, err)
	_, isMemory := store.(*riskstore.MemoryStore)
	assert.True(t, isMemory)
	require.NoError(t, store.Close())

	cfg.Storage.SQLite.Path = t.TempDir() + "/nested/risk.db"
	store, err = OpenStore(cfg)
	require.NoError(t, err)
	_, isSQLite := store.(*riskstore.SQLiteStore)
	assert.True(t, isSQLite)
	require.NoError(t, store.Close())
}

func TestOpenArchive(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Archive.Path = t.TempDir()

	st, err := OpenArchive(cfg)
	require.NoError(t, err)
	require.NotNil(t, st)

	cfg.Storage.Archive.Type = "s3"
	cfg.Storage.Archive.S3.Bucket = ""
	_, err = OpenArchive(cfg)
	assert.True(t, errors.Is(err, core.ErrConfigMissing))

	cfg.Storage.Archive.Type = "ftp"
	_, err = OpenArchive(cfg)
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
}
