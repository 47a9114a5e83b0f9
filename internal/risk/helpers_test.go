package risk_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/newthinker/quantguard/internal/core"
	"github.com/newthinker/quantguard/internal/risk"
	"github.com/newthinker/quantguard/internal/storage/riskstore"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)

// flakyStore counts writes and can fail them on demand
type flakyStore struct {
	risk.Store

	mu            sync.Mutex
	failTrigger   bool
	failInsertEvt bool
	triggerWrites int

	// pnlHold, when set, parks DailyRealizedPnL until it is closed;
	// pnlEntered receives once a call is parked
	pnlHold    chan struct{}
	pnlEntered chan struct{}
}

func (f *flakyStore) DailyRealizedPnL(ctx context.Context, start, end time.Time) (float64, error) {
	f.mu.Lock()
	hold, entered := f.pnlHold, f.pnlEntered
	f.mu.Unlock()
	if hold != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-hold
	}
	return f.Store.DailyRealizedPnL(ctx, start, end)
}

func (f *flakyStore) holdPnL() (release func()) {
	f.mu.Lock()
	f.pnlHold = make(chan struct{})
	f.pnlEntered = make(chan struct{}, 1)
	hold := f.pnlHold
	f.mu.Unlock()
	return func() { close(hold) }
}

func (f *flakyStore) MarkTriggered(ctx context.Context, id string, exitPrice, pnl float64, at time.Time) error {
	f.mu.Lock()
	fail := f.failTrigger
	if !fail {
		f.triggerWrites++
	}
	f.mu.Unlock()

	if fail {
		return core.WrapError(core.ErrPersistenceFailure, context.DeadlineExceeded)
	}
	return f.Store.MarkTriggered(ctx, id, exitPrice, pnl, at)
}

func (f *flakyStore) InsertBreakerEvent(ctx context.Context, e risk.BreakerEvent) error {
	f.mu.Lock()
	fail := f.failInsertEvt
	f.mu.Unlock()
	if fail {
		return core.WrapError(core.ErrPersistenceFailure, context.DeadlineExceeded)
	}
	return f.Store.InsertBreakerEvent(ctx, e)
}

func (f *flakyStore) set(trigger, event bool) {
	f.mu.Lock()
	f.failTrigger, f.failInsertEvt = trigger, event
	f.mu.Unlock()
}

func (f *flakyStore) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.triggerWrites
}

type fixture struct {
	store   *flakyStore
	clock   *core.FixedClock
	limits  *risk.ConfigHolder
	breaker *risk.Breaker
	monitor *risk.Monitor
	alerts  *alertLog
}

func newFixture(t *testing.T, maxDailyLoss float64) *fixture {
	t.Helper()

	cfg := risk.DefaultConfig()
	cfg.MaxDailyLoss = maxDailyLoss
	limits, err := risk.NewConfigHolder(cfg, nil)
	require.NoError(t, err)

	store := &flakyStore{Store: riskstore.NewMemoryStore()}
	clock := core.NewFixedClock(t0)
	breaker := risk.NewBreaker(store, limits, clock, time.UTC, nil)
	monitor := risk.NewMonitor(store, breaker, clock, nil)

	alerts := &alertLog{}
	breaker.OnAlert(alerts.add)
	monitor.OnAlert(alerts.add)

	return &fixture{
		store:   store,
		clock:   clock,
		limits:  limits,
		breaker: breaker,
		monitor: monitor,
		alerts:  alerts,
	}
}

func (f *fixture) place(t *testing.T, symbol string, entry, stop, qty float64) risk.StopOrder {
	t.Helper()
	o, err := f.monitor.Place(context.Background(), risk.PlaceRequest{
		Symbol:     symbol,
		EntryPrice: entry,
		StopPrice:  stop,
		Quantity:   qty,
	})
	require.NoError(t, err)
	return o
}

type alertLog struct {
	mu     sync.Mutex
	alerts []core.Alert
}

func (l *alertLog) add(a core.Alert) {
	l.mu.Lock()
	l.alerts = append(l.alerts, a)
	l.mu.Unlock()
}

func (l *alertLog) kinds() []core.AlertKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]core.AlertKind, len(l.alerts))
	for i, a := range l.alerts {
		out[i] = a.Kind
	}
	return out
}

// mapFeed is a PriceFeed over a fixed quote map
type mapFeed map[string]float64

func (m mapFeed) CurrentPrice(symbol string) (float64, bool) {
	p, ok := m[symbol]
	return p, ok
}
