package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/newthinker/quantguard/internal/core"
	"github.com/newthinker/quantguard/internal/notifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)

type mockNotifier struct {
	mu       sync.Mutex
	name     string
	received []core.Alert
}

func (m *mockNotifier) Name() string                   { return m.name }
func (m *mockNotifier) Init(cfg notifier.Config) error { return nil }
func (m *mockNotifier) Send(_ context.Context, a core.Alert) error {
	m.mu.Lock()
	m.received = append(m.received, a)
	m.mu.Unlock()
	return nil
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.received)
}

func newRouter(t *testing.T, cfg Config) (*Router, *mockNotifier, *core.FixedClock) {
	t.Helper()
	registry := notifier.NewRegistry()
	mock := &mockNotifier{name: "mock"}
	require.NoError(t, registry.Register(mock))

	clock := core.NewFixedClock(t0)
	r := New(cfg, registry, nil)
	r.SetClock(clock)
	return r, mock, clock
}

func stopAlert(symbol string) core.Alert {
	return core.Alert{Kind: core.AlertStopTriggered, Symbol: symbol, At: t0}
}

func TestRouter_Route(t *testing.T) {
	r, mock, _ := newRouter(t, DefaultConfig())

	assert.True(t, r.Route(context.Background(), stopAlert("AAPL")))
	assert.Equal(t, 1, mock.count())
}

func TestRouter_CooldownPerKey(t *testing.T) {
	r, mock, clock := newRouter(t, DefaultConfig())
	ctx := context.Background()

	assert.True(t, r.Route(ctx, stopAlert("AAPL")))
	assert.False(t, r.Route(ctx, stopAlert("AAPL")), "same key inside cooldown")
	assert.True(t, r.Route(ctx, stopAlert("MSFT")), "different key")

	clock.Advance(time.Minute)
	assert.True(t, r.Route(ctx, stopAlert("AAPL")), "cooldown elapsed")
	assert.Equal(t, 3, mock.count())
}

func TestRouter_BreakerAlertsBypassCooldown(t *testing.T) {
	r, mock, _ := newRouter(t, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, r.Route(ctx, core.Alert{Kind: core.AlertBreakerOpened}))
		assert.True(t, r.Route(ctx, core.Alert{Kind: core.AlertBreakerReset}))
	}
	assert.Equal(t, 6, mock.count())
}

func TestRouter_FilterByKind(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnabledKinds = []core.AlertKind{core.AlertBreakerOpened}
	r, mock, _ := newRouter(t, cfg)

	assert.False(t, r.Route(context.Background(), stopAlert("AAPL")))
	assert.True(t, r.Route(context.Background(), core.Alert{Kind: core.AlertBreakerOpened}))
	assert.Equal(t, 1, mock.count())
}

func TestRouter_ClearAndCleanupCooldowns(t *testing.T) {
	r, _, clock := newRouter(t, DefaultConfig())
	ctx := context.Background()

	r.Route(ctx, stopAlert("AAPL"))
	r.Route(ctx, stopAlert("MSFT"))

	r.ClearCooldown(stopAlert("AAPL").Key())
	assert.True(t, r.Route(ctx, stopAlert("AAPL")))

	clock.Advance(3 * time.Minute)
	assert.Equal(t, 2, r.CleanupExpiredCooldowns())
	assert.Equal(t, 0, r.Stats()["cooldowns_active"])
}

func TestRouter_EnqueueAndRun(t *testing.T) {
	r, mock, _ := newRouter(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	assert.True(t, r.Enqueue(stopAlert("AAPL")))
	assert.True(t, r.Enqueue(core.Alert{Kind: core.AlertBreakerOpened}))

	assert.Eventually(t, func() bool { return mock.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestRouter_EnqueueDropsWhenFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueSize = 1
	r, _, _ := newRouter(t, cfg)

	assert.True(t, r.Enqueue(stopAlert("AAPL")))
	assert.False(t, r.Enqueue(stopAlert("MSFT")))
}

func TestRouter_NilRegistry(t *testing.T) {
	r := New(DefaultConfig(), nil, nil)
	assert.True(t, r.Route(context.Background(), stopAlert("AAPL")))
}
