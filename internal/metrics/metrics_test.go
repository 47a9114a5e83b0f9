package metrics

import (
	"testing"

	"github.com/newthinker/quantguard/internal/backtest"
	"github.com/newthinker/quantguard/internal/risk"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ backtest.Recorder = (*Registry)(nil)
	_ risk.Recorder     = (*Registry)(nil)
)

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs, "runtime collectors are registered")
}

func TestRegistry_BacktestMetrics(t *testing.T) {
	reg := NewRegistry()
	reg.RecordBacktest("success", 0.2)
	reg.RecordBacktest("failed", 0.1)
	reg.RecordSignal("ma_crossover", "LONG_ENTRY")
	reg.SetJobsActive("backtest", 3)

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.backtestsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.signalsGenerated.WithLabelValues("ma_crossover", "LONG_ENTRY")))
	assert.Equal(t, 3.0, testutil.ToFloat64(reg.jobsActive.WithLabelValues("backtest")))
}

func TestRegistry_RiskMetrics(t *testing.T) {
	reg := NewRegistry()
	reg.SetStopOrdersActive(4)
	reg.RecordStopTrigger("LONG")
	reg.RecordStopTrigger("LONG")
	reg.RecordDuplicateTrigger()
	reg.RecordPersistenceFailure("mark_triggered")
	reg.SetBreakerOpen(true)
	reg.RecordBreakerTrip()
	reg.SetDailyPnL(-3300)

	assert.Equal(t, 4.0, testutil.ToFloat64(reg.stopOrdersActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(reg.stopTriggers.WithLabelValues("LONG")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.duplicateTriggers))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.persistenceFailures.WithLabelValues("mark_triggered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.breakerOpen))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.breakerTrips))
	assert.Equal(t, -3300.0, testutil.ToFloat64(reg.dailyRealizedPnL))

	reg.SetBreakerOpen(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(reg.breakerOpen))
}

func TestRegistry_RecordRequest(t *testing.T) {
	reg := NewRegistry()
	reg.RecordRequest("GET", "/api/v1/breaker", 200, 0.05)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["http_requests_total"])
	assert.True(t, names["quantguard_stop_orders_active"])
}
