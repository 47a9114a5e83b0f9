// Package metrics exposes Prometheus metrics for the HTTP surface, the
// backtester and the live risk path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "quantguard"

// Registry holds all Prometheus metrics. It satisfies backtest.Recorder and
// risk.Recorder.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Backtest metrics
	backtestsTotal   *prometheus.CounterVec
	backtestDuration prometheus.Histogram
	signalsGenerated *prometheus.CounterVec
	jobsActive       *prometheus.GaugeVec

	// Risk metrics
	stopOrdersActive    prometheus.Gauge
	stopTriggers        *prometheus.CounterVec
	duplicateTriggers   prometheus.Counter
	persistenceFailures *prometheus.CounterVec
	breakerOpen         prometheus.Gauge
	breakerTrips        prometheus.Counter
	dailyRealizedPnL    prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	r.backtestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backtests_total",
			Help:      "Total number of backtests",
		},
		[]string{"status"},
	)
	r.backtestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backtest_duration_seconds",
			Help:      "Backtest duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)
	r.signalsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_generated_total",
			Help:      "Total number of signals generated",
		},
		[]string{"strategy", "direction"},
	)
	r.jobsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_active",
			Help:      "Number of active jobs",
		},
		[]string{"type"},
	)

	r.stopOrdersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stop_orders_active",
			Help:      "Number of active stop-loss orders",
		},
	)
	r.stopTriggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stop_triggers_total",
			Help:      "Total number of stop-loss orders triggered",
		},
		[]string{"side"},
	)
	r.duplicateTriggers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_triggers_total",
			Help:      "Trigger attempts on orders that were no longer active",
		},
	)
	r.persistenceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Failed store operations on the risk path",
		},
		[]string{"op"},
	)
	r.breakerOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_open",
			Help:      "1 while the circuit breaker is open",
		},
	)
	r.breakerTrips = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_trips_total",
			Help:      "Total number of circuit breaker events opened",
		},
	)
	r.dailyRealizedPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "daily_realized_pnl",
			Help:      "Realized P&L of the current trading day",
		},
	)

	reg.MustRegister(r.backtestsTotal)
	reg.MustRegister(r.backtestDuration)
	reg.MustRegister(r.signalsGenerated)
	reg.MustRegister(r.jobsActive)
	reg.MustRegister(r.stopOrdersActive)
	reg.MustRegister(r.stopTriggers)
	reg.MustRegister(r.duplicateTriggers)
	reg.MustRegister(r.persistenceFailures)
	reg.MustRegister(r.breakerOpen)
	reg.MustRegister(r.breakerTrips)
	reg.MustRegister(r.dailyRealizedPnL)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordBacktest records a backtest completion.
func (r *Registry) RecordBacktest(status string, duration float64) {
	r.backtestsTotal.WithLabelValues(status).Inc()
	r.backtestDuration.Observe(duration)
}

// RecordSignal records a generated signal.
func (r *Registry) RecordSignal(strategy, direction string) {
	r.signalsGenerated.WithLabelValues(strategy, direction).Inc()
}

// SetJobsActive sets the number of active jobs of a type.
func (r *Registry) SetJobsActive(jobType string, count int) {
	r.jobsActive.WithLabelValues(jobType).Set(float64(count))
}

func (r *Registry) SetStopOrdersActive(n int) {
	r.stopOrdersActive.Set(float64(n))
}

func (r *Registry) RecordStopTrigger(side string) {
	r.stopTriggers.WithLabelValues(side).Inc()
}

func (r *Registry) RecordDuplicateTrigger() {
	r.duplicateTriggers.Inc()
}

func (r *Registry) RecordPersistenceFailure(op string) {
	r.persistenceFailures.WithLabelValues(op).Inc()
}

func (r *Registry) SetBreakerOpen(open bool) {
	if open {
		r.breakerOpen.Set(1)
		return
	}
	r.breakerOpen.Set(0)
}

func (r *Registry) RecordBreakerTrip() {
	r.breakerTrips.Inc()
}

func (r *Registry) SetDailyPnL(pnl float64) {
	r.dailyRealizedPnL.Set(pnl)
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
