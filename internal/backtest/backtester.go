package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/quantguard/internal/core"
	"github.com/newthinker/quantguard/internal/strategy"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// HistorySource supplies historical bars for a symbol
type HistorySource interface {
	GetBars(ctx context.Context, symbol, interval string, start, end time.Time) (core.Series, error)
}

// Recorder receives backtest metrics
type Recorder interface {
	RecordBacktest(status string, duration float64)
	RecordSignal(strategy, direction string)
}

// Request describes one backtest
type Request struct {
	Strategy string          `json:"strategy"`
	Params   strategy.Params `json:"params,omitempty"`
	Symbol   string          `json:"symbol"`
	Interval string          `json:"interval,omitempty"`
	Start    time.Time       `json:"start"`
	End      time.Time       `json:"end"`
	Sim      *SimConfig      `json:"sim,omitempty"` // nil uses the backtester default
}

// BatchResult pairs a request with its outcome
type BatchResult struct {
	Request Request
	Result  *Result
	Err     error
}

// Backtester runs the generate, simulate, analyze pipeline
type Backtester struct {
	source    HistorySource
	registry  *strategy.Registry
	sim       SimConfig
	analytics AnalyticsConfig
	workers   int
	logger    *zap.Logger
	recorder  Recorder
}

// New creates a Backtester reading bars from source and building
// strategies from registry
func New(source HistorySource, registry *strategy.Registry, logger *zap.Logger) *Backtester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backtester{
		source:    source,
		registry:  registry,
		sim:       DefaultSimConfig(),
		analytics: DefaultAnalyticsConfig(),
		workers:   4,
		logger:    logger,
	}
}

// SetSimConfig sets the default simulation parameters
func (b *Backtester) SetSimConfig(cfg SimConfig) {
	b.sim = cfg
}

// SetAnalytics sets annualization parameters
func (b *Backtester) SetAnalytics(cfg AnalyticsConfig) {
	b.analytics = cfg
}

// SetWorkers bounds RunBatch parallelism
func (b *Backtester) SetWorkers(n int) {
	if n > 0 {
		b.workers = n
	}
}

// SetRecorder attaches a metrics recorder
func (b *Backtester) SetRecorder(r Recorder) {
	b.recorder = r
}

// Run executes a backtest for the requested strategy and symbol
func (b *Backtester) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, err := b.run(ctx, req)
	if b.recorder != nil {
		status := "success"
		if err != nil {
			status = "failed"
		}
		b.recorder.RecordBacktest(status, time.Since(start).Seconds())
	}
	return res, err
}

func (b *Backtester) run(ctx context.Context, req Request) (*Result, error) {
	if req.Symbol == "" {
		return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("symbol is required"))
	}
	if !req.End.IsZero() && req.End.Before(req.Start) {
		return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("end %s before start %s",
			req.End.Format(time.DateOnly), req.Start.Format(time.DateOnly)))
	}
	if req.Interval == "" {
		req.Interval = "1d"
	}

	gen, err := b.registry.Build(req.Strategy, req.Params)
	if err != nil {
		return nil, err
	}

	series, err := b.source.GetBars(ctx, req.Symbol, req.Interval, req.Start, req.End)
	if err != nil {
		return nil, fmt.Errorf("fetching bars for %s: %w", req.Symbol, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := b.sim
	if req.Sim != nil {
		cfg = *req.Sim
	}

	res, err := b.RunSeries(ctx, gen, series, cfg)
	if err != nil {
		return nil, err
	}
	res.Params = req.Params
	res.StartDate = req.Start
	res.EndDate = req.End
	if res.StartDate.IsZero() {
		res.StartDate = series.First()
	}
	if res.EndDate.IsZero() {
		res.EndDate = series.Last()
	}
	return res, nil
}

// RunSeries runs an already-built generator over a series in hand
func (b *Backtester) RunSeries(ctx context.Context, gen strategy.Generator, series core.Series, cfg SimConfig) (*Result, error) {
	if series.Len() == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no bars for %s", series.Symbol))
	}
	if err := series.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	signals, err := gen.Generate(series)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", gen.Name(), err)
	}
	if b.recorder != nil {
		for _, sig := range signals {
			b.recorder.RecordSignal(gen.Name(), string(sig.Direction))
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sim, err := Simulate(series, signals, cfg)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := Analyze(sim.Equity, sim.Trades, cfg.InitialCash, b.analytics)

	b.logger.Debug("backtest complete",
		zap.String("strategy", gen.Name()),
		zap.String("symbol", series.Symbol),
		zap.Int("bars", series.Len()),
		zap.Int("signals", len(signals)),
		zap.Int("trades", len(sim.Trades)),
		zap.Float64("total_return", report.TotalReturn),
	)

	return &Result{
		ID:           uuid.NewString(),
		Strategy:     gen.Name(),
		Symbol:       series.Symbol,
		Interval:     series.Interval,
		StartDate:    series.First(),
		EndDate:      series.Last(),
		Config:       cfg,
		Signals:      signals,
		Trades:       sim.Trades,
		Equity:       sim.Equity,
		OpenPosition: sim.Open,
		Report:       report,
	}, nil
}

// RunBatch runs independent requests in parallel. Per-request failures are
// reported in the matching BatchResult; only cancellation fails the batch.
func (b *Backtester) RunBatch(ctx context.Context, reqs []Request) ([]BatchResult, error) {
	out := make([]BatchResult, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	for i, req := range reqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := b.Run(gctx, req)
			out[i] = BatchResult{Request: req, Result: res, Err: err}
			if err != nil {
				b.logger.Warn("backtest failed",
					zap.String("strategy", req.Strategy),
					zap.String("symbol", req.Symbol),
					zap.Error(err),
				)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, ctx.Err()
}
