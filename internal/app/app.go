// Package app wires the live risk path: stop-loss monitor, circuit breaker,
// position planner, quote cache and alert routing.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/newthinker/quantguard/internal/backtest"
	"github.com/newthinker/quantguard/internal/collector"
	"github.com/newthinker/quantguard/internal/config"
	"github.com/newthinker/quantguard/internal/core"
	"github.com/newthinker/quantguard/internal/feed"
	"github.com/newthinker/quantguard/internal/metrics"
	"github.com/newthinker/quantguard/internal/notifier"
	"github.com/newthinker/quantguard/internal/notifier/telegram"
	"github.com/newthinker/quantguard/internal/notifier/webhook"
	"github.com/newthinker/quantguard/internal/risk"
	"github.com/newthinker/quantguard/internal/router"
	"github.com/newthinker/quantguard/internal/storage/archive"
	"github.com/newthinker/quantguard/internal/storage/riskstore"
	"github.com/newthinker/quantguard/internal/strategy"
	"github.com/newthinker/quantguard/internal/strategy/builtins"
	"go.uber.org/zap"
)

// App is the main application orchestrator
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	clock  core.Clock
	loc    *time.Location

	store      risk.Store
	limits     *risk.ConfigHolder
	breaker    *risk.Breaker
	monitor    *risk.Monitor
	planner    *risk.Planner
	quotes     *feed.Quotes
	strategies *strategy.Registry
	backtester *backtest.Backtester
	reports    *archive.ReportArchiver
	notifiers  *notifier.Registry
	router     *router.Router

	resetHour, resetMinute int
	resetEnabled           bool

	mu           sync.RWMutex
	running      bool
	cancel       context.CancelFunc
	lastResetDay string
	cycles       int64
	triggers     int64
}

// New builds the application around store. cfg must already be validated.
func New(cfg *config.Config, store risk.Store, clock core.Clock, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		cfg = config.Defaults()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = core.SystemClock{}
	}
	if store == nil {
		store = riskstore.NewMemoryStore()
	}

	loc, err := cfg.Monitor.Location()
	if err != nil {
		return nil, err
	}
	hour, minute, resetEnabled, err := cfg.Monitor.ResetTime()
	if err != nil {
		return nil, err
	}

	limits, err := risk.NewConfigHolder(cfg.Risk.Limits(), logger)
	if err != nil {
		return nil, err
	}

	breaker := risk.NewBreaker(store, limits, clock, loc, logger.Named("breaker"))
	monitor := risk.NewMonitor(store, breaker, clock, logger.Named("stoploss"))
	planner := risk.NewPlanner(limits, monitor, logger.Named("planner"))

	notifiers, err := buildNotifiers(cfg.Notifiers)
	if err != nil {
		return nil, err
	}
	r := router.New(routerConfig(cfg.Router), notifiers, logger.Named("router"))
	r.SetClock(clock)

	strategies := builtins.NewRegistry(logger)
	if err := ConfigureStrategies(strategies, cfg.Strategies); err != nil {
		return nil, err
	}
	bt := backtest.New(barSource(cfg.Storage.DataPath, logger), strategies, logger.Named("backtest"))
	bt.SetSimConfig(cfg.Backtest.SimConfig())
	bt.SetAnalytics(cfg.Backtest.Analytics())
	bt.SetWorkers(cfg.Backtest.Workers)

	a := &App{
		cfg:          cfg,
		logger:       logger,
		clock:        clock,
		loc:          loc,
		store:        store,
		limits:       limits,
		breaker:      breaker,
		monitor:      monitor,
		planner:      planner,
		quotes:       feed.NewQuotes(clock, cfg.Monitor.QuoteMaxAge),
		strategies:   strategies,
		backtester:   bt,
		notifiers:    notifiers,
		router:       r,
		resetHour:    hour,
		resetMinute:  minute,
		resetEnabled: resetEnabled,
	}

	monitor.OnAlert(a.enqueue)
	breaker.OnAlert(a.enqueue)
	return a, nil
}

// SetMetrics attaches the metrics registry to every recorder
func (a *App) SetMetrics(reg *metrics.Registry) {
	if reg == nil {
		return
	}
	a.breaker.SetRecorder(reg)
	a.monitor.SetRecorder(reg)
	a.backtester.SetRecorder(reg)
}

// SetArchive enables saving backtest reports
func (a *App) SetArchive(reports *archive.ReportArchiver) {
	a.mu.Lock()
	a.reports = reports
	a.mu.Unlock()
}

// RegisterNotifier adds a notifier to the app
func (a *App) RegisterNotifier(n notifier.Notifier) error {
	return a.notifiers.Register(n)
}

func (a *App) Config() *config.Config           { return a.cfg }
func (a *App) Clock() core.Clock                { return a.clock }
func (a *App) Location() *time.Location         { return a.loc }
func (a *App) Limits() *risk.ConfigHolder       { return a.limits }
func (a *App) Breaker() *risk.Breaker           { return a.breaker }
func (a *App) Monitor() *risk.Monitor           { return a.monitor }
func (a *App) Planner() *risk.Planner           { return a.planner }
func (a *App) Quotes() *feed.Quotes             { return a.quotes }
func (a *App) Strategies() *strategy.Registry   { return a.strategies }
func (a *App) Backtester() *backtest.Backtester { return a.backtester }
func (a *App) Router() *router.Router           { return a.router }
func (a *App) Notifiers() *notifier.Registry    { return a.notifiers }

// Reports returns the backtest archive, or nil when none is configured
func (a *App) Reports() *archive.ReportArchiver {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.reports
}

// Restore loads persisted ACTIVE orders and any open breaker event
func (a *App) Restore(ctx context.Context) error {
	if err := a.breaker.Restore(ctx); err != nil {
		return err
	}
	return a.monitor.Restore(ctx)
}

// Start restores state and runs the poll and evaluate loops until ctx is
// done or Stop is called
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app already running")
	}
	a.running = true

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	if err := a.Restore(ctx); err != nil {
		cancel()
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.router.Run(ctx)
	}()
	defer wg.Wait()

	poll := a.cfg.Monitor.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	evaluate := a.cfg.Monitor.EvaluateInterval
	if evaluate <= 0 {
		evaluate = time.Minute
	}

	a.logger.Info("quantguard risk loop starting",
		zap.Duration("poll_interval", poll),
		zap.Duration("evaluate_interval", evaluate),
		zap.String("timezone", a.loc.String()),
		zap.Int("notifiers", a.notifiers.Len()),
	)

	a.evaluateCycle(ctx)

	pollTicker := time.NewTicker(poll)
	defer pollTicker.Stop()
	evalTicker := time.NewTicker(evaluate)
	defer evalTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("quantguard risk loop shutting down")
			return ctx.Err()
		case <-pollTicker.C:
			a.pollCycle(ctx)
		case <-evalTicker.C:
			a.evaluateCycle(ctx)
		}
	}
}

// Stop stops the risk loop
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

// RunOnce performs one poll and one evaluation cycle
func (a *App) RunOnce(ctx context.Context) {
	a.pollCycle(ctx)
	a.evaluateCycle(ctx)
}

// pollCycle checks every active order against the cached quotes
func (a *App) pollCycle(ctx context.Context) {
	events, err := a.monitor.Poll(ctx, a.quotes)
	if err != nil {
		a.logger.Error("stop-loss poll failed", zap.Error(err))
	}
	if len(events) > 0 {
		a.mu.Lock()
		a.triggers += int64(len(events))
		a.mu.Unlock()
	}
}

// evaluateCycle applies the scheduled session reset, then recomputes the
// day's realized P&L so a day rollover is picked up without a trigger
func (a *App) evaluateCycle(ctx context.Context) {
	now := a.clock.Now()
	a.checkSessionReset(ctx, now)

	st, err := a.breaker.Evaluate(ctx, now)
	if err != nil {
		a.logger.Error("breaker evaluation failed", zap.Error(err))
	}

	a.mu.Lock()
	a.cycles++
	a.mu.Unlock()

	a.logger.Debug("breaker evaluated",
		zap.Bool("open", st.Open),
		zap.String("day", st.Day),
		zap.Float64("daily_pnl", st.DailyPnL),
	)
}

// checkSessionReset resets a breaker opened before today's session reset
// time. It fires at most once per local day.
func (a *App) checkSessionReset(ctx context.Context, now time.Time) {
	if !a.resetEnabled {
		return
	}
	lt := now.In(a.loc)
	resetAt := time.Date(lt.Year(), lt.Month(), lt.Day(), a.resetHour, a.resetMinute, 0, 0, a.loc)
	if now.Before(resetAt) {
		return
	}
	day := core.DayKey(now, a.loc)

	a.mu.Lock()
	if a.lastResetDay == day {
		a.mu.Unlock()
		return
	}
	a.lastResetDay = day
	a.mu.Unlock()

	st := a.breaker.Status()
	if st.Event == nil || !st.Event.TriggeredAt.Before(resetAt) {
		return
	}
	if _, err := a.breaker.Reset(ctx, "scheduled session reset"); err != nil {
		a.logger.Error("scheduled breaker reset failed", zap.Error(err))
		a.mu.Lock()
		a.lastResetDay = ""
		a.mu.Unlock()
	}
}

func (a *App) enqueue(alert core.Alert) {
	if !a.router.Enqueue(alert) {
		a.logger.Warn("alert dropped", zap.String("key", alert.Key()))
	}
}

// Stats returns application statistics
func (a *App) Stats() map[string]any {
	a.mu.RLock()
	running, cycles, triggers := a.running, a.cycles, a.triggers
	a.mu.RUnlock()

	snap := a.monitor.Snapshot()
	return map[string]any{
		"running":       running,
		"cycles":        cycles,
		"triggers":      triggers,
		"active_orders": len(snap.Active),
		"breaker_open":  snap.Breaker.Open,
		"daily_pnl":     snap.Breaker.DailyPnL,
		"quotes":        len(a.quotes.All()),
		"strategies":    len(a.strategies.Names()),
		"notifiers":     a.notifiers.Len(),
		"router":        a.router.Stats(),
	}
}

// Close releases the store
func (a *App) Close() error {
	return a.store.Close()
}

// OpenStore opens the risk store named by cfg: SQLite when a path is set,
// memory otherwise
func OpenStore(cfg *config.Config) (risk.Store, error) {
	path := cfg.Storage.SQLite.Path
	if path == "" {
		return riskstore.NewMemoryStore(), nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, core.WrapError(core.ErrPersistenceFailure, fmt.Errorf("creating %s: %w", dir, err))
		}
	}
	return riskstore.NewSQLiteStore(path)
}

// OpenArchive opens the report storage backend named by cfg
func OpenArchive(cfg *config.Config) (archive.Storage, error) {
	ac := cfg.Storage.Archive
	switch ac.Type {
	case "", "localfs":
		return archive.NewLocalFS(ac.Path)
	case "s3":
		return archive.NewS3(archive.S3Config{
			Bucket:    ac.S3.Bucket,
			Endpoint:  ac.S3.Endpoint,
			Region:    ac.S3.Region,
			AccessKey: ac.S3.AccessKey,
			SecretKey: ac.S3.SecretKey,
			Prefix:    ac.S3.Prefix,
		})
	default:
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown archive type %q", ac.Type))
	}
}

func buildNotifiers(cfgs map[string]config.NotifierConfig) (*notifier.Registry, error) {
	reg := notifier.NewRegistry()
	for name, nc := range cfgs {
		if !nc.Enabled {
			continue
		}
		var n notifier.Notifier
		params := map[string]any{}
		switch name {
		case "telegram":
			n = telegram.New(nc.BotToken, nc.ChatID)
			params["base_url"] = nc.BaseURL
		case "webhook":
			n = webhook.New(nc.URL, nc.Headers)
		default:
			return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown notifier %q", name))
		}
		if err := n.Init(notifier.Config{Type: name, Params: params}); err != nil {
			return nil, err
		}
		if err := reg.Register(n); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func routerConfig(rc config.RouterConfig) router.Config {
	cfg := router.Config{
		CooldownDuration: rc.Cooldown,
		QueueSize:        rc.QueueSize,
	}
	for _, k := range rc.EnabledKinds {
		cfg.EnabledKinds = append(cfg.EnabledKinds, core.AlertKind(k))
	}
	if len(cfg.EnabledKinds) == 0 {
		cfg.EnabledKinds = router.DefaultConfig().EnabledKinds
	}
	return cfg
}

// ConfigureStrategies applies the strategies config section. A listed
// strategy that is not enabled is unregistered; the params of an enabled one
// become its defaults and must build.
func ConfigureStrategies(reg *strategy.Registry, cfgs map[string]config.StrategyConfig) error {
	for name, sc := range cfgs {
		if !reg.Has(name) {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("strategies: unknown strategy %q", name))
		}
		if !sc.Enabled {
			reg.Remove(name)
			continue
		}
		if err := reg.SetDefaults(name, strategy.Params(sc.Params)); err != nil {
			return err
		}
		if _, err := reg.Build(name, nil); err != nil {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("strategies.%s: %w", name, err))
		}
	}
	return nil
}

// barSource opens the configured bar files. A missing path leaves a source
// that fails every request with NO_DATA so the live path still starts.
func barSource(path string, logger *zap.Logger) backtest.HistorySource {
	src, err := collector.NewFileSource(path, collector.DefaultRegistry(), logger.Named("bars"))
	if err != nil {
		logger.Warn("bar data unavailable, backtests disabled",
			zap.String("path", path),
			zap.Error(err),
		)
		return unavailableSource{err: err}
	}
	return src
}

type unavailableSource struct{ err error }

func (s unavailableSource) GetBars(context.Context, string, string, time.Time, time.Time) (core.Series, error) {
	return core.Series{}, s.err
}
