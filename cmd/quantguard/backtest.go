package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/quantguard/internal/app"
	"github.com/newthinker/quantguard/internal/backtest"
	"github.com/newthinker/quantguard/internal/collector"
	"github.com/newthinker/quantguard/internal/core"
	"github.com/newthinker/quantguard/internal/storage/archive"
	"github.com/newthinker/quantguard/internal/strategy"
	"github.com/newthinker/quantguard/internal/strategy/builtins"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	backtestData     string
	backtestSymbol   string
	backtestInterval string
	backtestFrom     string
	backtestTo       string
	backtestParams   []string
	backtestArchive  bool
	backtestJSON     bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest <strategy>",
	Short: "Run a strategy over historical bars",
	Args:  cobra.ExactArgs(1),
	RunE:  runBacktest,
}

func init() {
	backtestCmd.Flags().StringVar(&backtestData, "data", "", "bar file (.csv, .parquet) or directory; defaults to storage.data_path")
	backtestCmd.Flags().StringVarP(&backtestSymbol, "symbol", "s", "", "symbol to backtest")
	backtestCmd.Flags().StringVar(&backtestInterval, "interval", "", "bar interval (default from config)")
	backtestCmd.Flags().StringVar(&backtestFrom, "from", "", "start date (YYYY-MM-DD)")
	backtestCmd.Flags().StringVar(&backtestTo, "to", "", "end date (YYYY-MM-DD)")
	backtestCmd.Flags().StringArrayVar(&backtestParams, "param", nil, "strategy parameter key=value (repeatable)")
	backtestCmd.Flags().BoolVar(&backtestArchive, "archive", false, "save the report to the configured archive")
	backtestCmd.Flags().BoolVar(&backtestJSON, "json", false, "print the full result as JSON")
	backtestCmd.MarkFlagRequired("symbol")
	rootCmd.AddCommand(backtestCmd)
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	params, err := parseParams(backtestParams)
	if err != nil {
		return err
	}
	start, err := parseDate(backtestFrom)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	end, err := parseDate(backtestTo)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}

	dataPath := backtestData
	if dataPath == "" {
		dataPath = cfg.Storage.DataPath
	}
	source, err := collector.NewFileSource(dataPath, collector.DefaultRegistry(), log.Named("bars"))
	if err != nil {
		return err
	}

	strategies := builtins.NewRegistry(log)
	if err := app.ConfigureStrategies(strategies, cfg.Strategies); err != nil {
		return err
	}
	bt := backtest.New(source, strategies, log.Named("backtest"))
	bt.SetSimConfig(cfg.Backtest.SimConfig())
	bt.SetAnalytics(cfg.Backtest.Analytics())

	interval := backtestInterval
	if interval == "" {
		interval = cfg.Backtest.Interval
	}
	result, err := bt.Run(cmd.Context(), backtest.Request{
		Strategy: args[0],
		Params:   params,
		Symbol:   backtestSymbol,
		Interval: interval,
		Start:    start,
		End:      end,
	})
	if err != nil {
		return err
	}

	if backtestArchive {
		storage, err := app.OpenArchive(cfg)
		if err != nil {
			return err
		}
		key, err := archive.NewReportArchiver(storage, log).Save(cmd.Context(), result)
		if err != nil {
			return err
		}
		log.Info("report archived", zap.String("key", key))
	}

	if backtestJSON {
		return printJSON(cmd.OutOrStdout(), result)
	}
	printReport(cmd, result)
	return nil
}

func printReport(cmd *cobra.Command, res *backtest.Result) {
	r := res.Report
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s on %s (%s) %s to %s\n", res.Strategy, res.Symbol, res.Interval,
		res.StartDate.Format(time.DateOnly), res.EndDate.Format(time.DateOnly))
	fmt.Fprintf(out, "  Signals:       %d\n", len(res.Signals))
	fmt.Fprintf(out, "  Trades:        %d (won %d, lost %d, win rate %.1f%%)\n",
		r.TotalTrades, r.WinningTrades, r.LosingTrades, r.WinRate*100)
	fmt.Fprintf(out, "  Final equity:  %.2f (initial %.2f)\n", r.FinalEquity, r.InitialCash)
	fmt.Fprintf(out, "  Total return:  %.2f%%\n", r.TotalReturn*100)
	fmt.Fprintf(out, "  CAGR:          %.2f%%\n", r.CAGR*100)
	fmt.Fprintf(out, "  Max drawdown:  %.2f%%\n", r.MaxDrawdown*100)
	fmt.Fprintf(out, "  Sharpe:        %.3f\n", r.SharpeRatio)
	fmt.Fprintf(out, "  Sortino:       %.3f\n", r.SortinoRatio)
	fmt.Fprintf(out, "  Profit factor: %.3f\n", r.ProfitFactor)
	fmt.Fprintf(out, "  Costs:         %.2f\n", r.TotalCost)
}

// parseParams turns key=value pairs into strategy params. Numbers and
// booleans are typed; anything else stays a string.
func parseParams(pairs []string) (strategy.Params, error) {
	params := strategy.Params{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("--param %q must be key=value", pair))
		}
		value = strings.TrimSpace(value)
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			params[key] = f
		} else if b, err := strconv.ParseBool(value); err == nil {
			params[key] = b
		} else {
			params[key] = value
		}
	}
	return params, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, core.WrapError(core.ErrInvalidInput, err)
	}
	return t, nil
}
