package main

import (
	"fmt"
	"os"

	"github.com/newthinker/quantguard/internal/collector"
	"github.com/spf13/cobra"
)

var (
	replayTicks string
	replayJSON  bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Push recorded ticks through the stop-loss monitor",
	Long: `replay reads time,symbol,price rows and feeds them, in order, to the
stop-loss monitor on the configured store. Triggers and breaker events are
persisted exactly as they would be live.`,
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayTicks, "ticks", "", "tick CSV file")
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "print the full report as JSON")
	replayCmd.MarkFlagRequired("ticks")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(replayTicks)
	if err != nil {
		return fmt.Errorf("opening ticks: %w", err)
	}
	defer f.Close()
	ticks, err := collector.ReadTicksCSV(f)
	if err != nil {
		return err
	}

	_, log, a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close()

	report, err := a.Replay(cmd.Context(), ticks)
	if err != nil {
		return err
	}

	if replayJSON {
		return printJSON(cmd.OutOrStdout(), report)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Ticks: %d (skipped %d, failed %d)\n", report.Ticks, report.Skipped, report.Failed)
	fmt.Fprintf(out, "Triggers: %d\n", len(report.Triggers))
	for _, ev := range report.Triggers {
		o := ev.Order
		fmt.Fprintf(out, "  %s %s %s stop %.4f exit %.4f pnl %.2f\n",
			o.TriggeredAt.Format("2006-01-02 15:04:05"), o.Symbol, o.Side, o.StopPrice, o.ExitPrice, o.RealizedPnL)
	}
	fmt.Fprintf(out, "Breaker open: %t (day %s, realized %.2f)\n",
		report.Breaker.Open, report.Breaker.Day, report.Breaker.DailyPnL)
	if report.Failed > 0 {
		return fmt.Errorf("%d ticks failed to evaluate", report.Failed)
	}
	return nil
}
