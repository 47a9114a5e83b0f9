package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	breakerReason string
	breakerEvents int
)

var breakerCmd = &cobra.Command{
	Use:   "breaker",
	Short: "Inspect and control the daily-loss circuit breaker",
}

var breakerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show breaker state and recent events",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, log, a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer log.Sync()
		defer a.Close()

		st, err := a.Breaker().Evaluate(cmd.Context(), a.Clock().Now())
		if err != nil {
			return err
		}
		events, err := a.Breaker().Events(cmd.Context(), breakerEvents)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		state := "CLOSED"
		if st.Open {
			state = "OPEN"
		}
		fmt.Fprintf(out, "Breaker: %s\n", state)
		fmt.Fprintf(out, "  Day:            %s\n", st.Day)
		fmt.Fprintf(out, "  Realized P&L:   %.2f\n", st.DailyPnL)
		fmt.Fprintf(out, "  Max daily loss: %.2f\n", st.MaxDailyLoss)
		if len(events) > 0 {
			fmt.Fprintln(out, "Events:")
		}
		for _, ev := range events {
			reset := "open"
			if ev.ResetAt != nil {
				reset = "reset " + ev.ResetAt.Format(time.RFC3339) + " (" + ev.ResetReason + ")"
			}
			fmt.Fprintf(out, "  %s  %s  %.2f (%.0f%%)  %s  %s\n",
				ev.Day, ev.TriggeredAt.Format(time.RFC3339), ev.DailyPnL, ev.LossPercentage, ev.Reason, reset)
		}
		return nil
	},
}

var breakerResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset an open breaker",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, log, a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer log.Sync()
		defer a.Close()

		ev, err := a.Breaker().Reset(cmd.Context(), breakerReason)
		if err != nil {
			return err
		}
		if ev == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "breaker already closed")
			return nil
		}
		return printJSON(cmd.OutOrStdout(), ev)
	},
}

var breakerTripCmd = &cobra.Command{
	Use:   "trip",
	Short: "Open the breaker by hand",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, log, a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer log.Sync()
		defer a.Close()

		ev, err := a.Breaker().Trip(cmd.Context(), breakerReason)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), ev)
	},
}

func init() {
	breakerStatusCmd.Flags().IntVar(&breakerEvents, "events", 5, "number of recent events to show")
	breakerResetCmd.Flags().StringVar(&breakerReason, "reason", "", "reason recorded with the reset")
	breakerTripCmd.Flags().StringVar(&breakerReason, "reason", "", "reason recorded with the event")

	breakerCmd.AddCommand(breakerStatusCmd, breakerResetCmd, breakerTripCmd)
	rootCmd.AddCommand(breakerCmd)
}
