package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/newthinker/quantguard/internal/risk"
	"github.com/spf13/cobra"
)

var (
	stopSymbol   string
	stopEntry    float64
	stopPrice    float64
	stopQuantity float64
	stopStatus   string
	stopLimit    int
)

var stopsCmd = &cobra.Command{
	Use:   "stops",
	Short: "Manage stop-loss orders",
}

var stopsPlaceCmd = &cobra.Command{
	Use:   "place",
	Short: "Place a stop-loss order",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, log, a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer log.Sync()
		defer a.Close()

		o, err := a.Monitor().Place(cmd.Context(), risk.PlaceRequest{
			Symbol:     stopSymbol,
			EntryPrice: stopEntry,
			StopPrice:  stopPrice,
			Quantity:   stopQuantity,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), o)
	},
}

var stopsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stop-loss orders",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, log, a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer log.Sync()
		defer a.Close()

		orders, err := a.Monitor().List(cmd.Context(), risk.OrderFilter{
			Symbol: stopSymbol,
			Status: risk.OrderStatus(strings.ToUpper(stopStatus)),
			Limit:  stopLimit,
		})
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSYMBOL\tSIDE\tENTRY\tSTOP\tQTY\tSTATUS\tPNL")
		for _, o := range orders {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.4f\t%.4f\t%g\t%s\t%.2f\n",
				o.ID, o.Symbol, o.Side, o.EntryPrice, o.StopPrice, o.Quantity, o.Status, o.RealizedPnL)
		}
		return tw.Flush()
	},
}

var stopsCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel an active stop-loss order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, log, a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer log.Sync()
		defer a.Close()

		o, err := a.Monitor().Cancel(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), o)
	},
}

func init() {
	stopsPlaceCmd.Flags().StringVar(&stopSymbol, "symbol", "", "symbol")
	stopsPlaceCmd.Flags().Float64Var(&stopEntry, "entry", 0, "entry price")
	stopsPlaceCmd.Flags().Float64Var(&stopPrice, "stop", 0, "stop price; below entry protects a long, above a short")
	stopsPlaceCmd.Flags().Float64Var(&stopQuantity, "quantity", 0, "position quantity")
	stopsPlaceCmd.MarkFlagRequired("symbol")
	stopsPlaceCmd.MarkFlagRequired("entry")
	stopsPlaceCmd.MarkFlagRequired("stop")
	stopsPlaceCmd.MarkFlagRequired("quantity")

	stopsListCmd.Flags().StringVar(&stopSymbol, "symbol", "", "filter by symbol")
	stopsListCmd.Flags().StringVar(&stopStatus, "status", "", "filter by status: active, triggered, cancelled")
	stopsListCmd.Flags().IntVar(&stopLimit, "limit", 0, "maximum number of orders")

	stopsCmd.AddCommand(stopsPlaceCmd, stopsListCmd, stopsCancelCmd)
	rootCmd.AddCommand(stopsCmd)
}
