package main

import (
	"errors"
	"fmt"

	"github.com/newthinker/quantguard/internal/core"
	"github.com/newthinker/quantguard/internal/sizing"
	"github.com/spf13/cobra"
)

var (
	sizeEntry       float64
	sizeStop        float64
	sizeBalance     float64
	sizeRisk        float64
	sizeMaxPosition float64
	sizeJSON        bool
)

var sizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Compute a capital-at-risk position size",
	RunE:  runSize,
}

func init() {
	sizeCmd.Flags().Float64Var(&sizeEntry, "entry", 0, "entry price")
	sizeCmd.Flags().Float64Var(&sizeStop, "stop", 0, "stop-loss price")
	sizeCmd.Flags().Float64Var(&sizeBalance, "balance", 0, "account balance")
	sizeCmd.Flags().Float64Var(&sizeRisk, "risk", 0, "fraction of balance to risk (default risk.max_risk_fraction)")
	sizeCmd.Flags().Float64Var(&sizeMaxPosition, "max-position", 0, "max position value (default risk.max_position_value)")
	sizeCmd.Flags().BoolVar(&sizeJSON, "json", false, "print the result as JSON")
	sizeCmd.MarkFlagRequired("entry")
	sizeCmd.MarkFlagRequired("stop")
	sizeCmd.MarkFlagRequired("balance")
	rootCmd.AddCommand(sizeCmd)
}

func runSize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	limits := cfg.Risk.Limits()
	if sizeRisk == 0 {
		sizeRisk = limits.MaxRiskFraction
	}
	if sizeMaxPosition == 0 {
		sizeMaxPosition = limits.MaxPositionValue
	}

	res, err := sizing.SizeFloat(sizeEntry, sizeStop, sizeBalance, sizeRisk, sizeMaxPosition)
	if err != nil && !errors.Is(err, core.ErrInvalidStopPrice) {
		return err
	}

	if sizeJSON {
		return printJSON(cmd.OutOrStdout(), res)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Recommendation: %s\n", res.Recommendation)
	if res.Reason != "" {
		fmt.Fprintf(out, "  Reason:         %s\n", res.Reason)
	}
	fmt.Fprintf(out, "  Quantity:       %d\n", res.Quantity)
	fmt.Fprintf(out, "  Risk per unit:  %s\n", res.RiskPerUnit.StringFixed(4))
	fmt.Fprintf(out, "  Risk budget:    %s\n", res.RiskBudget.StringFixed(2))
	fmt.Fprintf(out, "  Risk amount:    %s\n", res.RiskAmount.StringFixed(2))
	fmt.Fprintf(out, "  Position value: %s\n", res.PositionValue.StringFixed(2))
	if res.Capped {
		fmt.Fprintln(out, "  Capped by max position value")
	}
	return nil
}
