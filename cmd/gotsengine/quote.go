package main

import (
	"fmt"

	"github.com/evdnx/gotsengine/config"
	"github.com/evdnx/gotsengine/fee"
	"github.com/spf13/cobra"
)

var (
	quotePrice int64
	quoteQty   int64
	quoteMode  string
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Show fees and the breakeven sell price for a buy",
	Example: `  gotsengine quote --price 75000 --qty 10
  gotsengine quote --price 75000 --qty 10 --mode real`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if quotePrice <= 0 || quoteQty <= 0 {
			return fmt.Errorf("price and qty must be positive")
		}
		s, err := fee.FromConfig(config.FeeConfig{Mode: quoteMode})
		if err != nil {
			return err
		}
		q := s.Quote(quotePrice, quoteQty)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "schedule:   %s\n", s.Name)
		fmt.Fprintf(out, "amount:     %d\n", quotePrice*quoteQty)
		fmt.Fprintf(out, "buy fee:    %d\n", q.BuyFee)
		fmt.Fprintf(out, "sell fee:   %d\n", q.SellFee)
		fmt.Fprintf(out, "breakeven:  %d\n", q.Breakeven)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(quoteCmd)
	quoteCmd.Flags().Int64Var(&quotePrice, "price", 0, "buy price per share")
	quoteCmd.Flags().Int64Var(&quoteQty, "qty", 1, "share count")
	quoteCmd.Flags().StringVar(&quoteMode, "mode", config.FeeModeSimulation, "fee schedule (simulation, real)")
}
