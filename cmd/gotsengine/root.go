package main

import (
	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "gotsengine",
	Short: "Signal fusion and risk-gated trading decisions",
	Long: `gotsengine turns a stream of prices into risk-gated orders.

Each tick runs the enabled strategies, fuses their votes under a
minimum-agreement rule and passes the result through the risk gate
(position sizing, stop-loss / take-profit, daily loss breaker and
fee-adjusted breakeven) before an order reaches the broker.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (yaml, toml or json); env GOTSENGINE_* overrides")
}
