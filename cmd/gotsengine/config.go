package main

import (
	"fmt"

	"github.com/evdnx/gotsengine/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load the configuration and report the first invalid field",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %d strategies active, min agreement %d, retention %d\n",
			cfg.Strategies.Active(), cfg.Fusion.MinAgreement, cfg.RetentionWindow())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
