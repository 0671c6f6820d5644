package main

import (
	"github.com/spf13/cobra"
)

var configPath string

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "llmgate",
		Short:        "LLM gateway with token auth, quota ledger, streaming relay and usage metering",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "llmgate.yaml", "Path to configuration file")

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(tokensCmd())
	cmd.AddCommand(usageCmd())
	cmd.AddCommand(versionCmd())

	return cmd
}
