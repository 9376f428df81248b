package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/arbscan/utils"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "arbscan",
	Short: "A multi-chain round-trip arbitrage quote scanner",
	Long: `A dry-run scanner that quotes base -> quote -> base round trips on
Uniswap V3 QuoterV2 deployments across several EVM chains and reports
spreads and profitable opportunities through a small control API.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (defaults and environment only when empty)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func initConfig() {
	utils.InitLogger(debug)
}
