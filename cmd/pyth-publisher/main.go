package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/StrathCole/pyth-publisher/pkg/version"

	// Import sources to register them
	_ "github.com/StrathCole/pyth-publisher/pkg/sources/cex"
	_ "github.com/StrathCole/pyth-publisher/pkg/sources/evm"
)

var (
	configFile string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "pyth-publisher",
	Short: "Publish weighted market prices to a Pyth agent",
	Long: `pyth-publisher polls CoinGecko, CoinMarketCap and Uniswap V3 pool oracles,
mixes their latest prices per symbol and answers the Pyth agent's price
schedule notifications with update_price.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "config/config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a KEY=VALUE file loaded into the environment")

	rootCmd.AddCommand(publisherCmd, versionCmd)

	// Running without a subcommand starts the publisher
	rootCmd.RunE = publisherCmd.RunE
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
