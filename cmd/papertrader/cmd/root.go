package cmd

import (
	"log/slog"
	"os"

	"papertrader/internal/config"
	"papertrader/internal/logging"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "papertrader",
	Short: "Paper-trading portfolio engine with an HTTP API and historical replay",
	Long: `papertrader keeps a simulated cash-and-positions ledger, fills market
orders against it with commission, and reports valuation and performance.

It provides:
  - serve: the trading and portfolio HTTP API with a live websocket stream
  - run:   a historical replay of a Donchian breakout strategy
  - config: generation and validation of configuration files`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (defaults plus environment overrides when unset)")
}

// loadConfig reads the --config file and builds the process logger from it.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
