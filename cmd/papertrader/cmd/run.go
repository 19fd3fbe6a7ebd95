package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"papertrader/internal/engine"
	"papertrader/internal/export"
	"papertrader/internal/feed"
	"papertrader/internal/sim"
	"papertrader/strategies/donchian"
	"papertrader/types"

	"github.com/spf13/cobra"
)

var (
	runSource        string
	runRecord        bool
	runQuiet         bool
	runTradesCSV     string
	runTradesParquet string
	runEquityParquet string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay historical candles through the Donchian breakout strategy",
	Long: `Replay the simulation section's symbols from CSV files in data_dir (or
from Postgres aggregates with --source postgres), fill the allocator's orders at
each candle close and print the performance report.

Example:
  papertrader run -c papertrader.yaml --trades-csv trades.csv`,
	RunE: runSimulation,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runSource, "source", "csv", "candle source: csv or postgres")
	runCmd.Flags().BoolVar(&runRecord, "record", false, "mirror fills and snapshots to the configured storage")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "hide the progress bar")
	runCmd.Flags().StringVar(&runTradesCSV, "trades-csv", "", "write executed trades to this CSV file")
	runCmd.Flags().StringVar(&runTradesParquet, "trades-parquet", "", "write executed trades to this Parquet file")
	runCmd.Flags().StringVar(&runEquityParquet, "equity-parquet", "", "write the equity curve to this Parquet file")
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	simCfg := cfg.Simulation

	interval, err := types.ParseInterval(simCfg.Interval)
	if err != nil {
		return err
	}
	start, end, err := simCfg.Window()
	if err != nil {
		return err
	}
	every, err := simCfg.SnapshotInterval()
	if err != nil {
		return err
	}
	riskFree, err := simCfg.RiskFree()
	if err != nil {
		return err
	}
	minConfidence, err := simCfg.MinConfidenceValue()
	if err != nil {
		return err
	}
	capital, rate, err := cfg.Engine.Decimals()
	if err != nil {
		return err
	}

	m := &mirror{close: func() {}}
	if runRecord || runSource == "postgres" {
		if m, err = openMirror(ctx, cfg.Storage, log); err != nil {
			return err
		}
	}
	defer m.close()

	var source sim.CandleSource
	switch runSource {
	case "csv":
		source = feed.NewCSVSource(simCfg.DataDir)
	case "postgres":
		if m.candles == nil {
			return errors.New("--source postgres needs storage.driver postgres")
		}
		source = m.candles
	default:
		return fmt.Errorf("unknown source %q", runSource)
	}

	engOpts := []engine.Option{engine.WithLogger(log)}
	if runRecord {
		engOpts = append(engOpts, m.engineOptions()...)
	}
	eng, err := engine.New(engine.NewConfig(capital, rate), engOpts...)
	if err != nil {
		return err
	}

	symbols := make([]string, len(simCfg.Symbols))
	for i, s := range simCfg.Symbols {
		symbols[i] = strings.ToUpper(s)
	}
	runnerOpts := []sim.Option{sim.WithLogger(log)}
	if !runQuiet {
		runnerOpts = append(runnerOpts, sim.WithProgress(os.Stderr))
	}
	runner := sim.NewRunner(
		sim.Config{
			Symbols:       symbols,
			Interval:      interval,
			Start:         start,
			End:           end,
			SnapshotEvery: every,
			RiskFreeRate:  riskFree,
		},
		eng,
		source,
		donchian.NewStrategy(simCfg.ChannelLength),
		donchian.NewLongOnlyAllocator(simCfg.PositionFraction(), minConfidence),
		runnerOpts...,
	)

	result, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	engine.PrintReport(out, result.Report)
	fmt.Fprintf(out, "Final Value:           %s\n", result.Metrics.TotalValue.StringFixed(2))
	fmt.Fprintf(out, "Orders / Rejected:     %d / %d\n", result.Orders, result.Rejected)

	trades := eng.Trades()
	if runTradesCSV != "" {
		if err := export.WriteTradesCSVFile(runTradesCSV, trades); err != nil {
			return err
		}
		log.Info("trades written", "path", runTradesCSV, "count", len(trades))
	}
	if runTradesParquet != "" {
		if err := export.WriteTradesParquet(runTradesParquet, trades); err != nil {
			return err
		}
		log.Info("trades written", "path", runTradesParquet, "count", len(trades))
	}
	if runEquityParquet != "" {
		snaps := eng.Snapshots(start)
		if err := export.WriteSnapshotsParquet(runEquityParquet, snaps); err != nil {
			return err
		}
		log.Info("equity curve written", "path", runEquityParquet, "count", len(snaps))
	}
	return nil
}
