package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"papertrader/internal/api"
	"papertrader/internal/engine"

	"github.com/spf13/cobra"
)

var snapshotEvery time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the trading and portfolio HTTP API",
	Long: `Start the HTTP API over a ledger seeded with the configured initial
capital. With a storage driver the ledger is rebuilt from the stored trade log
on startup, and every fill, order, position and snapshot is mirrored back. The
websocket stream at /api/stream pushes metrics after every change.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().DurationVar(&snapshotEvery, "snapshot-every", time.Hour, "interval between equity snapshots (0 disables)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := openMirror(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	defer m.close()

	capital, rate, err := cfg.Engine.Decimals()
	if err != nil {
		return err
	}
	riskFree, err := cfg.Simulation.RiskFree()
	if err != nil {
		return err
	}

	hub := api.NewHub(log, api.OriginChecker(cfg.Server.CORSOrigins))
	srvOpts := []api.Option{
		api.WithHub(hub),
		api.WithLogger(log),
		api.WithCORSOrigins(cfg.Server.CORSOrigins),
		api.WithRiskFreeRate(riskFree),
		api.WithPriceHistory(newPriceHistory(m, cfg.Simulation)),
	}
	if m.store != nil {
		srvOpts = append(srvOpts, api.WithHistory(m.store))
	}

	engOpts := append(m.engineOptions(), engine.WithLogger(log), engine.WithListener(hub))
	eng, err := engine.New(engine.NewConfig(capital, rate), engOpts...)
	if err != nil {
		return err
	}
	if m.store != nil {
		if err := eng.Resume(ctx, m.store); err != nil {
			return fmt.Errorf("resume ledger from %s: %w", cfg.Storage.Driver, err)
		}
	}
	srv := api.NewServer(eng, srvOpts...)
	go hub.Run(ctx)

	eng.RecordSnapshot(ctx, time.Now())
	if snapshotEvery > 0 {
		go recordSnapshots(ctx, eng, snapshotEvery)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("api listening", "addr", httpSrv.Addr, "initial_capital", capital.String(), "commission_rate", rate.String())
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		eng.RecordSnapshot(shutdownCtx, time.Now())
	}
	return nil
}

func recordSnapshots(ctx context.Context, eng *engine.Engine, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			eng.RecordSnapshot(ctx, t)
		}
	}
}
