package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"papertrader/internal/api"
	"papertrader/internal/config"
	"papertrader/internal/engine"
	"papertrader/internal/feed"
	"papertrader/internal/journal"
	"papertrader/internal/repository"
	"papertrader/internal/sim"
	"papertrader/types"
)

// ledgerStore is a durable mirror that can also serve history and be
// replayed into a fresh engine.
type ledgerStore interface {
	engine.Recorder
	engine.Journal
	api.History
}

// mirror is the storage selected by the storage section. store and candles
// are nil for the "none" driver; candles is only set for postgres.
type mirror struct {
	store   ledgerStore
	candles sim.CandleSource
	close   func()
}

func (m *mirror) engineOptions() []engine.Option {
	if m.store == nil {
		return nil
	}
	return []engine.Option{engine.WithRecorder(m.store)}
}

func openMirror(ctx context.Context, cfg config.Storage, log *slog.Logger) (*mirror, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		store, err := journal.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite journal: %w", err)
		}
		log.Info("ledger mirror", "driver", cfg.Driver, "path", cfg.SQLitePath)
		return &mirror{
			store: store,
			close: func() {
				if err := store.Close(); err != nil {
					log.Warn("closing sqlite journal", "error", err)
				}
			},
		}, nil
	case config.DriverPostgres:
		db, err := repository.NewDatabase(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		log.Info("ledger mirror", "driver", cfg.Driver)
		return &mirror{store: db, candles: db, close: db.Close}, nil
	}
	return &mirror{close: func() {}}, nil
}

// priceHistory serves the /api/data routes from a candle source. Missing data
// is reported as api.ErrNoPrices.
type priceHistory struct {
	source     sim.CandleSource
	configured []string
}

func newPriceHistory(m *mirror, simCfg config.Simulation) *priceHistory {
	p := &priceHistory{source: m.candles, configured: simCfg.Symbols}
	if p.source == nil {
		p.source = feed.NewCSVSource(simCfg.DataDir)
	}
	return p
}

func (p *priceHistory) Candles(ctx context.Context, symbol string, interval types.Interval, start, end time.Time) ([]types.Candle, error) {
	candles, err := p.source.Candles(ctx, symbol, interval, start, end)
	if err != nil && noPrices(err) {
		return nil, fmt.Errorf("%w: %w", api.ErrNoPrices, err)
	}
	return candles, err
}

// Symbols lists the symbols a CSV directory holds, falling back to the
// configured simulation symbols.
func (p *priceHistory) Symbols(ctx context.Context) ([]string, error) {
	if csv, ok := p.source.(*feed.CSVSource); ok {
		symbols, err := csv.Symbols()
		if err != nil || len(symbols) > 0 {
			return symbols, err
		}
	}
	return p.configured, nil
}

func noPrices(err error) bool {
	return errors.Is(err, feed.ErrNoCandles) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, repository.ErrNoCandles) ||
		errors.Is(err, repository.ErrAssetNotFound) ||
		errors.Is(err, repository.ErrIntervalNotSupported)
}
