package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"papertrader/internal/engine"
	"papertrader/types"

	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

var ErrNoCandles = errors.New("no candles to replay")

type Config struct {
	Symbols       []string
	Interval      types.Interval
	Start         time.Time
	End           time.Time
	SnapshotEvery time.Duration
	RiskFreeRate  decimal.Decimal
}

type RunResult struct {
	Metrics  types.Metrics  `json:"metrics"`
	Report   *engine.Report `json:"report"`
	Candles  int            `json:"candles"`
	Orders   int            `json:"orders"`
	Rejected int            `json:"rejected"`
}

type Runner struct {
	cfg       Config
	engine    *engine.Engine
	source    CandleSource
	strategy  Strategy
	allocator Allocator
	log       *slog.Logger
	progress  io.Writer
}

type Option func(*Runner)

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithProgress renders a progress bar to w while replaying.
func WithProgress(w io.Writer) Option {
	return func(r *Runner) {
		r.progress = w
	}
}

func NewRunner(cfg Config, eng *engine.Engine, source CandleSource, strat Strategy, alloc Allocator, opts ...Option) *Runner {
	r := &Runner{
		cfg:       cfg,
		engine:    eng,
		source:    source,
		strategy:  strat,
		allocator: alloc,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// step holds every candle that closes at the same instant.
type step struct {
	at      time.Time
	candles []types.Candle
}

// Run replays the configured symbols through the strategy and allocator and
// executes the resulting orders against the engine at candle close.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	feeds, err := r.loadCandles(ctx)
	if err != nil {
		return nil, err
	}
	steps := buildSteps(feeds)
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w for %v between %s and %s", ErrNoCandles, r.cfg.Symbols,
			r.cfg.Start.Format(time.DateOnly), r.cfg.End.Format(time.DateOnly))
	}

	result := &RunResult{}
	bar := initProgressBar(len(steps), r.progress)
	var lastSnapshot time.Time

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		signals := make(map[string][]types.Signal)
		closes := make(map[string]decimal.Decimal, len(s.candles))
		for _, c := range s.candles {
			closes[c.Symbol] = c.Close
			if sigs := r.strategy.OnCandle(c); len(sigs) > 0 {
				signals[c.Symbol] = append(signals[c.Symbol], sigs...)
			}
			result.Candles++
		}

		r.engine.UpdateMarkPrices(ctx, closes)

		orders := r.allocator.Allocate(signals, r.engine.Snapshot(s.at))
		sortOrders(orders)
		for _, order := range orders {
			price, ok := closes[order.Symbol]
			if !ok {
				r.log.Warn("order without a closing candle", "symbol", order.Symbol, "time", s.at)
				continue
			}
			order.Price = price
			order.Time = s.at

			res, err := r.engine.ExecuteOrder(ctx, order)
			if err != nil {
				return nil, fmt.Errorf("execute %s %s at %s: %w", order.Side, order.Symbol, s.at.Format(time.RFC3339), err)
			}
			result.Orders++
			if !res.Filled() {
				result.Rejected++
			}
		}

		if lastSnapshot.IsZero() || s.at.Sub(lastSnapshot) >= r.cfg.SnapshotEvery {
			r.engine.RecordSnapshot(ctx, s.at)
			lastSnapshot = s.at
		}
		_ = bar.Add(1)
	}

	if last := steps[len(steps)-1].at; !lastSnapshot.Equal(last) {
		r.engine.RecordSnapshot(ctx, last)
	}
	_ = bar.Finish()

	metrics, err := r.engine.Metrics()
	if err != nil {
		return nil, err
	}
	report, err := engine.GenerateReport(r.engine.Snapshots(time.Time{}), r.engine.Trades(), r.cfg.RiskFreeRate)
	if err != nil {
		return nil, err
	}
	result.Metrics = metrics
	result.Report = report

	r.log.Info("simulation finished",
		"candles", result.Candles,
		"orders", result.Orders,
		"rejected", result.Rejected,
		"total_value", metrics.TotalValue.StringFixed(2))
	return result, nil
}

func (r *Runner) loadCandles(ctx context.Context) ([][]types.Candle, error) {
	feeds := make([][]types.Candle, len(r.cfg.Symbols))
	g, gctx := errgroup.WithContext(ctx)
	for i, symbol := range r.cfg.Symbols {
		g.Go(func() error {
			candles, err := r.source.Candles(gctx, symbol, r.cfg.Interval, r.cfg.Start, r.cfg.End)
			if err != nil {
				return fmt.Errorf("load %s: %w", symbol, err)
			}
			r.log.Debug("candles loaded", "symbol", symbol, "count", len(candles))
			feeds[i] = candles
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return feeds, nil
}

// buildSteps merges the per-symbol feeds into close-time order. Candles with
// the same close time are ordered by symbol.
func buildSteps(feeds [][]types.Candle) []step {
	byClose := make(map[time.Time][]types.Candle)
	for _, candles := range feeds {
		for _, c := range candles {
			at := c.CloseTime().UTC()
			byClose[at] = append(byClose[at], c)
		}
	}

	steps := make([]step, 0, len(byClose))
	for at, candles := range byClose {
		sort.Slice(candles, func(i, j int) bool { return candles[i].Symbol < candles[j].Symbol })
		steps = append(steps, step{at: at, candles: candles})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].at.Before(steps[j].at) })
	return steps
}

// sortOrders puts sells before buys so freed cash is available in the same
// step, then orders by symbol.
func sortOrders(orders []types.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].Side != orders[j].Side {
			return orders[i].Side == types.SideTypeSell
		}
		return orders[i].Symbol < orders[j].Symbol
	})
}

func initProgressBar(maxTicks int, w io.Writer) *progressbar.ProgressBar {
	if w == nil {
		return progressbar.DefaultSilent(int64(maxTicks))
	}
	return progressbar.NewOptions(maxTicks,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("Simulating..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
