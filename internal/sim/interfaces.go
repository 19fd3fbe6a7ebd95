package sim

import (
	"context"
	"time"

	"papertrader/types"
)

// CandleSource loads the candles of one symbol that open within [start, end],
// oldest first.
type CandleSource interface {
	Candles(ctx context.Context, symbol string, interval types.Interval, start, end time.Time) ([]types.Candle, error)
}

type Strategy interface {
	OnCandle(candle types.Candle) []types.Signal
}

type Allocator interface {
	Allocate(signals map[string][]types.Signal, view types.PortfolioView) []types.Order
}
