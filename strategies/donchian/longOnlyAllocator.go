package donchian

import (
	"papertrader/types"

	"github.com/shopspring/decimal"
)

type LongOnlyAllocator struct {
	positionPercent decimal.Decimal
	minConfidence   decimal.Decimal
}

// NewLongOnlyAllocator commits positionPercent of cash to each new long and
// ignores BUY signals below minConfidence.
func NewLongOnlyAllocator(positionPercent, minConfidence decimal.Decimal) *LongOnlyAllocator {
	return &LongOnlyAllocator{
		positionPercent: positionPercent,
		minConfidence:   minConfidence,
	}
}

func (a *LongOnlyAllocator) Allocate(signals map[string][]types.Signal, view types.PortfolioView) []types.Order {
	if len(signals) == 0 {
		return nil
	}

	orders := make([]types.Order, 0)

	for symbol, signalPerSymbol := range signals {
		// Skip symbols with 0 or more than 1 signal (both channel sides broken)
		if len(signalPerSymbol) != 1 {
			continue
		}

		curSignal := signalPerSymbol[0]
		curPos, held := view.Positions[symbol]

		// Case 1: flat
		if !held {
			// Long-only: only act on buy signals when flat
			if curSignal.Side != types.SideTypeBuy || curSignal.Confidence.LessThan(a.minConfidence) {
				continue
			}

			cashForSignal := view.Cash.Mul(a.positionPercent)
			qty := getQuantityForPrice(curSignal.Price, cashForSignal)
			if qty == 0 {
				continue
			}

			orders = append(orders, types.NewOrder(
				symbol, types.SideTypeBuy, qty, curSignal.Price,
				"No existing position (long-only): "+curSignal.Reason,
				curSignal.CreatedAt,
			))
			continue
		}

		// Case 2: existing long. Same direction does nothing (no pyramiding).
		if curSignal.Side == types.SideTypeSell {
			// Long-only: just close the long, do NOT open a short
			orders = append(orders, types.NewOrder(
				symbol, types.SideTypeSell, curPos.Quantity, curSignal.Price,
				"Closing long (long-only): "+curSignal.Reason,
				curSignal.CreatedAt,
			))
		}
	}

	return orders
}

func getQuantityForPrice(stockPrice, capitalToUse decimal.Decimal) int64 {
	if !stockPrice.IsPositive() || !capitalToUse.IsPositive() {
		return 0
	}
	return capitalToUse.Div(stockPrice).Floor().IntPart()
}
