package engine

import (
	"papertrader/types"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// portfolioValue is cash plus every position marked at its current price.
func portfolioValue(view types.PortfolioView) decimal.Decimal {
	value := view.Cash

	for _, pos := range view.Positions {
		posVal := pos.CurrentPrice.Mul(decimal.NewFromInt(pos.Quantity))
		value = value.Add(posVal)
	}
	return value
}

// computeMetrics fills every field it can. When initialCapital is zero the
// percentage is left at zero and ErrInvalidInput is returned alongside.
func computeMetrics(view types.PortfolioView, initialCapital decimal.Decimal, trades []types.Trade) (types.Metrics, error) {
	total := portfolioValue(view)
	m := types.Metrics{
		TotalValue:      total,
		CashBalance:     view.Cash,
		PositionsValue:  total.Sub(view.Cash),
		TotalPnL:        total.Sub(initialCapital),
		TotalPnLPercent: decimal.Zero,
		RealizedPnL:     decimal.Zero,
		TotalCommission: decimal.Zero,
		NumPositions:    len(view.Positions),
		NumTrades:       len(trades),
	}
	for _, t := range trades {
		m.RealizedPnL = m.RealizedPnL.Add(t.RealizedPnL())
		m.TotalCommission = m.TotalCommission.Add(t.Commission)
	}

	if initialCapital.IsZero() {
		return m, invalidInput("total pnl percent is undefined for zero initial capital")
	}
	m.TotalPnLPercent = m.TotalPnL.Mul(hundred).Div(initialCapital)
	return m, nil
}
