package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioView is an immutable copy of a ledger's cash and open positions.
type PortfolioView struct {
	Cash      decimal.Decimal
	Positions map[string]PositionSnapshot
	Time      time.Time
}

type PositionSnapshot struct {
	Symbol               string          `json:"symbol"`
	Quantity             int64           `json:"quantity"`
	AvgEntryPrice        decimal.Decimal `json:"avg_entry_price"`
	CurrentPrice         decimal.Decimal `json:"current_price"`
	MarketValue          decimal.Decimal `json:"market_value"`
	UnrealizedPnL        decimal.Decimal `json:"unrealized_pnl"`
	UnrealizedPnLPercent decimal.Decimal `json:"unrealized_pnl_percent"`
}

// Metrics are the portfolio-level figures surfaced to reporting.
type Metrics struct {
	TotalValue      decimal.Decimal `json:"total_value"`
	CashBalance     decimal.Decimal `json:"cash_balance"`
	PositionsValue  decimal.Decimal `json:"positions_value"`
	TotalPnL        decimal.Decimal `json:"total_pnl"`
	TotalPnLPercent decimal.Decimal `json:"total_pnl_percent"`
	RealizedPnL     decimal.Decimal `json:"realized_pnl"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	NumPositions    int             `json:"num_positions"`
	NumTrades       int             `json:"num_trades"`
}

// PortfolioSnapshot is a point on the equity curve.
// DailyReturn is relative to the previous snapshot and nil on the first one.
type PortfolioSnapshot struct {
	Time            time.Time        `json:"timestamp"`
	TotalValue      decimal.Decimal  `json:"total_value"`
	CashBalance     decimal.Decimal  `json:"cash_balance"`
	PositionsValue  decimal.Decimal  `json:"positions_value"`
	TotalPnL        decimal.Decimal  `json:"total_pnl"`
	TotalPnLPercent decimal.Decimal  `json:"total_pnl_percent"`
	DailyReturn     *decimal.Decimal `json:"daily_return"`
}
