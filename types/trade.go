package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is one fill in the ledger's append-only trade log.
// PnL is nil for BUY fills and set for SELL fills.
type Trade struct {
	ID         string           `json:"id"`
	Symbol     string           `json:"symbol"`
	Side       Side             `json:"side"`
	Quantity   int64            `json:"quantity"`
	Price      decimal.Decimal  `json:"price"`
	Commission decimal.Decimal  `json:"commission"`
	PnL        *decimal.Decimal `json:"pnl"`
	Reason     string           `json:"reason,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// Notional is quantity * price, before commission.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}

// RealizedPnL returns the trade's pnl, or zero for a BUY.
func (t Trade) RealizedPnL() decimal.Decimal {
	if t.PnL == nil {
		return decimal.Zero
	}
	return *t.PnL
}
