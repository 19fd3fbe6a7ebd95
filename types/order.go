package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is a trade intent handed to the execution engine.
// A zero Time means "now" on the engine's clock.
type Order struct {
	Symbol   string          `json:"symbol"`
	Side     Side            `json:"side"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Time     time.Time       `json:"time"`
	Reason   string          `json:"reason,omitempty"`
}

func NewOrder(
	symbol string,
	side Side,
	quantity int64,
	price decimal.Decimal,
	reason string,
	createdAt time.Time,
) Order {
	return Order{
		Symbol:   symbol,
		Side:     side,
		Quantity: quantity,
		Price:    price,
		Reason:   reason,
		Time:     createdAt,
	}
}

// OrderRecord is the outcome of one submitted order. Filled orders carry the
// id of the trade they produced; rejected ones carry the rejection code.
type OrderRecord struct {
	ID           string          `json:"id"`
	Symbol       string          `json:"symbol"`
	Side         Side            `json:"side"`
	Quantity     int64           `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	Status       OrderStatus     `json:"status"`
	TradeID      string          `json:"trade_id,omitempty"`
	RejectReason string          `json:"reject_reason,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
