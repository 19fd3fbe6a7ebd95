package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Signal is advisory output of a signal provider. Confidence is in [0, 1].
type Signal struct {
	Symbol     string
	Side       Side
	Price      decimal.Decimal
	Confidence decimal.Decimal
	Reason     string
	CreatedAt  time.Time
}

func NewSignal(
	symbol string,
	side Side,
	price decimal.Decimal,
	confidence decimal.Decimal,
	reason string,
	createdAt time.Time,
) Signal {
	return Signal{
		Symbol:     symbol,
		Side:       side,
		Price:      price,
		Confidence: confidence,
		Reason:     reason,
		CreatedAt:  createdAt,
	}
}
