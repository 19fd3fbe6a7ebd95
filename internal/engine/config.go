package engine

import (
	"github.com/shopspring/decimal"
)

var DefaultCommissionRate = decimal.RequireFromString("0.001")

type Config struct {
	InitialCapital decimal.Decimal
	CommissionRate decimal.Decimal
}

func NewConfig(initialCapital, commissionRate decimal.Decimal) Config {
	return Config{
		InitialCapital: initialCapital,
		CommissionRate: commissionRate,
	}
}

func (c Config) validate() error {
	if c.InitialCapital.IsNegative() {
		return invalidInput("initial capital %s is negative", c.InitialCapital)
	}
	if c.CommissionRate.IsNegative() || c.CommissionRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return invalidInput("commission rate %s must be in [0, 1)", c.CommissionRate)
	}
	return nil
}
