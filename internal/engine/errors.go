package engine

import (
	"errors"
	"fmt"

	"papertrader/types"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrInternal           = errors.New("internal ledger inconsistency")
)

// RejectionError describes a business rejection. Kind is ErrInsufficientFunds
// or ErrInsufficientShares.
type RejectionError struct {
	Kind      error
	Symbol    string
	Side      types.Side
	Requested int64
	Held      int64
	Cost      decimal.Decimal
	Cash      decimal.Decimal
}

func (e *RejectionError) Error() string {
	switch e.Kind {
	case ErrInsufficientFunds:
		return fmt.Sprintf("%s %d %s: cost %s exceeds available cash %s: %v",
			e.Side, e.Requested, e.Symbol, e.Cost.StringFixed(2), e.Cash.StringFixed(2), e.Kind)
	case ErrInsufficientShares:
		return fmt.Sprintf("%s %d %s: only %d held: %v",
			e.Side, e.Requested, e.Symbol, e.Held, e.Kind)
	}
	return fmt.Sprintf("%s %d %s rejected: %v", e.Side, e.Requested, e.Symbol, e.Kind)
}

// Code is the stable machine-readable name of the rejection.
func (e *RejectionError) Code() string {
	switch e.Kind {
	case ErrInsufficientFunds:
		return "insufficient_funds"
	case ErrInsufficientShares:
		return "insufficient_shares"
	}
	return "rejected"
}

func (e *RejectionError) Unwrap() error {
	return e.Kind
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
