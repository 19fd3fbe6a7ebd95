package types

import (
	"fmt"
	"strings"
)

type Side string

type OrderStatus string

const (
	OrderFilled   OrderStatus = "FILLED"
	OrderRejected OrderStatus = "REJECTED"

	SideTypeBuy  Side = "BUY"
	SideTypeSell Side = "SELL"
)

// ParseSide accepts BUY/SELL in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideTypeBuy:
		return SideTypeBuy, nil
	case SideTypeSell:
		return SideTypeSell, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

// ParseOrderStatus accepts FILLED/REJECTED in any case.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case OrderFilled:
		return OrderFilled, nil
	case OrderRejected:
		return OrderRejected, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

func (s Side) Valid() bool {
	return s == SideTypeBuy || s == SideTypeSell
}
