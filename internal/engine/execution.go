package engine

import (
	"time"

	"papertrader/internal/id"
	"papertrader/types"

	"github.com/shopspring/decimal"
)

// apply runs one validated order against the ledger. Every check happens
// before the first write, so a rejection or error leaves the ledger untouched.
func (l *Ledger) apply(order types.Order, rate decimal.Decimal, at time.Time) (Result, error) {
	switch order.Side {
	case types.SideTypeBuy:
		return l.buy(order, rate, at)
	case types.SideTypeSell:
		return l.sell(order, rate, at)
	}
	return Result{}, invalidInput("unknown side %q", order.Side)
}

func (l *Ledger) buy(order types.Order, rate decimal.Decimal, at time.Time) (Result, error) {
	qty := decimal.NewFromInt(order.Quantity)
	notional := order.Price.Mul(qty)
	commission := commissionFor(notional, rate)
	totalCost := notional.Add(commission)

	pos, err := l.position(order.Symbol)
	if err != nil {
		return Result{}, err
	}

	if totalCost.GreaterThan(l.cash) {
		return rejected(&RejectionError{
			Kind:      ErrInsufficientFunds,
			Symbol:    order.Symbol,
			Side:      order.Side,
			Requested: order.Quantity,
			Cost:      totalCost,
			Cash:      l.cash,
		}), nil
	}

	var next *Position
	if pos == nil {
		next, err = newPosition(order.Symbol, order.Quantity, order.Price, order.Price)
	} else {
		newQty := pos.Quantity + order.Quantity
		avg := weightedAvg(pos.AvgEntryPrice, pos.Quantity, order.Price, order.Quantity)
		next, err = newPosition(order.Symbol, newQty, avg, order.Price)
	}
	if err != nil {
		return Result{}, err
	}

	trade := types.Trade{
		ID:         id.NewAt(at),
		Symbol:     order.Symbol,
		Side:       types.SideTypeBuy,
		Quantity:   order.Quantity,
		Price:      order.Price,
		Commission: commission,
		Reason:     order.Reason,
		Timestamp:  at,
	}

	l.cash = l.cash.Sub(totalCost)
	l.positions[order.Symbol] = next
	l.trades = append(l.trades, trade)

	return filled(trade), nil
}

func (l *Ledger) sell(order types.Order, rate decimal.Decimal, at time.Time) (Result, error) {
	pos, err := l.position(order.Symbol)
	if err != nil {
		return Result{}, err
	}

	var held int64
	if pos != nil {
		held = pos.Quantity
	}
	if held < order.Quantity {
		return rejected(&RejectionError{
			Kind:      ErrInsufficientShares,
			Symbol:    order.Symbol,
			Side:      order.Side,
			Requested: order.Quantity,
			Held:      held,
		}), nil
	}

	qty := decimal.NewFromInt(order.Quantity)
	notional := order.Price.Mul(qty)
	commission := commissionFor(notional, rate)
	pnl := order.Price.Sub(pos.AvgEntryPrice).Mul(qty).Sub(commission)

	trade := types.Trade{
		ID:         id.NewAt(at),
		Symbol:     order.Symbol,
		Side:       types.SideTypeSell,
		Quantity:   order.Quantity,
		Price:      order.Price,
		Commission: commission,
		PnL:        &pnl,
		Reason:     order.Reason,
		Timestamp:  at,
	}

	l.cash = l.cash.Add(notional).Sub(commission)
	pos.Quantity -= order.Quantity
	if pos.Quantity == 0 {
		delete(l.positions, order.Symbol)
	}
	l.trades = append(l.trades, trade)

	return filled(trade), nil
}

func commissionFor(notional, rate decimal.Decimal) decimal.Decimal {
	return notional.Mul(rate)
}

// weightedAvg is incremental: it never re-reads the trade log.
func weightedAvg(existingAvgPrice decimal.Decimal, existingQty int64, newPrice decimal.Decimal, newQty int64) decimal.Decimal {
	if existingQty == 0 {
		return newPrice
	}
	oldQ := decimal.NewFromInt(existingQty)
	addQ := decimal.NewFromInt(newQty)
	return existingAvgPrice.Mul(oldQ).
		Add(newPrice.Mul(addQ)).
		Div(oldQ.Add(addQ))
}
