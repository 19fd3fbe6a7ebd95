package engine

import (
	"fmt"
	"sort"
	"time"

	"papertrader/types"

	"github.com/shopspring/decimal"
)

// Ledger holds the cash balance, open positions and trade log of one
// simulation run. It is not safe for concurrent use; Engine serializes access.
type Ledger struct {
	initialCapital decimal.Decimal
	cash           decimal.Decimal
	positions      map[string]*Position
	trades         []types.Trade
}

type Position struct {
	Symbol        string
	Quantity      int64
	AvgEntryPrice decimal.Decimal
	CurrentPrice  decimal.Decimal
}

func newLedger(initialCapital decimal.Decimal) *Ledger {
	return &Ledger{
		initialCapital: initialCapital,
		cash:           initialCapital,
		positions:      make(map[string]*Position),
	}
}

func newPosition(symbol string, quantity int64, avgEntryPrice, currentPrice decimal.Decimal) (*Position, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: position %s quantity %d", ErrInternal, symbol, quantity)
	}
	if !avgEntryPrice.IsPositive() {
		return nil, fmt.Errorf("%w: position %s average price %s", ErrInternal, symbol, avgEntryPrice)
	}
	return &Position{
		Symbol:        symbol,
		Quantity:      quantity,
		AvgEntryPrice: avgEntryPrice,
		CurrentPrice:  currentPrice,
	}, nil
}

// position returns the open position for symbol, failing if a stored entry
// has already broken the positive-quantity invariant.
func (l *Ledger) position(symbol string) (*Position, error) {
	pos, ok := l.positions[symbol]
	if !ok {
		return nil, nil
	}
	if pos.Quantity <= 0 {
		return nil, fmt.Errorf("%w: position %s holds quantity %d", ErrInternal, symbol, pos.Quantity)
	}
	return pos, nil
}

// symbols returns the held symbols in order.
func (l *Ledger) symbols() []string {
	out := make([]string, 0, len(l.positions))
	for sym := range l.positions {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (l *Ledger) view(at time.Time) types.PortfolioView {
	v := types.PortfolioView{
		Cash:      l.cash,
		Positions: make(map[string]types.PositionSnapshot, len(l.positions)),
		Time:      at,
	}
	for sym, pos := range l.positions {
		v.Positions[sym] = pos.snapshot()
	}
	return v
}

func (p *Position) marketValue() decimal.Decimal {
	return p.CurrentPrice.Mul(decimal.NewFromInt(p.Quantity))
}

func (p *Position) snapshot() types.PositionSnapshot {
	qty := decimal.NewFromInt(p.Quantity)
	unrealized := p.CurrentPrice.Sub(p.AvgEntryPrice).Mul(qty)
	pct := decimal.Zero
	if cost := p.AvgEntryPrice.Mul(qty); !cost.IsZero() {
		pct = unrealized.Div(cost).Mul(hundred)
	}
	return types.PositionSnapshot{
		Symbol:               p.Symbol,
		Quantity:             p.Quantity,
		AvgEntryPrice:        p.AvgEntryPrice,
		CurrentPrice:         p.CurrentPrice,
		MarketValue:          p.marketValue(),
		UnrealizedPnL:        unrealized,
		UnrealizedPnLPercent: pct,
	}
}
