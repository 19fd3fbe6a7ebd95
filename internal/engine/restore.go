package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"papertrader/types"

	"github.com/shopspring/decimal"
)

// State is what an earlier run left in its journal.
type State struct {
	Trades    []types.Trade
	Positions []types.PositionSnapshot
	Snapshots []types.PortfolioSnapshot
	Orders    []types.OrderRecord
}

// Resume reads the full journal and restores it into an idle engine.
func (e *Engine) Resume(ctx context.Context, j Journal) error {
	var (
		st  State
		err error
	)
	if st.Trades, err = j.ListTrades(ctx, 0); err != nil {
		return fmt.Errorf("list trades: %w", err)
	}
	if st.Positions, err = j.ListPositions(ctx); err != nil {
		return fmt.Errorf("list positions: %w", err)
	}
	if st.Snapshots, err = j.ListSnapshots(ctx, time.Time{}); err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}
	if st.Orders, err = j.ListOrders(ctx, "", 0); err != nil {
		return fmt.Errorf("list orders: %w", err)
	}
	return e.Restore(ctx, st)
}

// Restore rebuilds the ledger by replaying st.Trades at their stored prices
// and commissions. Stored positions only contribute their last marks; the
// mirror is then rewritten to match the replayed positions. Nothing is
// committed unless the whole log replays cleanly.
func (e *Engine) Restore(ctx context.Context, st State) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.ledger.trades) > 0 || len(e.ledger.positions) > 0 || len(e.snapshots) > 0 || len(e.orders) > 0 {
		return fmt.Errorf("%w: restore into an engine that already has activity", ErrInternal)
	}

	ledger, err := replay(e.cfg.InitialCapital, st.Trades)
	if err != nil {
		return err
	}
	for _, p := range st.Positions {
		pos, ok := ledger.positions[normalizeSymbol(p.Symbol)]
		if ok && p.CurrentPrice.IsPositive() {
			pos.CurrentPrice = p.CurrentPrice
		}
	}

	snapshots := append([]types.PortfolioSnapshot(nil), st.Snapshots...)
	sort.SliceStable(snapshots, func(i, j int) bool { return snapshots[i].Time.Before(snapshots[j].Time) })
	orders := append([]types.OrderRecord(nil), st.Orders...)
	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.Before(orders[j].CreatedAt)
		}
		return orders[i].ID < orders[j].ID
	})

	e.ledger = ledger
	e.snapshots = snapshots
	e.orders = orders

	for _, p := range st.Positions {
		if _, ok := ledger.positions[normalizeSymbol(p.Symbol)]; ok {
			continue
		}
		if err := e.recorder.DeletePosition(ctx, p.Symbol); err != nil {
			e.log.Error("mirror stale position", "symbol", p.Symbol, "error", err)
		}
	}
	for _, sym := range ledger.symbols() {
		if err := e.recorder.SavePosition(ctx, ledger.positions[sym].snapshot()); err != nil {
			e.log.Error("mirror position", "symbol", sym, "error", err)
		}
	}

	e.log.Info("ledger restored", "trades", len(ledger.trades), "positions", len(ledger.positions),
		"snapshots", len(snapshots), "orders", len(orders), "cash", ledger.cash.StringFixed(2))
	return nil
}

// replay rebuilds a ledger from a trade log, oldest first.
func replay(initialCapital decimal.Decimal, trades []types.Trade) (*Ledger, error) {
	sorted := append([]types.Trade(nil), trades...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].ID < sorted[j].ID
	})

	l := newLedger(initialCapital)
	for _, t := range sorted {
		if err := l.replayTrade(t); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *Ledger) replayTrade(t types.Trade) error {
	t.Symbol = normalizeSymbol(t.Symbol)
	if t.Symbol == "" || t.Quantity <= 0 || !t.Price.IsPositive() || t.Commission.IsNegative() {
		return invalidInput("trade %s: malformed %s %d %s @ %s", t.ID, t.Side, t.Quantity, t.Symbol, t.Price)
	}
	pos, err := l.position(t.Symbol)
	if err != nil {
		return err
	}
	notional := t.Notional()

	switch t.Side {
	case types.SideTypeBuy:
		cost := notional.Add(t.Commission)
		if cost.GreaterThan(l.cash) {
			return invalidInput("trade %s: cost %s exceeds replayed cash %s",
				t.ID, cost.StringFixed(2), l.cash.StringFixed(2))
		}
		var next *Position
		if pos == nil {
			next, err = newPosition(t.Symbol, t.Quantity, t.Price, t.Price)
		} else {
			avg := weightedAvg(pos.AvgEntryPrice, pos.Quantity, t.Price, t.Quantity)
			next, err = newPosition(t.Symbol, pos.Quantity+t.Quantity, avg, t.Price)
		}
		if err != nil {
			return err
		}
		t.PnL = nil
		l.cash = l.cash.Sub(cost)
		l.positions[t.Symbol] = next
	case types.SideTypeSell:
		if pos == nil || pos.Quantity < t.Quantity {
			var held int64
			if pos != nil {
				held = pos.Quantity
			}
			return fmt.Errorf("%w: trade %s sells %d %s with %d held", ErrInternal, t.ID, t.Quantity, t.Symbol, held)
		}
		if t.PnL == nil {
			pnl := t.Price.Sub(pos.AvgEntryPrice).Mul(decimal.NewFromInt(t.Quantity)).Sub(t.Commission)
			t.PnL = &pnl
		}
		l.cash = l.cash.Add(notional).Sub(t.Commission)
		pos.Quantity -= t.Quantity
		if pos.Quantity == 0 {
			delete(l.positions, t.Symbol)
		}
	default:
		return invalidInput("trade %s: unknown side %q", t.ID, t.Side)
	}

	l.trades = append(l.trades, t)
	return nil
}
