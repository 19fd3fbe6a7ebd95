package repository

import (
	"context"
	"fmt"
	"math"
	"time"

	"papertrader/types"
)

// The methods below implement engine.Recorder on top of Postgres.

func (db *Database) RecordTrade(ctx context.Context, t types.Trade) error {
	if err := db.ledger.InsertTrade(ctx, tradeRow{
		ID:         t.ID,
		Symbol:     t.Symbol,
		Side:       string(t.Side),
		Quantity:   t.Quantity,
		Price:      t.Price,
		Commission: t.Commission,
		PnL:        t.PnL,
		Reason:     t.Reason,
		ExecutedAt: t.Timestamp,
	}); err != nil {
		return fmt.Errorf("insert trade %s: %w", t.ID, err)
	}
	return nil
}

func (db *Database) SavePosition(ctx context.Context, p types.PositionSnapshot) error {
	if err := db.ledger.UpsertPosition(ctx, positionRow{
		Symbol:        p.Symbol,
		Quantity:      p.Quantity,
		AvgEntryPrice: p.AvgEntryPrice,
		CurrentPrice:  p.CurrentPrice,
	}); err != nil {
		return fmt.Errorf("upsert position %s: %w", p.Symbol, err)
	}
	return nil
}

func (db *Database) DeletePosition(ctx context.Context, symbol string) error {
	if err := db.ledger.DeletePosition(ctx, symbol); err != nil {
		return fmt.Errorf("delete position %s: %w", symbol, err)
	}
	return nil
}

func (db *Database) RecordSnapshot(ctx context.Context, s types.PortfolioSnapshot) error {
	if err := db.ledger.InsertSnapshot(ctx, snapshotRow{
		Ts:              s.Time,
		TotalValue:      s.TotalValue,
		CashBalance:     s.CashBalance,
		PositionsValue:  s.PositionsValue,
		TotalPnL:        s.TotalPnL,
		TotalPnLPercent: s.TotalPnLPercent,
		DailyReturn:     s.DailyReturn,
	}); err != nil {
		return fmt.Errorf("insert snapshot %s: %w", s.Time.Format(time.RFC3339), err)
	}
	return nil
}

func (db *Database) RecordOrder(ctx context.Context, o types.OrderRecord) error {
	if err := db.ledger.InsertOrder(ctx, orderRow{
		ID:           o.ID,
		Symbol:       o.Symbol,
		Side:         string(o.Side),
		Quantity:     o.Quantity,
		Price:        o.Price,
		Status:       string(o.Status),
		TradeID:      o.TradeID,
		RejectReason: o.RejectReason,
		Reason:       o.Reason,
		CreatedAt:    o.CreatedAt,
	}); err != nil {
		return fmt.Errorf("insert order %s: %w", o.ID, err)
	}
	return nil
}

// rowLimit maps a non-positive limit to zero, which the queries read as
// "no limit".
func rowLimit(limit int) int32 {
	if limit <= 0 {
		return 0
	}
	return int32(min(limit, math.MaxInt32))
}

// ListTrades returns up to limit trades, most recent first. A limit of zero
// or less returns every trade.
func (db *Database) ListTrades(ctx context.Context, limit int) ([]types.Trade, error) {
	rows, err := db.ledger.ListTrades(ctx, rowLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	trades := make([]types.Trade, 0, len(rows))
	for _, r := range rows {
		trades = append(trades, types.Trade{
			ID:         r.ID,
			Symbol:     r.Symbol,
			Side:       types.Side(r.Side),
			Quantity:   r.Quantity,
			Price:      r.Price,
			Commission: r.Commission,
			PnL:        r.PnL,
			Reason:     r.Reason,
			Timestamp:  r.ExecutedAt.UTC(),
		})
	}
	return trades, nil
}

// ListPositions returns the mirrored positions table. Market value and
// unrealized figures are not stored and are left zero.
func (db *Database) ListPositions(ctx context.Context) ([]types.PositionSnapshot, error) {
	rows, err := db.ledger.ListPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	out := make([]types.PositionSnapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.PositionSnapshot{
			Symbol:        r.Symbol,
			Quantity:      r.Quantity,
			AvgEntryPrice: r.AvgEntryPrice,
			CurrentPrice:  r.CurrentPrice,
		})
	}
	return out, nil
}

// ListSnapshots returns the equity curve since the given time, oldest first.
func (db *Database) ListSnapshots(ctx context.Context, since time.Time) ([]types.PortfolioSnapshot, error) {
	rows, err := db.ledger.ListSnapshots(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	out := make([]types.PortfolioSnapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.PortfolioSnapshot{
			Time:            r.Ts.UTC(),
			TotalValue:      r.TotalValue,
			CashBalance:     r.CashBalance,
			PositionsValue:  r.PositionsValue,
			TotalPnL:        r.TotalPnL,
			TotalPnLPercent: r.TotalPnLPercent,
			DailyReturn:     r.DailyReturn,
		})
	}
	return out, nil
}

// ListOrders returns up to limit orders with the given status, most recent
// first. An empty status matches every order.
func (db *Database) ListOrders(ctx context.Context, status types.OrderStatus, limit int) ([]types.OrderRecord, error) {
	rows, err := db.ledger.ListOrders(ctx, listOrdersParams{Status: string(status), Limit: rowLimit(limit)})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	out := make([]types.OrderRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.OrderRecord{
			ID:           r.ID,
			Symbol:       r.Symbol,
			Side:         types.Side(r.Side),
			Quantity:     r.Quantity,
			Price:        r.Price,
			Status:       types.OrderStatus(r.Status),
			TradeID:      r.TradeID,
			RejectReason: r.RejectReason,
			Reason:       r.Reason,
			CreatedAt:    r.CreatedAt.UTC(),
		})
	}
	return out, nil
}
