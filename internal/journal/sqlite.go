package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"papertrader/types"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Decimals are stored as TEXT to stay exact; times as INTEGER unix nanos so
// they sort.
const schema = `
CREATE TABLE IF NOT EXISTS trades (
    id          TEXT PRIMARY KEY,
    symbol      TEXT    NOT NULL,
    side        TEXT    NOT NULL,
    quantity    INTEGER NOT NULL,
    price       TEXT    NOT NULL,
    commission  TEXT    NOT NULL,
    pnl         TEXT,
    reason      TEXT    NOT NULL DEFAULT '',
    executed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_executed_at_idx ON trades (executed_at);

CREATE TABLE IF NOT EXISTS positions (
    symbol          TEXT PRIMARY KEY,
    quantity        INTEGER NOT NULL CHECK (quantity > 0),
    avg_entry_price TEXT    NOT NULL,
    current_price   TEXT    NOT NULL,
    updated_at      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS portfolio_snapshots (
    ts                INTEGER PRIMARY KEY,
    total_value       TEXT NOT NULL,
    cash_balance      TEXT NOT NULL,
    positions_value   TEXT NOT NULL,
    total_pnl         TEXT NOT NULL,
    total_pnl_percent TEXT NOT NULL,
    daily_return      TEXT
);

CREATE TABLE IF NOT EXISTS orders (
    id            TEXT PRIMARY KEY,
    symbol        TEXT    NOT NULL,
    side          TEXT    NOT NULL,
    quantity      INTEGER NOT NULL,
    price         TEXT    NOT NULL,
    status        TEXT    NOT NULL,
    trade_id      TEXT    NOT NULL DEFAULT '',
    reject_reason TEXT    NOT NULL DEFAULT '',
    reason        TEXT    NOT NULL DEFAULT '',
    created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS orders_created_at_idx ON orders (created_at);
`

// SQLiteStore mirrors the ledger into a local SQLite file. It implements
// engine.Recorder.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) a SQLite database at dbPath and creates the tables.
func Open(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; serialize through a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RecordTrade(ctx context.Context, t types.Trade) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO trades (id, symbol, side, quantity, price, commission, pnl, reason, executed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Symbol, string(t.Side), t.Quantity, t.Price.String(), t.Commission.String(),
		nullDecimal(t.PnL), t.Reason, t.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", t.ID, err)
	}
	return nil
}

func (s *SQLiteStore) SavePosition(ctx context.Context, p types.PositionSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO positions (symbol, quantity, avg_entry_price, current_price, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (symbol) DO UPDATE
SET quantity        = excluded.quantity,
    avg_entry_price = excluded.avg_entry_price,
    current_price   = excluded.current_price,
    updated_at      = excluded.updated_at`,
		p.Symbol, p.Quantity, p.AvgEntryPrice.String(), p.CurrentPrice.String(), s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("upsert position %s: %w", p.Symbol, err)
	}
	return nil
}

func (s *SQLiteStore) DeletePosition(ctx context.Context, symbol string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM positions WHERE symbol = ?`, symbol); err != nil {
		return fmt.Errorf("delete position %s: %w", symbol, err)
	}
	return nil
}

func (s *SQLiteStore) RecordSnapshot(ctx context.Context, snap types.PortfolioSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO portfolio_snapshots
    (ts, total_value, cash_balance, positions_value, total_pnl, total_pnl_percent, daily_return)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.Time.UnixNano(), snap.TotalValue.String(), snap.CashBalance.String(),
		snap.PositionsValue.String(), snap.TotalPnL.String(), snap.TotalPnLPercent.String(),
		nullDecimal(snap.DailyReturn))
	if err != nil {
		return fmt.Errorf("insert snapshot %s: %w", snap.Time.Format(time.RFC3339), err)
	}
	return nil
}

func (s *SQLiteStore) RecordOrder(ctx context.Context, o types.OrderRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO orders (id, symbol, side, quantity, price, status, trade_id, reject_reason, reason, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Symbol, string(o.Side), o.Quantity, o.Price.String(), string(o.Status),
		o.TradeID, o.RejectReason, o.Reason, o.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.ID, err)
	}
	return nil
}

// sqlLimit maps a non-positive limit to SQLite's "no limit".
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// ListTrades returns up to limit trades, most recent first. A limit of zero
// or less returns every trade.
func (s *SQLiteStore) ListTrades(ctx context.Context, limit int) ([]types.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, symbol, side, quantity, price, commission, pnl, reason, executed_at
FROM trades
ORDER BY executed_at DESC, id DESC
LIMIT ?`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var trades []types.Trade
	for rows.Next() {
		var (
			t                 types.Trade
			side              string
			price, commission string
			pnl               sql.NullString
			executedAt        int64
		)
		if err := rows.Scan(&t.ID, &t.Symbol, &side, &t.Quantity, &price, &commission, &pnl, &t.Reason, &executedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Side = types.Side(side)
		t.Timestamp = time.Unix(0, executedAt).UTC()
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("trade %s price: %w", t.ID, err)
		}
		if t.Commission, err = decimal.NewFromString(commission); err != nil {
			return nil, fmt.Errorf("trade %s commission: %w", t.ID, err)
		}
		if t.PnL, err = parseNullDecimal(pnl); err != nil {
			return nil, fmt.Errorf("trade %s pnl: %w", t.ID, err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ListPositions returns the mirrored positions table ordered by symbol.
func (s *SQLiteStore) ListPositions(ctx context.Context) ([]types.PositionSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT symbol, quantity, avg_entry_price, current_price
FROM positions
ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var out []types.PositionSnapshot
	for rows.Next() {
		var (
			p          types.PositionSnapshot
			avg, price string
		)
		if err := rows.Scan(&p.Symbol, &p.Quantity, &avg, &price); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		if p.AvgEntryPrice, err = decimal.NewFromString(avg); err != nil {
			return nil, fmt.Errorf("position %s avg price: %w", p.Symbol, err)
		}
		if p.CurrentPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("position %s current price: %w", p.Symbol, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListSnapshots returns the equity curve since the given time, oldest first.
func (s *SQLiteStore) ListSnapshots(ctx context.Context, since time.Time) ([]types.PortfolioSnapshot, error) {
	var sinceNanos int64
	if !since.IsZero() {
		sinceNanos = since.UnixNano()
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT ts, total_value, cash_balance, positions_value, total_pnl, total_pnl_percent, daily_return
FROM portfolio_snapshots
WHERE ts >= ?
ORDER BY ts`, sinceNanos)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []types.PortfolioSnapshot
	for rows.Next() {
		var (
			ts     int64
			fields [5]string
			ret    sql.NullString
		)
		if err := rows.Scan(&ts, &fields[0], &fields[1], &fields[2], &fields[3], &fields[4], &ret); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		var values [5]decimal.Decimal
		for i, f := range fields {
			if values[i], err = decimal.NewFromString(f); err != nil {
				return nil, fmt.Errorf("snapshot %d: %w", ts, err)
			}
		}
		snap := types.PortfolioSnapshot{
			Time:            time.Unix(0, ts).UTC(),
			TotalValue:      values[0],
			CashBalance:     values[1],
			PositionsValue:  values[2],
			TotalPnL:        values[3],
			TotalPnLPercent: values[4],
		}
		if snap.DailyReturn, err = parseNullDecimal(ret); err != nil {
			return nil, fmt.Errorf("snapshot %d daily return: %w", ts, err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// ListOrders returns up to limit orders with the given status, most recent
// first. An empty status matches every order.
func (s *SQLiteStore) ListOrders(ctx context.Context, status types.OrderStatus, limit int) ([]types.OrderRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, symbol, side, quantity, price, status, trade_id, reject_reason, reason, created_at
FROM orders
WHERE ? = '' OR status = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`, string(status), string(status), sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []types.OrderRecord
	for rows.Next() {
		var (
			o                  types.OrderRecord
			side, state, price string
			createdAt          int64
		)
		if err := rows.Scan(&o.ID, &o.Symbol, &side, &o.Quantity, &price, &state,
			&o.TradeID, &o.RejectReason, &o.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Side = types.Side(side)
		o.Status = types.OrderStatus(state)
		o.CreatedAt = time.Unix(0, createdAt).UTC()
		if o.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("order %s price: %w", o.ID, err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
