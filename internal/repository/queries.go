package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type queries struct {
	db DBTX
}

func newQueries(db DBTX) *queries {
	return &queries{db: db}
}

type assetRow struct {
	ID         int32
	Ticker     string
	Name       string
	Type       string
	CreatedAt  *time.Time
	ModifiedAt *time.Time
}

const getAssetByTicker = `
SELECT id, ticker, name, type, created_at, modified_at
FROM assets
WHERE ticker = $1
`

func (q *queries) GetAssetByTicker(ctx context.Context, ticker string) (assetRow, error) {
	row := q.db.QueryRow(ctx, getAssetByTicker, ticker)
	var i assetRow
	err := row.Scan(&i.ID, &i.Ticker, &i.Name, &i.Type, &i.CreatedAt, &i.ModifiedAt)
	return i, err
}

type getAggregatesParams struct {
	TimeBucket string
	AssetID    int32
	Starttime  *time.Time
	Endtime    *time.Time
}

type aggregateRow struct {
	Bucket  *time.Time
	AssetID int32
	Open    decimal.Decimal
	High    decimal.Decimal
	Low     decimal.Decimal
	Close   decimal.Decimal
	Volume  decimal.Decimal
}

const getAggregates = `
SELECT time_bucket($1::text::interval, c.timestamp) AS bucket,
       c.asset_id,
       first(c.open, c.timestamp)  AS open,
       max(c.high)                 AS high,
       min(c.low)                  AS low,
       last(c.close, c.timestamp)  AS close,
       sum(c.volume)               AS volume
FROM candles c
WHERE c.asset_id = $2
  AND c.timestamp >= $3
  AND c.timestamp <= $4
GROUP BY bucket, c.asset_id
ORDER BY bucket
`

func (q *queries) GetAggregates(ctx context.Context, arg getAggregatesParams) ([]aggregateRow, error) {
	rows, err := q.db.Query(ctx, getAggregates, arg.TimeBucket, arg.AssetID, arg.Starttime, arg.Endtime)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []aggregateRow
	for rows.Next() {
		var i aggregateRow
		if err := rows.Scan(&i.Bucket, &i.AssetID, &i.Open, &i.High, &i.Low, &i.Close, &i.Volume); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type tradeRow struct {
	ID         string
	Symbol     string
	Side       string
	Quantity   int64
	Price      decimal.Decimal
	Commission decimal.Decimal
	PnL        *decimal.Decimal
	Reason     string
	ExecutedAt time.Time
}

const insertTrade = `
INSERT INTO trades (id, symbol, side, quantity, price, commission, pnl, reason, executed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

func (q *queries) InsertTrade(ctx context.Context, arg tradeRow) error {
	_, err := q.db.Exec(ctx, insertTrade, arg.ID, arg.Symbol, arg.Side, arg.Quantity,
		arg.Price, arg.Commission, arg.PnL, arg.Reason, arg.ExecutedAt)
	return err
}

const listTrades = `
SELECT id, symbol, side, quantity, price, commission, pnl, reason, executed_at
FROM trades
ORDER BY executed_at DESC, id DESC
LIMIT NULLIF($1::int, 0)
`

func (q *queries) ListTrades(ctx context.Context, limit int32) ([]tradeRow, error) {
	rows, err := q.db.Query(ctx, listTrades, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []tradeRow
	for rows.Next() {
		var i tradeRow
		if err := rows.Scan(&i.ID, &i.Symbol, &i.Side, &i.Quantity, &i.Price,
			&i.Commission, &i.PnL, &i.Reason, &i.ExecutedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type positionRow struct {
	Symbol        string
	Quantity      int64
	AvgEntryPrice decimal.Decimal
	CurrentPrice  decimal.Decimal
}

const upsertPosition = `
INSERT INTO positions (symbol, quantity, avg_entry_price, current_price, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (symbol) DO UPDATE
SET quantity        = EXCLUDED.quantity,
    avg_entry_price = EXCLUDED.avg_entry_price,
    current_price   = EXCLUDED.current_price,
    updated_at      = now()
`

func (q *queries) UpsertPosition(ctx context.Context, arg positionRow) error {
	_, err := q.db.Exec(ctx, upsertPosition, arg.Symbol, arg.Quantity, arg.AvgEntryPrice, arg.CurrentPrice)
	return err
}

const deletePosition = `DELETE FROM positions WHERE symbol = $1`

func (q *queries) DeletePosition(ctx context.Context, symbol string) error {
	_, err := q.db.Exec(ctx, deletePosition, symbol)
	return err
}

const listPositions = `
SELECT symbol, quantity, avg_entry_price, current_price
FROM positions
ORDER BY symbol
`

func (q *queries) ListPositions(ctx context.Context) ([]positionRow, error) {
	rows, err := q.db.Query(ctx, listPositions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []positionRow
	for rows.Next() {
		var i positionRow
		if err := rows.Scan(&i.Symbol, &i.Quantity, &i.AvgEntryPrice, &i.CurrentPrice); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type snapshotRow struct {
	Ts              time.Time
	TotalValue      decimal.Decimal
	CashBalance     decimal.Decimal
	PositionsValue  decimal.Decimal
	TotalPnL        decimal.Decimal
	TotalPnLPercent decimal.Decimal
	DailyReturn     *decimal.Decimal
}

const insertSnapshot = `
INSERT INTO portfolio_snapshots (ts, total_value, cash_balance, positions_value, total_pnl, total_pnl_percent, daily_return)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (ts) DO UPDATE
SET total_value       = EXCLUDED.total_value,
    cash_balance      = EXCLUDED.cash_balance,
    positions_value   = EXCLUDED.positions_value,
    total_pnl         = EXCLUDED.total_pnl,
    total_pnl_percent = EXCLUDED.total_pnl_percent,
    daily_return      = EXCLUDED.daily_return
`

func (q *queries) InsertSnapshot(ctx context.Context, arg snapshotRow) error {
	_, err := q.db.Exec(ctx, insertSnapshot, arg.Ts, arg.TotalValue, arg.CashBalance,
		arg.PositionsValue, arg.TotalPnL, arg.TotalPnLPercent, arg.DailyReturn)
	return err
}

const listSnapshots = `
SELECT ts, total_value, cash_balance, positions_value, total_pnl, total_pnl_percent, daily_return
FROM portfolio_snapshots
WHERE ts >= $1
ORDER BY ts
`

func (q *queries) ListSnapshots(ctx context.Context, since time.Time) ([]snapshotRow, error) {
	rows, err := q.db.Query(ctx, listSnapshots, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []snapshotRow
	for rows.Next() {
		var i snapshotRow
		if err := rows.Scan(&i.Ts, &i.TotalValue, &i.CashBalance, &i.PositionsValue,
			&i.TotalPnL, &i.TotalPnLPercent, &i.DailyReturn); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type orderRow struct {
	ID           string
	Symbol       string
	Side         string
	Quantity     int64
	Price        decimal.Decimal
	Status       string
	TradeID      string
	RejectReason string
	Reason       string
	CreatedAt    time.Time
}

const insertOrder = `
INSERT INTO orders (id, symbol, side, quantity, price, status, trade_id, reject_reason, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

func (q *queries) InsertOrder(ctx context.Context, arg orderRow) error {
	_, err := q.db.Exec(ctx, insertOrder, arg.ID, arg.Symbol, arg.Side, arg.Quantity, arg.Price,
		arg.Status, arg.TradeID, arg.RejectReason, arg.Reason, arg.CreatedAt)
	return err
}

const listOrders = `
SELECT id, symbol, side, quantity, price, status, trade_id, reject_reason, reason, created_at
FROM orders
WHERE $1::text = '' OR status = $1::text
ORDER BY created_at DESC, id DESC
LIMIT NULLIF($2::int, 0)
`

type listOrdersParams struct {
	Status string
	Limit  int32
}

func (q *queries) ListOrders(ctx context.Context, arg listOrdersParams) ([]orderRow, error) {
	rows, err := q.db.Query(ctx, listOrders, arg.Status, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []orderRow
	for rows.Next() {
		var i orderRow
		if err := rows.Scan(&i.ID, &i.Symbol, &i.Side, &i.Quantity, &i.Price, &i.Status,
			&i.TradeID, &i.RejectReason, &i.Reason, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
