package repository

// Schema creates the ledger mirror tables. The assets and candles tables are
// owned by the market data ingest and only read here; time_bucket needs the
// timescaledb extension on that database.
const Schema = `
CREATE TABLE IF NOT EXISTS trades (
    id          TEXT PRIMARY KEY,
    symbol      TEXT        NOT NULL,
    side        TEXT        NOT NULL,
    quantity    BIGINT      NOT NULL,
    price       NUMERIC     NOT NULL,
    commission  NUMERIC     NOT NULL,
    pnl         NUMERIC,
    reason      TEXT        NOT NULL DEFAULT '',
    executed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_executed_at_idx ON trades (executed_at);

CREATE TABLE IF NOT EXISTS positions (
    symbol          TEXT PRIMARY KEY,
    quantity        BIGINT      NOT NULL CHECK (quantity > 0),
    avg_entry_price NUMERIC     NOT NULL,
    current_price   NUMERIC     NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS portfolio_snapshots (
    ts                TIMESTAMPTZ PRIMARY KEY,
    total_value       NUMERIC NOT NULL,
    cash_balance      NUMERIC NOT NULL,
    positions_value   NUMERIC NOT NULL,
    total_pnl         NUMERIC NOT NULL,
    total_pnl_percent NUMERIC NOT NULL,
    daily_return      NUMERIC
);

CREATE TABLE IF NOT EXISTS orders (
    id            TEXT PRIMARY KEY,
    symbol        TEXT        NOT NULL,
    side          TEXT        NOT NULL,
    quantity      BIGINT      NOT NULL,
    price         NUMERIC     NOT NULL,
    status        TEXT        NOT NULL,
    trade_id      TEXT        NOT NULL DEFAULT '',
    reject_reason TEXT        NOT NULL DEFAULT '',
    reason        TEXT        NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS orders_created_at_idx ON orders (created_at);
`
