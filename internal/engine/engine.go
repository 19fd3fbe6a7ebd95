package engine

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"papertrader/internal/id"
	"papertrader/types"

	"github.com/shopspring/decimal"
)

// Result is the outcome of ExecuteOrder. Business rejections are ordinary
// results, not errors.
type Result struct {
	Status    types.OrderStatus `json:"status"`
	Trade     *types.Trade      `json:"trade,omitempty"`
	Rejection *RejectionError   `json:"-"`
}

func filled(t types.Trade) Result {
	return Result{Status: types.OrderFilled, Trade: &t}
}

func rejected(r *RejectionError) Result {
	return Result{Status: types.OrderRejected, Rejection: r}
}

func (r Result) Filled() bool {
	return r.Status == types.OrderFilled
}

// Err returns the rejection as an error, or nil for a fill.
func (r Result) Err() error {
	if r.Rejection == nil {
		return nil
	}
	return r.Rejection
}

// Engine owns one Ledger. ExecuteOrder and UpdateMarkPrices are serialized by
// a write lock; reads share a read lock and return copies.
type Engine struct {
	mu        sync.RWMutex
	cfg       Config
	ledger    *Ledger
	snapshots []types.PortfolioSnapshot
	orders    []types.OrderRecord

	recorder  Recorder
	listeners []Listener
	log       *slog.Logger
	now       func() time.Time
}

type Option func(*Engine)

func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithListener(l Listener) Option {
	return func(e *Engine) {
		if l != nil {
			e.listeners = append(e.listeners, l)
		}
	}
}

func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:      cfg,
		ledger:   newLedger(cfg.InitialCapital),
		recorder: nopRecorder{},
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// AddListener registers l for change notifications.
func (e *Engine) AddListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

func (e *Engine) ExecuteOrder(ctx context.Context, order types.Order) (Result, error) {
	order, err := normalizeOrder(order)
	if err != nil {
		return Result{}, err
	}

	e.mu.Lock()
	at := order.Time
	if at.IsZero() {
		at = e.now()
	}
	at = at.UTC()
	res, err := e.ledger.apply(order, e.cfg.CommissionRate, at)
	if err != nil {
		e.mu.Unlock()
		e.log.Error("order failed", "symbol", order.Symbol, "side", order.Side, "error", err)
		return Result{}, err
	}
	if res.Filled() {
		e.mirrorFillLocked(ctx, *res.Trade)
	}
	e.recordOrderLocked(ctx, newOrderRecord(order, res, at))
	if !res.Filled() {
		e.mu.Unlock()
		e.log.Warn("order rejected", "symbol", order.Symbol, "side", order.Side,
			"quantity", order.Quantity, "reason", res.Rejection.Code())
		return res, nil
	}

	ev := Event{Kind: EventFill, Trade: res.Trade, Metrics: e.metricsLocked()}
	listeners := e.listeners
	e.mu.Unlock()

	t := res.Trade
	if t.PnL != nil {
		e.log.Info("order filled", "side", t.Side, "symbol", t.Symbol, "quantity", t.Quantity,
			"price", t.Price.StringFixed(2), "pnl", t.PnL.StringFixed(2))
	} else {
		e.log.Info("order filled", "side", t.Side, "symbol", t.Symbol, "quantity", t.Quantity,
			"price", t.Price.StringFixed(2))
	}
	notify(listeners, ev)
	return res, nil
}

// normalizeSymbol is the one canonical form of a ticker used as a ledger key.
func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func normalizeOrder(o types.Order) (types.Order, error) {
	o.Symbol = normalizeSymbol(o.Symbol)
	if o.Symbol == "" {
		return o, invalidInput("symbol is required")
	}
	if !o.Side.Valid() {
		return o, invalidInput("unknown side %q", o.Side)
	}
	if o.Quantity <= 0 {
		return o, invalidInput("quantity %d must be positive", o.Quantity)
	}
	if !o.Price.IsPositive() {
		return o, invalidInput("price %s must be positive", o.Price)
	}
	return o, nil
}

func newOrderRecord(o types.Order, res Result, at time.Time) types.OrderRecord {
	rec := types.OrderRecord{
		ID:        id.NewAt(at),
		Symbol:    o.Symbol,
		Side:      o.Side,
		Quantity:  o.Quantity,
		Price:     o.Price,
		Status:    res.Status,
		Reason:    o.Reason,
		CreatedAt: at,
	}
	if res.Trade != nil {
		rec.TradeID = res.Trade.ID
	}
	if res.Rejection != nil {
		rec.RejectReason = res.Rejection.Code()
	}
	return rec
}

func (e *Engine) recordOrderLocked(ctx context.Context, rec types.OrderRecord) {
	e.orders = append(e.orders, rec)
	if err := e.recorder.RecordOrder(ctx, rec); err != nil {
		e.log.Error("mirror order", "order_id", rec.ID, "error", err)
	}
}

func (e *Engine) mirrorFillLocked(ctx context.Context, t types.Trade) {
	if err := e.recorder.RecordTrade(ctx, t); err != nil {
		e.log.Error("mirror trade", "trade_id", t.ID, "error", err)
	}
	if pos, ok := e.ledger.positions[t.Symbol]; ok {
		if err := e.recorder.SavePosition(ctx, pos.snapshot()); err != nil {
			e.log.Error("mirror position", "symbol", t.Symbol, "error", err)
		}
		return
	}
	if err := e.recorder.DeletePosition(ctx, t.Symbol); err != nil {
		e.log.Error("mirror position delete", "symbol", t.Symbol, "error", err)
	}
}

// UpdateMarkPrices refreshes CurrentPrice for held symbols found in prices.
// Keys are matched after trimming and upper-casing; when several keys name the
// same symbol the canonical spelling wins. Symbols missing from prices keep
// their last mark; non-positive prices are ignored.
func (e *Engine) UpdateMarkPrices(ctx context.Context, prices map[string]decimal.Decimal) int {
	marks := canonicalPrices(prices)
	symbols := make([]string, 0, len(marks))
	for sym := range marks {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	e.mu.Lock()
	updated := 0
	for _, sym := range symbols {
		pos, ok := e.ledger.positions[sym]
		if !ok {
			continue
		}
		pos.CurrentPrice = marks[sym]
		updated++
		if err := e.recorder.SavePosition(ctx, pos.snapshot()); err != nil {
			e.log.Error("mirror position", "symbol", pos.Symbol, "error", err)
		}
	}
	if updated == 0 {
		e.mu.Unlock()
		return 0
	}
	ev := Event{Kind: EventMarks, Metrics: e.metricsLocked()}
	listeners := e.listeners
	e.mu.Unlock()

	notify(listeners, ev)
	return updated
}

func canonicalPrices(prices map[string]decimal.Decimal) map[string]decimal.Decimal {
	keys := make([]string, 0, len(prices))
	for k := range prices {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]decimal.Decimal, len(prices))
	for _, k := range keys {
		price := prices[k]
		sym := normalizeSymbol(k)
		if sym == "" || !price.IsPositive() {
			continue
		}
		if _, seen := out[sym]; seen && k != sym {
			continue
		}
		out[sym] = price
	}
	return out
}

func (e *Engine) PortfolioValue() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return portfolioValue(e.ledger.view(time.Time{}))
}

func (e *Engine) Metrics() (types.Metrics, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return computeMetrics(e.ledger.view(time.Time{}), e.cfg.InitialCapital, e.ledger.trades)
}

func (e *Engine) metricsLocked() types.Metrics {
	m, _ := computeMetrics(e.ledger.view(time.Time{}), e.cfg.InitialCapital, e.ledger.trades)
	return m
}

func (e *Engine) Cash() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.cash
}

func (e *Engine) InitialCapital() decimal.Decimal {
	return e.cfg.InitialCapital
}

// Position returns the open position for symbol.
func (e *Engine) Position(symbol string) (types.PositionSnapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pos, ok := e.ledger.positions[normalizeSymbol(symbol)]
	if !ok {
		return types.PositionSnapshot{}, false
	}
	return pos.snapshot(), true
}

// Positions returns the open positions sorted by symbol.
func (e *Engine) Positions() []types.PositionSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]types.PositionSnapshot, 0, len(e.ledger.positions))
	for _, pos := range e.ledger.positions {
		out = append(out, pos.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Trades returns a copy of the trade log in execution order.
func (e *Engine) Trades() []types.Trade {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]types.Trade(nil), e.ledger.trades...)
}

// Orders returns submitted orders newest first. An empty status lists every
// order; a limit of zero or less lists all of them.
func (e *Engine) Orders(status types.OrderStatus, limit int) []types.OrderRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]types.OrderRecord, 0)
	for i := len(e.orders) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if status != "" && e.orders[i].Status != status {
			continue
		}
		out = append(out, e.orders[i])
	}
	return out
}

func (e *Engine) Snapshot(at time.Time) types.PortfolioView {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.view(at)
}

// RecordSnapshot appends a point to the equity curve and mirrors it.
func (e *Engine) RecordSnapshot(ctx context.Context, at time.Time) types.PortfolioSnapshot {
	e.mu.Lock()
	m := e.metricsLocked()
	snap := types.PortfolioSnapshot{
		Time:            at.UTC(),
		TotalValue:      m.TotalValue,
		CashBalance:     m.CashBalance,
		PositionsValue:  m.PositionsValue,
		TotalPnL:        m.TotalPnL,
		TotalPnLPercent: m.TotalPnLPercent,
	}
	if n := len(e.snapshots); n > 0 {
		prev := e.snapshots[n-1].TotalValue
		if prev.IsPositive() {
			r := snap.TotalValue.Sub(prev).Div(prev)
			snap.DailyReturn = &r
		}
	}
	e.snapshots = append(e.snapshots, snap)
	if err := e.recorder.RecordSnapshot(ctx, snap); err != nil {
		e.log.Error("mirror snapshot", "time", snap.Time, "error", err)
	}
	ev := Event{Kind: EventSnapshot, Metrics: m}
	listeners := e.listeners
	e.mu.Unlock()

	notify(listeners, ev)
	return snap
}

// Snapshots returns the equity curve recorded since start, oldest first.
func (e *Engine) Snapshots(since time.Time) []types.PortfolioSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]types.PortfolioSnapshot, 0, len(e.snapshots))
	for _, s := range e.snapshots {
		if !s.Time.Before(since) {
			out = append(out, s)
		}
	}
	return out
}

func notify(listeners []Listener, ev Event) {
	for _, l := range listeners {
		l.PortfolioChanged(ev)
	}
}
