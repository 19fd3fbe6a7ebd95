package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"papertrader/internal/engine"
	"papertrader/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ engine.Recorder = (*SQLiteStore)(nil)
	_ engine.Journal  = (*SQLiteStore)(nil)
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	return openStoreAt(t, filepath.Join(t.TempDir(), "journal.db"))
}

func TestSQLiteStore_Trades(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 4, 15, 0, 0, 123, time.UTC)
	pnl := decimal.RequireFromString("98.9")

	require.NoError(t, store.RecordTrade(ctx, types.Trade{
		ID: "01A", Symbol: "AAPL", Side: types.SideTypeBuy, Quantity: 10,
		Price: decimal.NewFromInt(100), Commission: decimal.NewFromInt(1), Timestamp: at,
	}))
	require.NoError(t, store.RecordTrade(ctx, types.Trade{
		ID: "01B", Symbol: "AAPL", Side: types.SideTypeSell, Quantity: 10,
		Price: decimal.NewFromInt(110), Commission: decimal.RequireFromString("1.1"), PnL: &pnl,
		Reason: "exit", Timestamp: at.Add(time.Minute),
	}))

	assert.Error(t, store.RecordTrade(ctx, types.Trade{ID: "01A", Timestamp: at}), "duplicate id")

	trades, err := store.ListTrades(ctx, 10)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "01B", trades[0].ID)
	require.NotNil(t, trades[0].PnL)
	assert.True(t, trades[0].PnL.Equal(pnl))
	assert.Equal(t, "exit", trades[0].Reason)
	assert.Nil(t, trades[1].PnL)
	assert.True(t, trades[1].Timestamp.Equal(at))
	assert.True(t, trades[1].Commission.Equal(decimal.NewFromInt(1)))

	limited, err := store.ListTrades(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	all, err := store.ListTrades(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2, "non-positive limit lists everything")
}

func TestSQLiteStore_Orders(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordOrder(ctx, types.OrderRecord{
		ID: "01A", Symbol: "AAPL", Side: types.SideTypeBuy, Quantity: 10, Price: decimal.NewFromInt(100),
		Status: types.OrderFilled, TradeID: "T1", CreatedAt: at,
	}))
	require.NoError(t, store.RecordOrder(ctx, types.OrderRecord{
		ID: "01B", Symbol: "MSFT", Side: types.SideTypeSell, Quantity: 1, Price: decimal.RequireFromString("310.25"),
		Status: types.OrderRejected, RejectReason: "insufficient_shares", Reason: "exit", CreatedAt: at.Add(time.Second),
	}))

	all, err := store.ListOrders(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "01B", all[0].ID)
	assert.Equal(t, "insufficient_shares", all[0].RejectReason)
	assert.Equal(t, "exit", all[0].Reason)
	assert.True(t, all[0].Price.Equal(decimal.RequireFromString("310.25")))
	assert.Equal(t, "T1", all[1].TradeID)
	assert.True(t, all[1].CreatedAt.Equal(at))

	filled, err := store.ListOrders(ctx, types.OrderFilled, 10)
	require.NoError(t, err)
	require.Len(t, filled, 1)
	assert.Equal(t, "AAPL", filled[0].Symbol)

	one, err := store.ListOrders(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestSQLiteStore_Positions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	pos := types.PositionSnapshot{Symbol: "MSFT", Quantity: 5, AvgEntryPrice: decimal.RequireFromString("300.5"), CurrentPrice: decimal.NewFromInt(310)}
	require.NoError(t, store.SavePosition(ctx, pos))
	pos.Quantity = 8
	require.NoError(t, store.SavePosition(ctx, pos))
	require.NoError(t, store.SavePosition(ctx, types.PositionSnapshot{Symbol: "AAPL", Quantity: 1, AvgEntryPrice: decimal.NewFromInt(1), CurrentPrice: decimal.NewFromInt(1)}))

	got, err := store.ListPositions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "AAPL", got[0].Symbol)
	assert.Equal(t, int64(8), got[1].Quantity)
	assert.True(t, got[1].AvgEntryPrice.Equal(decimal.RequireFromString("300.5")))

	require.NoError(t, store.DeletePosition(ctx, "MSFT"))
	got, err = store.ListPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	assert.Error(t, store.SavePosition(ctx, types.PositionSnapshot{Symbol: "BAD", Quantity: 0}), "zero quantity violates the check")
}

func TestSQLiteStore_Snapshots(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	ret := decimal.RequireFromString("0.0125")

	for i, v := range []string{"1000", "1012.5"} {
		snap := types.PortfolioSnapshot{
			Time:            day.AddDate(0, 0, i),
			TotalValue:      decimal.RequireFromString(v),
			CashBalance:     decimal.RequireFromString(v),
			PositionsValue:  decimal.Zero,
			TotalPnL:        decimal.RequireFromString(v).Sub(decimal.NewFromInt(1000)),
			TotalPnLPercent: decimal.Zero,
		}
		if i > 0 {
			snap.DailyReturn = &ret
		}
		require.NoError(t, store.RecordSnapshot(ctx, snap))
	}

	all, err := store.ListSnapshots(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Nil(t, all[0].DailyReturn)
	assert.True(t, all[1].DailyReturn.Equal(ret))
	assert.True(t, all[1].Time.Equal(day.AddDate(0, 0, 1)))

	recent, err := store.ListSnapshots(ctx, day.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.True(t, recent[0].TotalPnL.Equal(decimal.RequireFromString("12.5")))
}

func TestSQLiteStore_MirrorsEngine(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	eng, err := engine.New(engine.NewConfig(decimal.NewFromInt(10000), engine.DefaultCommissionRate), engine.WithRecorder(store))
	require.NoError(t, err)

	_, err = eng.ExecuteOrder(ctx, types.NewOrder("AAPL", types.SideTypeBuy, 10, decimal.NewFromInt(100), "", time.Time{}))
	require.NoError(t, err)
	_, err = eng.ExecuteOrder(ctx, types.NewOrder("MSFT", types.SideTypeBuy, 2, decimal.NewFromInt(300), "", time.Time{}))
	require.NoError(t, err)
	_, err = eng.ExecuteOrder(ctx, types.NewOrder("AAPL", types.SideTypeSell, 10, decimal.NewFromInt(110), "", time.Time{}))
	require.NoError(t, err)

	trades, err := store.ListTrades(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, trades, 3)

	positions, err := store.ListPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "MSFT", positions[0].Symbol)
}

func TestSQLiteStore_ResumeAfterRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")
	cfg := engine.NewConfig(decimal.NewFromInt(10000), engine.DefaultCommissionRate)

	store, err := Open(ctx, path)
	require.NoError(t, err)
	first, err := engine.New(cfg, engine.WithRecorder(store))
	require.NoError(t, err)
	_, err = first.ExecuteOrder(ctx, types.NewOrder("AAPL", types.SideTypeBuy, 10, decimal.NewFromInt(100), "", time.Time{}))
	require.NoError(t, err)
	_, err = first.ExecuteOrder(ctx, types.NewOrder("MSFT", types.SideTypeSell, 1, decimal.NewFromInt(300), "", time.Time{}))
	require.NoError(t, err)
	first.UpdateMarkPrices(ctx, map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(105)})
	first.RecordSnapshot(ctx, time.Now())
	// A row the trade log cannot account for, as left by a crash mid-mirror.
	require.NoError(t, store.SavePosition(ctx, types.PositionSnapshot{
		Symbol: "TSLA", Quantity: 3, AvgEntryPrice: decimal.NewFromInt(200), CurrentPrice: decimal.NewFromInt(200),
	}))
	require.NoError(t, store.Close())

	store = openStoreAt(t, path)
	second, err := engine.New(cfg, engine.WithRecorder(store))
	require.NoError(t, err)
	require.NoError(t, second.Resume(ctx, store))

	assert.True(t, first.Cash().Equal(second.Cash()), "cash %s vs %s", first.Cash(), second.Cash())
	pos, ok := second.Position("AAPL")
	require.True(t, ok)
	assert.Equal(t, int64(10), pos.Quantity)
	assert.True(t, pos.CurrentPrice.Equal(decimal.NewFromInt(105)))
	assert.Len(t, second.Trades(), 1)
	assert.Len(t, second.Orders(types.OrderRejected, 0), 1)
	assert.Len(t, second.Snapshots(time.Time{}), 1)

	mirrored, err := store.ListPositions(ctx)
	require.NoError(t, err)
	require.Len(t, mirrored, 1, "mirror matches the rebuilt ledger")
	assert.Equal(t, "AAPL", mirrored[0].Symbol)

	// New fills continue the same ledger and the same journal.
	_, err = second.ExecuteOrder(ctx, types.NewOrder("AAPL", types.SideTypeSell, 10, decimal.NewFromInt(110), "", time.Time{}))
	require.NoError(t, err)
	trades, err := store.ListTrades(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, trades, 2)
	report, err := engine.GenerateReport(second.Snapshots(time.Time{}), second.Trades(), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, report.NetProfit.Equal(second.Cash().Sub(cfg.InitialCapital)), "net %s", report.NetProfit)
}

func openStoreAt(t *testing.T, path string) *SQLiteStore {
	t.Helper()
	store, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})
	return store
}
