package export

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"papertrader/types"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2024, 5, 6, 14, 30, 0, 0, time.UTC)

func sampleTrades() []types.Trade {
	pnl := decimal.RequireFromString("98.9")
	return []types.Trade{
		{ID: "01A", Symbol: "AAPL", Side: types.SideTypeBuy, Quantity: 10, Price: decimal.NewFromInt(100),
			Commission: decimal.NewFromInt(1), Timestamp: at, Reason: "breakout, high"},
		{ID: "01B", Symbol: "AAPL", Side: types.SideTypeSell, Quantity: 10, Price: decimal.NewFromInt(110),
			Commission: decimal.RequireFromString("1.1"), PnL: &pnl, Timestamp: at.Add(time.Hour)},
	}
}

func TestWriteTradesCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTradesCSV(&buf, sampleTrades()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, tradeHeader, rows[0])
	assert.Equal(t, []string{"01A", "2024-05-06T14:30:00Z", "AAPL", "BUY", "10", "100", "1", "", "breakout, high"}, rows[1])
	assert.Equal(t, "98.9", rows[2][7])
}

func TestWriteTradesCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")
	require.NoError(t, WriteTradesCSVFile(path, sampleTrades()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	assert.Error(t, WriteTradesCSVFile(filepath.Join(t.TempDir(), "missing", "trades.csv"), nil))
}

func TestWriteTradesParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "trades.parquet")
	require.NoError(t, WriteTradesParquet(path, sampleTrades()))

	got, err := parquet.ReadFile[TradeRecord](path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "01A", got[0].ID)
	assert.Equal(t, at.UnixMilli(), got[0].Timestamp)
	assert.Nil(t, got[0].PnL)
	require.NotNil(t, got[1].PnL)
	assert.Equal(t, "98.9", *got[1].PnL)
	assert.Equal(t, "1.1", got[1].Commission)
}

func TestWriteSnapshotsParquet(t *testing.T) {
	ret := decimal.RequireFromString("0.01")
	snaps := []types.PortfolioSnapshot{
		{Time: at, TotalValue: decimal.NewFromInt(1000), CashBalance: decimal.NewFromInt(1000)},
		{Time: at.Add(24 * time.Hour), TotalValue: decimal.NewFromInt(1010), CashBalance: decimal.NewFromInt(500),
			PositionsValue: decimal.NewFromInt(510), TotalPnL: decimal.NewFromInt(10), TotalPnLPercent: decimal.NewFromInt(1), DailyReturn: &ret},
	}
	path := filepath.Join(t.TempDir(), "equity.parquet")
	require.NoError(t, WriteSnapshotsParquet(path, snaps))

	got, err := parquet.ReadFile[SnapshotRecord](path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Nil(t, got[0].DailyReturn)
	assert.Equal(t, "1010", got[1].TotalValue)
	assert.Equal(t, "0.01", *got[1].DailyReturn)
}
