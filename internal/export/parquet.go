package export

import (
	"fmt"
	"os"
	"path/filepath"

	"papertrader/types"

	"github.com/parquet-go/parquet-go"
)

// Decimal columns are written as their exact string form.

type TradeRecord struct {
	ID         string  `parquet:"id"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Symbol     string  `parquet:"symbol"`
	Side       string  `parquet:"side"`
	Quantity   int64   `parquet:"quantity"`
	Price      string  `parquet:"price"`
	Commission string  `parquet:"commission"`
	PnL        *string `parquet:"pnl,optional"`
	Reason     string  `parquet:"reason"`
}

type SnapshotRecord struct {
	Timestamp       int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	TotalValue      string  `parquet:"total_value"`
	CashBalance     string  `parquet:"cash_balance"`
	PositionsValue  string  `parquet:"positions_value"`
	TotalPnL        string  `parquet:"total_pnl"`
	TotalPnLPercent string  `parquet:"total_pnl_percent"`
	DailyReturn     *string `parquet:"daily_return,optional"`
}

func WriteTradesParquet(path string, trades []types.Trade) error {
	records := make([]TradeRecord, 0, len(trades))
	for _, t := range trades {
		r := TradeRecord{
			ID:         t.ID,
			Timestamp:  t.Timestamp.UnixMilli(),
			Symbol:     t.Symbol,
			Side:       string(t.Side),
			Quantity:   t.Quantity,
			Price:      t.Price.String(),
			Commission: t.Commission.String(),
			Reason:     t.Reason,
		}
		if t.PnL != nil {
			pnl := t.PnL.String()
			r.PnL = &pnl
		}
		records = append(records, r)
	}
	if err := writeParquetFile(path, records); err != nil {
		return fmt.Errorf("write trades parquet: %w", err)
	}
	return nil
}

func WriteSnapshotsParquet(path string, snapshots []types.PortfolioSnapshot) error {
	records := make([]SnapshotRecord, 0, len(snapshots))
	for _, s := range snapshots {
		r := SnapshotRecord{
			Timestamp:       s.Time.UnixMilli(),
			TotalValue:      s.TotalValue.String(),
			CashBalance:     s.CashBalance.String(),
			PositionsValue:  s.PositionsValue.String(),
			TotalPnL:        s.TotalPnL.String(),
			TotalPnLPercent: s.TotalPnLPercent.String(),
		}
		if s.DailyReturn != nil {
			dr := s.DailyReturn.String()
			r.DailyReturn = &dr
		}
		records = append(records, r)
	}
	if err := writeParquetFile(path, records); err != nil {
		return fmt.Errorf("write snapshots parquet: %w", err)
	}
	return nil
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}
