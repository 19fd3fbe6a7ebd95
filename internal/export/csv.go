package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"papertrader/types"
)

var tradeHeader = []string{
	"trade_id",
	"timestamp", // RFC3339
	"symbol",
	"side",
	"quantity",
	"price",
	"commission",
	"pnl", // empty for buys
	"reason",
}

// WriteTradesCSVFile writes trades to a CSV file at the given path.
func WriteTradesCSVFile(path string, trades []types.Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trades file: %w", err)
	}
	defer f.Close()

	if err := WriteTradesCSV(f, trades); err != nil {
		return err
	}
	return f.Close()
}

// WriteTradesCSV writes trades to any io.Writer as CSV, one row per fill.
func WriteTradesCSV(w io.Writer, trades []types.Trade) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(tradeHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, t := range trades {
		if err := cw.Write(tradeRow(t)); err != nil {
			return fmt.Errorf("write trade %s: %w", t.ID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func tradeRow(t types.Trade) []string {
	pnl := ""
	if t.PnL != nil {
		pnl = t.PnL.String()
	}
	return []string{
		t.ID,
		t.Timestamp.UTC().Format(time.RFC3339),
		t.Symbol,
		string(t.Side),
		strconv.FormatInt(t.Quantity, 10),
		t.Price.String(),
		t.Commission.String(),
		pnl,
		t.Reason,
	}
}
