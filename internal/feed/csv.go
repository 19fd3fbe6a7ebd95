package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"papertrader/types"

	"github.com/shopspring/decimal"
)

var (
	ErrBadHeader = errors.New("unexpected csv header")
	ErrNoCandles = errors.New("no candles in range")
)

var header = []string{"timestamp", "open", "high", "low", "close", "volume"}

// CSVSource reads candles from <dir>/<SYMBOL>.csv.
type CSVSource struct {
	dir string
}

func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{dir: dir}
}

// Candles returns the candles of symbol opening within [start, end], oldest
// first. A zero start or end leaves that side open.
func (s *CSVSource) Candles(ctx context.Context, symbol string, interval types.Interval, start, end time.Time) ([]types.Candle, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	path := filepath.Join(s.dir, symbol+".csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	candles, err := ReadCandles(ctx, f, symbol, interval)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	out := candles[:0]
	for _, c := range candles {
		if !start.IsZero() && c.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && c.Timestamp.After(end) {
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s %w", symbol, ErrNoCandles)
	}
	return out, nil
}

// Symbols lists the symbols with a <SYMBOL>.csv file in the source
// directory, sorted. A missing directory has no symbols.
func (s *CSVSource) Symbols() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.dir, err)
	}
	var out []string
	for _, e := range entries {
		sym, ok := strings.CutSuffix(e.Name(), ".csv")
		if e.IsDir() || !ok || sym == "" || sym != strings.ToUpper(sym) {
			continue
		}
		out = append(out, sym)
	}
	sort.Strings(out)
	return out, nil
}

// ReadCandles parses a candle csv with the header
// timestamp,open,high,low,close,volume and returns the rows sorted by time.
func ReadCandles(ctx context.Context, r io.Reader, symbol string, interval types.Interval) ([]types.Candle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(header)
	cr.TrimLeadingSpace = true

	got, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, name := range header {
		if !strings.EqualFold(strings.TrimSpace(got[i]), name) {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrBadHeader, i, got[i], name)
		}
	}

	var candles []types.Candle
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		c, err := parseRecord(record, symbol, interval)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		candles = append(candles, c)
	}

	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
	return candles, nil
}

func parseRecord(record []string, symbol string, interval types.Interval) (types.Candle, error) {
	ts, err := parseTime(record[0])
	if err != nil {
		return types.Candle{}, err
	}
	var values [5]decimal.Decimal
	for i := range values {
		v, err := decimal.NewFromString(strings.TrimSpace(record[i+1]))
		if err != nil {
			return types.Candle{}, fmt.Errorf("%s: %w", header[i+1], err)
		}
		values[i] = v
	}
	return types.Candle{
		Symbol:    symbol,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
		Interval:  interval,
		Timestamp: ts,
	}, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp %q is neither RFC3339 nor YYYY-MM-DD", s)
}
