package engine

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"papertrader/types"

	"github.com/shopspring/decimal"
)

func TestCalcNetProfit(t *testing.T) {
	tests := []struct {
		name   string
		trades []types.Trade
		want   decimal.Decimal
		wantN  int
	}{
		{
			name:   "no trades -> zero",
			trades: nil,
			want:   decimal.Zero,
		},
		{
			name:   "only buys -> commission paid",
			trades: []types.Trade{newTrade(types.SideTypeBuy, 1, "", "0.5")},
			want:   decimal.RequireFromString("-0.5"),
		},
		{
			name: "round trip",
			trades: []types.Trade{
				newTrade(types.SideTypeBuy, 1, "", "1"),
				newTrade(types.SideTypeSell, 2, "8", "1"),
			},
			want:  decimal.RequireFromString("7"),
			wantN: 1,
		},
		{
			name: "wins and losses",
			trades: []types.Trade{
				newTrade(types.SideTypeBuy, 1, "", "1"),
				newTrade(types.SideTypeSell, 2, "10", "1"),
				newTrade(types.SideTypeSell, 3, "-4", "1"),
			},
			want:  decimal.RequireFromString("5"),
			wantN: 2,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			closed := closedTrades(tc.trades)
			if len(closed) != tc.wantN {
				t.Fatalf("closed trades: got %d want %d", len(closed), tc.wantN)
			}
			if got := calcNetProfit(tc.trades); !got.Equal(tc.want) {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestCalcWinLoss(t *testing.T) {
	closed := closedTrades([]types.Trade{
		newTrade(types.SideTypeSell, 1, "10", "0"),
		newTrade(types.SideTypeSell, 2, "30", "0"),
		newTrade(types.SideTypeSell, 3, "-5", "0"),
		newTrade(types.SideTypeSell, 4, "0", "0"),
		newTrade(types.SideTypeSell, 5, "-15", "0"),
	})

	avgWin, avgLoss, pf := calcWinLoss(closed)
	if !avgWin.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("avg win: got %s want 20", avgWin)
	}
	if !avgLoss.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("avg loss: got %s want 10", avgLoss)
	}
	if !pf.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("profit factor: got %s want 2", pf)
	}
	if got := calcNetAvgProfitPerTrade(calcNetProfit(closed), len(closed)); !got.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("avg profit per trade: got %s want 4", got)
	}
}

func TestCalcMaxConsecutiveLosses(t *testing.T) {
	tests := []struct {
		name string
		pnls []string
		want int
	}{
		{name: "empty", pnls: nil, want: 0},
		{name: "all wins", pnls: []string{"1", "2"}, want: 0},
		{name: "streak broken by win", pnls: []string{"-1", "-1", "3", "-1"}, want: 2},
		{name: "break-even resets", pnls: []string{"-1", "0", "-1", "-2", "-3"}, want: 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var trades []types.Trade
			// Insert in reverse to check the sort by close time.
			for i := len(tc.pnls) - 1; i >= 0; i-- {
				trades = append(trades, newTrade(types.SideTypeSell, i, tc.pnls[i], "0"))
			}
			if got := calcMaxConsecutiveLosses(closedTrades(trades)); got != tc.want {
				t.Fatalf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestCalcDrawdownMetrics(t *testing.T) {
	snaps := snapshotsOf(
		"1000", // day 0
		"1200", // day 1 peak
		"900",  // day 2
		"1100", // day 3
		"600",  // day 4 trough
		"1300", // day 5
	)

	dd, pct, dur := calcDrawdownMetrics(snaps)
	if !dd.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("max drawdown: got %s want 600", dd)
	}
	if !pct.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("max drawdown pct: got %s want 0.5", pct)
	}
	if dur != 3*day {
		t.Fatalf("max drawdown duration: got %v want %v", dur, 3*day)
	}
}

func TestCalcCAGR(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	snaps := []types.PortfolioSnapshot{
		{Time: start, TotalValue: decimal.NewFromInt(1000)},
		{Time: start.Add(time.Duration(2 * 365.25 * float64(day))), TotalValue: decimal.NewFromInt(1210)},
	}

	got, err := calcCAGR(snaps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Sub(decimal.RequireFromString("0.1")).Abs().GreaterThan(decimal.RequireFromString("0.0000001")) {
		t.Fatalf("got %s, want 0.1", got)
	}

	got, err = calcCAGR(snaps[:1])
	if err != nil || !got.IsZero() {
		t.Fatalf("single snapshot: got %s, %v", got, err)
	}
}

func TestCalcSharpeRatio(t *testing.T) {
	flat := []types.PortfolioSnapshot{
		{Time: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), TotalValue: decimal.NewFromInt(100)},
		{Time: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), TotalValue: decimal.NewFromInt(100)},
		{Time: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), TotalValue: decimal.NewFromInt(100)},
	}
	if got := calcSharpeRatio(flat, decimal.Zero); !got.IsZero() {
		t.Fatalf("flat equity: got %s want 0", got)
	}

	growing := []types.PortfolioSnapshot{
		{Time: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), TotalValue: decimal.NewFromInt(100)},
		{Time: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), TotalValue: decimal.NewFromInt(100)},
		{Time: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), TotalValue: decimal.NewFromInt(102)},
		{Time: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), TotalValue: decimal.NewFromInt(105)},
		{Time: time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), TotalValue: decimal.NewFromInt(106)},
	}
	if got := getMonthlyReturns(growing); len(got) != 3 {
		t.Fatalf("monthly returns: got %d want 3", len(got))
	}
	if got := calcSharpeRatio(growing, decimal.Zero); !got.IsPositive() {
		t.Fatalf("growing equity: got %s want > 0", got)
	}
}

func TestGenerateReport(t *testing.T) {
	snaps := snapshotsOf("1000", "1100", "1050")
	trades := []types.Trade{
		newTrade(types.SideTypeBuy, 0, "", "1"),
		newTrade(types.SideTypeSell, 1, "50", "1.5"),
	}

	r, err := GenerateReport(snaps, trades, decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.TotalTrades != 2 || r.ClosedTrades != 1 {
		t.Fatalf("trade counts: got %d/%d want 2/1", r.TotalTrades, r.ClosedTrades)
	}
	if r.PeriodDays != 2 {
		t.Fatalf("period: got %d days want 2", r.PeriodDays)
	}
	if !r.NetProfit.Equal(decimal.NewFromInt(49)) {
		t.Fatalf("net profit: got %s want 49 (sell pnl less buy commission)", r.NetProfit)
	}
	if !r.NetAvgProfitPerTrade.Equal(decimal.NewFromInt(49)) {
		t.Fatalf("avg profit per trade: got %s want 49", r.NetAvgProfitPerTrade)
	}
	if !r.TotalFees.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("total fees: got %s want 2.5", r.TotalFees)
	}
	if !r.MaxDrawdown.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("max drawdown: got %s want 50", r.MaxDrawdown)
	}

	var buf bytes.Buffer
	PrintReport(&buf, r)
	if !strings.Contains(buf.String(), "Net Profit:            50.00") {
		t.Fatalf("report output missing net profit:\n%s", buf.String())
	}
}

func TestGenerateReport_OutOfOrderSnapshots(t *testing.T) {
	snaps := snapshotsOf("1000", "1100")
	snaps[0], snaps[1] = snaps[1], snaps[0]

	_, err := GenerateReport(snaps, nil, decimal.Zero)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("got error %v, want %v", err, ErrInvalidInput)
	}
}

// Helper functions

var reportStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTrade(side types.Side, minute int, pnl, fee string) types.Trade {
	t := types.Trade{
		Symbol:     "AAPL",
		Side:       side,
		Quantity:   1,
		Price:      decimal.NewFromInt(100),
		Commission: decimal.RequireFromString(fee),
		Timestamp:  reportStart.Add(time.Duration(minute) * time.Minute),
	}
	if pnl != "" {
		t.PnL = decPtr(pnl)
	}
	return t
}

func snapshotsOf(values ...string) []types.PortfolioSnapshot {
	out := make([]types.PortfolioSnapshot, 0, len(values))
	for i, v := range values {
		out = append(out, types.PortfolioSnapshot{
			Time:       reportStart.Add(time.Duration(i) * day),
			TotalValue: decimal.RequireFromString(v),
		})
	}
	return out
}

func TestGenerateReport_NetProfitMatchesCashWhenFlat(t *testing.T) {
	e := newTestEngine(t, "10000")
	mustFill(t, e, buy("AAPL", 10, "100"))
	mustFill(t, e, buy("MSFT", 5, "200"))
	mustFill(t, e, sell("AAPL", 10, "90"))
	mustFill(t, e, sell("MSFT", 5, "230"))

	r, err := GenerateReport(nil, e.Trades(), decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := e.Cash().Sub(e.InitialCapital()); !r.NetProfit.Equal(want) {
		t.Fatalf("net profit: got %s want %s", r.NetProfit, want)
	}
}
