package engine

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"papertrader/types"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

type Report struct {
	// Meta / period info
	StartDate    time.Time     `json:"start_date"`
	EndDate      time.Time     `json:"end_date"`
	TotalPeriod  time.Duration `json:"-"`
	PeriodDays   int           `json:"period_days"`
	TotalTrades  int           `json:"total_trades"`
	ClosedTrades int           `json:"closed_trades"`

	// Absolute performance
	NetProfit            decimal.Decimal `json:"net_profit"`
	NetAvgProfitPerTrade decimal.Decimal `json:"net_avg_profit_per_trade"`
	CAGR                 decimal.Decimal `json:"cagr"`

	// Trade-level distribution metrics
	AvgWin       decimal.Decimal `json:"avg_win"`
	AvgLoss      decimal.Decimal `json:"avg_loss"`
	ProfitFactor decimal.Decimal `json:"profit_factor"`

	// Drawdown & loss streak metrics
	MaxDrawdown          decimal.Decimal `json:"max_drawdown"`
	MaxDrawdownPercent   decimal.Decimal `json:"max_drawdown_percent"`
	MaxDrawdownDuration  time.Duration   `json:"-"`
	MaxDrawdownDays      int             `json:"max_drawdown_days"`
	MaxConsecutiveLosses int             `json:"max_consecutive_losses"`

	// Risk-adjusted metrics
	SharpeRatio decimal.Decimal `json:"sharpe_ratio"`

	// Costs
	TotalFees decimal.Decimal `json:"total_fees"`
}

const day = 24 * time.Hour

// GenerateReport summarises a run from its equity curve and trade log.
// Snapshots must be in chronological order. Only SELL fills count as closed
// trades; their pnl already nets the sell commission. NetProfit additionally
// subtracts every BUY commission, so it is realized pnl net of all fees paid.
func GenerateReport(snapshots []types.PortfolioSnapshot, trades []types.Trade, annualRiskFree decimal.Decimal) (*Report, error) {
	if err := checkChronological(snapshots); err != nil {
		return nil, err
	}

	closed := closedTrades(trades)
	report := &Report{
		TotalTrades:  len(trades),
		ClosedTrades: len(closed),
	}
	if len(snapshots) > 0 {
		report.StartDate = snapshots[0].Time
		report.EndDate = snapshots[len(snapshots)-1].Time
		report.TotalPeriod = report.EndDate.Sub(report.StartDate).Truncate(day)
		report.PeriodDays = int(report.TotalPeriod / day)
	}

	var g errgroup.Group
	g.Go(func() error {
		report.NetProfit = calcNetProfit(trades)
		report.NetAvgProfitPerTrade = calcNetAvgProfitPerTrade(report.NetProfit, len(closed))
		return nil
	})
	g.Go(func() error {
		report.AvgWin, report.AvgLoss, report.ProfitFactor = calcWinLoss(closed)
		return nil
	})
	g.Go(func() error {
		report.MaxConsecutiveLosses = calcMaxConsecutiveLosses(closed)
		return nil
	})
	g.Go(func() error {
		report.TotalFees = calcTotalFees(trades)
		return nil
	})
	g.Go(func() error {
		cagr, err := calcCAGR(snapshots)
		report.CAGR = cagr
		return err
	})
	g.Go(func() error {
		report.MaxDrawdown, report.MaxDrawdownPercent, report.MaxDrawdownDuration = calcDrawdownMetrics(snapshots)
		report.MaxDrawdownDays = int(report.MaxDrawdownDuration / day)
		return nil
	})
	g.Go(func() error {
		report.SharpeRatio = calcSharpeRatio(snapshots, annualRiskFree)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return report, nil
}

// PrintReport writes a human-readable summary of r to w.
func PrintReport(w io.Writer, r *Report) {
	fmt.Fprintln(w, "===== Trading Report =====")
	fmt.Fprintf(w, "Start Date:            %s\n", r.StartDate.Format("2006-01-02"))
	fmt.Fprintf(w, "Total Period:          %d days\n", r.PeriodDays)
	fmt.Fprintf(w, "Total Trades:          %d\n", r.TotalTrades)
	fmt.Fprintf(w, "Closed Trades:         %d\n", r.ClosedTrades)

	fmt.Fprintln(w, "\n-- Absolute Performance --")
	fmt.Fprintf(w, "Net Profit:            %s\n", r.NetProfit.StringFixed(2))
	fmt.Fprintf(w, "Avg Profit/Trade:      %s\n", r.NetAvgProfitPerTrade.StringFixed(2))
	fmt.Fprintf(w, "CAGR:                  %s\n", r.CAGR.StringFixed(4))

	fmt.Fprintln(w, "\n-- Trade-Level Metrics --")
	fmt.Fprintf(w, "Avg Win:               %s\n", r.AvgWin.StringFixed(2))
	fmt.Fprintf(w, "Avg Loss:              %s\n", r.AvgLoss.StringFixed(2))
	fmt.Fprintf(w, "Profit Factor:         %s\n", r.ProfitFactor.StringFixed(2))

	fmt.Fprintln(w, "\n-- Drawdown Metrics --")
	fmt.Fprintf(w, "Max Drawdown:          %s\n", r.MaxDrawdown.StringFixed(2))
	fmt.Fprintf(w, "Max Drawdown %%:        %s\n", r.MaxDrawdownPercent.Mul(hundred).StringFixed(2))
	fmt.Fprintf(w, "Max Drawdown Days:     %d\n", r.MaxDrawdownDays)
	fmt.Fprintf(w, "Max Consecutive Losses:%d\n", r.MaxConsecutiveLosses)

	fmt.Fprintln(w, "\n-- Risk-Adjusted Metrics --")
	fmt.Fprintf(w, "Sharpe Ratio:          %s\n", r.SharpeRatio.StringFixed(2))

	fmt.Fprintln(w, "\n-- Costs --")
	fmt.Fprintf(w, "Total Fees:            %s\n", r.TotalFees.StringFixed(2))

	fmt.Fprintln(w, "==========================")
}

func checkChronological(snapshots []types.PortfolioSnapshot) error {
	for i := 1; i < len(snapshots); i++ {
		if snapshots[i].Time.Before(snapshots[i-1].Time) {
			return invalidInput("snapshot %d at %s precedes snapshot %d at %s",
				i, snapshots[i].Time.Format(time.RFC3339), i-1, snapshots[i-1].Time.Format(time.RFC3339))
		}
	}
	return nil
}

// closedTrades returns the SELL fills in execution order.
func closedTrades(trades []types.Trade) []types.Trade {
	var out []types.Trade
	for _, t := range trades {
		if t.Side == types.SideTypeSell && t.PnL != nil {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// calcNetProfit sums SELL pnl and subtracts BUY commissions.
func calcNetProfit(trades []types.Trade) decimal.Decimal {
	net := decimal.Zero
	for _, t := range trades {
		switch t.Side {
		case types.SideTypeSell:
			net = net.Add(t.RealizedPnL())
		case types.SideTypeBuy:
			net = net.Sub(t.Commission)
		}
	}
	return net
}

func calcNetAvgProfitPerTrade(net decimal.Decimal, closed int) decimal.Decimal {
	if closed == 0 {
		return decimal.Zero
	}
	return net.Div(decimal.NewFromInt(int64(closed)))
}

// calcWinLoss returns the average winning pnl, the average absolute losing
// pnl and gross wins over gross losses. Break-even trades count as neither.
func calcWinLoss(closed []types.Trade) (decimal.Decimal, decimal.Decimal, decimal.Decimal) {
	sumWins := decimal.Zero
	sumLosses := decimal.Zero
	winCount := 0
	lossCount := 0

	for _, t := range closed {
		switch {
		case t.PnL.IsPositive():
			sumWins = sumWins.Add(*t.PnL)
			winCount++
		case t.PnL.IsNegative():
			sumLosses = sumLosses.Add(t.PnL.Abs())
			lossCount++
		}
	}

	avgWin := decimal.Zero
	avgLoss := decimal.Zero
	profitFactor := decimal.Zero
	if winCount > 0 {
		avgWin = sumWins.Div(decimal.NewFromInt(int64(winCount)))
	}
	if lossCount > 0 {
		avgLoss = sumLosses.Div(decimal.NewFromInt(int64(lossCount)))
		profitFactor = sumWins.Div(sumLosses)
	}
	return avgWin, avgLoss, profitFactor
}

func calcMaxConsecutiveLosses(closed []types.Trade) int {
	maxLossStreak := 0
	currentStreak := 0

	for _, t := range closed {
		if t.PnL.IsNegative() {
			currentStreak++
			if currentStreak > maxLossStreak {
				maxLossStreak = currentStreak
			}
		} else {
			currentStreak = 0
		}
	}
	return maxLossStreak
}

func calcTotalFees(trades []types.Trade) decimal.Decimal {
	fees := decimal.Zero
	for _, t := range trades {
		fees = fees.Add(t.Commission)
	}
	return fees
}

func calcCAGR(snapshots []types.PortfolioSnapshot) (decimal.Decimal, error) {
	if len(snapshots) < 2 {
		return decimal.Zero, nil
	}

	startSnap := snapshots[0]
	endSnap := snapshots[len(snapshots)-1]

	// CAGR is undefined for a non-positive starting value.
	if !startSnap.TotalValue.IsPositive() {
		return decimal.Zero, nil
	}

	duration := endSnap.Time.Sub(startSnap.Time)
	years := duration.Hours() / (24.0 * 365.25)
	if years <= 0 {
		return decimal.Zero, nil
	}

	ratio := endSnap.TotalValue.Div(startSnap.TotalValue)
	if !ratio.IsPositive() {
		return decimal.NewFromInt(-1), nil
	}

	cagr := math.Pow(ratio.InexactFloat64(), 1.0/years) - 1.0
	if math.IsInf(cagr, 0) || math.IsNaN(cagr) {
		return decimal.Zero, fmt.Errorf("%w: cagr overflow over %.4f years", ErrInvalidInput, years)
	}
	return decimal.NewFromFloat(cagr), nil
}

// calcDrawdownMetrics returns the largest peak-to-trough fall in total value,
// that fall as a fraction of the peak, and the time from peak to trough.
func calcDrawdownMetrics(snapshots []types.PortfolioSnapshot) (decimal.Decimal, decimal.Decimal, time.Duration) {
	if len(snapshots) == 0 {
		return decimal.Zero, decimal.Zero, 0
	}

	peak := snapshots[0].TotalValue
	peakTime := snapshots[0].Time

	maxDD := decimal.Zero
	maxDDPct := decimal.Zero
	var maxDDDuration time.Duration

	for _, snap := range snapshots[1:] {
		equity := snap.TotalValue
		if equity.GreaterThan(peak) {
			peak = equity
			peakTime = snap.Time
			continue
		}
		if !peak.IsPositive() {
			continue
		}
		dd := peak.Sub(equity)
		if dd.GreaterThan(maxDD) {
			maxDD = dd
			maxDDPct = dd.Div(peak)
			maxDDDuration = snap.Time.Sub(peakTime)
		}
	}

	return maxDD, maxDDPct, maxDDDuration
}

// calcSharpeRatio annualizes the Sharpe ratio of monthly excess returns.
func calcSharpeRatio(snapshots []types.PortfolioSnapshot, annualRiskFree decimal.Decimal) decimal.Decimal {
	monthlyReturns := getMonthlyReturns(snapshots)
	if len(monthlyReturns) < 2 {
		// Need at least 2 monthly returns for a sample stddev
		return decimal.Zero
	}

	// rf_monthly = (1 + rf_annual)^(1/12) - 1
	rfMonthly := math.Pow(1.0+annualRiskFree.InexactFloat64(), 1.0/12.0) - 1.0

	excess := make([]float64, 0, len(monthlyReturns))
	var sum float64
	for _, r := range monthlyReturns {
		x := r.InexactFloat64() - rfMonthly
		excess = append(excess, x)
		sum += x
	}
	mean := sum / float64(len(excess))

	var varianceSum float64
	for _, x := range excess {
		diff := x - mean
		varianceSum += diff * diff
	}
	std := math.Sqrt(varianceSum / float64(len(excess)-1))
	if std == 0 {
		return decimal.Zero
	}

	return decimal.NewFromFloat(mean / std * math.Sqrt(12.0))
}

// getMonthlyReturns returns the returns between consecutive calendar
// month-end values. Snapshots are assumed chronological.
func getMonthlyReturns(snapshots []types.PortfolioSnapshot) []decimal.Decimal {
	if len(snapshots) == 0 {
		return nil
	}

	type monthKey struct {
		year  int
		month time.Month
	}

	var keys []monthKey
	monthEnds := make(map[monthKey]decimal.Decimal)
	for _, snap := range snapshots {
		y, m, _ := snap.Time.Date()
		key := monthKey{year: y, month: m}
		if _, ok := monthEnds[key]; !ok {
			keys = append(keys, key)
		}
		monthEnds[key] = snap.TotalValue
	}

	if len(keys) < 2 {
		return nil
	}

	returns := make([]decimal.Decimal, 0, len(keys)-1)
	prev := monthEnds[keys[0]]
	for _, k := range keys[1:] {
		curr := monthEnds[k]
		if prev.IsPositive() {
			returns = append(returns, curr.Div(prev).Sub(decimal.NewFromInt(1)))
		}
		prev = curr
	}
	return returns
}
