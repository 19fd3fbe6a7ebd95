package donchian

import (
	"fmt"

	"papertrader/types"

	"github.com/shopspring/decimal"
)

const DefaultChannelLength = 20

type Strategy struct {
	channelLength int
	// history per symbol, oldest first
	history map[string][]types.Candle
}

// NewStrategy returns a breakout strategy over the preceding channelLength
// candles. Non-positive lengths fall back to DefaultChannelLength.
func NewStrategy(channelLength int) *Strategy {
	if channelLength <= 0 {
		channelLength = DefaultChannelLength
	}
	return &Strategy{
		channelLength: channelLength,
		history:       make(map[string][]types.Candle),
	}
}

func (s *Strategy) OnCandle(candle types.Candle) []types.Signal {
	hist := append(s.history[candle.Symbol], candle)
	// Keep the channel, the current candle and one more close for ATR.
	if keep := s.channelLength + 2; len(hist) > keep {
		hist = hist[len(hist)-keep:]
	}
	s.history[candle.Symbol] = hist

	// Need channelLength completed candles plus the current one
	if len(hist) < s.channelLength+1 {
		return nil
	}

	channel := hist[len(hist)-1-s.channelLength : len(hist)-1]
	highestHigh, lowestLow := donchianHighLow(channel)
	atr := calcATR(hist, s.channelLength)

	var signals []types.Signal

	// Buy a break of the highest high of the preceding candles.
	if candle.High.GreaterThan(highestHigh) {
		signals = append(signals, types.NewSignal(
			candle.Symbol,
			types.SideTypeBuy,
			highestHigh, // breakout level
			confidence(candle.Close.Sub(highestHigh), atr),
			fmt.Sprintf("Break of highest high of preceding %d candles", s.channelLength),
			candle.Timestamp,
		))
	}

	if candle.Low.LessThan(lowestLow) {
		signals = append(signals, types.NewSignal(
			candle.Symbol,
			types.SideTypeSell,
			lowestLow, // breakout level
			confidence(lowestLow.Sub(candle.Close), atr),
			fmt.Sprintf("Break of lowest low of preceding %d candles", s.channelLength),
			candle.Timestamp,
		))
	}

	return signals
}

// confidence scales the close's distance beyond the breakout level by ATR,
// clamped to [0, 1]. Without an ATR every breakout is fully confident.
func confidence(distance, atr decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if !atr.IsPositive() {
		return one
	}
	c := distance.Div(atr)
	if c.IsNegative() {
		return decimal.Zero
	}
	if c.GreaterThan(one) {
		return one
	}
	return c
}

// Utility: Donchian Channel High/Low
func donchianHighLow(candles []types.Candle) (decimal.Decimal, decimal.Decimal) {
	if len(candles) == 0 {
		return decimal.Zero, decimal.Zero
	}

	highest := candles[0].High
	lowest := candles[0].Low

	for _, c := range candles {
		if c.High.GreaterThan(highest) {
			highest = c.High
		}
		if c.Low.LessThan(lowest) {
			lowest = c.Low
		}
	}
	return highest, lowest
}

// calcATR is Wilder's average true range over period.
func calcATR(candles []types.Candle, period int) decimal.Decimal {
	if period <= 0 || len(candles) < period+1 {
		return decimal.Zero // need enough data (prev candle + period)
	}

	trueRanges := make([]decimal.Decimal, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		high := candles[i].High
		low := candles[i].Low
		prevClose := candles[i-1].Close

		range1 := high.Sub(low)
		range2 := high.Sub(prevClose).Abs()
		range3 := low.Sub(prevClose).Abs()

		trueRanges = append(trueRanges, decimal.Max(range1, range2, range3))
	}

	atr := decimal.Zero
	for _, tr := range trueRanges[:period] {
		atr = atr.Add(tr)
	}
	atr = atr.Div(decimal.NewFromInt(int64(period)))

	for i := period; i < len(trueRanges); i++ {
		atr = (atr.Mul(decimal.NewFromInt(int64(period - 1))).Add(trueRanges[i])).
			Div(decimal.NewFromInt(int64(period)))
	}

	return atr
}
