package donchian

import (
	"testing"
	"time"

	"papertrader/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func candle(i int, high, low, close string) types.Candle {
	return types.Candle{
		Symbol:    "AAPL",
		Open:      decimal.RequireFromString(close),
		High:      decimal.RequireFromString(high),
		Low:       decimal.RequireFromString(low),
		Close:     decimal.RequireFromString(close),
		Interval:  types.Week,
		Timestamp: start.AddDate(0, 0, 7*i),
	}
}

func TestStrategy_NeedsFullChannel(t *testing.T) {
	s := NewStrategy(3)
	for i := 0; i < 3; i++ {
		assert.Empty(t, s.OnCandle(candle(i, "110", "90", "100")))
	}
}

func TestStrategy_Breakouts(t *testing.T) {
	tests := []struct {
		name     string
		last     types.Candle
		wantSide types.Side
		wantNone bool
		wantConf string
	}{
		{
			name:     "inside channel",
			last:     candle(3, "109", "91", "100"),
			wantNone: true,
		},
		{
			name:     "upside break",
			last:     candle(3, "130", "100", "125"),
			wantSide: types.SideTypeBuy,
		},
		{
			name:     "downside break",
			last:     candle(3, "95", "70", "75"),
			wantSide: types.SideTypeSell,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewStrategy(3)
			for i := 0; i < 3; i++ {
				s.OnCandle(candle(i, "110", "90", "100"))
			}
			got := s.OnCandle(tc.last)
			if tc.wantNone {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, tc.wantSide, got[0].Side)
			assert.Equal(t, "AAPL", got[0].Symbol)
			assert.True(t, got[0].CreatedAt.Equal(tc.last.Timestamp))
			assert.False(t, got[0].Confidence.IsNegative())
			assert.False(t, got[0].Confidence.GreaterThan(decimal.NewFromInt(1)))
		})
	}
}

func TestStrategy_BreakoutLevelIsChannelEdge(t *testing.T) {
	s := NewStrategy(2)
	s.OnCandle(candle(0, "110", "90", "100"))
	s.OnCandle(candle(1, "112", "95", "100"))
	got := s.OnCandle(candle(2, "120", "100", "118"))

	require.Len(t, got, 1)
	assert.True(t, got[0].Price.Equal(decimal.NewFromInt(112)), "price %s", got[0].Price)
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		distance, atr, want string
	}{
		{"5", "10", "0.5"},
		{"20", "10", "1"},
		{"-1", "10", "0"},
		{"5", "0", "1"},
	}
	for _, tc := range tests {
		got := confidence(decimal.RequireFromString(tc.distance), decimal.RequireFromString(tc.atr))
		assert.True(t, got.Equal(decimal.RequireFromString(tc.want)), "confidence(%s, %s) = %s, want %s", tc.distance, tc.atr, got, tc.want)
	}
}

func TestCalcATR(t *testing.T) {
	candles := []types.Candle{
		candle(0, "10", "8", "9"),
		candle(1, "11", "9", "10"),  // TR 2
		candle(2, "12", "10", "11"), // TR 2
		candle(3, "16", "11", "15"), // TR 5
	}
	// seed (2+2)/2 = 2, then (2*1 + 5)/2 = 3.5
	got := calcATR(candles, 2)
	assert.True(t, got.Equal(decimal.RequireFromString("3.5")), "got %s", got)

	assert.True(t, calcATR(candles[:2], 2).IsZero())
}

func TestDonchianHighLow(t *testing.T) {
	high, low := donchianHighLow([]types.Candle{
		candle(0, "10", "8", "9"),
		candle(1, "14", "7", "9"),
		candle(2, "12", "9", "9"),
	})
	assert.True(t, high.Equal(decimal.NewFromInt(14)))
	assert.True(t, low.Equal(decimal.NewFromInt(7)))

	high, low = donchianHighLow(nil)
	assert.True(t, high.IsZero() && low.IsZero())
}
