package donchian

import (
	"testing"
	"time"

	"papertrader/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signal(side types.Side, price, conf string) types.Signal {
	return types.NewSignal("AAPL", side, decimal.RequireFromString(price), decimal.RequireFromString(conf), "test", time.Time{})
}

func TestLongOnlyAllocator(t *testing.T) {
	flat := types.PortfolioView{Cash: decimal.NewFromInt(10000), Positions: map[string]types.PositionSnapshot{}}
	long := types.PortfolioView{
		Cash: decimal.NewFromInt(5000),
		Positions: map[string]types.PositionSnapshot{
			"AAPL": {Symbol: "AAPL", Quantity: 30},
		},
	}

	tests := []struct {
		name     string
		signals  []types.Signal
		view     types.PortfolioView
		wantSide types.Side
		wantQty  int64
		wantNone bool
	}{
		{name: "flat buy sizes by cash percent", signals: []types.Signal{signal(types.SideTypeBuy, "33", "1")}, view: flat, wantSide: types.SideTypeBuy, wantQty: 75},
		{name: "flat sell ignored", signals: []types.Signal{signal(types.SideTypeSell, "33", "1")}, view: flat, wantNone: true},
		{name: "low confidence ignored", signals: []types.Signal{signal(types.SideTypeBuy, "33", "0.1")}, view: flat, wantNone: true},
		{name: "price above budget", signals: []types.Signal{signal(types.SideTypeBuy, "5000", "1")}, view: flat, wantNone: true},
		{name: "long buy does not pyramid", signals: []types.Signal{signal(types.SideTypeBuy, "33", "1")}, view: long, wantNone: true},
		{name: "long sell closes whole position", signals: []types.Signal{signal(types.SideTypeSell, "40", "0")}, view: long, wantSide: types.SideTypeSell, wantQty: 30},
		{name: "conflicting signals skipped", signals: []types.Signal{signal(types.SideTypeBuy, "33", "1"), signal(types.SideTypeSell, "30", "1")}, view: flat, wantNone: true},
	}

	a := NewLongOnlyAllocator(decimal.RequireFromString("0.25"), decimal.RequireFromString("0.5"))
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			orders := a.Allocate(map[string][]types.Signal{"AAPL": tc.signals}, tc.view)
			if tc.wantNone {
				assert.Empty(t, orders)
				return
			}
			require.Len(t, orders, 1)
			assert.Equal(t, tc.wantSide, orders[0].Side)
			assert.Equal(t, tc.wantQty, orders[0].Quantity)
			assert.Equal(t, "AAPL", orders[0].Symbol)
		})
	}

	assert.Nil(t, a.Allocate(nil, flat))
}

func TestGetQuantityForPrice(t *testing.T) {
	assert.Equal(t, int64(3), getQuantityForPrice(decimal.NewFromInt(30), decimal.NewFromInt(99)))
	assert.Equal(t, int64(0), getQuantityForPrice(decimal.Zero, decimal.NewFromInt(99)))
	assert.Equal(t, int64(0), getQuantityForPrice(decimal.NewFromInt(30), decimal.NewFromInt(-1)))
}
