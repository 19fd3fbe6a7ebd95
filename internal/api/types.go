package api

import (
	"time"

	"papertrader/types"

	"github.com/shopspring/decimal"
)

// orderRequest is the body of POST /api/trading/orders. Price accepts a JSON
// number or string.
type orderRequest struct {
	Symbol   string          `json:"symbol"`
	Side     string          `json:"side"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Reason   string          `json:"reason,omitempty"`
}

type orderResponse struct {
	Status  types.OrderStatus `json:"status"`
	Trade   *types.Trade      `json:"trade,omitempty"`
	Reason  string            `json:"reason,omitempty"`
	Message string            `json:"message"`
}

type statusResponse struct {
	Status         string          `json:"status"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
	TotalValue     decimal.Decimal `json:"total_value"`
	NumPositions   int             `json:"num_positions"`
	NumTrades      int             `json:"num_trades"`
	StreamClients  int             `json:"stream_clients"`
	Persistent     bool            `json:"persistent"`
	Timestamp      time.Time       `json:"timestamp"`
}

type pricesResponse struct {
	Updated int           `json:"updated"`
	Metrics types.Metrics `json:"metrics"`
}

type performanceResponse struct {
	History []types.PortfolioSnapshot `json:"history"`
}

type symbolsResponse struct {
	Symbols []string `json:"symbols"`
}

type priceHistoryResponse struct {
	Symbol   string         `json:"symbol"`
	Interval types.Interval `json:"interval"`
	Start    time.Time      `json:"start"`
	End      time.Time      `json:"end"`
	Candles  []types.Candle `json:"candles"`
}
