package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"papertrader/internal/engine"
	"papertrader/types"

	"github.com/shopspring/decimal"
)

const (
	defaultTradeLimit = 50
	maxTradeLimit     = 1000
	defaultPerfDays   = 30
	defaultPriceDays  = 30
	maxDays           = 3650
	maxBodyBytes      = 1 << 20
)

// ErrNoPrices marks a price lookup that found no candles.
var ErrNoPrices = errors.New("no price data")

// History serves trades, orders and snapshots from durable storage. Both the
// SQLite journal and the Postgres repository implement it.
type History interface {
	ListTrades(ctx context.Context, limit int) ([]types.Trade, error)
	ListOrders(ctx context.Context, status types.OrderStatus, limit int) ([]types.OrderRecord, error)
	ListSnapshots(ctx context.Context, since time.Time) ([]types.PortfolioSnapshot, error)
}

// PriceHistory serves historical candles. Candles wraps ErrNoPrices when a
// symbol has no data in range.
type PriceHistory interface {
	Candles(ctx context.Context, symbol string, interval types.Interval, start, end time.Time) ([]types.Candle, error)
	Symbols(ctx context.Context) ([]string, error)
}

// Server serves the trading and portfolio HTTP API over one engine.
type Server struct {
	engine       *engine.Engine
	history      History
	prices       PriceHistory
	hub          *Hub
	log          *slog.Logger
	corsOrigins  []string
	riskFreeRate decimal.Decimal
	now          func() time.Time
}

type Option func(*Server)

func WithHistory(h History) Option {
	return func(s *Server) { s.history = h }
}

// WithPriceHistory enables the /api/data routes.
func WithPriceHistory(p PriceHistory) Option {
	return func(s *Server) { s.prices = p }
}

func WithHub(h *Hub) Option {
	return func(s *Server) { s.hub = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithCORSOrigins restricts cross-origin access. No origins, or "*", allows
// every origin.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

func WithRiskFreeRate(r decimal.Decimal) Option {
	return func(s *Server) { s.riskFreeRate = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

func NewServer(eng *engine.Engine, opts ...Option) *Server {
	s := &Server{
		engine: eng,
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/trading/orders", s.handleCreateOrder)
	mux.HandleFunc("GET /api/trading/orders", s.handleOrders)
	mux.HandleFunc("GET /api/trading/trades", s.handleTrades)
	mux.HandleFunc("GET /api/portfolio/positions", s.handlePositions)
	mux.HandleFunc("GET /api/portfolio/metrics", s.handleMetrics)
	mux.HandleFunc("PUT /api/portfolio/prices", s.handlePrices)
	mux.HandleFunc("GET /api/portfolio/performance", s.handlePerformance)
	mux.HandleFunc("GET /api/portfolio/report", s.handleReport)
	if s.prices != nil {
		mux.HandleFunc("GET /api/data/symbols", s.handleSymbols)
		mux.HandleFunc("GET /api/data/price/{symbol}", s.handlePrice)
	}
	if s.hub != nil {
		mux.Handle("GET /api/stream", s.hub)
	}
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return s.corsMiddleware(mux)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := allowedOrigin(s.corsOrigins, r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if origin != "*" {
				w.Header().Add("Vary", "Origin")
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allowedOrigin returns the Access-Control-Allow-Origin value for origin, or
// "" when it is not permitted.
func allowedOrigin(origins []string, origin string) string {
	if len(origins) == 0 {
		return "*"
	}
	for _, o := range origins {
		if o == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}

// OriginChecker permits websocket handshakes from the given CORS origins.
// Requests without an Origin header are always allowed.
func OriginChecker(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowedOrigin(origins, origin) != ""
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": s.now().UTC(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	m, _ := s.engine.Metrics()
	resp := statusResponse{
		Status:         "running",
		InitialCapital: s.engine.InitialCapital(),
		TotalValue:     m.TotalValue,
		NumPositions:   m.NumPositions,
		NumTrades:      m.NumTrades,
		Persistent:     s.history != nil,
		Timestamp:      s.now().UTC(),
	}
	if s.hub != nil {
		resp.StreamClients = s.hub.Clients()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid order body: "+err.Error())
		return
	}
	side, err := types.ParseSide(req.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order := types.NewOrder(req.Symbol, side, req.Quantity, req.Price, req.Reason, time.Time{})
	res, err := s.engine.ExecuteOrder(r.Context(), order)
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !res.Filled() {
		status := http.StatusUnprocessableEntity
		if errors.Is(res.Rejection, engine.ErrInsufficientShares) {
			status = http.StatusConflict
		}
		writeJSON(w, status, orderResponse{
			Status:  res.Status,
			Reason:  res.Rejection.Code(),
			Message: res.Rejection.Error(),
		})
		return
	}
	writeJSON(w, http.StatusCreated, orderResponse{
		Status:  res.Status,
		Trade:   res.Trade,
		Message: "order filled",
	})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultTradeLimit, maxTradeLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.history != nil {
		trades, err := s.history.ListTrades(r.Context(), limit)
		if err != nil {
			s.log.Error("listing trades", "error", err)
			writeError(w, http.StatusInternalServerError, "listing trades failed")
			return
		}
		writeJSON(w, http.StatusOK, nonNil(trades))
		return
	}

	all := s.engine.Trades()
	out := make([]types.Trade, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultTradeLimit, maxTradeLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status types.OrderStatus
	if v := r.URL.Query().Get("status"); v != "" {
		if status, err = types.ParseOrderStatus(v); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if s.history != nil {
		orders, err := s.history.ListOrders(r.Context(), status, limit)
		if err != nil {
			s.log.Error("listing orders", "error", err)
			writeError(w, http.StatusInternalServerError, "listing orders failed")
			return
		}
		writeJSON(w, http.StatusOK, nonNil(orders))
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Orders(status, limit))
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Positions())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.engine.Metrics()
	if err != nil && !errors.Is(err, engine.ErrInvalidInput) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	var prices map[string]decimal.Decimal
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&prices); err != nil {
		writeError(w, http.StatusBadRequest, "invalid price body: "+err.Error())
		return
	}
	updated := s.engine.UpdateMarkPrices(r.Context(), prices)
	m, _ := s.engine.Metrics()
	writeJSON(w, http.StatusOK, pricesResponse{Updated: updated, Metrics: m})
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", defaultPerfDays, maxDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	since := s.now().UTC().AddDate(0, 0, -days)
	snaps, err := s.snapshots(r.Context(), since)
	if err != nil {
		s.log.Error("listing snapshots", "error", err)
		writeError(w, http.StatusInternalServerError, "listing snapshots failed")
		return
	}
	writeJSON(w, http.StatusOK, performanceResponse{History: nonNil(snaps)})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.snapshots(r.Context(), time.Time{})
	if err != nil {
		s.log.Error("listing snapshots", "error", err)
		writeError(w, http.StatusInternalServerError, "listing snapshots failed")
		return
	}
	report, err := engine.GenerateReport(snaps, s.engine.Trades(), s.riskFreeRate)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := s.prices.Symbols(r.Context())
	if err != nil {
		s.log.Error("listing symbols", "error", err)
		writeError(w, http.StatusInternalServerError, "listing symbols failed")
		return
	}
	writeJSON(w, http.StatusOK, symbolsResponse{Symbols: nonNil(symbols)})
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.PathValue("symbol")))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	days, err := intParam(r, "days", defaultPriceDays, maxDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	interval := types.Day
	if v := r.URL.Query().Get("interval"); v != "" {
		if interval, err = types.ParseInterval(v); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	end := s.now().UTC()
	start := end.AddDate(0, 0, -days)
	candles, err := s.prices.Candles(r.Context(), symbol, interval, start, end)
	if err != nil && !errors.Is(err, ErrNoPrices) {
		s.log.Error("loading prices", "symbol", symbol, "error", err)
		writeError(w, http.StatusInternalServerError, "loading prices failed")
		return
	}
	writeJSON(w, http.StatusOK, priceHistoryResponse{
		Symbol:   symbol,
		Interval: interval,
		Start:    start,
		End:      end,
		Candles:  nonNil(candles),
	})
}

func (s *Server) snapshots(ctx context.Context, since time.Time) ([]types.PortfolioSnapshot, error) {
	if s.history != nil {
		return s.history.ListSnapshots(ctx, since)
	}
	return s.engine.Snapshots(since), nil
}

func intParam(r *http.Request, name string, def, ceiling int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return min(n, ceiling), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
