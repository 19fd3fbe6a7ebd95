package engine

import (
	"context"
	"time"

	"papertrader/types"
)

// Recorder mirrors committed ledger changes to durable storage. The engine's
// in-memory ledger stays the source of truth; a failed write is logged, not
// rolled back.
type Recorder interface {
	RecordTrade(ctx context.Context, trade types.Trade) error
	SavePosition(ctx context.Context, pos types.PositionSnapshot) error
	DeletePosition(ctx context.Context, symbol string) error
	RecordSnapshot(ctx context.Context, snap types.PortfolioSnapshot) error
	RecordOrder(ctx context.Context, order types.OrderRecord) error
}

// Journal reads back what a Recorder stored. A limit of zero or less lists
// everything.
type Journal interface {
	ListTrades(ctx context.Context, limit int) ([]types.Trade, error)
	ListPositions(ctx context.Context) ([]types.PositionSnapshot, error)
	ListSnapshots(ctx context.Context, since time.Time) ([]types.PortfolioSnapshot, error)
	ListOrders(ctx context.Context, status types.OrderStatus, limit int) ([]types.OrderRecord, error)
}

// Listener is notified after a change has been committed and the engine lock
// released, so it may call back into the engine.
type Listener interface {
	PortfolioChanged(ev Event)
}

type EventKind string

const (
	EventFill     EventKind = "fill"
	EventMarks    EventKind = "marks"
	EventSnapshot EventKind = "snapshot"
)

type Event struct {
	Kind    EventKind     `json:"kind"`
	Trade   *types.Trade  `json:"trade,omitempty"`
	Metrics types.Metrics `json:"metrics"`
}

type nopRecorder struct{}

func (nopRecorder) RecordTrade(context.Context, types.Trade) error { return nil }
func (nopRecorder) SavePosition(context.Context, types.PositionSnapshot) error { return nil }
func (nopRecorder) DeletePosition(context.Context, string) error { return nil }
func (nopRecorder) RecordSnapshot(context.Context, types.PortfolioSnapshot) error { return nil }
func (nopRecorder) RecordOrder(context.Context, types.OrderRecord) error { return nil }
