package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
	Game   Game // zero value means all titles
}

// TradeStore persists closed-trade receipts. Persistence is write-behind:
// a store failure never affects trading state.
type TradeStore interface {
	Insert(ctx context.Context, trade TradeRecord) error
	List(ctx context.Context, opts ListOpts) ([]TradeRecord, error)
	Summary(ctx context.Context) (PerformanceSummary, error)
}

// PositionStore mirrors position lifecycle changes for history and
// restart inspection. The in-memory tracker remains the authority.
type PositionStore interface {
	Insert(ctx context.Context, pos Position) error
	Close(ctx context.Context, id string, exitPrice float64, reason ExitReason, status PositionStatus) error
	ListOpen(ctx context.Context) ([]Position, error)
	ListHistory(ctx context.Context, opts ListOpts) ([]Position, error)
}

// StatStore maintains per-day aggregates.
type StatStore interface {
	ApplyTrade(ctx context.Context, trade TradeRecord) error
	Get(ctx context.Context, date string) (DailyStats, error)
	Range(ctx context.Context, from, to string) ([]DailyStats, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
