package domain

import "time"

// PositionStatus tracks the position lifecycle. Closed and stopped_out
// are terminal; there is no reopen.
type PositionStatus string

const (
	PositionStatusOpen       PositionStatus = "open"
	PositionStatusClosed     PositionStatus = "closed"
	PositionStatusStoppedOut PositionStatus = "stopped_out"
)

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitGameEnd    ExitReason = "game_end"
	ExitManual     ExitReason = "manual"
)

// Position is one filled order being managed to exit. Stop-loss and
// take-profit prices are derived once at open from the configured
// percentages, direction-aware. The tracker owns every position
// exclusively from open to close.
type Position struct {
	ID              string
	MarketID        string
	MatchID         string
	Game            Game
	TokenID         string
	TokenType       TokenType
	Side            OrderSide
	Size            float64
	EntryPrice      float64
	CurrentPrice    float64
	StopLossPrice   float64
	TakeProfitPrice float64
	UnrealizedPnl   float64
	RealizedPnl     float64
	EntryEdge       float64
	Status          PositionStatus
	OpenedAt        time.Time
	ClosedAt        *time.Time
	ExitPrice       *float64
	ExitReason      ExitReason
}

// Notional returns the capital committed at entry.
func (p Position) Notional() float64 {
	return p.Size * p.EntryPrice
}

// ExitSignal flags one open position for closure.
type ExitSignal struct {
	PositionID string
	Reason     ExitReason
	Price      float64 // current price that tripped the condition
}
