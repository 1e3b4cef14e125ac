package domain

import "time"

// TradeRecord is the immutable receipt of one closed position.
type TradeRecord struct {
	TradeID     string
	PositionID  string
	MarketID    string
	MatchID     string
	Game        Game
	Side        OrderSide
	TokenType   TokenType
	Size        float64
	EntryPrice  float64
	ExitPrice   float64
	GrossPnl    float64
	Fees        float64
	NetPnl      float64
	EntryTime   time.Time
	ExitTime    time.Time
	HoldSeconds float64
	EntryEdge   float64
	ExitReason  ExitReason
}

// DailyStats aggregates one calendar day of trading.
type DailyStats struct {
	Date           string // YYYY-MM-DD
	TotalTrades    int
	WinningTrades  int
	LosingTrades   int
	GrossPnl       float64
	Fees           float64
	NetPnl         float64
	Volume         float64
	LolTrades      int
	DotaTrades     int
	AvgHoldSeconds float64
	UpdatedAt      time.Time
}

// WinRate returns the fraction of winning trades, 0 when none closed.
func (d DailyStats) WinRate() float64 {
	if d.TotalTrades == 0 {
		return 0
	}
	return float64(d.WinningTrades) / float64(d.TotalTrades)
}

// PerformanceSummary rolls up all recorded trades.
type PerformanceSummary struct {
	TotalTrades    int
	WinningTrades  int
	LosingTrades   int
	WinRate        float64
	TotalPnl       float64
	TotalVolume    float64
	AvgPnlPerTrade float64
}
