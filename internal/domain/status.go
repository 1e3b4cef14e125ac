package domain

// EngineStatus is a read-only summary of the running engine, served by
// the status API.
type EngineStatus struct {
	Mode            string // "paper" or "live"
	UptimeSeconds   int64
	TrackedMatches  int
	ActiveMarkets   int
	OpenPositions   int
	TotalExposure   float64
	DailyPnl        float64
	RealizedPnl     float64
	Opportunities   int64 // found since start
	OrdersPlaced    int64
	OrdersFilled    int64
	OrdersFailed    int64
	AvgOrderLatency float64 // milliseconds
}
