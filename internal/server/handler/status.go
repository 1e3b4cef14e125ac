package handler

import (
	"net/http"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// StatusSource provides the engine snapshot served by the status endpoint.
type StatusSource interface {
	Status() domain.EngineStatus
}

// StatusHandler serves the engine status snapshot for dashboards and the
// one-shot status CLI mode.
type StatusHandler struct {
	engine StatusSource
}

// NewStatusHandler creates a StatusHandler reading from the given source.
func NewStatusHandler(engine StatusSource) *StatusHandler {
	return &StatusHandler{engine: engine}
}

// statusResponse is the wire form of domain.EngineStatus.
type statusResponse struct {
	Mode              string  `json:"mode"`
	UptimeSeconds     int64   `json:"uptime_seconds"`
	TrackedMatches    int     `json:"tracked_matches"`
	ActiveMarkets     int     `json:"active_markets"`
	OpenPositions     int     `json:"open_positions"`
	TotalExposure     float64 `json:"total_exposure"`
	DailyPnl          float64 `json:"daily_pnl"`
	RealizedPnl       float64 `json:"realized_pnl"`
	Opportunities     int64   `json:"opportunities_found"`
	OrdersPlaced      int64   `json:"orders_placed"`
	OrdersFilled      int64   `json:"orders_filled"`
	OrdersFailed      int64   `json:"orders_failed"`
	AvgOrderLatencyMs float64 `json:"avg_order_latency_ms"`
}

// GetStatus responds with the current engine mode, uptime, and counters.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st := h.engine.Status()
	writeJSON(w, http.StatusOK, statusResponse{
		Mode:              st.Mode,
		UptimeSeconds:     st.UptimeSeconds,
		TrackedMatches:    st.TrackedMatches,
		ActiveMarkets:     st.ActiveMarkets,
		OpenPositions:     st.OpenPositions,
		TotalExposure:     st.TotalExposure,
		DailyPnl:          st.DailyPnl,
		RealizedPnl:       st.RealizedPnl,
		Opportunities:     st.Opportunities,
		OrdersPlaced:      st.OrdersPlaced,
		OrdersFilled:      st.OrdersFilled,
		OrdersFailed:      st.OrdersFailed,
		AvgOrderLatencyMs: st.AvgOrderLatency,
	})
}
