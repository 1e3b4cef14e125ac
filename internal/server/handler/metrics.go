package handler

import (
	"net/http"

	"github.com/alanyoungcy/esportsarb/internal/detector"
	"github.com/alanyoungcy/esportsarb/internal/executor"
	"github.com/alanyoungcy/esportsarb/internal/risk"
	"github.com/alanyoungcy/esportsarb/internal/tracker"
)

// Metric sources, one narrow interface per component so tests can stub them
// independently.
type (
	BookMetrics interface {
		Metrics() tracker.Metrics
	}
	ExecutorMetrics interface {
		Metrics() executor.Metrics
	}
	DetectorMetrics interface {
		Metrics() detector.Metrics
	}
	GateMetrics interface {
		Metrics() risk.Metrics
	}
)

// MetricsHandler aggregates per-component counters into one snapshot.
type MetricsHandler struct {
	book  BookMetrics
	exec  ExecutorMetrics
	det   DetectorMetrics
	gates GateMetrics
}

// NewMetricsHandler creates a MetricsHandler over the given sources.
func NewMetricsHandler(book BookMetrics, exec ExecutorMetrics, det DetectorMetrics, gates GateMetrics) *MetricsHandler {
	return &MetricsHandler{book: book, exec: exec, det: det, gates: gates}
}

type trackerMetricsView struct {
	OpenPositions  int     `json:"open_positions"`
	TotalExposure  float64 `json:"total_exposure"`
	UnrealizedPnl  float64 `json:"unrealized_pnl"`
	DailyPnl       float64 `json:"daily_pnl"`
	DailyTrades    int     `json:"daily_trades"`
	RealizedPnl    float64 `json:"realized_pnl"`
	TotalTrades    int     `json:"total_trades"`
	WinningTrades  int     `json:"winning_trades"`
	LosingTrades   int     `json:"losing_trades"`
	WinRate        float64 `json:"win_rate"`
	AvgTradePnl    float64 `json:"avg_trade_pnl"`
	AvgHoldSeconds float64 `json:"avg_hold_seconds"`
}

type executorMetricsView struct {
	OrdersPlaced int     `json:"orders_placed"`
	OrdersFilled int     `json:"orders_filled"`
	OrdersFailed int     `json:"orders_failed"`
	OpenOrders   int     `json:"open_orders"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

type detectorMetricsView struct {
	OpportunitiesFound    int64 `json:"opportunities_found"`
	OpportunitiesExecuted int64 `json:"opportunities_executed"`
	ActiveCooldowns       int   `json:"active_cooldowns"`
}

type riskMetricsView struct {
	EntriesAllowed int64            `json:"entries_allowed"`
	EntriesDenied  int64            `json:"entries_denied"`
	DenialsByGate  map[string]int64 `json:"denials_by_gate"`
}

type metricsResponse struct {
	Tracker  trackerMetricsView  `json:"tracker"`
	Executor executorMetricsView `json:"executor"`
	Detector detectorMetricsView `json:"detector"`
	Risk     riskMetricsView     `json:"risk"`
}

// GetMetrics responds with tracker, executor, detector, and risk counters.
// GET /api/metrics
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	tm := h.book.Metrics()
	em := h.exec.Metrics()
	dm := h.det.Metrics()
	rm := h.gates.Metrics()

	writeJSON(w, http.StatusOK, metricsResponse{
		Tracker: trackerMetricsView{
			OpenPositions:  tm.OpenPositions,
			TotalExposure:  tm.TotalExposure,
			UnrealizedPnl:  tm.UnrealizedPnl,
			DailyPnl:       tm.DailyPnl,
			DailyTrades:    tm.DailyTrades,
			RealizedPnl:    tm.RealizedPnl,
			TotalTrades:    tm.TotalTrades,
			WinningTrades:  tm.WinningTrades,
			LosingTrades:   tm.LosingTrades,
			WinRate:        tm.WinRate,
			AvgTradePnl:    tm.AvgTradePnl,
			AvgHoldSeconds: tm.AvgHoldSeconds,
		},
		Executor: executorMetricsView{
			OrdersPlaced: em.OrdersPlaced,
			OrdersFilled: em.OrdersFilled,
			OrdersFailed: em.OrdersFailed,
			OpenOrders:   em.OpenOrders,
			AvgLatencyMs: em.AvgLatencyMs,
		},
		Detector: detectorMetricsView{
			OpportunitiesFound:    dm.OpportunitiesFound,
			OpportunitiesExecuted: dm.OpportunitiesExecuted,
			ActiveCooldowns:       dm.ActiveCooldowns,
		},
		Risk: riskMetricsView{
			EntriesAllowed: rm.Allowed,
			EntriesDenied:  rm.Denied,
			DenialsByGate:  rm.Denials,
		},
	})
}
