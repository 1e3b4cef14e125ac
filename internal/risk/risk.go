// Package risk evaluates account-level gates before each entry order.
// A tripped gate is advisory: the engine logs the denial and drops the
// opportunity, nothing errors and nothing halts. Exits are never gated;
// reducing exposure must always be possible.
package risk

import (
	"log/slog"
	"sync"

	"github.com/alanyoungcy/esportsarb/internal/config"
	"github.com/alanyoungcy/esportsarb/internal/domain"
	"github.com/alanyoungcy/esportsarb/internal/tracker"
)

// Book is the slice of the position tracker the gates read. Metrics
// must be cheap: it is called once per candidate entry.
type Book interface {
	Metrics() tracker.Metrics
}

// Gate names identify which check denied an entry, in logs and counters.
const (
	GateDailyLoss = "daily_loss_limit"
	GateExposure  = "exposure_ceiling"
	GatePositions = "max_positions"
)

// Gates runs the pre-trade account checks against the live book. The
// window between reading the book and the resulting fill is unguarded;
// a single decision-maker process serializes entries, so the book
// cannot move underneath a check.
type Gates struct {
	book    Book
	trading config.TradingConfig
	risk    config.RiskConfig
	logger  *slog.Logger

	mu      sync.Mutex
	allowed int64
	denials map[string]int64
}

// New creates the gate set reading live state from book.
func New(book Book, trading config.TradingConfig, riskCfg config.RiskConfig, logger *slog.Logger) *Gates {
	return &Gates{
		book:    book,
		trading: trading,
		risk:    riskCfg,
		logger:  logger.With(slog.String("component", "risk")),
		denials: make(map[string]int64),
	}
}

// Allow evaluates every gate in order and returns false with the name
// of the first one tripped.
//
// Checks performed:
//  1. Daily realized loss within the configured limit
//  2. Total open exposure under the portfolio ceiling
//  3. Open position count under the concurrency cap
func (g *Gates) Allow(opp domain.Opportunity) (bool, string) {
	m := g.book.Metrics()

	// Check 1: daily loss limit. Denies no matter how large the edge;
	// a bleeding day stays closed until the UTC rollover.
	maxDailyLoss := g.trading.InitialCapital * g.risk.DailyLossLimitPct
	if m.DailyPnl < -maxDailyLoss {
		g.logger.Warn("entry denied: daily loss limit reached",
			slog.String("opportunity_id", opp.ID),
			slog.String("market_id", opp.MarketID),
			slog.Float64("daily_pnl", m.DailyPnl),
			slog.Float64("limit", maxDailyLoss),
		)
		g.recordDenial(GateDailyLoss)
		return false, GateDailyLoss
	}

	// Check 2: exposure ceiling. The cap is what a full book of
	// max-size positions would hold, so it only trips when sizes have
	// drifted above plan (marks moving against a full book).
	maxExposure := g.trading.InitialCapital * g.trading.MaxPositionSizePct * float64(g.trading.MaxConcurrentPositions)
	if m.TotalExposure > maxExposure {
		g.logger.Warn("entry denied: exposure ceiling reached",
			slog.String("opportunity_id", opp.ID),
			slog.String("market_id", opp.MarketID),
			slog.Float64("exposure", m.TotalExposure),
			slog.Float64("ceiling", maxExposure),
		)
		g.recordDenial(GateExposure)
		return false, GateExposure
	}

	// Check 3: concurrent position cap. Flagged-for-exit positions
	// still count until they settle.
	if m.OpenPositions >= g.trading.MaxConcurrentPositions {
		g.logger.Warn("entry denied: max concurrent positions",
			slog.String("opportunity_id", opp.ID),
			slog.String("market_id", opp.MarketID),
			slog.Int("open", m.OpenPositions),
			slog.Int("max", g.trading.MaxConcurrentPositions),
		)
		g.recordDenial(GatePositions)
		return false, GatePositions
	}

	g.mu.Lock()
	g.allowed++
	g.mu.Unlock()
	return true, ""
}

func (g *Gates) recordDenial(gate string) {
	g.mu.Lock()
	g.denials[gate]++
	g.mu.Unlock()
}

// Metrics is a point-in-time summary of gate activity since start.
type Metrics struct {
	Allowed int64
	Denied  int64
	Denials map[string]int64
}

// Metrics reports how many entries passed and which gates denied the rest.
func (g *Gates) Metrics() Metrics {
	g.mu.Lock()
	defer g.mu.Unlock()
	m := Metrics{
		Allowed: g.allowed,
		Denials: make(map[string]int64, len(g.denials)),
	}
	for gate, n := range g.denials {
		m.Denials[gate] = n
		m.Denied += n
	}
	return m
}
