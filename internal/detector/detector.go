// Package detector compares model win probabilities against live market
// quotes and emits time-boxed trading opportunities when the gap exceeds
// the configured edge threshold.
package detector

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/esportsarb/internal/config"
	"github.com/alanyoungcy/esportsarb/internal/domain"
)

const (
	// baseSize is the unscaled position size in USD; the edge multiplier
	// grows it up to maxEdgeMultiplier times.
	baseSize          = 10.0
	maxEdgeMultiplier = 5.0

	// cooldownWindow suppresses repeat signals on the same market/token
	// pair; cooldownRetention bounds how long spent entries linger before
	// SweepCooldowns evicts them.
	cooldownWindow    = 10 * time.Second
	cooldownRetention = 5 * time.Minute

	// opportunityTTL is the execution horizon. Stale signals are worthless
	// in a latency game, so it is deliberately short.
	opportunityTTL = 5 * time.Second

	// maxEventProb caps the expected probability projected from an event.
	maxEventProb = 0.95
)

// Detector holds the cooldown state and counters for opportunity
// detection. It is safe for concurrent use.
type Detector struct {
	cfg    config.TradingConfig
	logger *slog.Logger

	mu        sync.Mutex
	cooldowns map[string]time.Time // dedup key -> last fire time
	found     int64
	executed  int64
}

// Metrics is a point-in-time snapshot of detector counters.
type Metrics struct {
	OpportunitiesFound    int64
	OpportunitiesExecuted int64
	ActiveCooldowns       int
}

// New creates a detector using the trading thresholds from cfg.
func New(cfg config.TradingConfig, logger *slog.Logger) *Detector {
	return &Detector{
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "detector")),
		cooldowns: make(map[string]time.Time),
	}
}

// DetectOpportunity compares the model's win probabilities against the
// market's current quotes. Team1 (the yes token) is checked first; at most
// one direction fires per call. Returns nil when no edge clears the
// threshold or the market/token pair is cooling down.
func (d *Detector) DetectOpportunity(state *domain.GameState, market *domain.Market) *domain.Opportunity {
	if state == nil || market == nil {
		return nil
	}

	// The yes token prices team1 winning, the no token team2.
	edgeTeam1 := state.Team1WinProb - market.YesPrice
	edgeTeam2 := state.Team2WinProb - market.NoPrice
	minEdge := d.cfg.MinEdgeThreshold

	// Entries are always buys of the underpriced token.
	var opp *domain.Opportunity
	switch {
	case edgeTeam1 >= minEdge:
		opp = d.newOpportunity(state, market, state.Team1WinProb, market.YesPrice, edgeTeam1, domain.OrderSideBuy, domain.TokenYes, nil)
	case edgeTeam2 >= minEdge:
		opp = d.newOpportunity(state, market, state.Team2WinProb, market.NoPrice, edgeTeam2, domain.OrderSideBuy, domain.TokenNo, nil)
	default:
		return nil
	}

	return d.admit(opp)
}

// DetectEventOpportunity is the low-latency path: a game event just shifted
// the true probability by probChange, and the market has not repriced yet.
// The event's team determines which token should move; the whole shift is
// treated as edge.
func (d *Detector) DetectEventOpportunity(state *domain.GameState, market *domain.Market, event domain.GameEvent, probChange float64) *domain.Opportunity {
	if state == nil || market == nil {
		return nil
	}
	if probChange < d.cfg.MinEdgeThreshold {
		return nil
	}

	target := domain.TokenNo
	if event.TeamID == state.Team1.ID {
		target = domain.TokenYes
	}
	marketProb := market.Price(target)
	expectedProb := math.Min(maxEventProb, marketProb+probChange)

	opp := d.newOpportunity(state, market, expectedProb, marketProb, probChange, domain.OrderSideBuy, target, &event)
	return d.admit(opp)
}

// RecordExecution bumps the executed counter. The engine calls it after an
// opportunity results in a placed order.
func (d *Detector) RecordExecution() {
	d.mu.Lock()
	d.executed++
	d.mu.Unlock()
}

// SweepCooldowns evicts cooldown entries older than the retention window.
// Called periodically to keep the map from growing without bound.
func (d *Detector) SweepCooldowns() {
	cutoff := time.Now().Add(-cooldownRetention)

	d.mu.Lock()
	defer d.mu.Unlock()
	for key, ts := range d.cooldowns {
		if ts.Before(cutoff) {
			delete(d.cooldowns, key)
		}
	}
}

// Metrics returns a snapshot of the detector's counters.
func (d *Detector) Metrics() Metrics {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Metrics{
		OpportunitiesFound:    d.found,
		OpportunitiesExecuted: d.executed,
		ActiveCooldowns:       len(d.cooldowns),
	}
}

// admit runs the cooldown gate on a freshly built opportunity. A pass
// records the fire time and counts the find; a suppressed signal returns
// nil even though the edge is live.
func (d *Detector) admit(opp *domain.Opportunity) *domain.Opportunity {
	key := opp.DedupKey()
	now := time.Now()

	d.mu.Lock()
	if last, ok := d.cooldowns[key]; ok && now.Sub(last) < cooldownWindow {
		d.mu.Unlock()
		d.logger.Debug("opportunity on cooldown", slog.String("market_id", opp.MarketID))
		return nil
	}
	d.cooldowns[key] = now
	d.found++
	d.mu.Unlock()

	attrs := []any{
		slog.String("opp_id", opp.ID),
		slog.String("market", truncate(opp.Question, 50)),
		slog.String("edge", fmt.Sprintf("%.2f%%", opp.Edge*100)),
		slog.String("side", string(opp.Side)),
		slog.String("target", string(opp.TargetToken)),
	}
	if opp.TriggeringEvent != nil {
		attrs = append(attrs, slog.String("event_type", string(opp.TriggeringEvent.Type)))
	}
	d.logger.Info("opportunity detected", attrs...)

	return opp
}

// newOpportunity assembles the signal: size scales with edge, max price
// allows bounded slippage in the direction of the trade, and the execution
// horizon starts now.
func (d *Detector) newOpportunity(state *domain.GameState, market *domain.Market, modelProb, marketProb, edge float64, side domain.OrderSide, target domain.TokenType, event *domain.GameEvent) *domain.Opportunity {
	size := baseSize * math.Min(maxEdgeMultiplier, edge/d.cfg.MinEdgeThreshold)

	maxPrice := marketProb * (1 + d.cfg.MaxSlippage)
	if side == domain.OrderSideSell {
		maxPrice = marketProb * (1 - d.cfg.MaxSlippage)
	}

	now := time.Now()
	return &domain.Opportunity{
		ID:              newOpportunityID(),
		MarketID:        market.MarketID,
		MatchID:         state.MatchID,
		Game:            state.Game,
		Question:        market.Question,
		TokenID:         market.TokenID(target),
		TargetToken:     target,
		Side:            side,
		ModelProb:       modelProb,
		MarketProb:      marketProb,
		Edge:            edge,
		RecommendedSize: size,
		MaxPrice:        maxPrice,
		DetectedAt:      now,
		ExpiresAt:       now.Add(opportunityTTL),
		TriggeringEvent: event,
	}
}

func newOpportunityID() string {
	id := uuid.New()
	return fmt.Sprintf("opp_%x", id[:6])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
