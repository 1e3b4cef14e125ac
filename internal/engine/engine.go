// Package engine orchestrates the trading loop end to end: market
// discovery, live-match monitoring, per-match event processing, position
// supervision, and the periodic metrics heartbeat. The engine owns the
// wiring between detector, risk gates, executor, and tracker; every
// other component stays ignorant of the ones around it.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/esportsarb/internal/config"
	"github.com/alanyoungcy/esportsarb/internal/detector"
	"github.com/alanyoungcy/esportsarb/internal/domain"
	"github.com/alanyoungcy/esportsarb/internal/executor"
	"github.com/alanyoungcy/esportsarb/internal/feed"
	"github.com/alanyoungcy/esportsarb/internal/matcher"
	"github.com/alanyoungcy/esportsarb/internal/risk"
	"github.com/alanyoungcy/esportsarb/internal/tracker"
	"github.com/alanyoungcy/esportsarb/internal/winprob"
)

// MarketSource is the slice of the venue the engine reads directly:
// market discovery and per-event price refresh. Order flow runs through
// the executor, which holds its own venue handle.
type MarketSource interface {
	EsportsMarkets(ctx context.Context, game domain.Game) ([]domain.Market, error)
	MarketPrice(ctx context.Context, marketID string) (yes, no float64, err error)
}

// Notifier receives engine-level events worth pushing to chat channels.
// Position open/close alerts go out through the tracker's own notifier.
type Notifier interface {
	OpportunityFound(ctx context.Context, opp domain.Opportunity)
	DailySummary(ctx context.Context, day string, m tracker.Metrics)
}

// binding ties a tracked live match to the market the matcher bound it
// to. The per-match task refreshes state on every event.
type binding struct {
	market domain.Market
	state  domain.GameState
}

// Engine runs four loops under one errgroup plus one event task per
// bound match. All loops catch and log per-iteration errors; only
// context cancellation ends them.
type Engine struct {
	cfg      config.EngineConfig
	feeds    *feed.Aggregator
	venue    MarketSource
	markets  domain.MarketCache
	states   domain.GameStateCache
	matcher  *matcher.Matcher
	detector *detector.Detector
	executor *executor.Executor
	tracker  *tracker.Tracker
	gates    *risk.Gates
	models   *winprob.Registry
	logger   *slog.Logger

	bus      domain.SignalBus
	notifier Notifier

	mu          sync.Mutex
	tracked     map[string]*binding
	lastMarkets int
	started     time.Time
	running     bool
	runCtx      context.Context

	tasks sync.WaitGroup
}

// New wires the engine. It registers itself as the executor's fill
// handler, so filled entries become tracked positions before Execute
// returns.
func New(
	cfg config.EngineConfig,
	feeds *feed.Aggregator,
	venue MarketSource,
	markets domain.MarketCache,
	states domain.GameStateCache,
	match *matcher.Matcher,
	det *detector.Detector,
	exec *executor.Executor,
	track *tracker.Tracker,
	gates *risk.Gates,
	models *winprob.Registry,
	logger *slog.Logger,
) *Engine {
	e := &Engine{
		cfg:      cfg,
		feeds:    feeds,
		venue:    venue,
		markets:  markets,
		states:   states,
		matcher:  match,
		detector: det,
		executor: exec,
		tracker:  track,
		gates:    gates,
		models:   models,
		logger:   logger.With(slog.String("component", "engine")),
		tracked:  make(map[string]*binding),
	}
	exec.OnFill(e.onFill)
	return e
}

// WithBus attaches a signal bus; detected opportunities are published on
// signals:opportunities for out-of-process observers.
func (e *Engine) WithBus(bus domain.SignalBus) *Engine {
	e.bus = bus
	return e
}

// WithNotifier attaches a notifier for opportunity and daily-summary
// pushes.
func (e *Engine) WithNotifier(n Notifier) *Engine {
	e.notifier = n
	return e
}

// Mode reports "paper" or "live".
func (e *Engine) Mode() string {
	if e.cfg.PaperTrading {
		return "paper"
	}
	return "live"
}

// Run starts every loop and blocks until ctx is cancelled or a loop
// fails unrecoverably. Cancellation drains the loops, waits for every
// per-match task, cancels resting orders, and returns nil.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine: already running")
	}
	e.running = true
	e.started = time.Now().UTC()
	e.mu.Unlock()

	e.logger.Info("engine starting",
		slog.String("mode", e.Mode()),
		slog.String("feeds", strings.Join(e.feeds.Names(), ",")),
		slog.Duration("discovery_interval", e.cfg.DiscoveryInterval.Duration),
		slog.Duration("monitor_interval", e.cfg.MonitorInterval.Duration),
		slog.Duration("supervision_interval", e.cfg.SupervisionInterval.Duration),
	)

	g, gctx := errgroup.WithContext(ctx)
	e.mu.Lock()
	e.runCtx = gctx
	e.mu.Unlock()

	// 1. Market discovery on its own cadence.
	g.Go(func() error {
		err := e.discoveryLoop(gctx)
		if gctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("discovery loop: %w", err)
	})

	// 2. Live-match monitor spawns one event task per bound match.
	g.Go(func() error {
		err := e.monitorLoop(gctx)
		if gctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("monitor loop: %w", err)
	})

	// 3. Position supervision marks the book and settles breached exits.
	g.Go(func() error {
		err := e.supervisionLoop(gctx)
		if gctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("supervision loop: %w", err)
	})

	// 4. Metrics heartbeat and cooldown sweep.
	g.Go(func() error {
		err := e.metricsLoop(gctx)
		if gctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("metrics loop: %w", err)
	})

	err := g.Wait()

	// gctx is cancelled once Wait returns, so every per-match task is
	// unwinding and nothing new can spawn past this point.
	e.tasks.Wait()

	cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if cerr := e.executor.CancelAll(cancelCtx); cerr != nil {
		e.logger.Warn("cancel open orders at shutdown", slog.String("error", cerr.Error()))
	}

	e.logSessionSummary()

	e.mu.Lock()
	e.running = false
	e.runCtx = nil
	e.mu.Unlock()

	if err != nil {
		e.logger.Error("engine stopped with error", slog.String("error", err.Error()))
		return err
	}
	e.logger.Info("engine stopped cleanly")
	return nil
}

// onFill converts a filled entry order into a tracked position. It runs
// on the executor's goroutine before Execute returns, so the position
// exists by the time the engine sees the order.
func (e *Engine) onFill(order *domain.Order, opp domain.Opportunity) {
	e.tracker.Open(e.runContext(), order, opp)
}

func (e *Engine) runContext() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runCtx != nil {
		return e.runCtx
	}
	return context.Background()
}

// discoveryLoop refreshes the market cache on start and then on the
// configured cadence.
func (e *Engine) discoveryLoop(ctx context.Context) error {
	e.refreshMarkets(ctx)

	ticker := time.NewTicker(e.cfg.DiscoveryInterval.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.refreshMarkets(ctx)
		}
	}
}

// refreshMarkets pulls the venue's esports markets for every title into
// the cache. A provider failure skips that title until the next tick.
func (e *Engine) refreshMarkets(ctx context.Context) {
	counts := make(map[domain.Game]int, len(domain.Games))
	total := 0
	for _, game := range domain.Games {
		markets, err := e.venue.EsportsMarkets(ctx, game)
		if err != nil {
			e.logger.Error("market discovery failed",
				slog.String("game", string(game)),
				slog.String("error", err.Error()),
			)
			continue
		}
		for i := range markets {
			if err := e.markets.Set(ctx, markets[i]); err != nil {
				e.logger.Warn("market cache write failed",
					slog.String("market_id", markets[i].MarketID),
					slog.String("error", err.Error()),
				)
			}
		}
		counts[game] = len(markets)
		total += len(markets)
	}

	e.mu.Lock()
	e.lastMarkets = total
	e.mu.Unlock()

	if total == 0 {
		e.logger.Warn("no esports markets available on the venue, nothing to trade")
		return
	}
	e.logger.Info("markets refreshed",
		slog.Int("lol_markets", counts[domain.GameLoL]),
		slog.Int("dota_markets", counts[domain.GameDota2]),
	)
}

// monitorLoop scans for live matches on start and then on the configured
// cadence. The first scan usually finds nothing matchable because the
// discovery loop is still filling the market cache; that resolves itself
// one tick later.
func (e *Engine) monitorLoop(ctx context.Context) error {
	e.scanMatches(ctx)

	ticker := time.NewTicker(e.cfg.MonitorInterval.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.scanMatches(ctx)
		}
	}
}

// scanMatches asks the feed aggregator for live matches per title and
// tries to bind each new one to a market.
func (e *Engine) scanMatches(ctx context.Context) {
	for _, game := range domain.Games {
		matches, err := e.feeds.LiveMatches(ctx, game)
		if err != nil {
			e.logger.Warn("live match scan failed",
				slog.String("game", string(game)),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, summary := range matches {
			e.considerMatch(ctx, game, summary)
		}
	}
}

// considerMatch binds one live match to a market and spawns its event
// task. Already-tracked matches and matches with placeholder team names
// are skipped; binding failures are quiet because most live matches
// simply have no book.
func (e *Engine) considerMatch(ctx context.Context, game domain.Game, summary domain.MatchSummary) {
	e.mu.Lock()
	_, already := e.tracked[summary.MatchID]
	e.mu.Unlock()
	if already {
		return
	}

	// Placeholder names ("Radiant", "Team 1", ...) can never bind to a
	// market question; skip without fetching state.
	if !summary.HasRealTeams() {
		e.logger.Debug("skipping match with unresolved teams",
			slog.String("match_id", summary.MatchID),
			slog.String("team1", summary.Team1.Name),
			slog.String("team2", summary.Team2.Name),
		)
		return
	}

	state, err := e.feeds.MatchState(ctx, summary.MatchID)
	if err != nil {
		e.logger.Warn("match state fetch failed",
			slog.String("match_id", summary.MatchID),
			slog.String("error", err.Error()),
		)
		return
	}
	if state == nil {
		e.logger.Debug("no state for live match", slog.String("match_id", summary.MatchID))
		return
	}
	// The summary may have carried resolved names while the state feed
	// still reports placeholders. The state is what the matcher sees, so
	// it has the final say.
	if !state.HasRealTeams() {
		e.logger.Debug("skipping match, state has unresolved teams",
			slog.String("match_id", summary.MatchID),
		)
		return
	}

	candidates, err := e.markets.ListActive(ctx, game)
	if err != nil {
		e.logger.Warn("market cache list failed",
			slog.String("game", string(game)),
			slog.String("error", err.Error()),
		)
		return
	}

	market := e.matcher.Match(candidates, state)
	if market == nil {
		e.logger.Debug("no market for live match",
			slog.String("match_id", summary.MatchID),
			slog.String("teams", state.Team1.Name+" vs "+state.Team2.Name),
			slog.Int("candidates", len(candidates)),
		)
		return
	}
	market.MatchID = summary.MatchID

	e.mu.Lock()
	if _, dup := e.tracked[summary.MatchID]; dup {
		e.mu.Unlock()
		return
	}
	e.tracked[summary.MatchID] = &binding{market: *market, state: *state}
	e.mu.Unlock()

	if err := e.markets.Set(ctx, *market); err != nil {
		e.logger.Warn("market binding write failed",
			slog.String("market_id", market.MarketID),
			slog.String("error", err.Error()),
		)
	}
	if err := e.states.SetState(ctx, *state); err != nil {
		e.logger.Debug("state cache write failed",
			slog.String("match_id", summary.MatchID),
			slog.String("error", err.Error()),
		)
	}

	e.logger.Info("match bound to market",
		slog.String("match_id", summary.MatchID),
		slog.String("game", string(game)),
		slog.String("teams", state.Team1.Name+" vs "+state.Team2.Name),
		slog.String("market_id", market.MarketID),
		slog.String("question", truncate(market.Question, 60)),
	)

	e.tasks.Add(1)
	go func(market domain.Market) {
		defer e.tasks.Done()
		e.runMatchTask(ctx, summary.MatchID, market)
	}(*market)
}

// runMatchTask consumes the event stream for one bound match. It owns
// the tracking entry: every path out of the task releases it, so the
// monitor loop can re-bind the match if it is still live.
func (e *Engine) runMatchTask(ctx context.Context, matchID string, market domain.Market) {
	log := e.logger.With(
		slog.String("match_id", matchID),
		slog.String("market_id", market.MarketID),
	)

	defer func() {
		e.mu.Lock()
		delete(e.tracked, matchID)
		e.mu.Unlock()
		log.Info("match task ended")
	}()

	events, err := e.feeds.Subscribe(ctx, matchID)
	if err != nil {
		log.Warn("match subscribe failed", slog.String("error", err.Error()))
		return
	}
	log.Info("subscribed to match events")

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				log.Info("match event stream closed")
				return
			}
			if event.Type == domain.EventGameEnd {
				// Exit before resolution: held-through positions settle
				// at 0 or 1, exiting here keeps most of the move.
				e.closeMatchPositions(ctx, matchID, market.MarketID, log)
				return
			}
			e.handleEvent(ctx, matchID, &market, event, log)
		}
	}
}

// handleEvent runs the latency race for one game event: refresh the
// quote, refresh the state, price the shift, and fire on any edge still
// standing. The market pointer is task-local and accumulates quote
// refreshes across events.
func (e *Engine) handleEvent(ctx context.Context, matchID string, market *domain.Market, event domain.GameEvent, log *slog.Logger) {
	// 1. Refresh the quote. The whole trade rests on the market not
	// having repriced this event yet, so the quote must postdate it.
	yes, no, err := e.venue.MarketPrice(ctx, market.MarketID)
	if err != nil {
		log.Warn("price refresh failed", slog.String("error", err.Error()))
		return
	}
	market.YesPrice = yes
	market.NoPrice = no
	market.UpdatedAt = time.Now().UTC()

	// 2. Refresh the game state behind the event.
	state, err := e.feeds.MatchState(ctx, matchID)
	if err != nil {
		log.Warn("match state refresh failed", slog.String("error", err.Error()))
		return
	}
	if state == nil {
		// Match gone; the stream will close shortly.
		return
	}

	e.mu.Lock()
	if b, ok := e.tracked[matchID]; ok {
		b.state = *state
	}
	e.mu.Unlock()
	if err := e.states.SetState(ctx, *state); err != nil {
		log.Debug("state cache write failed", slog.String("error", err.Error()))
	}

	// 3. Price the event's impact on the producing team's win odds.
	var probChange float64
	if model, err := e.models.Get(state.Game); err == nil {
		probChange = model.EventImpact(event, state)
		if moment := model.CriticalMoment(state); moment != "" {
			log.Debug("critical moment", slog.String("moment", moment))
		}
	}
	if probChange >= 0.01 {
		log.Debug("game event",
			slog.String("type", string(event.Type)),
			slog.Float64("game_time", event.GameTimeSeconds),
			slog.Float64("prob_change", probChange),
		)
	}

	// 4. The event path fires on the unpriced shift; the general path
	// backstops with a full model-vs-market comparison. Both can fire
	// off one event when they disagree on direction; the cooldown
	// collapses them when they agree.
	eventOpp := e.detector.DetectEventOpportunity(state, market, event, probChange)
	if eventOpp != nil {
		e.executeOpportunity(ctx, *eventOpp, log)
	}

	generalOpp := e.detector.DetectOpportunity(state, market)
	if generalOpp != nil && (eventOpp == nil || generalOpp.ID != eventOpp.ID) {
		e.executeOpportunity(ctx, *generalOpp, log)
	}
}

// executeOpportunity pushes one admitted signal through the risk gates
// and the executor. Gate denials and the executor's business rejections
// are no-ops; only infrastructure failures log as errors.
func (e *Engine) executeOpportunity(ctx context.Context, opp domain.Opportunity, log *slog.Logger) {
	e.announceOpportunity(ctx, opp)

	if ok, _ := e.gates.Allow(opp); !ok {
		return
	}

	order, err := e.executor.Execute(ctx, opp)
	if err != nil {
		log.Error("opportunity execution failed",
			slog.String("opportunity_id", opp.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if order == nil {
		return
	}
	e.detector.RecordExecution()
}

// announceOpportunity pushes the detection to the notifier and the
// signal bus. Neither may interfere with execution, so failures only
// log.
func (e *Engine) announceOpportunity(ctx context.Context, opp domain.Opportunity) {
	if e.notifier != nil {
		e.notifier.OpportunityFound(ctx, opp)
	}
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"event":       "opportunity_found",
		"id":          opp.ID,
		"market":      opp.MarketID,
		"match":       opp.MatchID,
		"game":        string(opp.Game),
		"token":       string(opp.TargetToken),
		"edge":        opp.Edge,
		"model_prob":  opp.ModelProb,
		"market_prob": opp.MarketProb,
	})
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, "signals:opportunities", payload); err != nil {
		e.logger.Warn("signal publish failed", slog.String("error", err.Error()))
	}
}

// closeMatchPositions exits every open position on the market before it
// resolves. Exit failures leave the position for the supervision loop,
// which keeps retrying against the live book until the market closes.
func (e *Engine) closeMatchPositions(ctx context.Context, matchID, marketID string, log *slog.Logger) {
	var toClose []domain.Position
	for _, pos := range e.tracker.OpenPositions() {
		if pos.MarketID == marketID && pos.Status == domain.PositionStatusOpen {
			toClose = append(toClose, pos)
		}
	}
	if len(toClose) == 0 {
		return
	}

	log.Info("game ending, closing positions before resolution",
		slog.Int("positions", len(toClose)),
	)

	for _, pos := range toClose {
		exit, err := e.executor.ExecuteExit(ctx, pos, domain.ExitGameEnd)
		if err != nil {
			log.Error("pre-resolution exit failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		price := pos.CurrentPrice
		if exit != nil && exit.AverageFillPrice > 0 {
			price = exit.AverageFillPrice
		}
		if _, err := e.tracker.Close(ctx, pos.ID, price, domain.ExitGameEnd); err != nil {
			log.Error("position close failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// supervisionLoop marks the book and settles breached exits every tick.
func (e *Engine) supervisionLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.SupervisionInterval.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.superviseOnce(ctx)
		}
	}
}

// superviseOnce refreshes position marks and executes any stop-loss or
// take-profit that tripped. A failed exit order leaves the position in
// the book; stop-loss flags are sticky so the next tick goes straight
// back to the order.
func (e *Engine) superviseOnce(ctx context.Context) {
	e.tracker.UpdatePrices(ctx)

	for _, sig := range e.tracker.CheckExitConditions() {
		pos, ok := e.tracker.Get(sig.PositionID)
		if !ok {
			continue
		}
		exit, err := e.executor.ExecuteExit(ctx, pos, sig.Reason)
		if err != nil {
			e.logger.Error("exit order failed",
				slog.String("position_id", pos.ID),
				slog.String("reason", string(sig.Reason)),
				slog.String("error", err.Error()),
			)
			continue
		}
		price := sig.Price
		if exit != nil && exit.AverageFillPrice > 0 {
			price = exit.AverageFillPrice
		}
		if _, err := e.tracker.Close(ctx, pos.ID, price, sig.Reason); err != nil {
			e.logger.Error("position close failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// metricsLoop logs the aggregate heartbeat, sweeps the detector's
// cooldown map, and pushes the daily summary when the UTC date rolls.
func (e *Engine) metricsLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.MetricsInterval.Duration)
	defer ticker.Stop()

	lastDay := time.Now().UTC().Format("2006-01-02")
	var lastMetrics tracker.Metrics

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// Reading tracker metrics also performs its lazy daily
			// rollover, so the day stays fresh even when nothing trades.
			tm := e.logMetricsTick()
			e.detector.SweepCooldowns()

			day := time.Now().UTC().Format("2006-01-02")
			if day != lastDay {
				// The previous tick's numbers are the closing summary
				// for the day that just ended.
				if e.notifier != nil {
					e.notifier.DailySummary(ctx, lastDay, lastMetrics)
				}
				lastDay = day
			}
			lastMetrics = tm
		}
	}
}

// logMetricsTick writes the heartbeat line from every component's
// counters and returns the tracker metrics for the rollover bookkeeping.
func (e *Engine) logMetricsTick() tracker.Metrics {
	tm := e.tracker.Metrics()
	em := e.executor.Metrics()
	dm := e.detector.Metrics()
	gm := e.gates.Metrics()

	e.mu.Lock()
	uptime := time.Since(e.started)
	trackedMatches := len(e.tracked)
	activeMarkets := e.lastMarkets
	e.mu.Unlock()

	e.logger.Info("status",
		slog.String("uptime", uptime.Round(time.Second).String()),
		slog.Int("tracked_matches", trackedMatches),
		slog.Int("active_markets", activeMarkets),
		slog.Int("open_positions", tm.OpenPositions),
		slog.Float64("exposure", tm.TotalExposure),
		slog.Float64("daily_pnl", tm.DailyPnl),
		slog.Float64("realized_pnl", tm.RealizedPnl),
		slog.Float64("win_rate", tm.WinRate),
		slog.Int64("opportunities", dm.OpportunitiesFound),
		slog.Int64("executed", dm.OpportunitiesExecuted),
		slog.Int64("gate_denials", gm.Denied),
		slog.Int("orders_placed", em.OrdersPlaced),
		slog.Float64("avg_latency_ms", em.AvgLatencyMs),
	)
	return tm
}

// logSessionSummary writes the final line when the engine stops.
func (e *Engine) logSessionSummary() {
	tm := e.tracker.Metrics()
	dm := e.detector.Metrics()

	e.mu.Lock()
	runtime := time.Since(e.started)
	e.mu.Unlock()

	e.logger.Info("session summary",
		slog.String("runtime", runtime.Round(time.Second).String()),
		slog.Int("total_trades", tm.TotalTrades),
		slog.Float64("realized_pnl", tm.RealizedPnl),
		slog.Float64("win_rate", tm.WinRate),
		slog.Int64("opportunities_found", dm.OpportunitiesFound),
		slog.Int64("opportunities_executed", dm.OpportunitiesExecuted),
	)
}

// Status assembles the read-only snapshot served by the status API.
func (e *Engine) Status() domain.EngineStatus {
	tm := e.tracker.Metrics()
	em := e.executor.Metrics()
	dm := e.detector.Metrics()

	e.mu.Lock()
	var uptime int64
	if e.running {
		uptime = int64(time.Since(e.started).Seconds())
	}
	trackedMatches := len(e.tracked)
	activeMarkets := e.lastMarkets
	e.mu.Unlock()

	return domain.EngineStatus{
		Mode:            e.Mode(),
		UptimeSeconds:   uptime,
		TrackedMatches:  trackedMatches,
		ActiveMarkets:   activeMarkets,
		OpenPositions:   tm.OpenPositions,
		TotalExposure:   tm.TotalExposure,
		DailyPnl:        tm.DailyPnl,
		RealizedPnl:     tm.RealizedPnl,
		Opportunities:   dm.OpportunitiesFound,
		OrdersPlaced:    int64(em.OrdersPlaced),
		OrdersFilled:    int64(em.OrdersFilled),
		OrdersFailed:    int64(em.OrdersFailed),
		AvgOrderLatency: em.AvgLatencyMs,
	}
}

// TrackedMatches returns the current match-to-market bindings, keyed by
// match ID. Values are copies.
func (e *Engine) TrackedMatches() map[string]domain.Market {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]domain.Market, len(e.tracked))
	for id, b := range e.tracked {
		out[id] = b.market
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
