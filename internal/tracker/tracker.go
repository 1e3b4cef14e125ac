// Package tracker owns live positions from fill to settlement. It is
// the sole authority on position state: the engine and executor reach
// it only through methods, and every caller receives copies. Stores,
// bus, and notifier hang off the decision path write-behind, so a dead
// database never blocks an exit.
package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/esportsarb/internal/config"
	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// feeRate approximates the venue taker fee, charged on entry and exit
// notional.
const feeRate = 0.0015

// recentLimit bounds the in-memory trade history served to the API.
const recentLimit = 500

// PriceSource supplies current market prices for marking open positions.
type PriceSource interface {
	MarketPrice(ctx context.Context, marketID string) (yes, no float64, err error)
}

// TradeNotifier pushes position lifecycle events to external channels.
type TradeNotifier interface {
	PositionOpened(ctx context.Context, pos domain.Position)
	PositionClosed(ctx context.Context, trade domain.TradeRecord)
}

// Tracker manages the open-position book and the realized PnL ledger.
// A position stays counted, in exposure and in the concurrency limit,
// until Close settles it, even while it is flagged for exit.
type Tracker struct {
	prices PriceSource
	cfg    config.TradingConfig
	logger *slog.Logger

	positions domain.PositionStore
	trades    domain.TradeStore
	stats     domain.StatStore
	audit     domain.AuditStore
	bus       domain.SignalBus
	notifier  TradeNotifier

	mu          sync.Mutex
	open        map[string]*domain.Position
	day         string // UTC date the daily counters belong to
	dailyPnl    float64
	dailyTrades int
	realizedPnl float64
	totalTrades int
	winning     int
	losing      int
	holdSum     float64
	recent      []domain.TradeRecord
}

// New creates a Tracker marking positions against prices.
func New(prices PriceSource, cfg config.TradingConfig, logger *slog.Logger) *Tracker {
	return &Tracker{
		prices: prices,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "tracker")),
		open:   make(map[string]*domain.Position),
		day:    time.Now().UTC().Format("2006-01-02"),
	}
}

// WithStores attaches write-behind persistence for positions, trades,
// and daily stats. Any of the three may be nil.
func (t *Tracker) WithStores(positions domain.PositionStore, trades domain.TradeStore, stats domain.StatStore) *Tracker {
	t.positions = positions
	t.trades = trades
	t.stats = stats
	return t
}

// WithAudit attaches an audit store for lifecycle events.
func (t *Tracker) WithAudit(audit domain.AuditStore) *Tracker {
	t.audit = audit
	return t
}

// WithBus attaches a signal bus so position events reach out-of-process
// observers such as the dashboard socket.
func (t *Tracker) WithBus(bus domain.SignalBus) *Tracker {
	t.bus = bus
	return t
}

// WithNotifier attaches a notifier for open and close alerts.
func (t *Tracker) WithNotifier(n TradeNotifier) *Tracker {
	t.notifier = n
	return t
}

// Open converts a filled entry order into a managed position. Stop-loss
// and take-profit prices are derived once here from the entry fill, a
// fixed percentage either side of it, mirrored for shorts.
func (t *Tracker) Open(ctx context.Context, order *domain.Order, opp domain.Opportunity) domain.Position {
	entry := order.AverageFillPrice
	if entry == 0 {
		entry = order.Price()
	}
	size := order.FilledSize
	if size == 0 {
		size = order.Size()
	}

	var stopLoss, takeProfit float64
	if order.Side == domain.OrderSideBuy {
		stopLoss = entry * (1 - t.cfg.StopLossPct)
		takeProfit = entry * (1 + t.cfg.TakeProfitPct)
	} else {
		stopLoss = entry * (1 + t.cfg.StopLossPct)
		takeProfit = entry * (1 - t.cfg.TakeProfitPct)
	}

	id := uuid.New()
	pos := domain.Position{
		ID:              fmt.Sprintf("pos_%x", id[:6]),
		MarketID:        order.MarketID,
		MatchID:         opp.MatchID,
		Game:            opp.Game,
		TokenID:         order.TokenID,
		TokenType:       opp.TargetToken,
		Side:            order.Side,
		Size:            size,
		EntryPrice:      entry,
		CurrentPrice:    entry,
		StopLossPrice:   stopLoss,
		TakeProfitPrice: takeProfit,
		EntryEdge:       opp.Edge,
		Status:          domain.PositionStatusOpen,
		OpenedAt:        time.Now().UTC(),
	}

	t.mu.Lock()
	stored := pos
	t.open[pos.ID] = &stored
	t.mu.Unlock()

	t.logger.Info("position opened",
		slog.String("position_id", pos.ID),
		slog.String("market_id", pos.MarketID),
		slog.String("side", string(pos.Side)),
		slog.Float64("size", size),
		slog.Float64("entry_price", entry),
		slog.Float64("stop_loss", stopLoss),
		slog.Float64("take_profit", takeProfit),
	)

	if t.positions != nil {
		if err := t.positions.Insert(ctx, pos); err != nil {
			t.logger.Warn("position persist failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	t.journal(ctx, "position_opened", map[string]any{
		"position_id": pos.ID,
		"market":      pos.MarketID,
		"side":        string(pos.Side),
		"entry_price": entry,
		"size":        size,
	})
	if t.notifier != nil {
		t.notifier.PositionOpened(ctx, pos)
	}

	return pos
}

// markRequest is one price lookup snapshotted outside the lock.
type markRequest struct {
	id       string
	marketID string
	token    domain.TokenType
}

// UpdatePrices refreshes the mark for every open position and recomputes
// unrealized PnL. A failed price lookup leaves that position at its last
// mark until the next tick.
func (t *Tracker) UpdatePrices(ctx context.Context) {
	t.mu.Lock()
	reqs := make([]markRequest, 0, len(t.open))
	for id, pos := range t.open {
		if pos.Status != domain.PositionStatusOpen {
			continue
		}
		reqs = append(reqs, markRequest{id: id, marketID: pos.MarketID, token: pos.TokenType})
	}
	t.mu.Unlock()

	for _, req := range reqs {
		yes, no, err := t.prices.MarketPrice(ctx, req.marketID)
		if err != nil {
			t.logger.Warn("price refresh failed",
				slog.String("position_id", req.id),
				slog.String("market_id", req.marketID),
				slog.String("error", err.Error()),
			)
			continue
		}
		price := yes
		if req.token == domain.TokenNo {
			price = no
		}

		t.mu.Lock()
		if pos, ok := t.open[req.id]; ok && pos.Status == domain.PositionStatusOpen {
			pos.CurrentPrice = price
			pos.UnrealizedPnl = pnl(pos.Side, pos.EntryPrice, price, pos.Size)
		}
		t.mu.Unlock()
	}
}

// CheckExitConditions flags positions whose mark has crossed stop-loss
// or take-profit. Stop-loss is checked first and marks the position
// stopped_out at detection, so exactly one exit order flows per breach.
// Take-profit leaves the position open and re-flags until it settles.
func (t *Tracker) CheckExitConditions() []domain.ExitSignal {
	t.mu.Lock()
	defer t.mu.Unlock()

	var signals []domain.ExitSignal
	for _, pos := range t.open {
		if pos.Status != domain.PositionStatusOpen {
			continue
		}
		current := pos.CurrentPrice

		stopped := current <= pos.StopLossPrice
		if pos.Side == domain.OrderSideSell {
			stopped = current >= pos.StopLossPrice
		}
		if stopped {
			pos.Status = domain.PositionStatusStoppedOut
			signals = append(signals, domain.ExitSignal{
				PositionID: pos.ID,
				Reason:     domain.ExitStopLoss,
				Price:      current,
			})
			continue
		}

		took := current >= pos.TakeProfitPrice
		if pos.Side == domain.OrderSideSell {
			took = current <= pos.TakeProfitPrice
		}
		if took {
			signals = append(signals, domain.ExitSignal{
				PositionID: pos.ID,
				Reason:     domain.ExitTakeProfit,
				Price:      current,
			})
		}
	}
	return signals
}

// Close settles a position at the exit price, updates the PnL ledger,
// and writes the trade receipt behind the decision path. The receipt is
// returned for callers and tests; it is complete even when every store
// is absent.
func (t *Tracker) Close(ctx context.Context, positionID string, exitPrice float64, reason domain.ExitReason) (domain.TradeRecord, error) {
	now := time.Now().UTC()

	t.mu.Lock()
	pos, ok := t.open[positionID]
	if !ok {
		t.mu.Unlock()
		return domain.TradeRecord{}, fmt.Errorf("tracker: close %q: %w", positionID, domain.ErrNotFound)
	}
	delete(t.open, positionID)
	t.rollDayLocked(now)

	gross := pnl(pos.Side, pos.EntryPrice, exitPrice, pos.Size)
	fees := pos.Size * (pos.EntryPrice + exitPrice) * feeRate
	net := gross - fees

	status := domain.PositionStatusClosed
	if reason == domain.ExitStopLoss {
		status = domain.PositionStatusStoppedOut
	}
	pos.Status = status
	pos.ClosedAt = &now
	pos.ExitPrice = &exitPrice
	pos.ExitReason = reason
	pos.RealizedPnl = net
	pos.CurrentPrice = exitPrice
	pos.UnrealizedPnl = 0

	id := uuid.New()
	trade := domain.TradeRecord{
		TradeID:     fmt.Sprintf("trade_%x", id[:6]),
		PositionID:  pos.ID,
		MarketID:    pos.MarketID,
		MatchID:     pos.MatchID,
		Game:        pos.Game,
		Side:        pos.Side,
		TokenType:   pos.TokenType,
		Size:        pos.Size,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   exitPrice,
		GrossPnl:    gross,
		Fees:        fees,
		NetPnl:      net,
		EntryTime:   pos.OpenedAt,
		ExitTime:    now,
		HoldSeconds: now.Sub(pos.OpenedAt).Seconds(),
		EntryEdge:   pos.EntryEdge,
		ExitReason:  reason,
	}

	t.realizedPnl += net
	t.dailyPnl += net
	t.dailyTrades++
	t.totalTrades++
	if net > 0 {
		t.winning++
	} else {
		t.losing++
	}
	t.holdSum += trade.HoldSeconds
	t.recent = append(t.recent, trade)
	if overflow := len(t.recent) - recentLimit; overflow > 0 {
		t.recent = append([]domain.TradeRecord(nil), t.recent[overflow:]...)
	}
	closed := *pos
	t.mu.Unlock()

	t.logger.Info("position closed",
		slog.String("position_id", positionID),
		slog.String("reason", string(reason)),
		slog.Float64("exit_price", exitPrice),
		slog.Float64("net_pnl", net),
		slog.Float64("hold_seconds", trade.HoldSeconds),
	)

	t.persistClose(ctx, closed, trade)
	t.journal(ctx, "position_closed", map[string]any{
		"position_id": positionID,
		"trade_id":    trade.TradeID,
		"market":      trade.MarketID,
		"exit_price":  exitPrice,
		"net_pnl":     net,
		"reason":      string(reason),
	})
	if t.notifier != nil {
		t.notifier.PositionClosed(ctx, trade)
	}

	return trade, nil
}

// Get returns a copy of one tracked position.
func (t *Tracker) Get(positionID string) (domain.Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos, ok := t.open[positionID]
	if !ok {
		return domain.Position{}, false
	}
	return *pos, true
}

// OpenPositions returns copies of every unsettled position, exit-flagged
// ones included.
func (t *Tracker) OpenPositions() []domain.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Position, 0, len(t.open))
	for _, pos := range t.open {
		out = append(out, *pos)
	}
	return out
}

// RecentTrades returns up to limit closed trades, newest first.
func (t *Tracker) RecentTrades(limit int) []domain.TradeRecord {
	if limit <= 0 {
		limit = 20
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.recent)
	if limit > n {
		limit = n
	}
	out := make([]domain.TradeRecord, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, t.recent[i])
	}
	return out
}

// Metrics is a point-in-time summary of the position book and the
// realized ledger.
type Metrics struct {
	OpenPositions  int
	TotalExposure  float64
	UnrealizedPnl  float64
	DailyPnl       float64
	DailyTrades    int
	RealizedPnl    float64
	TotalTrades    int
	WinningTrades  int
	LosingTrades   int
	WinRate        float64
	AvgTradePnl    float64
	AvgHoldSeconds float64
}

// Metrics summarizes tracker state. Calling it also performs the lazy
// daily rollover, so the periodic metrics pass keeps the day fresh even
// when nothing trades.
func (t *Tracker) Metrics() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollDayLocked(time.Now().UTC())

	m := Metrics{
		DailyPnl:      t.dailyPnl,
		DailyTrades:   t.dailyTrades,
		RealizedPnl:   t.realizedPnl,
		TotalTrades:   t.totalTrades,
		WinningTrades: t.winning,
		LosingTrades:  t.losing,
	}
	for _, pos := range t.open {
		m.OpenPositions++
		m.TotalExposure += pos.Notional()
		m.UnrealizedPnl += pos.UnrealizedPnl
	}
	if t.totalTrades > 0 {
		m.WinRate = float64(t.winning) / float64(t.totalTrades)
		m.AvgTradePnl = t.realizedPnl / float64(t.totalTrades)
		m.AvgHoldSeconds = t.holdSum / float64(t.totalTrades)
	}
	return m
}

// pnl computes direction-aware profit for a long or short position.
func pnl(side domain.OrderSide, entry, current, size float64) float64 {
	if side == domain.OrderSideBuy {
		return (current - entry) * size
	}
	return (entry - current) * size
}

// rollDayLocked resets the daily counters when the UTC date changes.
// Callers hold the mutex.
func (t *Tracker) rollDayLocked(now time.Time) {
	day := now.Format("2006-01-02")
	if day == t.day {
		return
	}
	t.logger.Info("daily counters reset",
		slog.String("from", t.day),
		slog.String("to", day),
		slog.Float64("daily_pnl", t.dailyPnl),
		slog.Int("daily_trades", t.dailyTrades),
	)
	t.day = day
	t.dailyPnl = 0
	t.dailyTrades = 0
}

// persistClose mirrors the settled trade into the stores. Failures only
// warn: the in-memory ledger is the authority.
func (t *Tracker) persistClose(ctx context.Context, pos domain.Position, trade domain.TradeRecord) {
	if t.positions != nil {
		if err := t.positions.Close(ctx, pos.ID, trade.ExitPrice, trade.ExitReason, pos.Status); err != nil {
			t.logger.Warn("position close persist failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if t.trades != nil {
		if err := t.trades.Insert(ctx, trade); err != nil {
			t.logger.Warn("trade persist failed",
				slog.String("trade_id", trade.TradeID),
				slog.String("error", err.Error()),
			)
		}
	}
	if t.stats != nil {
		if err := t.stats.ApplyTrade(ctx, trade); err != nil {
			t.logger.Warn("daily stat update failed",
				slog.String("trade_id", trade.TradeID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// journal records the event in the audit store and on the signal bus
// when attached. A journaling failure never interrupts trading.
func (t *Tracker) journal(ctx context.Context, event string, detail map[string]any) {
	if t.audit != nil {
		if err := t.audit.Log(ctx, event, detail); err != nil {
			t.logger.Warn("audit log failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
	if t.bus != nil {
		msg := make(map[string]any, len(detail)+1)
		for k, v := range detail {
			msg[k] = v
		}
		msg["event"] = event
		payload, err := json.Marshal(msg)
		if err != nil {
			return
		}
		if err := t.bus.Publish(ctx, "signals:positions", payload); err != nil {
			t.logger.Warn("signal publish failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
}
