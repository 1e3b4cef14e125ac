// Package executor turns detected opportunities into venue orders. It
// re-validates each signal at execution time, sizes the order with a
// quarter-Kelly fraction, and measures the venue round trip, since
// latency is the whole edge in this strategy.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/config"
	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// minOrderSize is the venue's smallest accepted order in USD. Sizes that
// come out below it are bumped up to it rather than dropped.
const minOrderSize = 1.00

// orderRateLimit caps entry placements per second against the venue API.
const orderRateLimit = 10

// OrderVenue is the slice of the venue the executor needs: order entry,
// cancellation, and balance reads.
type OrderVenue interface {
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (*domain.Order, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	Balance(ctx context.Context) (float64, error)
}

// MarketReader resolves a market by ID so tradability can be confirmed
// at execution time rather than detection time.
type MarketReader interface {
	Get(ctx context.Context, id string) (domain.Market, error)
}

// FillFunc receives each filled entry order together with the
// opportunity that produced it.
type FillFunc func(order *domain.Order, opp domain.Opportunity)

// Executor validates, sizes, and places orders. Business-rule rejections
// (expired signal, decayed edge, closed market, no tradable size) warn
// and return a nil order; only venue and infrastructure failures surface
// as errors.
type Executor struct {
	venue   OrderVenue
	markets MarketReader
	cfg     config.TradingConfig
	logger  *slog.Logger

	audit   domain.AuditStore
	bus     domain.SignalBus
	limiter domain.RateLimiter

	mu             sync.Mutex
	onFill         FillFunc
	open           map[string]domain.Order // resting orders by ID, for shutdown cancels
	placed         int
	filled         int
	failed         int
	latencyTotalMs int64
}

// New creates an Executor trading through venue. The markets reader
// should be the same cache the discovery loop refreshes, so tradability
// checks see current data.
func New(venue OrderVenue, markets MarketReader, cfg config.TradingConfig, logger *slog.Logger) *Executor {
	return &Executor{
		venue:   venue,
		markets: markets,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "executor")),
		open:    make(map[string]domain.Order),
	}
}

// WithAudit attaches an audit store so every placement leaves a
// persistent trail. Without it the executor only logs.
func (e *Executor) WithAudit(audit domain.AuditStore) *Executor {
	e.audit = audit
	return e
}

// WithBus attaches a signal bus so order events reach out-of-process
// observers such as the dashboard socket.
func (e *Executor) WithBus(bus domain.SignalBus) *Executor {
	e.bus = bus
	return e
}

// WithLimiter attaches a rate limiter guarding the venue order endpoint.
// Entry placements respect it; exits bypass it.
func (e *Executor) WithLimiter(limiter domain.RateLimiter) *Executor {
	e.limiter = limiter
	return e
}

// OnFill registers the handler invoked synchronously for each filled
// entry order. The engine points this at the position tracker, so the
// position exists before Execute returns. Exit fills bypass it: closing
// settles through the tracker directly.
func (e *Executor) OnFill(fn FillFunc) {
	e.mu.Lock()
	e.onFill = fn
	e.mu.Unlock()
}

// Execute runs one opportunity through validation, sizing, and placement.
// A nil order with nil error means the opportunity was rejected by a
// business rule and no capital moved.
func (e *Executor) Execute(ctx context.Context, opp domain.Opportunity) (*domain.Order, error) {
	log := e.logger.With(
		slog.String("opportunity_id", opp.ID),
		slog.String("market_id", opp.MarketID),
		slog.String("token", string(opp.TargetToken)),
		slog.String("side", string(opp.Side)),
	)

	// 1. Expiry check. The edge decays in seconds; a stale signal is
	// worse than no trade.
	if opp.Expired(time.Now().UTC()) {
		log.Warn("opportunity expired, skipping",
			slog.Time("expires_at", opp.ExpiresAt),
		)
		return nil, nil
	}

	// 2. Edge re-check against the configured threshold.
	if opp.Edge < e.cfg.MinEdgeThreshold {
		log.Warn("edge below threshold, skipping",
			slog.Float64("edge", opp.Edge),
			slog.Float64("threshold", e.cfg.MinEdgeThreshold),
		)
		return nil, nil
	}

	// 3. Market still tradable. Books close the moment a game resolves.
	market, err := e.markets.Get(ctx, opp.MarketID)
	if err != nil {
		return nil, fmt.Errorf("executor: market %q: %w", opp.MarketID, err)
	}
	if !market.Tradable() {
		log.Warn("market no longer tradable, skipping")
		return nil, nil
	}

	// 4. Venue rate limit. A denial is a skip, not an error: the next
	// tick re-detects anything still worth taking.
	if e.limiter != nil {
		allowed, err := e.limiter.Allow(ctx, "orders", orderRateLimit, time.Second)
		if err != nil {
			log.Warn("rate limiter unavailable", slog.String("error", err.Error()))
		} else if !allowed {
			log.Warn("order rate limit hit, skipping")
			return nil, nil
		}
	}

	// 5. Position size from the available balance.
	available, err := e.venue.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("executor: balance: %w", err)
	}
	size := e.positionSize(opp, available)
	if size <= 0 {
		log.Warn("no tradable size, skipping",
			slog.Float64("available", available),
			slog.Float64("max_price", opp.MaxPrice),
		)
		return nil, nil
	}

	// 6. Place the order, timing the venue round trip.
	req := domain.OrderRequest{
		MarketID: opp.MarketID,
		TokenID:  opp.TokenID,
		Side:     opp.Side,
		Size:     size,
		Price:    opp.MaxPrice,
	}
	start := time.Now()
	order, err := e.venue.PlaceOrder(ctx, req)
	latencyMs := time.Since(start).Milliseconds()
	e.settle(order, err, latencyMs)

	if err != nil {
		log.Error("order placement failed",
			slog.String("error", err.Error()),
			slog.Int64("latency_ms", latencyMs),
		)
		e.journal(ctx, "order_failed", map[string]any{
			"opportunity_id": opp.ID,
			"market":         opp.MarketID,
			"side":           string(opp.Side),
			"size":           size,
			"error":          err.Error(),
		})
		return nil, fmt.Errorf("executor: place order: %w", err)
	}

	log.Info("order placed",
		slog.String("order_id", order.ID),
		slog.String("status", string(order.Status)),
		slog.Float64("size", order.Size()),
		slog.Float64("price", order.Price()),
		slog.Float64("edge", opp.Edge),
		slog.Int64("latency_ms", latencyMs),
	)
	e.journal(ctx, "order_placed", map[string]any{
		"order_id":   order.ID,
		"market":     order.MarketID,
		"side":       string(order.Side),
		"price":      order.Price(),
		"size":       order.Size(),
		"edge":       opp.Edge,
		"latency_ms": latencyMs,
	})

	// 7. An immediate fill opens the position before Execute returns.
	if order.Status == domain.OrderStatusFilled {
		e.mu.Lock()
		fn := e.onFill
		e.mu.Unlock()
		if fn != nil {
			fn(order, opp)
		}
	}

	return order, nil
}

// ExecuteExit flattens a position with an opposite-side order at the
// current price for the full size. The caller settles the position once
// the order is confirmed, so the fill handler does not run here.
func (e *Executor) ExecuteExit(ctx context.Context, pos domain.Position, reason domain.ExitReason) (*domain.Order, error) {
	log := e.logger.With(
		slog.String("position_id", pos.ID),
		slog.String("market_id", pos.MarketID),
		slog.String("reason", string(reason)),
	)

	req := domain.OrderRequest{
		MarketID: pos.MarketID,
		TokenID:  pos.TokenID,
		Side:     pos.Side.Opposite(),
		Size:     pos.Size,
		Price:    pos.CurrentPrice,
	}
	start := time.Now()
	order, err := e.venue.PlaceOrder(ctx, req)
	latencyMs := time.Since(start).Milliseconds()
	e.settle(order, err, latencyMs)

	if err != nil {
		log.Error("exit order failed",
			slog.String("error", err.Error()),
			slog.Int64("latency_ms", latencyMs),
		)
		return nil, fmt.Errorf("executor: exit order: %w", err)
	}

	log.Info("exit order placed",
		slog.String("order_id", order.ID),
		slog.String("status", string(order.Status)),
		slog.Float64("size", order.Size()),
		slog.Float64("price", order.Price()),
		slog.Int64("latency_ms", latencyMs),
	)
	e.journal(ctx, "exit_order_placed", map[string]any{
		"order_id":    order.ID,
		"position_id": pos.ID,
		"market":      order.MarketID,
		"side":        string(order.Side),
		"price":       order.Price(),
		"size":        order.Size(),
		"reason":      string(reason),
	})

	return order, nil
}

// CancelAll cancels every resting order, used at shutdown so nothing is
// left working the book. All cancels are attempted even after a failure;
// the first error is returned.
func (e *Executor) CancelAll(ctx context.Context) error {
	e.mu.Lock()
	ids := make([]string, 0, len(e.open))
	for id := range e.open {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	var firstErr error
	cancelled := 0
	for _, id := range ids {
		ok, err := e.venue.CancelOrder(ctx, id)
		if err != nil {
			e.logger.Error("cancel failed during cancel-all",
				slog.String("order_id", id),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("executor: cancel order %q: %w", id, err)
			}
			continue
		}
		if ok {
			cancelled++
		}
		e.mu.Lock()
		delete(e.open, id)
		e.mu.Unlock()
	}

	if len(ids) > 0 {
		e.logger.Info("cancelled open orders",
			slog.Int("cancelled", cancelled),
			slog.Int("attempted", len(ids)),
		)
	}
	return firstErr
}

// Metrics is a point-in-time snapshot of the execution counters.
type Metrics struct {
	OrdersPlaced   int
	OrdersFilled   int
	OrdersFailed   int
	OpenOrders     int
	TotalLatencyMs int64
	AvgLatencyMs   float64
}

// Metrics reports execution counters. The latency average covers every
// venue round trip, failed ones included.
func (e *Executor) Metrics() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()

	m := Metrics{
		OrdersPlaced:   e.placed,
		OrdersFilled:   e.filled,
		OrdersFailed:   e.failed,
		OpenOrders:     len(e.open),
		TotalLatencyMs: e.latencyTotalMs,
	}
	if trips := e.placed + e.failed; trips > 0 {
		m.AvgLatencyMs = float64(e.latencyTotalMs) / float64(trips)
	}
	return m
}

// positionSize applies quarter-Kelly to the available balance, capped by
// the per-position limit and the detector's recommendation, rounded to
// cents. Returns 0 when nothing can be traded.
func (e *Executor) positionSize(opp domain.Opportunity, available float64) float64 {
	if available <= 0 {
		return 0
	}
	price := opp.MaxPrice
	if price <= 0 || price >= 1 {
		return 0
	}

	kelly := math.Min(0.25, 0.25*opp.Edge/(1-price))
	size := available * kelly
	size = math.Min(size, available*e.cfg.MaxPositionSizePct)
	if opp.RecommendedSize > 0 {
		size = math.Min(size, opp.RecommendedSize)
	}
	size = math.Round(size*100) / 100
	return math.Max(minOrderSize, size)
}

// settle updates the counters for one venue round trip and tracks any
// resting order for shutdown cancellation.
func (e *Executor) settle(order *domain.Order, err error, latencyMs int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.latencyTotalMs += latencyMs
	if err != nil {
		e.failed++
		return
	}
	e.placed++
	if order.Status == domain.OrderStatusFilled {
		e.filled++
		delete(e.open, order.ID)
	} else if !order.Status.Terminal() {
		e.open[order.ID] = *order
	}
}

// journal records the event in the audit store and on the signal bus
// when attached. A journaling failure never interrupts trading.
func (e *Executor) journal(ctx context.Context, event string, detail map[string]any) {
	if e.audit != nil {
		if err := e.audit.Log(ctx, event, detail); err != nil {
			e.logger.Warn("audit log failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
	if e.bus != nil {
		msg := make(map[string]any, len(detail)+1)
		for k, v := range detail {
			msg[k] = v
		}
		msg["event"] = event
		payload, err := json.Marshal(msg)
		if err != nil {
			return
		}
		if err := e.bus.Publish(ctx, "signals:orders", payload); err != nil {
			e.logger.Warn("signal publish failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
}
