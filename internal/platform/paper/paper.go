// Package paper provides a simulated trading venue. Market discovery and
// prices pass through to a real venue, so strategies run against live
// books, while orders fill locally without spending capital.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// fillDelay approximates venue round-trip latency so paper timings stay
// comparable to live ones.
const fillDelay = 50 * time.Millisecond

// Venue simulates order flow on top of a market data source. It
// implements domain.Venue, so the engine cannot tell it apart from the
// live client.
type Venue struct {
	data   domain.Venue
	logger *slog.Logger

	mu      sync.Mutex
	balance float64
}

// New wraps a data venue with simulated order flow. initialCapital seeds
// the paper balance; every fill settles against it.
func New(data domain.Venue, initialCapital float64, logger *slog.Logger) *Venue {
	return &Venue{
		data:    data,
		logger:  logger.With(slog.String("component", "paper")),
		balance: initialCapital,
	}
}

// Name identifies the venue in logs and notifications.
func (v *Venue) Name() string { return "paper" }

// EsportsMarkets passes discovery through to the data venue.
func (v *Venue) EsportsMarkets(ctx context.Context, game domain.Game) ([]domain.Market, error) {
	return v.data.EsportsMarkets(ctx, game)
}

// MarketPrice passes price lookups through to the data venue.
func (v *Venue) MarketPrice(ctx context.Context, marketID string) (float64, float64, error) {
	return v.data.MarketPrice(ctx, marketID)
}

// PlaceOrder fills the order immediately at the requested price after a
// short synthetic delay. Buys debit the paper balance, sells credit it.
func (v *Venue) PlaceOrder(ctx context.Context, req domain.OrderRequest) (*domain.Order, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(fillDelay):
	}

	cost := req.Size * req.Price

	v.mu.Lock()
	if req.Side == domain.OrderSideBuy {
		if cost > v.balance {
			have := v.balance
			v.mu.Unlock()
			return nil, fmt.Errorf("paper: %w: need %.2f, have %.2f", domain.ErrInsufficientBalance, cost, have)
		}
		v.balance -= cost
	} else {
		v.balance += cost
	}
	balance := v.balance
	v.mu.Unlock()

	now := time.Now()
	order := &domain.Order{
		ID:               fmt.Sprintf("paper_%d", now.UnixMilli()),
		MarketID:         req.MarketID,
		TokenID:          req.TokenID,
		Side:             req.Side,
		PriceTicks:       domain.PriceToTicks(req.Price),
		SizeUnits:        domain.SizeToUnits(req.Size),
		FilledSize:       req.Size,
		AverageFillPrice: req.Price,
		Status:           domain.OrderStatusFilled,
		CreatedAt:        now,
		FilledAt:         &now,
	}

	v.logger.Info("paper fill",
		slog.String("order_id", order.ID),
		slog.String("market_id", req.MarketID),
		slog.String("side", string(req.Side)),
		slog.Float64("size", req.Size),
		slog.Float64("price", req.Price),
		slog.Float64("balance", balance),
	)

	return order, nil
}

// CancelOrder always acknowledges: paper orders fill on placement, so
// there is never anything resting to cancel.
func (v *Venue) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	return true, nil
}

// Balance returns the remaining paper balance.
func (v *Venue) Balance(ctx context.Context) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balance, nil
}

// Close releases the underlying data venue.
func (v *Venue) Close() error {
	return v.data.Close()
}

var _ domain.Venue = (*Venue)(nil)
