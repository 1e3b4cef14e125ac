package polymarket

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// Venue is the live trading venue. It combines Gamma discovery with CLOB
// market data and order flow behind the domain.Venue interface, so the
// engine drives it exactly like the paper simulator.
type Venue struct {
	gamma *GammaClient
	clob  *ClobClient
	ws    *WSClient

	mu      sync.RWMutex
	markets map[string]domain.Market
}

// NewVenue builds the live venue from its API clients. ws may be nil when
// the market data stream is disabled.
func NewVenue(gamma *GammaClient, clob *ClobClient, ws *WSClient) *Venue {
	return &Venue{
		gamma:   gamma,
		clob:    clob,
		ws:      ws,
		markets: make(map[string]domain.Market),
	}
}

// Name identifies the venue in logs and notifications.
func (v *Venue) Name() string { return "polymarket" }

// EsportsMarkets discovers active esports markets for one title (or all
// titles when game is empty) and remembers them for later price lookups.
func (v *Venue) EsportsMarkets(ctx context.Context, game domain.Game) ([]domain.Market, error) {
	markets, err := v.gamma.EsportsMarkets(ctx, game)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	for _, m := range markets {
		v.markets[m.MarketID] = m
	}
	v.mu.Unlock()

	return markets, nil
}

// MarketPrice fetches both token books and returns the midpoints,
// normalized so yes and no sum to one. The market must have been seen by
// a prior EsportsMarkets call.
func (v *Venue) MarketPrice(ctx context.Context, marketID string) (float64, float64, error) {
	v.mu.RLock()
	m, ok := v.markets[marketID]
	v.mu.RUnlock()
	if !ok {
		return 0, 0, fmt.Errorf("polymarket: market %s: %w", marketID, domain.ErrNotFound)
	}

	yesBook, err := v.clob.Book(ctx, m.TokenIDYes)
	if err != nil {
		return 0, 0, err
	}
	noBook, err := v.clob.Book(ctx, m.TokenIDNo)
	if err != nil {
		return 0, 0, err
	}

	yes, no := yesBook.Mid(), noBook.Mid()
	if total := yes + no; total > 0 {
		yes, no = yes/total, no/total
	}

	return yes, no, nil
}

// PlaceOrder submits a GTC limit order to the CLOB.
func (v *Venue) PlaceOrder(ctx context.Context, req domain.OrderRequest) (*domain.Order, error) {
	result, err := v.clob.PostOrder(ctx, req)
	if err != nil {
		return nil, err
	}

	orderID := result.OrderID
	if orderID == "" {
		// Some venue responses omit the ID; a timestamp keeps the order
		// trackable locally.
		orderID = strconv.FormatInt(time.Now().UnixMilli(), 10)
	}

	return &domain.Order{
		ID:         orderID,
		MarketID:   req.MarketID,
		TokenID:    req.TokenID,
		Side:       req.Side,
		PriceTicks: domain.PriceToTicks(req.Price),
		SizeUnits:  domain.SizeToUnits(req.Size),
		Status:     domain.OrderStatusSubmitted,
		CreatedAt:  time.Now(),
	}, nil
}

// CancelOrder cancels an open order, reporting whether the venue
// acknowledged the cancel.
func (v *Venue) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	if err := v.clob.CancelOrder(ctx, orderID); err != nil {
		return false, err
	}
	return true, nil
}

// Balance returns the available USDC collateral for the wallet.
func (v *Venue) Balance(ctx context.Context) (float64, error) {
	return v.clob.Balance(ctx)
}

// Close releases venue connections.
func (v *Venue) Close() error {
	if v.ws != nil {
		return v.ws.Close()
	}
	return nil
}

// Market returns the remembered market for an ID, if discovery has seen it.
func (v *Venue) Market(marketID string) (domain.Market, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	m, ok := v.markets[marketID]
	return m, ok
}

var _ domain.Venue = (*Venue)(nil)
