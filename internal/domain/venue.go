package domain

import "context"

// Venue is the market-venue contract. The live client and the
// paper-trading simulator implement the same interface so the rest of
// the system never learns which mode it is running in.
type Venue interface {
	Name() string

	// EsportsMarkets discovers active esports markets for one title.
	EsportsMarkets(ctx context.Context, game Game) ([]Market, error)

	// MarketPrice returns the current (yes, no) prices for a market,
	// normalized so that they sum to one.
	MarketPrice(ctx context.Context, marketID string) (yes, no float64, err error)

	// PlaceOrder submits a limit order. Remote failures are transient:
	// the caller logs and moves on.
	PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error)

	// CancelOrder cancels an open order, reporting whether the venue
	// acknowledged the cancel.
	CancelOrder(ctx context.Context, orderID string) (bool, error)

	// Balance returns the available trading balance in USD.
	Balance(ctx context.Context) (float64, error)

	// Close releases venue connections.
	Close() error
}
