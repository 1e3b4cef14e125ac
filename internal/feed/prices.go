package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/domain"
	"github.com/alanyoungcy/esportsarb/internal/platform/polymarket"
)

// PriceFeed owns the market-data socket lifecycle. It pumps book
// midpoints into the price cache and grows the token subscription as
// markets are discovered. Reconnects happen inside the socket client;
// only the first dial can fail here.
type PriceFeed struct {
	ws     *polymarket.WSClient
	cache  domain.PriceCache
	logger *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewPriceFeed creates a price feed over the given socket client.
func NewPriceFeed(ws *polymarket.WSClient, cache domain.PriceCache, logger *slog.Logger) *PriceFeed {
	return &PriceFeed{
		ws:     ws,
		cache:  cache,
		logger: logger.With(slog.String("component", "price_feed")),
		done:   make(chan struct{}),
	}
}

// Run connects and blocks until ctx is cancelled or Close is called. A
// failed first dial is returned so the caller can decide whether to keep
// running on REST book prices alone.
func (f *PriceFeed) Run(ctx context.Context) error {
	f.ws.PumpPrices(f.cache)

	connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err := f.ws.Connect(connCtx)
	cancel()
	if err != nil {
		return err
	}
	defer f.ws.Close()

	f.logger.Info("price feed connected")
	defer f.logger.Info("price feed stopped")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.done:
		return nil
	}
}

// Track subscribes the feed to the given outcome tokens. Already-tracked
// tokens are skipped by the socket layer.
func (f *PriceFeed) Track(ctx context.Context, tokenIDs []string) error {
	if len(tokenIDs) == 0 {
		return nil
	}
	if err := f.ws.Subscribe(ctx, tokenIDs); err != nil {
		return err
	}
	f.logger.Debug("tracking tokens", slog.Int("count", len(tokenIDs)))
	return nil
}

// Untrack drops token subscriptions for resolved or abandoned markets.
func (f *PriceFeed) Untrack(ctx context.Context, tokenIDs []string) error {
	if len(tokenIDs) == 0 {
		return nil
	}
	return f.ws.Unsubscribe(ctx, tokenIDs)
}

// Close stops the feed.
func (f *PriceFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
