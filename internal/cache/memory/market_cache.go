package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// marketTTL matches the Redis implementation so both backends age out
// markets the discovery loop stopped refreshing.
const marketTTL = 5 * time.Minute

type marketEntry struct {
	market    domain.Market
	expiresAt time.Time
}

// MarketCache implements domain.MarketCache with a mutex-guarded map.
type MarketCache struct {
	mu      sync.RWMutex
	markets map[string]marketEntry
}

// NewMarketCache creates an empty in-memory market cache.
func NewMarketCache() *MarketCache {
	return &MarketCache{markets: make(map[string]marketEntry)}
}

// Set stores a Market with a fresh TTL.
func (mc *MarketCache) Set(_ context.Context, market domain.Market) error {
	mc.mu.Lock()
	mc.markets[market.MarketID] = marketEntry{
		market:    market,
		expiresAt: time.Now().Add(marketTTL),
	}
	mc.mu.Unlock()
	return nil
}

// Get retrieves a Market by its ID. Expired or unknown IDs return
// domain.ErrNotFound.
func (mc *MarketCache) Get(_ context.Context, id string) (domain.Market, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	e, ok := mc.markets[id]
	if !ok || time.Now().After(e.expiresAt) {
		return domain.Market{}, domain.ErrNotFound
	}
	return e.market, nil
}

// ListActive returns every live, unexpired market for the given game,
// sorted by market ID. Expired entries are pruned in the same pass.
func (mc *MarketCache) ListActive(_ context.Context, game domain.Game) ([]domain.Market, error) {
	now := time.Now()

	mc.mu.Lock()
	defer mc.mu.Unlock()

	markets := make([]domain.Market, 0, len(mc.markets))
	for id, e := range mc.markets {
		if now.After(e.expiresAt) {
			delete(mc.markets, id)
			continue
		}
		if e.market.Game != game || !e.market.IsActive {
			continue
		}
		markets = append(markets, e.market)
	}

	sort.Slice(markets, func(i, j int) bool { return markets[i].MarketID < markets[j].MarketID })
	return markets, nil
}

// Invalidate removes a Market from the cache.
func (mc *MarketCache) Invalidate(_ context.Context, id string) error {
	mc.mu.Lock()
	delete(mc.markets, id)
	mc.mu.Unlock()
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
