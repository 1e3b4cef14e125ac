// Package memory provides in-process fallbacks for the domain cache
// interfaces, used when no Redis address is configured. They keep a
// single-process deployment fully functional; nothing is shared across
// processes, so the leader lock and rate limits only bind locally.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

type pricePoint struct {
	price float64
	ts    time.Time
}

// PriceCache implements domain.PriceCache with a mutex-guarded map.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]pricePoint
}

// NewPriceCache creates an empty in-memory price cache.
func NewPriceCache() *PriceCache {
	return &PriceCache{prices: make(map[string]pricePoint)}
}

// SetPrice stores the latest price and timestamp for an outcome token.
func (pc *PriceCache) SetPrice(_ context.Context, tokenID string, price float64, ts time.Time) error {
	pc.mu.Lock()
	pc.prices[tokenID] = pricePoint{price: price, ts: ts}
	pc.mu.Unlock()
	return nil
}

// GetPrice retrieves the latest price and timestamp for an outcome token.
// It returns domain.ErrNotFound when the token has never been priced.
func (pc *PriceCache) GetPrice(_ context.Context, tokenID string) (float64, time.Time, error) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	p, ok := pc.prices[tokenID]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p.price, p.ts, nil
}

// GetPrices retrieves the latest prices for multiple tokens. Unknown
// tokens are omitted from the result map.
func (pc *PriceCache) GetPrices(_ context.Context, tokenIDs []string) (map[string]float64, error) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	result := make(map[string]float64, len(tokenIDs))
	for _, id := range tokenIDs {
		if p, ok := pc.prices[id]; ok {
			result[id] = p.price
		}
	}
	return result, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
