package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

const marketTTL = 5 * time.Minute

// MarketCache implements domain.MarketCache using Redis hashes with JSON-
// serialized Market data and a per-game set of active market IDs.
//
// Key schema:
//
//	market:{id}            - hash with field "data" containing JSON
//	markets:active:{game}  - set of active market IDs for that title
type MarketCache struct {
	rdb *redis.Client
}

// NewMarketCache creates a MarketCache backed by the given Client.
func NewMarketCache(c *Client) *MarketCache {
	return &MarketCache{rdb: c.rdb}
}

func marketKey(id string) string           { return "market:" + id }
func activeSetKey(game domain.Game) string { return "markets:active:" + string(game) }

// Set stores a Market in the cache with a 5-minute TTL and keeps the
// per-game active set in sync with the market's IsActive flag.
func (mc *MarketCache) Set(ctx context.Context, market domain.Market) error {
	data, err := json.Marshal(market)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", market.MarketID, err)
	}

	key := marketKey(market.MarketID)

	pipe := mc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, marketTTL)

	if market.IsActive {
		pipe.SAdd(ctx, activeSetKey(market.Game), market.MarketID)
	} else {
		pipe.SRem(ctx, activeSetKey(market.Game), market.MarketID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set market %s: %w", market.MarketID, err)
	}
	return nil
}

// Get retrieves a Market by its ID from the cache.
// It returns domain.ErrNotFound when the key does not exist.
func (mc *MarketCache) Get(ctx context.Context, id string) (domain.Market, error) {
	data, err := mc.rdb.HGet(ctx, marketKey(id), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market %s: %w", id, err)
	}

	var market domain.Market
	if err := json.Unmarshal(data, &market); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %s: %w", id, err)
	}
	return market, nil
}

// ListActive returns every cached market currently marked active for the
// given game, sorted by market ID. Set members whose market hash has
// expired are pruned from the set as they are discovered.
func (mc *MarketCache) ListActive(ctx context.Context, game domain.Game) ([]domain.Market, error) {
	ids, err := mc.rdb.SMembers(ctx, activeSetKey(game)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list active %s: %w", game, err)
	}
	if len(ids) == 0 {
		return []domain.Market{}, nil
	}

	pipe := mc.rdb.Pipeline()
	cmds := make(map[string]*redis.StringCmd, len(ids))
	for _, id := range ids {
		cmds[id] = pipe.HGet(ctx, marketKey(id), "data")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: list active %s pipeline: %w", game, err)
	}

	markets := make([]domain.Market, 0, len(ids))
	var expired []interface{}
	for id, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				expired = append(expired, id)
			}
			continue
		}
		var market domain.Market
		if err := json.Unmarshal(data, &market); err != nil {
			continue
		}
		if !market.IsActive {
			continue
		}
		markets = append(markets, market)
	}

	if len(expired) > 0 {
		_ = mc.rdb.SRem(ctx, activeSetKey(game), expired...).Err()
	}

	sort.Slice(markets, func(i, j int) bool { return markets[i].MarketID < markets[j].MarketID })
	return markets, nil
}

// Invalidate removes a Market and its active-set membership from the cache.
func (mc *MarketCache) Invalidate(ctx context.Context, id string) error {
	// Read the market first so the right game's active set is cleaned.
	market, err := mc.Get(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("redis: invalidate market %s: %w", id, err)
	}

	pipe := mc.rdb.TxPipeline()
	pipe.Del(ctx, marketKey(id))
	if err == nil {
		pipe.SRem(ctx, activeSetKey(market.Game), id)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
