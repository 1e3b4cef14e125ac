package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// stateTTL is generous enough to survive the intermission between games
// of a series; the feed layer overwrites the snapshot on every tick.
const stateTTL = 10 * time.Minute

// GameStateCache implements domain.GameStateCache using Redis hashes with
// JSON-serialized snapshots, one key per tracked match.
//
// Key schema:
//
//	state:{matchID} - hash with field "data" containing JSON
type GameStateCache struct {
	rdb *redis.Client
}

// NewGameStateCache creates a GameStateCache backed by the given Client.
func NewGameStateCache(c *Client) *GameStateCache {
	return &GameStateCache{rdb: c.rdb}
}

func stateKey(matchID string) string { return "state:" + matchID }

// SetState stores the latest snapshot for a match with a fresh TTL.
func (gc *GameStateCache) SetState(ctx context.Context, state domain.GameState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("redis: marshal state %s: %w", state.MatchID, err)
	}

	key := stateKey(state.MatchID)

	pipe := gc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, stateTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set state %s: %w", state.MatchID, err)
	}
	return nil
}

// GetState retrieves the latest snapshot for a match.
// It returns domain.ErrNotFound when the key does not exist.
func (gc *GameStateCache) GetState(ctx context.Context, matchID string) (domain.GameState, error) {
	data, err := gc.rdb.HGet(ctx, stateKey(matchID), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.GameState{}, domain.ErrNotFound
		}
		return domain.GameState{}, fmt.Errorf("redis: get state %s: %w", matchID, err)
	}

	var state domain.GameState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.GameState{}, fmt.Errorf("redis: unmarshal state %s: %w", matchID, err)
	}
	return state, nil
}

// Compile-time interface check.
var _ domain.GameStateCache = (*GameStateCache)(nil)
