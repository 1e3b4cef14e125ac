package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// stateTTL matches the Redis implementation: long enough to survive the
// intermission between games of a series.
const stateTTL = 10 * time.Minute

type stateEntry struct {
	state     domain.GameState
	expiresAt time.Time
}

// GameStateCache implements domain.GameStateCache with a mutex-guarded map.
type GameStateCache struct {
	mu     sync.RWMutex
	states map[string]stateEntry
}

// NewGameStateCache creates an empty in-memory game-state cache.
func NewGameStateCache() *GameStateCache {
	return &GameStateCache{states: make(map[string]stateEntry)}
}

// SetState stores the latest snapshot for a match with a fresh TTL.
func (gc *GameStateCache) SetState(_ context.Context, state domain.GameState) error {
	gc.mu.Lock()
	gc.states[state.MatchID] = stateEntry{
		state:     state,
		expiresAt: time.Now().Add(stateTTL),
	}
	gc.mu.Unlock()
	return nil
}

// GetState retrieves the latest snapshot for a match. Expired or unknown
// matches return domain.ErrNotFound.
func (gc *GameStateCache) GetState(_ context.Context, matchID string) (domain.GameState, error) {
	gc.mu.RLock()
	defer gc.mu.RUnlock()

	e, ok := gc.states[matchID]
	if !ok || time.Now().After(e.expiresAt) {
		return domain.GameState{}, domain.ErrNotFound
	}
	return e.state, nil
}

// Compile-time interface check.
var _ domain.GameStateCache = (*GameStateCache)(nil)
