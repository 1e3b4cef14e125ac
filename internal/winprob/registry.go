package winprob

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// Registry holds win-probability models keyed by game for selection at
// match-tracking time.
type Registry struct {
	models map[domain.Game]Model
	mu     sync.RWMutex
}

// NewRegistry returns a registry preloaded with every supported title.
func NewRegistry() *Registry {
	r := &Registry{models: make(map[domain.Game]Model)}
	r.Register(NewLoL())
	r.Register(NewDota())
	return r
}

// Register adds a model under its own game key, replacing any previous one.
func (r *Registry) Register(m Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[m.Game()] = m
}

// Get returns the model for the game, or an error if none is registered.
func (r *Registry) Get(game domain.Game) (Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[game]
	if !ok {
		return nil, fmt.Errorf("winprob: no model for game %q", game)
	}
	return m, nil
}

// List returns all registered games, sorted.
func (r *Registry) List() []domain.Game {
	r.mu.RLock()
	defer r.mu.RUnlock()
	games := make([]domain.Game, 0, len(r.models))
	for g := range r.models {
		games = append(games, g)
	}
	sort.Slice(games, func(i, j int) bool { return games[i] < games[j] })
	return games
}
