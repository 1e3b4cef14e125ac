// Package feed composes the live data plane. The aggregator merges the
// game data providers behind a single GameFeed, and the price feed pumps
// venue book midpoints into the price cache.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/esportsarb/internal/domain"
	"github.com/alanyoungcy/esportsarb/internal/winprob"
)

// Aggregator multiplexes several providers behind the GameFeed contract.
// Providers are consulted in construction order, so the fastest source
// goes first; a provider failure falls through to the next one. Each
// match sticks to the provider that first reported it, keeping snapshot
// diffs consistent within one stream.
type Aggregator struct {
	providers []domain.GameFeed
	models    *winprob.Registry
	logger    *slog.Logger

	mu        sync.RWMutex
	matchFeed map[string]domain.GameFeed
}

// NewAggregator creates an aggregator over the given providers, in
// priority order. Disabled providers must be filtered out by the caller.
func NewAggregator(providers []domain.GameFeed, models *winprob.Registry, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		providers: providers,
		models:    models,
		logger:    logger.With(slog.String("component", "feed")),
		matchFeed: make(map[string]domain.GameFeed),
	}
}

// Name implements domain.GameFeed.
func (a *Aggregator) Name() string { return "aggregate" }

// Games returns the union of the providers' titles in first-seen order.
func (a *Aggregator) Games() []domain.Game {
	seen := make(map[domain.Game]struct{})
	var games []domain.Game
	for _, p := range a.providers {
		for _, g := range p.Games() {
			if _, ok := seen[g]; ok {
				continue
			}
			seen[g] = struct{}{}
			games = append(games, g)
		}
	}
	return games
}

// Names lists the underlying providers for status reporting.
func (a *Aggregator) Names() []string {
	names := make([]string, 0, len(a.providers))
	for _, p := range a.providers {
		names = append(names, p.Name())
	}
	return names
}

// LiveMatches asks providers in priority order and returns the first
// non-empty answer, remembering which provider owns each match.
func (a *Aggregator) LiveMatches(ctx context.Context, game domain.Game) ([]domain.MatchSummary, error) {
	for _, p := range a.providers {
		if !covers(p, game) {
			continue
		}
		matches, err := p.LiveMatches(ctx, game)
		if err != nil {
			a.logger.Warn("provider live matches failed",
				slog.String("provider", p.Name()),
				slog.String("game", string(game)),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(matches) == 0 {
			continue
		}

		a.mu.Lock()
		for _, m := range matches {
			a.matchFeed[m.MatchID] = p
		}
		a.mu.Unlock()
		return matches, nil
	}
	return nil, nil
}

// MatchState routes to the provider that owns the match and fills in the
// model win probabilities. Unknown matches are probed across providers
// and claimed by whichever answers first.
func (a *Aggregator) MatchState(ctx context.Context, matchID string) (*domain.GameState, error) {
	if p, ok := a.ProviderFor(matchID); ok {
		state, err := p.MatchState(ctx, matchID)
		if err != nil {
			return nil, err
		}
		a.fillWinProb(state)
		return state, nil
	}

	for _, p := range a.providers {
		state, err := p.MatchState(ctx, matchID)
		if err != nil {
			a.logger.Warn("provider match state failed",
				slog.String("provider", p.Name()),
				slog.String("match_id", matchID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if state == nil {
			continue
		}

		a.mu.Lock()
		a.matchFeed[matchID] = p
		a.mu.Unlock()
		a.fillWinProb(state)
		return state, nil
	}
	return nil, nil
}

// Subscribe opens the event stream on the match's provider, resolving
// the owner first when the match has not been seen yet.
func (a *Aggregator) Subscribe(ctx context.Context, matchID string) (<-chan domain.GameEvent, error) {
	p, ok := a.ProviderFor(matchID)
	if !ok {
		if _, err := a.MatchState(ctx, matchID); err != nil {
			return nil, err
		}
		p, ok = a.ProviderFor(matchID)
		if !ok {
			return nil, fmt.Errorf("feed: match %s: %w", matchID, domain.ErrNotFound)
		}
	}
	return p.Subscribe(ctx, matchID)
}

// Close shuts down every provider, reporting all failures together.
func (a *Aggregator) Close() error {
	var errs []error
	for _, p := range a.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("feed: close %s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// ProviderFor returns the provider that owns the match, if any.
func (a *Aggregator) ProviderFor(matchID string) (domain.GameFeed, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.matchFeed[matchID]
	return p, ok
}

func (a *Aggregator) fillWinProb(state *domain.GameState) {
	if state == nil {
		return
	}
	model, err := a.models.Get(state.Game)
	if err != nil {
		a.logger.Warn("no win probability model", slog.String("game", string(state.Game)))
		return
	}
	state.Team1WinProb, state.Team2WinProb = model.WinProbability(state)
}

func covers(p domain.GameFeed, game domain.Game) bool {
	for _, g := range p.Games() {
		if g == game {
			return true
		}
	}
	return false
}

// Compile-time interface check.
var _ domain.GameFeed = (*Aggregator)(nil)
