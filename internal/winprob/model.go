// Package winprob provides per-game win-probability models used to price
// live esports matches, plus a registry that selects the model for a game.
package winprob

import (
	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// Model estimates win probabilities for one esports title. Implementations
// are pure: deterministic in the inputs, no I/O, safe for concurrent use.
type Model interface {
	// Game returns the title this model prices.
	Game() domain.Game
	// WinProbability returns (team1, team2) win probabilities for the
	// snapshot. The two always sum to 1.
	WinProbability(state *domain.GameState) (float64, float64)
	// EventImpact estimates how much the event shifts the win probability
	// of the team that produced it. The result is a non-negative magnitude;
	// the caller resolves direction from event.TeamID.
	EventImpact(event domain.GameEvent, state *domain.GameState) float64
	// CriticalMoment names the phase-specific window the match is in, or
	// returns "" when nothing notable is happening.
	CriticalMoment(state *domain.GameState) string
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
