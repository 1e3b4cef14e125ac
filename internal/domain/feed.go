package domain

import "context"

// GameFeed is the contract every live-data provider implements. Providers
// are interchangeable; the engine selects among them by a priority list
// and must keep working when any subset is unavailable.
type GameFeed interface {
	// Name identifies the provider in logs and match summaries.
	Name() string

	// Games lists the titles this provider covers.
	Games() []Game

	// LiveMatches returns currently running matches for one title.
	LiveMatches(ctx context.Context, game Game) ([]MatchSummary, error)

	// MatchState fetches the current snapshot of a tracked match, with
	// win probabilities already filled in. A nil state with nil error
	// means the match is over or unknown.
	MatchState(ctx context.Context, matchID string) (*GameState, error)

	// Subscribe opens the event stream for a match. The channel is
	// closed when the match ends, the provider drops, or ctx is
	// cancelled; the stream cannot be restarted.
	Subscribe(ctx context.Context, matchID string) (<-chan GameEvent, error)

	// Close releases provider resources.
	Close() error
}
