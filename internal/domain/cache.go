package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest outcome-token prices.
type PriceCache interface {
	SetPrice(ctx context.Context, tokenID string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, tokenID string) (float64, time.Time, error)
	GetPrices(ctx context.Context, tokenIDs []string) (map[string]float64, error)
}

// MarketCache holds the discovered market set between refreshes.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, id string) (Market, error)
	ListActive(ctx context.Context, game Game) ([]Market, error)
	Invalidate(ctx context.Context, id string) error
}

// GameStateCache holds the latest snapshot per tracked match.
type GameStateCache interface {
	SetState(ctx context.Context, state GameState) error
	GetState(ctx context.Context, matchID string) (GameState, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking; live trading acquires a
// leader lock so at most one decision-maker process runs.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus publishes engine events (opportunities, position changes,
// closed trades) for out-of-process observers such as the dashboard
// socket.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// StreamMessage is one durable signal-bus entry together with its stream
// position, used to replay recent signals to late subscribers.
type StreamMessage struct {
	ID      string
	Payload []byte
}
