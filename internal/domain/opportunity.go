package domain

import "time"

// Opportunity is a detected, time-boxed trading signal. It is immutable
// after creation: either the executor consumes it before ExpiresAt or it
// is discarded. Edge is always reported non-negative; TargetToken encodes
// the direction.
type Opportunity struct {
	ID              string
	MarketID        string
	MatchID         string
	Game            Game
	Question        string
	TokenID         string
	TargetToken     TokenType
	Side            OrderSide
	ModelProb       float64
	MarketProb      float64
	Edge            float64
	RecommendedSize float64
	MaxPrice        float64
	DetectedAt      time.Time
	ExpiresAt       time.Time
	TriggeringEvent *GameEvent
}

// Expired reports whether the signal is past its execution horizon.
func (o Opportunity) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// DedupKey identifies the market/direction pair for cooldown suppression.
func (o Opportunity) DedupKey() string {
	return o.MarketID + ":" + string(o.TargetToken)
}
