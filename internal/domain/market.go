package domain

import "time"

// TokenType names one of the two outcome tokens of a binary market.
type TokenType string

const (
	TokenYes TokenType = "yes"
	TokenNo  TokenType = "no"
)

// Opposite returns the other outcome token.
func (t TokenType) Opposite() TokenType {
	if t == TokenYes {
		return TokenNo
	}
	return TokenYes
}

// Market represents one binary-outcome prediction market tied to a match.
// YesPrice and NoPrice are refreshed on the discovery cadence and again on
// every processed event.
type Market struct {
	MarketID    string
	ConditionID string
	Question    string
	TokenIDYes  string
	TokenIDNo   string
	Game        Game
	Team1Name   string
	Team2Name   string
	MatchID     string // set once the matcher binds a live match
	IsActive    bool
	YesPrice    float64
	NoPrice     float64
	Volume      float64
	UpdatedAt   time.Time
}

// TokenID resolves an outcome token to its venue identifier.
func (m Market) TokenID(t TokenType) string {
	if t == TokenYes {
		return m.TokenIDYes
	}
	return m.TokenIDNo
}

// Price returns the quoted price of an outcome token.
func (m Market) Price(t TokenType) float64 {
	if t == TokenYes {
		return m.YesPrice
	}
	return m.NoPrice
}

// Tradable reports whether the market carries everything needed to trade
// it: both token identifiers and an active book.
func (m Market) Tradable() bool {
	return m.IsActive && m.TokenIDYes != "" && m.TokenIDNo != ""
}
