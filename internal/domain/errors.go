package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrMarketInactive      = errors.New("market inactive")
	ErrOpportunityExpired  = errors.New("opportunity expired")
	ErrEdgeBelowThreshold  = errors.New("edge below threshold")
	ErrRiskLimitExceeded   = errors.New("risk limit exceeded")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrGenericTeamNames    = errors.New("unresolved team names")
	ErrNoMatch             = errors.New("no market match")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrLockHeld            = errors.New("lock already held")
	ErrWSDisconnect        = errors.New("websocket disconnected")
)
