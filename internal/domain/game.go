// Package domain defines the core types and boundary interfaces shared by
// every component of the trading system.
package domain

import "time"

// Game identifies a supported esports title.
type Game string

const (
	GameLoL   Game = "lol"
	GameDota2 Game = "dota2"
)

// Games lists every supported title in a stable order.
var Games = []Game{GameLoL, GameDota2}

// Valid reports whether g is a supported title.
func (g Game) Valid() bool {
	return g == GameLoL || g == GameDota2
}

// Team is the immutable identity of one side of a match.
type Team struct {
	ID        string
	Name      string
	ShortName string
}

// genericTeamNames are placeholder names a feed emits before it has
// resolved real team identities. Matches carrying them can never be bound
// to a market and must be skipped, not retried.
var genericTeamNames = map[string]struct{}{
	"":        {},
	"Unknown": {},
	"Radiant": {},
	"Dire":    {},
	"Team 1":  {},
	"Team 2":  {},
}

// GenericTeamName reports whether name is an unresolved placeholder.
func GenericTeamName(name string) bool {
	_, ok := genericTeamNames[name]
	return ok
}

// GameState is a wholesale snapshot of one live match. It is replaced on
// every poll or stream tick; exactly one producer writes it per match.
type GameState struct {
	MatchID          string
	Game             Game
	Team1            Team
	Team2            Team
	GameNumber       int
	GameTimeSeconds  float64
	Team1Kills       int
	Team2Kills       int
	Team1Gold        int
	Team2Gold        int
	Team1Towers      int
	Team2Towers      int
	Team1SeriesScore int
	Team2SeriesScore int
	SeriesFormat     int // best-of-N: 1, 3 or 5
	Team1WinProb     float64
	Team2WinProb     float64
	UpdatedAt        time.Time
}

// GoldLead returns team1's gold advantage (negative when behind).
func (s GameState) GoldLead() int {
	return s.Team1Gold - s.Team2Gold
}

// KillLead returns team1's kill advantage.
func (s GameState) KillLead() int {
	return s.Team1Kills - s.Team2Kills
}

// TowerLead returns team1's tower advantage.
func (s GameState) TowerLead() int {
	return s.Team1Towers - s.Team2Towers
}

// TotalGold returns the combined gold of both teams.
func (s GameState) TotalGold() int {
	return s.Team1Gold + s.Team2Gold
}

// SeriesLead returns team1's game advantage within the series.
func (s GameState) SeriesLead() int {
	return s.Team1SeriesScore - s.Team2SeriesScore
}

// SeriesDecided reports whether one side has already taken the series.
func (s GameState) SeriesDecided() bool {
	need := s.SeriesFormat/2 + 1
	return s.Team1SeriesScore >= need || s.Team2SeriesScore >= need
}

// HasRealTeams reports whether both team names are resolved.
func (s GameState) HasRealTeams() bool {
	return !GenericTeamName(s.Team1.Name) && !GenericTeamName(s.Team2.Name)
}

// EventType classifies a game event.
type EventType string

const (
	EventKill      EventType = "kill"
	EventTeamWipe  EventType = "team_wipe"
	EventTower     EventType = "tower"
	EventObjective EventType = "objective"
	EventDragon    EventType = "dragon"
	EventBaron     EventType = "baron"
	EventRoshan    EventType = "roshan"
	EventBarracks  EventType = "barracks"
	EventInhibitor EventType = "inhibitor"
	EventGameEnd   EventType = "game_end"
)

// GameEvent is an immutable diff-derived fact about a live match,
// consumed once by the detector.
type GameEvent struct {
	Type            EventType
	Timestamp       time.Time
	GameTimeSeconds float64
	TeamID          string
	Value           float64 // gold-equivalent magnitude
	Count           int     // units behind the event: kills, towers
	Details         map[string]string
}

// Detail returns a free-form detail value, or "" when absent.
func (e GameEvent) Detail(key string) string {
	if e.Details == nil {
		return ""
	}
	return e.Details[key]
}

// MatchSummary is the discovery-time view of a live match, before the
// engine commits to tracking it.
type MatchSummary struct {
	MatchID string
	Game    Game
	Team1   Team
	Team2   Team
	BestOf  int
	Source  string // providing feed
}

// HasRealTeams reports whether both team names are resolved.
func (m MatchSummary) HasRealTeams() bool {
	return !GenericTeamName(m.Team1.Name) && !GenericTeamName(m.Team2.Name)
}
