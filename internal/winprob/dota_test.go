package winprob

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

func dotaState(gameTime float64) *domain.GameState {
	return &domain.GameState{
		MatchID:         "match-2",
		Game:            domain.GameDota2,
		Team1:           domain.Team{ID: "d1", Name: "Team Spirit", ShortName: "TS"},
		Team2:           domain.Team{ID: "d2", Name: "OG", ShortName: "OG"},
		GameNumber:      1,
		GameTimeSeconds: gameTime,
	}
}

func TestDotaWinProbability_EvenGame(t *testing.T) {
	st := dotaState(0)
	st.Team1Gold, st.Team2Gold = 20000, 20000

	p1, p2 := NewDota().WinProbability(st)

	assert.InDelta(t, 0.5, p1, 0.001)
	assert.InDelta(t, 0.5, p2, 0.001)
	assert.InDelta(t, 1.0, p1+p2, 1e-9)
}

func TestDotaWinProbability_MoreComebackPotentialThanLoL(t *testing.T) {
	// Identical 10k gold lead at the 30 minute mark.
	lol := lolState(1800)
	lol.Team1Gold, lol.Team2Gold = 40000, 30000
	p1LoL, _ := NewLoL().WinProbability(lol)

	dota := dotaState(1800)
	dota.Team1Gold, dota.Team2Gold = 40000, 30000
	p1Dota, _ := NewDota().WinProbability(dota)

	assert.Less(t, p1Dota, p1LoL)
	// Comeback damper plus the unbroken high ground keeps this near even:
	// (0.5 + 1/7*0.30*0.60) * 0.95 = 0.4994
	assert.InDelta(t, 0.4994, p1Dota, 0.001)
}

func TestDotaWinProbability_HighGroundDamper(t *testing.T) {
	m := NewDota()

	// Leading on gold without breaking high ground is discounted.
	ahead := dotaState(2000)
	ahead.Team1Gold, ahead.Team2Gold = 40000, 30000
	ahead.Team1Towers, ahead.Team2Towers = 2, 2
	p1, _ := m.WinProbability(ahead)
	assert.InDelta(t, 0.4994, p1, 0.001)

	// Trailing while still holding high ground is credited.
	behind := dotaState(2000)
	behind.Team1Gold, behind.Team2Gold = 30000, 40000
	behind.Team1Towers, behind.Team2Towers = 2, 2
	p1, _ = m.WinProbability(behind)
	// (0.5 - 1/7*0.18) * 1.05 = 0.498
	assert.InDelta(t, 0.498, p1, 0.001)
}

func TestDotaWinProbability_Clamped(t *testing.T) {
	st := dotaState(2000)
	st.Team1Gold, st.Team2Gold = 50000, 0
	st.Team1Kills, st.Team2Kills = 30, 0
	st.Team1Towers, st.Team2Towers = 10, 0
	st.SeriesFormat = 5
	st.Team1SeriesScore, st.Team2SeriesScore = 2, 0

	p1, p2 := NewDota().WinProbability(st)

	// 0.5 + 0.18 + 0.10 + 0.15 + 0.08 = 1.01 before the clamp
	assert.InDelta(t, 0.92, p1, 1e-9)
	assert.InDelta(t, 0.08, p2, 1e-9)
}

func TestDotaEventImpact_TeamWipe(t *testing.T) {
	st := dotaState(1000) // mid game, multiplier 1.0
	ev := domain.GameEvent{Type: domain.EventTeamWipe, TeamID: "d1", Count: 5}

	// 0.008 * 5 * 2.0 = 0.08
	assert.InDelta(t, 0.08, NewDota().EventImpact(ev, st), 1e-9)
}

func TestDotaEventImpact_KillDuringLaning(t *testing.T) {
	st := dotaState(300) // laning, multiplier 0.6
	ev := domain.GameEvent{Type: domain.EventKill, TeamID: "d1", Count: 1}

	assert.InDelta(t, 0.0048, NewDota().EventImpact(ev, st), 1e-9)
}

func TestDotaEventImpact_Barracks(t *testing.T) {
	st := dotaState(2000) // late game, multiplier 1.4
	ev := domain.GameEvent{Type: domain.EventBarracks, TeamID: "d1", Count: 1}

	// barracks override 0.06 * 1.4 = 0.084
	assert.InDelta(t, 0.084, NewDota().EventImpact(ev, st), 1e-9)
}

func TestDotaEventImpact_Roshan(t *testing.T) {
	st := dotaState(1000)
	ev := domain.GameEvent{Type: domain.EventRoshan, TeamID: "d2"}

	assert.InDelta(t, 0.06, NewDota().EventImpact(ev, st), 1e-9)
}

func TestDotaEventImpact_ObjectiveByGoldValue(t *testing.T) {
	m := NewDota()
	st := dotaState(1000)

	big := domain.GameEvent{Type: domain.EventObjective, TeamID: "d1", Value: 2500}
	mid := domain.GameEvent{Type: domain.EventObjective, TeamID: "d1", Value: 1200}
	small := domain.GameEvent{Type: domain.EventObjective, TeamID: "d1", Value: 500}

	assert.InDelta(t, 0.06, m.EventImpact(big, st), 1e-9)
	assert.InDelta(t, 0.03, m.EventImpact(mid, st), 1e-9)
	assert.InDelta(t, 0.015, m.EventImpact(small, st), 1e-9)
}

func TestDotaEventImpact_GameEndHitsClamp(t *testing.T) {
	st := dotaState(2000) // late game, multiplier 1.4
	ev := domain.GameEvent{Type: domain.EventGameEnd, TeamID: "d1"}

	// 0.15 * 1.4 = 0.21, clamped to 0.20
	assert.InDelta(t, 0.20, NewDota().EventImpact(ev, st), 1e-9)
}

func TestDotaCriticalMoment_RoshanWindows(t *testing.T) {
	m := NewDota()

	assert.Equal(t, "roshan_window", m.CriticalMoment(dotaState(500)))
	assert.Equal(t, "roshan_window", m.CriticalMoment(dotaState(1000)))
	// Between the first and second windows nothing fires.
	assert.Empty(t, m.CriticalMoment(dotaState(700)))
}

func TestDotaCriticalMoment_BuybackTerritory(t *testing.T) {
	assert.Equal(t, "buyback_territory", NewDota().CriticalMoment(dotaState(2500)))
}

func TestDotaCriticalMoment_MegaCreepsThreat(t *testing.T) {
	st := dotaState(700)
	st.Team1Towers, st.Team2Towers = 0, 8

	assert.Equal(t, "mega_creeps_threat", NewDota().CriticalMoment(st))
}

func TestDotaCriticalMoment_HighGroundSiege(t *testing.T) {
	st := dotaState(2000)
	st.Team1Gold, st.Team2Gold = 40000, 30000

	assert.Equal(t, "high_ground_siege", NewDota().CriticalMoment(st))
}
