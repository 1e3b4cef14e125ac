package winprob

import (
	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// League of Legends tuning constants.
const (
	lolEarlyGameEnd = 900.0  // 15 minutes
	lolMidGameEnd   = 1800.0 // 30 minutes

	lolEarlyGoldWeight = 0.15
	lolMidGoldWeight   = 0.25
	lolLateGoldWeight  = 0.35

	lolKillWeight  = 0.008
	lolTowerWeight = 0.03

	lolSeriesWeight = 0.05

	lolMinProb = 0.05
	lolMaxProb = 0.95
)

// LoL prices League of Legends matches. Gold leads snowball harder than in
// Dota, so the gold factor is amplified and the probability clamp is wider.
type LoL struct{}

// NewLoL returns the League of Legends model.
func NewLoL() *LoL { return &LoL{} }

var _ Model = (*LoL)(nil)

// Game returns the title this model prices.
func (m *LoL) Game() domain.Game { return domain.GameLoL }

// WinProbability combines gold, kill, tower, and series-score leads into a
// team1 win probability, weighted by game phase.
func (m *LoL) WinProbability(state *domain.GameState) (float64, float64) {
	base := 0.5

	goldWeight := lolLateGoldWeight
	switch {
	case state.GameTimeSeconds < lolEarlyGameEnd:
		goldWeight = lolEarlyGoldWeight
	case state.GameTimeSeconds < lolMidGameEnd:
		goldWeight = lolMidGoldWeight
	}

	// At a 10k gold lead this contributes roughly a 0.25 advantage.
	var goldFactor float64
	if total := state.TotalGold(); total > 0 {
		goldFactor = float64(state.GoldLead()) / float64(total) * 2
	}
	goldFactor = clamp(goldFactor*goldWeight/0.25, -0.4, 0.4)

	killFactor := clamp(float64(state.KillLead())*lolKillWeight, -0.15, 0.15)
	towerFactor := clamp(float64(state.TowerLead())*lolTowerWeight, -0.2, 0.2)

	// Series momentum only matters while the series is still live.
	var seriesFactor float64
	if state.SeriesFormat > 1 && !state.SeriesDecided() {
		seriesFactor = float64(state.SeriesLead()) * lolSeriesWeight
	}

	p1 := clamp(base+goldFactor+killFactor+towerFactor+seriesFactor, lolMinProb, lolMaxProb)
	return p1, 1 - p1
}

// EventImpact estimates the probability swing an event produces for its team.
// Late-game events are worth more than identical early-game ones.
func (m *LoL) EventImpact(event domain.GameEvent, state *domain.GameState) float64 {
	timeMult := 1.3
	switch {
	case state.GameTimeSeconds < lolEarlyGameEnd:
		timeMult = 0.7
	case state.GameTimeSeconds < lolMidGameEnd:
		timeMult = 1.0
	}

	var base float64
	switch event.Type {
	case domain.EventKill:
		kills := event.Count
		if kills <= 0 {
			kills = 1
		}
		base = 0.01 * float64(kills)
		if kills >= 5 {
			base *= 1.5 // ace
		}
	case domain.EventTower:
		towers := event.Count
		if towers <= 0 {
			towers = 1
		}
		base = 0.015 * float64(towers)
	case domain.EventObjective, domain.EventDragon, domain.EventBaron:
		switch {
		case event.Value >= 3000:
			base = 0.08 // soul point or elder-scale objective
		case event.Value >= 1500:
			base = 0.05 // baron
		case event.Value >= 800:
			base = 0.025 // dragon
		default:
			base = 0.015 // herald or other
		}
	case domain.EventInhibitor:
		base = 0.06
	case domain.EventGameEnd:
		base = 0.15
	}

	return clamp(base*timeMult, -0.25, 0.25)
}

// CriticalMoment flags timing windows where odds can shift sharply.
func (m *LoL) CriticalMoment(state *domain.GameState) string {
	t := state.GameTimeSeconds

	// Baron spawns at 20 minutes.
	if t >= 1180 && t <= 1260 {
		return "baron_spawn_soon"
	}

	if t >= 2100 {
		return "elder_dragon_potential"
	}

	// One fight can end a 40+ minute game.
	if t >= 2400 && abs(state.GoldLead()) < 3000 {
		return "close_late_game"
	}

	if state.GoldLead() >= 10000 && state.TowerLead() >= 3 {
		return "dominant_position"
	}
	if state.GoldLead() <= -10000 && state.TowerLead() <= -3 {
		return "desperate_position"
	}

	return ""
}

// abs returns the absolute value of an int.
func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
