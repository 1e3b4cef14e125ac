package winprob

import (
	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// Dota 2 tuning constants.
const (
	dotaLaningEnd  = 600.0  // 10 minutes
	dotaMidGameEnd = 1800.0 // 30 minutes

	dotaKillWeight  = 0.005
	dotaTowerWeight = 0.025

	dotaSeriesWeight = 0.04

	// Roshan respawn window bounds.
	dotaRoshanMinRespawn = 480.0 // 8 minutes
	dotaRoshanMaxRespawn = 660.0 // 11 minutes

	dotaBuybackThreshold = 2400.0 // 40 minutes

	dotaMinProb = 0.08
	dotaMaxProb = 0.92
)

// Dota prices Dota 2 matches. Buybacks and high-ground defence give Dota
// far more comeback potential than LoL, so leads are discounted and the
// probability clamp is tighter.
type Dota struct{}

// NewDota returns the Dota 2 model.
func NewDota() *Dota { return &Dota{} }

var _ Model = (*Dota)(nil)

// Game returns the title this model prices.
func (m *Dota) Game() domain.Game { return domain.GameDota2 }

// WinProbability combines gold, kill, tower, and series-score leads into a
// team1 win probability, discounted for comeback potential.
func (m *Dota) WinProbability(state *domain.GameState) (float64, float64) {
	base := 0.5

	goldWeight := 0.30
	comeback := 0.60
	switch {
	case state.GameTimeSeconds < dotaLaningEnd:
		goldWeight = 0.10
		comeback = 0.85
	case state.GameTimeSeconds < dotaMidGameEnd:
		goldWeight = 0.20
		comeback = 0.75
	}

	var goldRatio float64
	if total := state.TotalGold(); total > 0 {
		goldRatio = float64(state.GoldLead()) / float64(total)
	}
	goldFactor := clamp(goldRatio*goldWeight*comeback, -0.35, 0.35)

	killFactor := clamp(float64(state.KillLead())*dotaKillWeight, -0.10, 0.10)
	towerFactor := clamp(float64(state.TowerLead())*dotaTowerWeight, -0.15, 0.15)

	var seriesFactor float64
	if state.SeriesFormat > 1 {
		seriesFactor = float64(state.SeriesLead()) * dotaSeriesWeight
	}

	p1 := base + goldFactor + killFactor + towerFactor + seriesFactor

	// Defending high ground is an advantage: discount a lead that has not
	// broken into the base yet, credit a defender that is behind on gold.
	if state.GameTimeSeconds >= dotaMidGameEnd {
		if state.GoldLead() > 0 && state.TowerLead() < 6 {
			p1 *= 0.95
		} else if state.GoldLead() < 0 && state.TowerLead() > -6 {
			p1 *= 1.05
		}
	}

	p1 = clamp(p1, dotaMinProb, dotaMaxProb)
	return p1, 1 - p1
}

// EventImpact estimates the probability swing an event produces for its team.
func (m *Dota) EventImpact(event domain.GameEvent, state *domain.GameState) float64 {
	timeMult := 1.4
	switch {
	case state.GameTimeSeconds < dotaLaningEnd:
		timeMult = 0.6
	case state.GameTimeSeconds < dotaMidGameEnd:
		timeMult = 1.0
	}

	var base float64
	switch event.Type {
	case domain.EventKill, domain.EventTeamWipe:
		kills := event.Count
		if kills <= 0 {
			kills = 1
		}
		base = 0.008 * float64(kills)
		if kills >= 5 {
			base *= 2.0 // team wipe
		}
	case domain.EventTower, domain.EventBarracks:
		towers := event.Count
		if towers <= 0 {
			towers = 1
		}
		base = 0.012 * float64(towers)
		if event.Type == domain.EventBarracks || event.Detail("barracks") != "" {
			base = 0.06
		}
	case domain.EventObjective, domain.EventRoshan:
		switch {
		case event.Value >= 2000 || event.Type == domain.EventRoshan || event.Detail("roshan") != "":
			base = 0.06 // aegis
		case event.Value >= 1000:
			base = 0.03
		default:
			base = 0.015
		}
	case domain.EventGameEnd:
		base = 0.15
	}

	return clamp(base*timeMult, -0.20, 0.20)
}

// CriticalMoment flags timing windows where odds can shift sharply.
func (m *Dota) CriticalMoment(state *domain.GameState) string {
	t := state.GameTimeSeconds

	// Approximate Roshan respawn windows for the first three kills.
	for i := 1.0; i <= 3; i++ {
		if t >= dotaRoshanMinRespawn*i && t <= dotaRoshanMaxRespawn*i {
			return "roshan_window"
		}
	}

	if t >= dotaBuybackThreshold {
		return "buyback_territory"
	}

	if state.TowerLead() >= 8 || state.TowerLead() <= -8 {
		return "mega_creeps_threat"
	}

	if t >= dotaMidGameEnd && abs(state.GoldLead()) >= 8000 {
		return "high_ground_siege"
	}

	if state.GoldLead() <= -15000 && t >= dotaMidGameEnd {
		return "comeback_potential"
	}

	return ""
}
