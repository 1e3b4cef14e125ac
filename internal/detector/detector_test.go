package detector

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/esportsarb/internal/config"
	"github.com/alanyoungcy/esportsarb/internal/domain"
)

func testDetector() *Detector {
	return New(config.Defaults().Trading, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// liveState models a mid-game LoL match where team1 is clearly ahead.
func liveState() *domain.GameState {
	return &domain.GameState{
		MatchID:         "m1",
		Game:            domain.GameLoL,
		Team1:           domain.Team{ID: "t1", Name: "Team Alpha"},
		Team2:           domain.Team{ID: "t2", Name: "Team Beta"},
		GameTimeSeconds: 1200,
		Team1Kills:      10,
		Team2Kills:      5,
		Team1Gold:       35000,
		Team2Gold:       28000,
		Team1Towers:     3,
		Team2Towers:     1,
		Team1WinProb:    0.65,
		Team2WinProb:    0.35,
	}
}

// quotedMarket lags the model: the book still prices team1 at 55%.
func quotedMarket() *domain.Market {
	return &domain.Market{
		MarketID:   "mkt1",
		Question:   "Will Team Alpha beat Team Beta?",
		TokenIDYes: "tok-yes",
		TokenIDNo:  "tok-no",
		Game:       domain.GameLoL,
		Team1Name:  "Team Alpha",
		Team2Name:  "Team Beta",
		IsActive:   true,
		YesPrice:   0.55,
		NoPrice:    0.45,
	}
}

func TestDetectOpportunity_EdgeAboveThreshold(t *testing.T) {
	d := testDetector()

	// Model 0.65 vs market 0.55 = 10% edge on the yes token.
	opp := d.DetectOpportunity(liveState(), quotedMarket())
	require.NotNil(t, opp)

	assert.Equal(t, "mkt1", opp.MarketID)
	assert.Equal(t, "m1", opp.MatchID)
	assert.Equal(t, domain.OrderSideBuy, opp.Side)
	assert.Equal(t, domain.TokenYes, opp.TargetToken)
	assert.Equal(t, "tok-yes", opp.TokenID)
	assert.InDelta(t, 0.65, opp.ModelProb, 1e-9)
	assert.InDelta(t, 0.55, opp.MarketProb, 1e-9)
	assert.InDelta(t, 0.10, opp.Edge, 1e-9)
	assert.Nil(t, opp.TriggeringEvent)
}

func TestDetectOpportunity_AlignedPricesNoSignal(t *testing.T) {
	d := testDetector()
	state := liveState()
	state.Team1WinProb = 0.55
	state.Team2WinProb = 0.45

	assert.Nil(t, d.DetectOpportunity(state, quotedMarket()))
}

func TestDetectOpportunity_UnderpricedTeam2(t *testing.T) {
	d := testDetector()
	state := liveState()
	state.Team1WinProb = 0.35
	state.Team2WinProb = 0.65

	// Team1 is overpriced; the 0.65 - 0.45 gap on the no token fires.
	opp := d.DetectOpportunity(state, quotedMarket())
	require.NotNil(t, opp)

	assert.Equal(t, domain.TokenNo, opp.TargetToken)
	assert.Equal(t, "tok-no", opp.TokenID)
	assert.Equal(t, domain.OrderSideBuy, opp.Side)
	assert.InDelta(t, 0.65, opp.ModelProb, 1e-9)
	assert.InDelta(t, 0.45, opp.MarketProb, 1e-9)
	assert.InDelta(t, 0.20, opp.Edge, 1e-9)
}

func TestDetectOpportunity_TeamOneCheckedFirst(t *testing.T) {
	d := testDetector()
	state := liveState()
	state.Team1WinProb = 0.60
	state.Team2WinProb = 0.40
	market := quotedMarket()
	market.YesPrice = 0.50
	market.NoPrice = 0.30

	// Both directions clear the threshold on this wide book; only the
	// yes side is taken.
	opp := d.DetectOpportunity(state, market)
	require.NotNil(t, opp)
	assert.Equal(t, domain.TokenYes, opp.TargetToken)
}

func TestDetectOpportunity_CooldownSuppressesRepeat(t *testing.T) {
	d := testDetector()

	first := d.DetectOpportunity(liveState(), quotedMarket())
	second := d.DetectOpportunity(liveState(), quotedMarket())

	require.NotNil(t, first)
	assert.Nil(t, second)
	assert.Equal(t, int64(1), d.Metrics().OpportunitiesFound)
}

func TestDetectOpportunity_TokensCoolDownSeparately(t *testing.T) {
	d := testDetector()

	first := d.DetectOpportunity(liveState(), quotedMarket())
	require.NotNil(t, first)
	require.Equal(t, domain.TokenYes, first.TargetToken)

	// The same market flipping to the other direction is a fresh key.
	state := liveState()
	state.Team1WinProb = 0.35
	state.Team2WinProb = 0.65
	second := d.DetectOpportunity(state, quotedMarket())
	require.NotNil(t, second)
	assert.Equal(t, domain.TokenNo, second.TargetToken)
}

func TestDetectOpportunity_NilInputs(t *testing.T) {
	d := testDetector()
	assert.Nil(t, d.DetectOpportunity(nil, quotedMarket()))
	assert.Nil(t, d.DetectOpportunity(liveState(), nil))
}

func TestDetectOpportunity_Expiry(t *testing.T) {
	d := testDetector()

	opp := d.DetectOpportunity(liveState(), quotedMarket())
	require.NotNil(t, opp)

	assert.Equal(t, opp.DetectedAt.Add(5*time.Second), opp.ExpiresAt)
	assert.False(t, opp.Expired(time.Now()))
	assert.True(t, opp.Expired(time.Now().Add(6*time.Second)))
}

func TestDetectEventOpportunity_TeamOneEvent(t *testing.T) {
	d := testDetector()
	event := domain.GameEvent{
		Type:            domain.EventKill,
		Timestamp:       time.Now(),
		GameTimeSeconds: 1200,
		TeamID:          "t1",
		Value:           300,
		Count:           3,
	}

	// A 5% shift the market has not priced: expect yes to move from
	// 0.55 toward 0.60.
	opp := d.DetectEventOpportunity(liveState(), quotedMarket(), event, 0.05)
	require.NotNil(t, opp)

	assert.Equal(t, domain.TokenYes, opp.TargetToken)
	assert.InDelta(t, 0.60, opp.ModelProb, 1e-9)
	assert.InDelta(t, 0.55, opp.MarketProb, 1e-9)
	assert.InDelta(t, 0.05, opp.Edge, 1e-9)
	require.NotNil(t, opp.TriggeringEvent)
	assert.Equal(t, event, *opp.TriggeringEvent)
}

func TestDetectEventOpportunity_TeamTwoEventTargetsNo(t *testing.T) {
	d := testDetector()
	event := domain.GameEvent{Type: domain.EventTower, TeamID: "t2", Count: 1}

	opp := d.DetectEventOpportunity(liveState(), quotedMarket(), event, 0.05)
	require.NotNil(t, opp)

	assert.Equal(t, domain.TokenNo, opp.TargetToken)
	assert.Equal(t, "tok-no", opp.TokenID)
	assert.InDelta(t, 0.50, opp.ModelProb, 1e-9)
	assert.InDelta(t, 0.45, opp.MarketProb, 1e-9)
}

func TestDetectEventOpportunity_ExpectedProbCapped(t *testing.T) {
	d := testDetector()
	event := domain.GameEvent{Type: domain.EventGameEnd, TeamID: "t1"}

	// 0.55 + 0.45 would project past certainty; the cap holds it at 0.95.
	opp := d.DetectEventOpportunity(liveState(), quotedMarket(), event, 0.45)
	require.NotNil(t, opp)
	assert.InDelta(t, 0.95, opp.ModelProb, 1e-9)
	assert.InDelta(t, 0.45, opp.Edge, 1e-9)
}

func TestDetectEventOpportunity_SmallShiftIgnored(t *testing.T) {
	d := testDetector()
	event := domain.GameEvent{Type: domain.EventKill, TeamID: "t1", Count: 1}

	assert.Nil(t, d.DetectEventOpportunity(liveState(), quotedMarket(), event, 0.01))
}

func TestDetectEventOpportunity_SharesCooldownWithModelPath(t *testing.T) {
	d := testDetector()

	first := d.DetectOpportunity(liveState(), quotedMarket())
	require.NotNil(t, first)
	require.Equal(t, domain.TokenYes, first.TargetToken)

	// Same market, same token, inside the window: the event path is
	// suppressed too.
	event := domain.GameEvent{Type: domain.EventKill, TeamID: "t1", Count: 1}
	assert.Nil(t, d.DetectEventOpportunity(liveState(), quotedMarket(), event, 0.05))
}

func TestRecommendedSize_ScalesWithEdge(t *testing.T) {
	d := testDetector()

	// 3% edge: 10.0 * (0.03 / 0.02) = 15.
	small := liveState()
	small.Team1WinProb = 0.58
	small.Team2WinProb = 0.42
	smallMarket := quotedMarket()
	smallMarket.MarketID = "mkt-small"
	oppSmall := d.DetectOpportunity(small, smallMarket)
	require.NotNil(t, oppSmall)
	assert.InDelta(t, 15.0, oppSmall.RecommendedSize, 1e-9)

	// 20% edge: the multiplier caps at 5x base.
	large := liveState()
	large.Team1WinProb = 0.75
	large.Team2WinProb = 0.25
	largeMarket := quotedMarket()
	largeMarket.MarketID = "mkt-large"
	oppLarge := d.DetectOpportunity(large, largeMarket)
	require.NotNil(t, oppLarge)
	assert.InDelta(t, 50.0, oppLarge.RecommendedSize, 1e-9)

	assert.Greater(t, oppLarge.RecommendedSize, oppSmall.RecommendedSize)
}

func TestMaxPrice_AllowsSlippageAboveMarket(t *testing.T) {
	d := testDetector()

	opp := d.DetectOpportunity(liveState(), quotedMarket())
	require.NotNil(t, opp)

	// Buying at up to 0.55 * 1.01.
	assert.InDelta(t, 0.5555, opp.MaxPrice, 1e-9)
	assert.Greater(t, opp.MaxPrice, opp.MarketProb)
	assert.Less(t, opp.MaxPrice, opp.ModelProb)
}

func TestMetrics_CountsFoundAndExecuted(t *testing.T) {
	d := testDetector()

	m := d.Metrics()
	assert.Zero(t, m.OpportunitiesFound)
	assert.Zero(t, m.OpportunitiesExecuted)
	assert.Zero(t, m.ActiveCooldowns)

	require.NotNil(t, d.DetectOpportunity(liveState(), quotedMarket()))
	d.RecordExecution()

	m = d.Metrics()
	assert.Equal(t, int64(1), m.OpportunitiesFound)
	assert.Equal(t, int64(1), m.OpportunitiesExecuted)
	assert.Equal(t, 1, m.ActiveCooldowns)
}

func TestSweepCooldowns_EvictsStaleEntries(t *testing.T) {
	d := testDetector()
	d.cooldowns["stale:yes"] = time.Now().Add(-10 * time.Minute)
	d.cooldowns["fresh:yes"] = time.Now()

	d.SweepCooldowns()

	_, staleKept := d.cooldowns["stale:yes"]
	_, freshKept := d.cooldowns["fresh:yes"]
	assert.False(t, staleKept)
	assert.True(t, freshKept)
	assert.Equal(t, 1, d.Metrics().ActiveCooldowns)
}

func TestOpportunityID_Format(t *testing.T) {
	d := testDetector()

	opp := d.DetectOpportunity(liveState(), quotedMarket())
	require.NotNil(t, opp)

	assert.Regexp(t, `^opp_[0-9a-f]{12}$`, opp.ID)
}
