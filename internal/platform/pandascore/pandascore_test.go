package pandascore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, limiter domain.RateLimiter, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New("test-key", limiter, discardLogger())
	require.NotNil(t, c)
	c.baseURL = srv.URL
	return c
}

type countingLimiter struct {
	waits atomic.Int32
}

func (l *countingLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return true, nil
}

func (l *countingLimiter) Wait(ctx context.Context, key string) error {
	l.waits.Add(1)
	return nil
}

const runningFixture = `[
	{
		"id": 1001,
		"number_of_games": 5,
		"opponents": [
			{"opponent": {"id": 126061, "name": "T1", "acronym": "T1"}},
			{"opponent": {"id": 126062, "name": "Gen.G", "acronym": "GEN"}}
		]
	},
	{
		"id": 1002,
		"number_of_games": 3,
		"opponents": [
			{"opponent": {"id": 126063, "name": "Hanwha Life", "acronym": "HLE"}}
		]
	}
]`

const dotaDetailFixture = `{
	"id": 7777,
	"number_of_games": 3,
	"opponents": [
		{"opponent": {"id": 11, "name": "Team Spirit", "acronym": "TS"}},
		{"opponent": {"id": 22, "name": "BetBoom Team", "acronym": "BB"}}
	],
	"results": [
		{"team_id": 11, "score": 1},
		{"team_id": 22, "score": 0}
	],
	"games": [
		{"status": "finished", "length": 2100},
		{
			"status": "running",
			"length": 840,
			"teams": [
				{"kills": 14, "gold_earned": 26000, "tower_kills": 4},
				{"kills": 9, "gold_earned": 23500, "tower_kills": 2}
			]
		}
	]
}`

func TestNew_DisabledWithoutAPIKey(t *testing.T) {
	assert.Nil(t, New("", nil, discardLogger()))
	assert.Nil(t, New("   ", nil, discardLogger()))
}

func TestLiveMatches_ParsesRunning(t *testing.T) {
	limiter := &countingLimiter{}
	c := newTestClient(t, limiter, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/lol/matches/running", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("per_page"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		io.WriteString(w, runningFixture)
	})

	matches, err := c.LiveMatches(context.Background(), domain.GameLoL)
	require.NoError(t, err)

	// The match with a TBD opponent slot is skipped.
	require.Len(t, matches, 1)
	m := matches[0]
	assert.Equal(t, "1001", m.MatchID)
	assert.Equal(t, domain.GameLoL, m.Game)
	assert.Equal(t, "126061", m.Team1.ID)
	assert.Equal(t, "Gen.G", m.Team2.Name)
	assert.Equal(t, "GEN", m.Team2.ShortName)
	assert.Equal(t, 5, m.BestOf)
	assert.Equal(t, "pandascore", m.Source)

	assert.Equal(t, int32(1), limiter.waits.Load(), "one request, one wait on the budget")
}

func TestLiveMatches_UnknownTitleSkipsFetch(t *testing.T) {
	c := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request for an unsupported title")
	})

	matches, err := c.LiveMatches(context.Background(), domain.Game("cs2"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMatchState_ProbesTitlesInOrder(t *testing.T) {
	c := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/lol/matches/7777":
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error":"not found"}`)
		case "/dota2/matches/7777":
			io.WriteString(w, dotaDetailFixture)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	state, err := c.MatchState(context.Background(), "7777")
	require.NoError(t, err)
	require.NotNil(t, state)

	assert.Equal(t, domain.GameDota2, state.Game)
	assert.Equal(t, "Team Spirit", state.Team1.Name)
	assert.Equal(t, 2, state.GameNumber, "second game is the running one")
	assert.Equal(t, 14, state.Team1Kills)
	assert.Equal(t, 9, state.Team2Kills)
	assert.Equal(t, 26000, state.Team1Gold)
	assert.Equal(t, 23500, state.Team2Gold)
	assert.Equal(t, 4, state.Team1Towers)
	assert.Equal(t, 2, state.Team2Towers)
	assert.Equal(t, 840.0, state.GameTimeSeconds)
	assert.Equal(t, 1, state.Team1SeriesScore)
	assert.Equal(t, 0, state.Team2SeriesScore)
	assert.Equal(t, 3, state.SeriesFormat)
}

func TestMatchState_FreeTierFallsBackToRunning(t *testing.T) {
	c := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/lol/matches/1001":
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, `{"error":"forbidden"}`)
		case "/lol/matches/running":
			io.WriteString(w, runningFixture)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	state, err := c.MatchState(context.Background(), "1001")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, domain.GameLoL, state.Game)
	assert.Equal(t, "T1", state.Team1.Name)
	assert.Equal(t, 5, state.SeriesFormat)
}

func TestMatchState_GoneEverywhere(t *testing.T) {
	c := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"not found"}`)
	})

	state, err := c.MatchState(context.Background(), "424242")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestParseState_SeriesScoresByTeamID(t *testing.T) {
	// Results arrive in the reverse of opponent order; the team id wins.
	var m wireMatch
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": 9000,
		"number_of_games": 5,
		"opponents": [
			{"opponent": {"id": 1, "name": "T1"}},
			{"opponent": {"id": 2, "name": "Gen.G"}}
		],
		"results": [
			{"team_id": 2, "score": 1},
			{"team_id": 1, "score": 2}
		]
	}`), &m))

	state := parseState(m, domain.GameLoL)
	require.NotNil(t, state)
	assert.Equal(t, 2, state.Team1SeriesScore)
	assert.Equal(t, 1, state.Team2SeriesScore)
	assert.Equal(t, 4, state.GameNumber, "three games played, fourth underway")
}

func TestParseState_GameTimeFromBeginAt(t *testing.T) {
	beginAt := time.Now().Add(-900 * time.Second).UTC().Format(time.RFC3339)
	var m wireMatch
	require.NoError(t, json.Unmarshal([]byte(fmt.Sprintf(`{
		"id": 9001,
		"opponents": [
			{"opponent": {"id": 1, "name": "T1"}},
			{"opponent": {"id": 2, "name": "Gen.G"}}
		],
		"games": [{"status": "running", "length": 0, "begin_at": %q}]
	}`, beginAt)), &m))

	state := parseState(m, domain.GameLoL)
	require.NotNil(t, state)
	assert.InDelta(t, 900.0, state.GameTimeSeconds, 5.0)
}

func TestParseState_TBDOpponentIsNil(t *testing.T) {
	var m wireMatch
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": 9002,
		"opponents": [{"opponent": {"id": 1, "name": "T1"}}]
	}`), &m))

	assert.Nil(t, parseState(m, domain.GameLoL))
}

func psState(t1kills, t2kills, t1gold, t2gold, t1towers, t2towers, t1series, t2series int) *domain.GameState {
	return &domain.GameState{
		MatchID:          "7777",
		Game:             domain.GameLoL,
		Team1:            domain.Team{ID: "101", Name: "T1"},
		Team2:            domain.Team{ID: "102", Name: "Gen.G"},
		GameTimeSeconds:  1000,
		Team1Kills:       t1kills,
		Team2Kills:       t2kills,
		Team1Gold:        t1gold,
		Team2Gold:        t2gold,
		Team1Towers:      t1towers,
		Team2Towers:      t2towers,
		Team1SeriesScore: t1series,
		Team2SeriesScore: t2series,
	}
}

func TestDetectEvents_KillsAndTowers(t *testing.T) {
	old := psState(3, 2, 20000, 19000, 1, 0, 0, 0)
	cur := psState(5, 2, 20000, 19000, 2, 0, 0, 0)

	events := detectEvents(old, cur)
	require.Len(t, events, 2)

	assert.Equal(t, domain.EventKill, events[0].Type)
	assert.Equal(t, "101", events[0].TeamID)
	assert.Equal(t, 2, events[0].Count)
	assert.Equal(t, 600.0, events[0].Value)
	assert.Equal(t, "5", events[0].Detail("total_kills"))

	assert.Equal(t, domain.EventTower, events[1].Type)
	assert.Equal(t, 250.0, events[1].Value)
}

func TestDetectEvents_GoldSwingObjective(t *testing.T) {
	old := psState(5, 5, 20000, 20000, 1, 1, 0, 0)
	cur := psState(5, 5, 21600, 20000, 1, 1, 0, 0)

	events := detectEvents(old, cur)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventObjective, events[0].Type)
	assert.Equal(t, "101", events[0].TeamID)
	assert.Equal(t, 1600.0, events[0].Value)
	assert.Equal(t, "1600", events[0].Detail("gold_swing"))
}

func TestDetectEvents_TenTowerLeadSignalsExit(t *testing.T) {
	old := psState(20, 5, 50000, 35000, 9, 0, 0, 0)
	cur := psState(20, 5, 50000, 35000, 10, 0, 0, 0)

	events := detectEvents(old, cur)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventTower, events[0].Type)

	end := events[1]
	assert.Equal(t, domain.EventGameEnd, end.Type)
	assert.Equal(t, "101", end.TeamID)
	assert.Equal(t, "10", end.Detail("tower_lead"))
	assert.Equal(t, "true", end.Detail("should_exit"))
}

func TestDetectEvents_SeriesScoreChangeEndsGame(t *testing.T) {
	old := psState(10, 12, 30000, 33000, 3, 5, 1, 0)
	cur := psState(10, 12, 30000, 33000, 3, 5, 1, 1)

	events := detectEvents(old, cur)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventGameEnd, events[0].Type)
	assert.Equal(t, "102", events[0].TeamID)
	assert.Equal(t, "Gen.G", events[0].Detail("winner"))
	assert.Equal(t, "1-1", events[0].Detail("series_score"))
}

const lolDetailTemplate = `{
	"id": 5555,
	"number_of_games": 1,
	"opponents": [
		{"opponent": {"id": 101, "name": "T1", "acronym": "T1"}},
		{"opponent": {"id": 102, "name": "Gen.G", "acronym": "GEN"}}
	],
	"games": [
		{
			"status": "running",
			"length": 600,
			"teams": [
				{"kills": %d, "gold_earned": 18000, "tower_kills": 1},
				{"kills": 2, "gold_earned": 16500, "tower_kills": 0}
			]
		}
	]
}`

func TestSubscribe_EmitsKillsThenCloses(t *testing.T) {
	var calls atomic.Int32
	var gone atomic.Bool
	c := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if gone.Load() || r.URL.Path != "/lol/matches/5555" {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error":"not found"}`)
			return
		}
		kills := 3
		if calls.Add(1) > 1 {
			kills = 5
		}
		fmt.Fprintf(w, lolDetailTemplate, kills)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ch, err := c.Subscribe(ctx, "5555")
	require.NoError(t, err)

	select {
	case ev, ok := <-ch:
		require.True(t, ok)
		assert.Equal(t, domain.EventKill, ev.Type)
		assert.Equal(t, 2, ev.Count)
		assert.Equal(t, "101", ev.TeamID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for kill event")
	}

	gone.Store(true)
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should close once the match is gone")
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed after match ended")
	}
}
