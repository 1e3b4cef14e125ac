package lolesports

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
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

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New("", discardLogger())
	c.baseURL = srv.URL
	c.liveURL = srv.URL + "/livestats"
	return c
}

const scheduleFixture = `{
	"data": {
		"schedule": {
			"events": [
				{
					"id": "evt-1",
					"state": "inProgress",
					"league": {"name": "LCK"},
					"match": {
						"teams": [
							{"name": "T1", "code": "T1"},
							{"name": "Gen.G", "code": "GEN"}
						],
						"strategy": {"count": 3},
						"games": [
							{"winner": "T1"},
							{"winner": ""}
						]
					}
				},
				{
					"id": "evt-2",
					"state": "completed",
					"league": {"name": "LCK"},
					"match": {
						"teams": [
							{"name": "DK", "code": "DK"},
							{"name": "KT", "code": "KT"}
						],
						"strategy": {"count": 3},
						"games": []
					}
				},
				{
					"id": "evt-3",
					"state": "unstarted",
					"league": {"name": "LEC"},
					"match": {
						"teams": [
							{"name": "G2", "code": "G2"},
							{"name": "FNC", "code": "FNC"}
						],
						"strategy": {"count": 1},
						"games": []
					}
				}
			]
		}
	}
}`

func TestLiveMatches_InProgressOnly(t *testing.T) {
	var gotKey, gotLang string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/getLive", r.URL.Path)
		gotKey = r.Header.Get("x-api-key")
		gotLang = r.URL.Query().Get("hl")
		io.WriteString(w, scheduleFixture)
	})

	matches, err := c.LiveMatches(context.Background(), domain.GameLoL)
	require.NoError(t, err)

	assert.Equal(t, publicAPIKey, gotKey)
	assert.Equal(t, "en-US", gotLang)

	require.Len(t, matches, 1)
	m := matches[0]
	assert.Equal(t, "evt-1", m.MatchID)
	assert.Equal(t, domain.GameLoL, m.Game)
	assert.Equal(t, "T1", m.Team1.Name)
	assert.Equal(t, "GEN", m.Team2.ShortName)
	assert.Equal(t, 3, m.BestOf)
	assert.Equal(t, "lolesports", m.Source)
}

func TestLiveMatches_OtherTitleSkipsFetch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request for a non-LoL title")
	})

	matches, err := c.LiveMatches(context.Background(), domain.GameDota2)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMatchState_MergesNewestWindowFrame(t *testing.T) {
	frameTS := time.Now().Add(-5 * time.Second).UTC().Format(time.RFC3339Nano)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/getLive" {
			io.WriteString(w, scheduleFixture)
			return
		}
		assert.Equal(t, "/livestats/window/evt-1", r.URL.Path)
		fmt.Fprintf(w, `{
			"frames": [
				{
					"rfc460Timestamp": "2026-08-23T10:00:00.000Z",
					"blueTeam": {"totalKills": 1, "totalGold": 16000, "towers": 0},
					"redTeam": {"totalKills": 0, "totalGold": 15500, "towers": 0}
				},
				{
					"rfc460Timestamp": %q,
					"blueTeam": {"totalKills": 7, "totalGold": 32100, "towers": 2},
					"redTeam": {"totalKills": 4, "totalGold": 29800, "towers": 1}
				}
			]
		}`, frameTS)
	})

	state, err := c.MatchState(context.Background(), "evt-1")
	require.NoError(t, err)
	require.NotNil(t, state)

	assert.Equal(t, 7, state.Team1Kills)
	assert.Equal(t, 4, state.Team2Kills)
	assert.Equal(t, 32100, state.Team1Gold)
	assert.Equal(t, 29800, state.Team2Gold)
	assert.Equal(t, 2, state.Team1Towers)
	assert.Equal(t, 1, state.Team2Towers)
	assert.InDelta(t, 5.0, state.GameTimeSeconds, 3.0)

	// One prior game won by T1.
	assert.Equal(t, 2, state.GameNumber)
	assert.Equal(t, 1, state.Team1SeriesScore)
	assert.Equal(t, 0, state.Team2SeriesScore)
	assert.Equal(t, 3, state.SeriesFormat)
}

func TestMatchState_WindowUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/getLive" {
			io.WriteString(w, scheduleFixture)
			return
		}
		http.Error(w, "no window yet", http.StatusNotFound)
	})

	state, err := c.MatchState(context.Background(), "evt-1")
	require.NoError(t, err)
	require.NotNil(t, state)

	// The schedule-side snapshot stands on its own.
	assert.Equal(t, "T1", state.Team1.Name)
	assert.Zero(t, state.Team1Kills)
	assert.Zero(t, state.GameTimeSeconds)
}

func TestMatchState_GoneAfterScheduleRefresh(t *testing.T) {
	var empty atomic.Bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/getLive" {
			http.Error(w, "no window", http.StatusNotFound)
			return
		}
		if empty.Load() {
			io.WriteString(w, `{"data": {"schedule": {"events": []}}}`)
			return
		}
		io.WriteString(w, scheduleFixture)
	})

	state, err := c.MatchState(context.Background(), "evt-1")
	require.NoError(t, err)
	require.NotNil(t, state)

	// The match drops off the schedule; the next refresh evicts it.
	empty.Store(true)
	_, err = c.LiveMatches(context.Background(), domain.GameLoL)
	require.NoError(t, err)

	state, err = c.MatchState(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func lolDiffState(t1kills, t2kills, t1gold, t2gold, t1towers, t2towers int, gameTime float64) *domain.GameState {
	return &domain.GameState{
		MatchID:         "evt-1",
		Game:            domain.GameLoL,
		Team1:           domain.Team{ID: "T1", Name: "T1"},
		Team2:           domain.Team{ID: "GEN", Name: "Gen.G"},
		GameTimeSeconds: gameTime,
		Team1Kills:      t1kills,
		Team2Kills:      t2kills,
		Team1Gold:       t1gold,
		Team2Gold:       t2gold,
		Team1Towers:     t1towers,
		Team2Towers:     t2towers,
	}
}

func TestDetectEvents_Kills(t *testing.T) {
	old := lolDiffState(3, 2, 20000, 20000, 0, 0, 800)
	cur := lolDiffState(5, 2, 20600, 20000, 0, 0, 815)

	events := detectEvents(old, cur)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, domain.EventKill, ev.Type)
	assert.Equal(t, "T1", ev.TeamID)
	assert.Equal(t, 2, ev.Count)
	assert.Equal(t, 600.0, ev.Value)
	assert.Equal(t, "5", ev.Detail("total_kills"))
	assert.Equal(t, 815.0, ev.GameTimeSeconds)
}

func TestDetectEvents_Towers(t *testing.T) {
	old := lolDiffState(5, 5, 25000, 25000, 1, 2, 1000)
	cur := lolDiffState(5, 5, 25000, 25000, 1, 3, 1010)

	events := detectEvents(old, cur)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTower, events[0].Type)
	assert.Equal(t, "GEN", events[0].TeamID)
	assert.Equal(t, 1, events[0].Count)
	assert.Equal(t, 250.0, events[0].Value)
}

func TestDetectEvents_BaronSizedSwing(t *testing.T) {
	old := lolDiffState(10, 8, 30000, 28000, 4, 3, 1400)
	cur := lolDiffState(10, 8, 34000, 28500, 4, 3, 1420)

	events := detectEvents(old, cur)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventBaron, events[0].Type)
	assert.Equal(t, "T1", events[0].TeamID)
	assert.Equal(t, 3500.0, events[0].Value)
	assert.Equal(t, "3500", events[0].Detail("gold_swing"))
}

func TestDetectEvents_LateSwingIsDragon(t *testing.T) {
	old := lolDiffState(10, 10, 20000, 20000, 2, 2, 1500)
	cur := lolDiffState(10, 10, 22000, 20000, 2, 2, 1520)

	events := detectEvents(old, cur)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventDragon, events[0].Type)
	assert.Equal(t, 2000.0, events[0].Value)
}

func TestDetectEvents_EarlySwingIsObjective(t *testing.T) {
	old := lolDiffState(4, 4, 15000, 15000, 0, 0, 900)
	cur := lolDiffState(4, 4, 15000, 17000, 0, 0, 915)

	events := detectEvents(old, cur)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventObjective, events[0].Type)
	assert.Equal(t, "GEN", events[0].TeamID, "swing toward team2 is attributed to team2")
}

func TestDetectEvents_NinthTowerMarksInhibitor(t *testing.T) {
	old := lolDiffState(15, 9, 45000, 38000, 8, 3, 1900)
	cur := lolDiffState(15, 9, 45000, 38000, 9, 3, 1910)

	events := detectEvents(old, cur)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventTower, events[0].Type)
	assert.Equal(t, domain.EventInhibitor, events[1].Type)
	assert.Equal(t, "T1", events[1].TeamID)
	assert.Equal(t, 500.0, events[1].Value)
}

func TestDetectEvents_NoChanges(t *testing.T) {
	old := lolDiffState(5, 5, 20000, 21000, 2, 2, 1000)
	cur := lolDiffState(5, 5, 20000, 21000, 2, 2, 1000)

	assert.Empty(t, detectEvents(old, cur))
}

func TestSubscribe_EmitsDiffsAndClosesWhenMatchEnds(t *testing.T) {
	var windowCalls atomic.Int32
	var empty atomic.Bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/getLive" {
			if empty.Load() {
				io.WriteString(w, `{"data": {"schedule": {"events": []}}}`)
			} else {
				io.WriteString(w, scheduleFixture)
			}
			return
		}
		if !strings.HasPrefix(r.URL.Path, "/livestats/window/") {
			http.NotFound(w, r)
			return
		}
		kills := 2
		if windowCalls.Add(1) > 1 {
			kills = 4
		}
		fmt.Fprintf(w, `{
			"frames": [{
				"rfc460Timestamp": "2026-08-23T10:00:00.000Z",
				"blueTeam": {"totalKills": %d, "totalGold": 20000, "towers": 0},
				"redTeam": {"totalKills": 1, "totalGold": 19000, "towers": 0}
			}]
		}`, kills)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ch, err := c.Subscribe(ctx, "evt-1")
	require.NoError(t, err)

	select {
	case ev, ok := <-ch:
		require.True(t, ok)
		assert.Equal(t, domain.EventKill, ev.Type)
		assert.Equal(t, 2, ev.Count)
		assert.Equal(t, "T1", ev.TeamID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for kill event")
	}

	// Simulate the periodic schedule refresh finding the match gone.
	empty.Store(true)
	_, err = c.LiveMatches(context.Background(), domain.GameLoL)
	require.NoError(t, err)

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should close once the match is gone")
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed after match ended")
	}
}

func TestClose_StopsPolling(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/getLive" {
			io.WriteString(w, scheduleFixture)
			return
		}
		http.NotFound(w, r)
	})

	ch, err := c.Subscribe(context.Background(), "evt-1")
	require.NoError(t, err)
	require.NoError(t, c.Close())

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed after Close")
	}
}
