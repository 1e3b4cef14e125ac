// Package lolesports implements the official LoL Esports data provider.
// It is the broadcast source itself, so during televised games it is the
// fastest REST feed available for League of Legends.
package lolesports

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

const (
	defaultBaseURL = "https://esports-api.lolesports.com/persisted/gw"
	defaultLiveURL = "https://feed.lolesports.com/livestats/v1"

	// publicAPIKey is the key the lolesports.com website itself ships;
	// the API accepts it without registration.
	publicAPIKey = "0TvQnueqKa5mxJntVWt0w4LpLfEkrV1Ta8rQBb9Z"

	pollInterval = 300 * time.Millisecond

	// scheduleRefreshInterval bounds how long an ended match can linger in
	// the tracked table while a poll loop is the only caller.
	scheduleRefreshInterval = 30 * time.Second
)

// Client implements domain.GameFeed against the persisted-gw schedule API
// and the livestats window feed.
type Client struct {
	apiKey     string
	baseURL    string
	liveURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.RWMutex
	matches map[string]trackedMatch

	done      chan struct{}
	closeOnce sync.Once
}

// trackedMatch is the schedule-side view of a live event, kept between
// polls so window lookups do not need the schedule on every tick.
type trackedMatch struct {
	summary   domain.MatchSummary
	team1Wins int
	team2Wins int
}

// New creates a LoL Esports client. An empty apiKey falls back to the
// public website key.
func New(apiKey string, logger *slog.Logger) *Client {
	if apiKey == "" {
		apiKey = publicAPIKey
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		liveURL: defaultLiveURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:  logger.With(slog.String("component", "lolesports")),
		matches: make(map[string]trackedMatch),
		done:    make(chan struct{}),
	}
}

// Name implements domain.GameFeed.
func (c *Client) Name() string { return "lolesports" }

// Games implements domain.GameFeed.
func (c *Client) Games() []domain.Game {
	return []domain.Game{domain.GameLoL}
}

// scheduleResponse is the getLive wire shape.
type scheduleResponse struct {
	Data struct {
		Schedule struct {
			Events []scheduleEvent `json:"events"`
		} `json:"schedule"`
	} `json:"data"`
}

type scheduleEvent struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	League struct {
		Name string `json:"name"`
	} `json:"league"`
	Match struct {
		Teams []struct {
			Name string `json:"name"`
			Code string `json:"code"`
		} `json:"teams"`
		Strategy struct {
			Count int `json:"count"`
		} `json:"strategy"`
		Games []struct {
			Winner string `json:"winner"`
		} `json:"games"`
	} `json:"match"`
}

// LiveMatches lists in-progress events from the schedule. The tracked-match
// table is replaced wholesale, so an event that has left the schedule stops
// resolving and its subscriptions wind down.
func (c *Client) LiveMatches(ctx context.Context, game domain.Game) ([]domain.MatchSummary, error) {
	if game != domain.GameLoL {
		return nil, nil
	}

	body, err := c.doGet(ctx, c.baseURL+"/getLive", url.Values{"hl": {"en-US"}})
	if err != nil {
		return nil, fmt.Errorf("lolesports: get live: %w", err)
	}

	var resp scheduleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("lolesports: decode live schedule: %w", err)
	}

	fresh := make(map[string]trackedMatch)
	var summaries []domain.MatchSummary
	for _, ev := range resp.Data.Schedule.Events {
		if ev.State != "inProgress" {
			continue
		}
		tm, ok := parseScheduleEvent(ev)
		if !ok {
			continue
		}
		fresh[tm.summary.MatchID] = tm
		summaries = append(summaries, tm.summary)
		c.logger.Debug("live lol match",
			slog.String("match_id", tm.summary.MatchID),
			slog.String("team1", tm.summary.Team1.Name),
			slog.String("team2", tm.summary.Team2.Name),
			slog.String("league", ev.League.Name),
		)
	}

	c.mu.Lock()
	c.matches = fresh
	c.mu.Unlock()

	return summaries, nil
}

// parseScheduleEvent converts a schedule event into a tracked match.
func parseScheduleEvent(ev scheduleEvent) (trackedMatch, bool) {
	teams := ev.Match.Teams
	if ev.ID == "" || len(teams) < 2 {
		return trackedMatch{}, false
	}

	bestOf := ev.Match.Strategy.Count
	if bestOf == 0 {
		bestOf = 1
	}

	team1 := domain.Team{ID: teams[0].Code, Name: teams[0].Name, ShortName: teams[0].Code}
	team2 := domain.Team{ID: teams[1].Code, Name: teams[1].Name, ShortName: teams[1].Code}

	tm := trackedMatch{
		summary: domain.MatchSummary{
			MatchID: ev.ID,
			Game:    domain.GameLoL,
			Team1:   team1,
			Team2:   team2,
			BestOf:  bestOf,
			Source:  "lolesports",
		},
	}
	for _, g := range ev.Match.Games {
		switch g.Winner {
		case team1.ID:
			tm.team1Wins++
		case team2.ID:
			tm.team2Wins++
		}
	}
	return tm, true
}

// MatchState builds a snapshot from the tracked schedule entry plus the
// newest livestats window frame. A match no longer on the live schedule
// resolves to nil.
func (c *Client) MatchState(ctx context.Context, matchID string) (*domain.GameState, error) {
	c.mu.RLock()
	tm, ok := c.matches[matchID]
	c.mu.RUnlock()

	if !ok {
		if _, err := c.LiveMatches(ctx, domain.GameLoL); err != nil {
			return nil, err
		}
		c.mu.RLock()
		tm, ok = c.matches[matchID]
		c.mu.RUnlock()
		if !ok {
			return nil, nil
		}
	}

	win, err := c.liveWindow(ctx, matchID)
	if err != nil {
		// The window feed lags the schedule around game start; a state
		// without frame stats is still a valid snapshot.
		c.logger.Debug("live window unavailable",
			slog.String("match_id", matchID),
			slog.String("error", err.Error()),
		)
		win = nil
	}
	return buildState(tm, win), nil
}

// windowResponse is the livestats window wire shape.
type windowResponse struct {
	Frames []windowFrame `json:"frames"`
}

type windowFrame struct {
	Timestamp string    `json:"rfc460Timestamp"`
	BlueTeam  teamFrame `json:"blueTeam"`
	RedTeam   teamFrame `json:"redTeam"`
}

type teamFrame struct {
	TotalKills int `json:"totalKills"`
	TotalGold  int `json:"totalGold"`
	Towers     int `json:"towers"`
}

func (c *Client) liveWindow(ctx context.Context, matchID string) (*windowResponse, error) {
	body, err := c.doGet(ctx, c.liveURL+"/window/"+url.PathEscape(matchID), nil)
	if err != nil {
		return nil, err
	}
	var win windowResponse
	if err := json.Unmarshal(body, &win); err != nil {
		return nil, fmt.Errorf("decode window: %w", err)
	}
	return &win, nil
}

// buildState merges schedule metadata with the newest window frame.
func buildState(tm trackedMatch, win *windowResponse) *domain.GameState {
	st := &domain.GameState{
		MatchID:          tm.summary.MatchID,
		Game:             domain.GameLoL,
		Team1:            tm.summary.Team1,
		Team2:            tm.summary.Team2,
		GameNumber:       tm.team1Wins + tm.team2Wins + 1,
		Team1SeriesScore: tm.team1Wins,
		Team2SeriesScore: tm.team2Wins,
		SeriesFormat:     tm.summary.BestOf,
		UpdatedAt:        time.Now(),
	}
	if win == nil || len(win.Frames) == 0 {
		return st
	}

	frame := win.Frames[len(win.Frames)-1]
	st.Team1Kills = frame.BlueTeam.TotalKills
	st.Team2Kills = frame.RedTeam.TotalKills
	st.Team1Gold = frame.BlueTeam.TotalGold
	st.Team2Gold = frame.RedTeam.TotalGold
	st.Team1Towers = frame.BlueTeam.Towers
	st.Team2Towers = frame.RedTeam.Towers

	// Window frames carry a wall-clock timestamp, not a match clock; the
	// age of the newest frame stands in for game time.
	if ts, err := time.Parse(time.RFC3339Nano, frame.Timestamp); err == nil {
		if age := time.Since(ts).Seconds(); age > 0 {
			st.GameTimeSeconds = age
		}
	}
	return st
}

// Subscribe polls the match state and diffs consecutive snapshots into
// events. The channel closes when the match leaves the live schedule.
func (c *Client) Subscribe(ctx context.Context, matchID string) (<-chan domain.GameEvent, error) {
	c.logger.Info("subscribing to match", slog.String("match_id", matchID))
	ch := make(chan domain.GameEvent, 16)
	go c.pollMatch(ctx, matchID, ch)
	return ch, nil
}

func (c *Client) pollMatch(ctx context.Context, matchID string, ch chan<- domain.GameEvent) {
	defer close(ch)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	refresh := time.NewTicker(scheduleRefreshInterval)
	defer refresh.Stop()

	var last *domain.GameState
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-refresh.C:
			// Re-sync the schedule so an ended match leaves the tracked
			// table and the next poll winds this loop down.
			if _, err := c.LiveMatches(ctx, domain.GameLoL); err != nil {
				c.logger.Debug("schedule refresh failed",
					slog.String("match_id", matchID),
					slog.String("error", err.Error()),
				)
			}
			continue
		case <-ticker.C:
		}

		state, err := c.MatchState(ctx, matchID)
		if err != nil {
			c.logger.Debug("poll failed",
				slog.String("match_id", matchID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if state == nil {
			c.logger.Info("match left live schedule", slog.String("match_id", matchID))
			return
		}

		if last != nil {
			for _, ev := range detectEvents(last, state) {
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
		last = state
	}
}

// detectEvents diffs two snapshots into game events. Kill and tower counts
// come straight from the frame totals; large gold swings are attributed to
// the objective most likely to grant them.
func detectEvents(old, cur *domain.GameState) []domain.GameEvent {
	var events []domain.GameEvent
	now := time.Now()

	emitKills := func(team domain.Team, diff, total int) {
		if diff <= 0 {
			return
		}
		events = append(events, domain.GameEvent{
			Type:            domain.EventKill,
			Timestamp:       now,
			GameTimeSeconds: cur.GameTimeSeconds,
			TeamID:          team.ID,
			Value:           float64(diff) * 300,
			Count:           diff,
			Details: map[string]string{
				"team_name":   team.Name,
				"total_kills": strconv.Itoa(total),
			},
		})
	}
	emitKills(cur.Team1, cur.Team1Kills-old.Team1Kills, cur.Team1Kills)
	emitKills(cur.Team2, cur.Team2Kills-old.Team2Kills, cur.Team2Kills)

	emitTowers := func(team domain.Team, diff int) {
		if diff <= 0 {
			return
		}
		events = append(events, domain.GameEvent{
			Type:            domain.EventTower,
			Timestamp:       now,
			GameTimeSeconds: cur.GameTimeSeconds,
			TeamID:          team.ID,
			Value:           float64(diff) * 250,
			Count:           diff,
			Details:         map[string]string{"team_name": team.Name},
		})
	}
	emitTowers(cur.Team1, cur.Team1Towers-old.Team1Towers)
	emitTowers(cur.Team2, cur.Team2Towers-old.Team2Towers)

	// A large swing in the gold lead marks a fought objective: baron grants
	// 3k+ to the team, late-game swings of dragon size point at dragon.
	swing := cur.GoldLead() - old.GoldLead()
	if swing < 0 {
		swing = -swing
	}
	if swing > 1500 {
		winner := cur.Team1
		if cur.GoldLead() < old.GoldLead() {
			winner = cur.Team2
		}
		typ := domain.EventObjective
		switch {
		case swing > 3000:
			typ = domain.EventBaron
		case cur.GameTimeSeconds > 1200:
			typ = domain.EventDragon
		}
		events = append(events, domain.GameEvent{
			Type:            typ,
			Timestamp:       now,
			GameTimeSeconds: cur.GameTimeSeconds,
			TeamID:          winner.ID,
			Value:           float64(swing),
			Count:           1,
			Details: map[string]string{
				"team_name":  winner.Name,
				"gold_swing": strconv.Itoa(swing),
			},
		})
	}

	// Nine towers down means an inhibitor is exposed or already gone.
	emitInhibitor := func(team domain.Team, oldTowers, newTowers int) {
		if newTowers >= 9 && oldTowers < 9 {
			events = append(events, domain.GameEvent{
				Type:            domain.EventInhibitor,
				Timestamp:       now,
				GameTimeSeconds: cur.GameTimeSeconds,
				TeamID:          team.ID,
				Value:           500,
				Count:           1,
				Details:         map[string]string{"team_name": team.Name},
			})
		}
	}
	emitInhibitor(cur.Team1, old.Team1Towers, cur.Team1Towers)
	emitInhibitor(cur.Team2, old.Team2Towers, cur.Team2Towers)

	return events
}

// Close stops every poll loop and drops idle connections.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.httpClient.CloseIdleConnections()
	})
	return nil
}

func (c *Client) doGet(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	if len(params) > 0 {
		rawURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// Compile-time interface check.
var _ domain.GameFeed = (*Client)(nil)
