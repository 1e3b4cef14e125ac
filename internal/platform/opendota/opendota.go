// Package opendota implements the OpenDota live data provider for Dota 2.
// The /live endpoint is free and refreshes every few seconds; an API key
// only raises the rate limits.
package opendota

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

const (
	defaultBaseURL = "https://api.opendota.com/api"
	pollInterval   = 500 * time.Millisecond
)

// Client implements domain.GameFeed over the OpenDota REST API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// New creates an OpenDota client. The API key is optional.
func New(apiKey string, logger *slog.Logger) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.With(slog.String("component", "opendota")),
		done:   make(chan struct{}),
	}
}

// Name implements domain.GameFeed.
func (c *Client) Name() string { return "opendota" }

// Games implements domain.GameFeed.
func (c *Client) Games() []domain.Game {
	return []domain.Game{domain.GameDota2}
}

// liveMatch is the /live wire shape.
type liveMatch struct {
	MatchID           int64    `json:"match_id"`
	ActivateTime      int64    `json:"activate_time"`
	StartTime         int64    `json:"start_time"`
	GameTime          float64  `json:"game_time"`
	RadiantScore      int      `json:"radiant_score"`
	DireScore         int      `json:"dire_score"`
	SeriesType        int      `json:"series_type"`
	RadiantSeriesWins int      `json:"radiant_series_wins"`
	DireSeriesWins    int      `json:"dire_series_wins"`
	RadiantTeam       liveTeam `json:"radiant_team"`
	DireTeam          liveTeam `json:"dire_team"`
	Scoreboard        struct {
		Radiant sideScoreboard `json:"radiant"`
		Dire    sideScoreboard `json:"dire"`
	} `json:"scoreboard"`
}

type liveTeam struct {
	TeamID   int64  `json:"team_id"`
	TeamName string `json:"team_name"`
	Name     string `json:"name"`
	Tag      string `json:"team_tag"`
}

type sideScoreboard struct {
	NetWorth   int `json:"net_worth"`
	TowerKills int `json:"tower_kills"`
}

func (t liveTeam) displayName() string {
	if t.TeamName != "" {
		return t.TeamName
	}
	return t.Name
}

func (t liveTeam) domainTeam(fallbackID string) domain.Team {
	id := fallbackID
	if t.TeamID != 0 {
		id = strconv.FormatInt(t.TeamID, 10)
	}
	name := t.displayName()
	short := t.Tag
	if short == "" {
		short = shortFromName(name)
	}
	return domain.Team{ID: id, Name: name, ShortName: short}
}

// shortFromName upper-cases the first three letters as a stand-in tag.
func shortFromName(name string) string {
	r := []rune(name)
	if len(r) > 3 {
		r = r[:3]
	}
	return strings.ToUpper(string(r))
}

// notable reports whether the match is a pro game that a prediction market
// could list: both sides need a registered team with a real name. Pub and
// placeholder lobbies can never be bound to a market.
func (m liveMatch) notable() bool {
	if domain.GenericTeamName(m.RadiantTeam.displayName()) {
		return false
	}
	if domain.GenericTeamName(m.DireTeam.displayName()) {
		return false
	}
	return m.RadiantTeam.TeamID != 0 && m.DireTeam.TeamID != 0
}

func bestOfFromSeriesType(seriesType int) int {
	switch seriesType {
	case 1:
		return 3
	case 2:
		return 5
	default:
		return 1
	}
}

// LiveMatches lists pro matches currently live.
func (c *Client) LiveMatches(ctx context.Context, game domain.Game) ([]domain.MatchSummary, error) {
	if game != domain.GameDota2 {
		return nil, nil
	}

	live, err := c.fetchLive(ctx)
	if err != nil {
		return nil, err
	}

	var summaries []domain.MatchSummary
	for _, m := range live {
		if !m.notable() {
			continue
		}
		summaries = append(summaries, domain.MatchSummary{
			MatchID: strconv.FormatInt(m.MatchID, 10),
			Game:    domain.GameDota2,
			Team1:   m.RadiantTeam.domainTeam("radiant"),
			Team2:   m.DireTeam.domainTeam("dire"),
			BestOf:  bestOfFromSeriesType(m.SeriesType),
			Source:  "opendota",
		})
		c.logger.Debug("live dota match",
			slog.Int64("match_id", m.MatchID),
			slog.String("team1", m.RadiantTeam.displayName()),
			slog.String("team2", m.DireTeam.displayName()),
		)
	}
	return summaries, nil
}

// MatchState refetches the live list on every call, so a finished match
// resolves to nil as soon as it leaves the endpoint.
func (c *Client) MatchState(ctx context.Context, matchID string) (*domain.GameState, error) {
	live, err := c.fetchLive(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range live {
		if strconv.FormatInt(m.MatchID, 10) == matchID {
			return parseState(m), nil
		}
	}
	return nil, nil
}

// parseState converts a live match into a snapshot, or nil for pub lobbies
// without registered teams.
func parseState(m liveMatch) *domain.GameState {
	if !m.notable() {
		return nil
	}

	radiantGold := m.Scoreboard.Radiant.NetWorth
	direGold := m.Scoreboard.Dire.NetWorth
	if radiantGold == 0 {
		// No scoreboard yet: estimate net worth from the kill score so
		// gold-lead math stays usable.
		radiantGold = 10000 + m.RadiantScore*500
		direGold = 10000 + m.DireScore*500
	}

	gameTime := m.GameTime
	if gameTime == 0 {
		start := m.ActivateTime
		if start == 0 {
			start = m.StartTime
		}
		if start > 0 {
			if age := time.Since(time.Unix(start, 0)).Seconds(); age > 0 {
				gameTime = age
			}
		}
	}

	return &domain.GameState{
		MatchID:          strconv.FormatInt(m.MatchID, 10),
		Game:             domain.GameDota2,
		Team1:            m.RadiantTeam.domainTeam("radiant"),
		Team2:            m.DireTeam.domainTeam("dire"),
		GameNumber:       m.RadiantSeriesWins + m.DireSeriesWins + 1,
		GameTimeSeconds:  gameTime,
		Team1Kills:       m.RadiantScore,
		Team2Kills:       m.DireScore,
		Team1Gold:        radiantGold,
		Team2Gold:        direGold,
		Team1Towers:      m.Scoreboard.Radiant.TowerKills,
		Team2Towers:      m.Scoreboard.Dire.TowerKills,
		Team1SeriesScore: m.RadiantSeriesWins,
		Team2SeriesScore: m.DireSeriesWins,
		SeriesFormat:     bestOfFromSeriesType(m.SeriesType),
		UpdatedAt:        time.Now(),
	}
}

// Subscribe polls the live endpoint and diffs consecutive snapshots into
// events. The channel closes when the match leaves the endpoint.
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

	var last *domain.GameState
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
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
			c.logger.Info("match left live endpoint", slog.String("match_id", matchID))
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

// detectEvents diffs two snapshots into game events. Five or more kills in
// one poll window reads as a team wipe; a large net-worth swing after the
// laning stage points at Roshan.
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
		if diff >= 5 {
			events = append(events, domain.GameEvent{
				Type:            domain.EventTeamWipe,
				Timestamp:       now,
				GameTimeSeconds: cur.GameTimeSeconds,
				TeamID:          team.ID,
				Value:           float64(diff) * 300,
				Count:           diff,
				Details:         map[string]string{"team_name": team.Name},
			})
		}
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
			Value:           float64(diff) * 200,
			Count:           diff,
			Details:         map[string]string{"team_name": team.Name},
		})
	}
	emitTowers(cur.Team1, cur.Team1Towers-old.Team1Towers)
	emitTowers(cur.Team2, cur.Team2Towers-old.Team2Towers)

	swing := cur.GoldLead() - old.GoldLead()
	if swing < 0 {
		swing = -swing
	}
	if swing > 2000 {
		winner := cur.Team1
		if cur.GoldLead() < old.GoldLead() {
			winner = cur.Team2
		}
		typ := domain.EventObjective
		if swing > 3000 && cur.GameTimeSeconds > 600 {
			typ = domain.EventRoshan
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

	// Eight towers down includes a lane of barracks: mega creeps are on
	// the table.
	emitBarracks := func(team domain.Team, oldTowers, newTowers int) {
		if newTowers >= 8 && oldTowers < 8 {
			events = append(events, domain.GameEvent{
				Type:            domain.EventBarracks,
				Timestamp:       now,
				GameTimeSeconds: cur.GameTimeSeconds,
				TeamID:          team.ID,
				Value:           1000,
				Count:           1,
				Details: map[string]string{
					"team_name":          team.Name,
					"mega_creeps_threat": "true",
				},
			})
		}
	}
	emitBarracks(cur.Team1, old.Team1Towers, cur.Team1Towers)
	emitBarracks(cur.Team2, old.Team2Towers, cur.Team2Towers)

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

func (c *Client) fetchLive(ctx context.Context) ([]liveMatch, error) {
	rawURL := c.baseURL + "/live"
	if c.apiKey != "" {
		rawURL += "?" + url.Values{"api_key": {c.apiKey}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("opendota: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opendota: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("opendota: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("opendota: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var live []liveMatch
	if err := json.Unmarshal(body, &live); err != nil {
		return nil, fmt.Errorf("opendota: decode live matches: %w", err)
	}
	return live, nil
}

// Compile-time interface check.
var _ domain.GameFeed = (*Client)(nil)
