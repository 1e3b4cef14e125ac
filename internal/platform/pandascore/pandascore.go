// Package pandascore implements the PandaScore esports data provider.
// One API key covers both League and Dota tournaments. Match detail
// endpoints need a paid plan, so state reads fall back to the
// running-matches list when the key is rejected with 403.
package pandascore

import (
	"context"
	"encoding/json"
	"errors"
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
	defaultBaseURL = "https://api.pandascore.co"
	pollInterval   = 250 * time.Millisecond

	// rateLimitKey is the shared budget key. PandaScore allows 1000
	// requests per hour; the limiter holds each process to roughly one
	// request per second across all poll loops.
	rateLimitKey = "pandascore"
)

var gameSlugs = map[domain.Game]string{
	domain.GameLoL:   "lol",
	domain.GameDota2: "dota2",
}

// Client implements domain.GameFeed over the PandaScore REST API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    domain.RateLimiter
	logger     *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// New returns a PandaScore client, or nil when no API key is configured.
// Callers must treat a nil client as an absent provider. The limiter is
// optional; when set, every request waits on the shared budget first.
func New(apiKey string, limiter domain.RateLimiter, logger *slog.Logger) *Client {
	logger = logger.With(slog.String("component", "pandascore"))
	if strings.TrimSpace(apiKey) == "" {
		logger.Warn("pandascore api key not configured, provider disabled")
		return nil
	}
	return &Client{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: limiter,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Name implements domain.GameFeed.
func (c *Client) Name() string { return "pandascore" }

// Games implements domain.GameFeed. The slice order is also the probe
// order MatchState uses when the title of a match is unknown.
func (c *Client) Games() []domain.Game {
	return []domain.Game{domain.GameLoL, domain.GameDota2}
}

// wireMatch is the match shape shared by the list and detail endpoints.
type wireMatch struct {
	ID            int64 `json:"id"`
	NumberOfGames int   `json:"number_of_games"`
	Opponents     []struct {
		Opponent wireTeam `json:"opponent"`
	} `json:"opponents"`
	Results []struct {
		TeamID int64 `json:"team_id"`
		Score  int   `json:"score"`
	} `json:"results"`
	Games []wireGame `json:"games"`
}

type wireTeam struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Acronym string `json:"acronym"`
}

type wireGame struct {
	Status  string  `json:"status"`
	Length  float64 `json:"length"`
	BeginAt string  `json:"begin_at"`
	Teams   []struct {
		Kills      int `json:"kills"`
		GoldEarned int `json:"gold_earned"`
		TowerKills int `json:"tower_kills"`
	} `json:"teams"`
}

func (t wireTeam) domain() domain.Team {
	short := t.Acronym
	if short == "" {
		short = t.Name
	}
	return domain.Team{
		ID:        strconv.FormatInt(t.ID, 10),
		Name:      t.Name,
		ShortName: short,
	}
}

// LiveMatches lists running matches for one title.
func (c *Client) LiveMatches(ctx context.Context, game domain.Game) ([]domain.MatchSummary, error) {
	slug, ok := gameSlugs[game]
	if !ok {
		return nil, nil
	}

	matches, err := c.fetchRunning(ctx, slug)
	if err != nil {
		return nil, err
	}

	var summaries []domain.MatchSummary
	for _, m := range matches {
		if len(m.Opponents) < 2 {
			continue
		}
		bestOf := m.NumberOfGames
		if bestOf == 0 {
			bestOf = 1
		}
		summaries = append(summaries, domain.MatchSummary{
			MatchID: strconv.FormatInt(m.ID, 10),
			Game:    game,
			Team1:   m.Opponents[0].Opponent.domain(),
			Team2:   m.Opponents[1].Opponent.domain(),
			BestOf:  bestOf,
			Source:  "pandascore",
		})
		c.logger.Debug("live match",
			slog.Int64("match_id", m.ID),
			slog.String("game", string(game)),
			slog.String("team1", m.Opponents[0].Opponent.Name),
			slog.String("team2", m.Opponents[1].Opponent.Name),
		)
	}
	return summaries, nil
}

// MatchState fetches the match detail, probing each supported title
// since match ids do not encode the game. A 404 from every title means
// the match is gone.
func (c *Client) MatchState(ctx context.Context, matchID string) (*domain.GameState, error) {
	for _, game := range c.Games() {
		slug := gameSlugs[game]

		var m wireMatch
		err := c.get(ctx, "/"+slug+"/matches/"+url.PathEscape(matchID), nil, &m)
		switch {
		case err == nil:
			return parseState(m, game), nil
		case errors.Is(err, domain.ErrNotFound):
			continue
		case errors.Is(err, domain.ErrUnauthorized):
			// Free tier keys cannot read match detail. The running
			// list carries the same fields at lower resolution.
			state, ferr := c.stateFromRunning(ctx, slug, game, matchID)
			if ferr != nil {
				return nil, ferr
			}
			if state != nil {
				return state, nil
			}
		default:
			return nil, err
		}
	}
	return nil, nil
}

func (c *Client) stateFromRunning(ctx context.Context, slug string, game domain.Game, matchID string) (*domain.GameState, error) {
	matches, err := c.fetchRunning(ctx, slug)
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		if strconv.FormatInt(m.ID, 10) == matchID {
			return parseState(m, game), nil
		}
	}
	return nil, nil
}

// parseState converts a match payload into a snapshot, or nil when an
// opponent slot is still TBD.
func parseState(m wireMatch, game domain.Game) *domain.GameState {
	if len(m.Opponents) < 2 {
		return nil
	}
	team1 := m.Opponents[0].Opponent
	team2 := m.Opponents[1].Opponent
	t1Score, t2Score := seriesScores(m, team1.ID, team2.ID)

	format := m.NumberOfGames
	if format == 0 {
		format = 1
	}

	state := &domain.GameState{
		MatchID:          strconv.FormatInt(m.ID, 10),
		Game:             game,
		Team1:            team1.domain(),
		Team2:            team2.domain(),
		GameNumber:       t1Score + t2Score + 1,
		Team1SeriesScore: t1Score,
		Team2SeriesScore: t2Score,
		SeriesFormat:     format,
		UpdatedAt:        time.Now(),
	}

	for i, g := range m.Games {
		if g.Status != "running" {
			continue
		}
		state.GameNumber = i + 1
		if len(g.Teams) >= 2 {
			state.Team1Kills = g.Teams[0].Kills
			state.Team2Kills = g.Teams[1].Kills
			state.Team1Gold = g.Teams[0].GoldEarned
			state.Team2Gold = g.Teams[1].GoldEarned
			state.Team1Towers = g.Teams[0].TowerKills
			state.Team2Towers = g.Teams[1].TowerKills
		}
		state.GameTimeSeconds = g.Length
		if state.GameTimeSeconds == 0 && g.BeginAt != "" {
			if start, err := time.Parse(time.RFC3339, g.BeginAt); err == nil {
				if age := time.Since(start).Seconds(); age > 0 {
					state.GameTimeSeconds = age
				}
			}
		}
		break
	}
	return state
}

// seriesScores maps per-game results onto the two opponents. The team id
// is authoritative when present; older payloads only guarantee opponent
// order.
func seriesScores(m wireMatch, team1ID, team2ID int64) (int, int) {
	byID := false
	for _, r := range m.Results {
		if r.TeamID != 0 {
			byID = true
			break
		}
	}

	var t1, t2 int
	if byID {
		for _, r := range m.Results {
			switch r.TeamID {
			case team1ID:
				t1 = r.Score
			case team2ID:
				t2 = r.Score
			}
		}
		return t1, t2
	}
	if len(m.Results) > 0 {
		t1 = m.Results[0].Score
	}
	if len(m.Results) > 1 {
		t2 = m.Results[1].Score
	}
	return t1, t2
}

// Subscribe polls the match and diffs consecutive snapshots into events.
// PandaScore has no push transport on the data plans this targets.
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
			c.logger.Info("match no longer running", slog.String("match_id", matchID))
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

// detectEvents diffs two snapshots into game events. Beyond kills,
// towers and gold swings it watches for two resolution signals: a tower
// lead of ten means the map is gone, and a series-score change means the
// game already ended.
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

	swing := cur.GoldLead() - old.GoldLead()
	if swing < 0 {
		swing = -swing
	}
	if swing > 1500 {
		winner := cur.Team1
		if cur.GoldLead() < old.GoldLead() {
			winner = cur.Team2
		}
		events = append(events, domain.GameEvent{
			Type:            domain.EventObjective,
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

	// A tower lead of ten is the whole map: the game is about to resolve
	// and open positions should be flattened before the market reprices.
	curLead := cur.TowerLead()
	oldLead := old.TowerLead()
	if absInt(curLead) >= 10 && absInt(oldLead) < 10 {
		winner := cur.Team1
		if curLead < 0 {
			winner = cur.Team2
		}
		events = append(events, domain.GameEvent{
			Type:            domain.EventGameEnd,
			Timestamp:       now,
			GameTimeSeconds: cur.GameTimeSeconds,
			TeamID:          winner.ID,
			Count:           1,
			Details: map[string]string{
				"team_name":   winner.Name,
				"tower_lead":  strconv.Itoa(curLead),
				"should_exit": "true",
			},
		})
	}

	if cur.Team1SeriesScore != old.Team1SeriesScore || cur.Team2SeriesScore != old.Team2SeriesScore {
		winner := cur.Team1
		if cur.Team2SeriesScore > old.Team2SeriesScore {
			winner = cur.Team2
		}
		events = append(events, domain.GameEvent{
			Type:            domain.EventGameEnd,
			Timestamp:       now,
			GameTimeSeconds: cur.GameTimeSeconds,
			TeamID:          winner.ID,
			Count:           1,
			Details: map[string]string{
				"winner":       winner.Name,
				"series_score": fmt.Sprintf("%d-%d", cur.Team1SeriesScore, cur.Team2SeriesScore),
			},
		})
	}

	return events
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Close stops every poll loop and drops idle connections.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.httpClient.CloseIdleConnections()
	})
	return nil
}

func (c *Client) fetchRunning(ctx context.Context, slug string) ([]wireMatch, error) {
	var matches []wireMatch
	params := url.Values{"per_page": {"50"}}
	if err := c.get(ctx, "/"+slug+"/matches/running", params, &matches); err != nil {
		return nil, err
	}
	return matches, nil
}

// get performs one rate-limited request and decodes the response.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.throttle(ctx); err != nil {
		return err
	}

	rawURL := c.baseURL + path
	if len(params) > 0 {
		rawURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("pandascore: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pandascore: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("pandascore: read response: %w", err)
	}
	if err := checkStatus(resp.StatusCode, body); err != nil {
		return fmt.Errorf("pandascore: %s: %w", path, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("pandascore: decode %s: %w", path, err)
	}
	return nil
}

// throttle waits on the shared request budget. A broken limiter backend
// must not take the feed down with it, so only context cancellation is
// propagated.
func (c *Client) throttle(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx, rateLimitKey); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Debug("rate limiter unavailable", slog.String("error", err.Error()))
	}
	return nil
}

// checkStatus maps HTTP status codes onto domain errors so callers can
// branch on errors.Is.
func checkStatus(statusCode int, body []byte) error {
	if statusCode == http.StatusOK {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

// Compile-time interface check.
var _ domain.GameFeed = (*Client)(nil)
