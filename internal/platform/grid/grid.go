// Package grid implements the GRID.gg live data provider. GRID is the
// official data partner for the major LoL and Dota 2 leagues and carries
// both a GraphQL snapshot API and a push WebSocket feed, which makes it
// the lowest-latency provider in the priority list.
package grid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

const (
	defaultGraphqlURL = "https://api.grid.gg/central-data/graphql"
	defaultLiveURL    = "wss://api.grid.gg/live"
)

// liveSeriesQuery lists every series currently in the LIVE state.
const liveSeriesQuery = `
	query LiveSeries {
		allSeries(filter: {state: {equalTo: LIVE}}) {
			nodes {
				id
				teams {
					id
					name
					shortName
				}
				tournament {
					name
				}
				game {
					name
				}
			}
		}
	}
`

// seriesStateQuery fetches the per-game scoreboard for one series.
const seriesStateQuery = `
	query SeriesState {
		series(id: "%s") {
			id
			teams {
				id
				name
				shortName
			}
			games {
				id
				state
				clock {
					currentSeconds
				}
				teams {
					id
					side
					score {
						kills
						gold
						towers
					}
				}
			}
		}
	}
`

// Client talks to the GRID central-data GraphQL endpoint and live
// WebSocket feed. It implements domain.GameFeed.
type Client struct {
	apiKey     string
	graphqlURL string
	liveURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu     sync.Mutex
	games  map[string]domain.Game // series ID -> title, filled by discovery
	conns  map[*websocket.Conn]struct{}
	closed bool
}

// New returns a GRID client, or nil when no API key is configured.
// Callers must treat a nil client as an absent provider.
func New(apiKey string, logger *slog.Logger) *Client {
	logger = logger.With(slog.String("component", "grid"))
	if strings.TrimSpace(apiKey) == "" {
		logger.Warn("grid api key not configured, provider disabled")
		return nil
	}
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		graphqlURL: defaultGraphqlURL,
		liveURL:    defaultLiveURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
		games:  make(map[string]domain.Game),
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

// Name implements domain.GameFeed.
func (c *Client) Name() string { return "grid" }

// Games implements domain.GameFeed.
func (c *Client) Games() []domain.Game {
	return []domain.Game{domain.GameLoL, domain.GameDota2}
}

// LiveMatches returns every LIVE series for the given title and records
// each series' game so later state lookups know which model applies.
func (c *Client) LiveMatches(ctx context.Context, game domain.Game) ([]domain.MatchSummary, error) {
	data, err := c.doQuery(ctx, liveSeriesQuery)
	if err != nil {
		return nil, fmt.Errorf("grid: live series: %w", err)
	}

	var result struct {
		AllSeries struct {
			Nodes []struct {
				ID    string     `json:"id"`
				Teams []wireTeam `json:"teams"`
				Tournament struct {
					Name string `json:"name"`
				} `json:"tournament"`
				Game struct {
					Name string `json:"name"`
				} `json:"game"`
			} `json:"nodes"`
		} `json:"allSeries"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("grid: decode live series: %w", err)
	}

	var matches []domain.MatchSummary
	for _, node := range result.AllSeries.Nodes {
		if len(node.Teams) < 2 {
			continue
		}
		title, ok := classifyTitle(node.Game.Name)
		if !ok {
			continue
		}

		c.mu.Lock()
		c.games[node.ID] = title
		c.mu.Unlock()

		if title != game {
			continue
		}
		matches = append(matches, domain.MatchSummary{
			MatchID: node.ID,
			Game:    title,
			Team1:   node.Teams[0].domain(),
			Team2:   node.Teams[1].domain(),
			Source:  "grid",
		})
		c.logger.Debug("grid live series",
			slog.String("series_id", node.ID),
			slog.String("team1", node.Teams[0].Name),
			slog.String("team2", node.Teams[1].Name),
			slog.String("tournament", node.Tournament.Name),
		)
	}
	return matches, nil
}

// MatchState fetches the series scoreboard. The current game is the first
// one still LIVE, falling back to the latest when the series is between
// games.
func (c *Client) MatchState(ctx context.Context, matchID string) (*domain.GameState, error) {
	data, err := c.doQuery(ctx, fmt.Sprintf(seriesStateQuery, matchID))
	if err != nil {
		return nil, fmt.Errorf("grid: series state %s: %w", matchID, err)
	}

	var result struct {
		Series *struct {
			ID    string     `json:"id"`
			Teams []wireTeam `json:"teams"`
			Games []struct {
				State string `json:"state"`
				Clock struct {
					CurrentSeconds float64 `json:"currentSeconds"`
				} `json:"clock"`
				Teams []struct {
					ID    string `json:"id"`
					Score struct {
						Kills  int `json:"kills"`
						Gold   int `json:"gold"`
						Towers int `json:"towers"`
					} `json:"score"`
				} `json:"teams"`
			} `json:"games"`
		} `json:"series"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("grid: decode series state %s: %w", matchID, err)
	}

	series := result.Series
	if series == nil || len(series.Teams) < 2 || len(series.Games) == 0 {
		return nil, nil
	}

	gameIdx := len(series.Games) - 1
	for i, g := range series.Games {
		if g.State == "LIVE" {
			gameIdx = i
			break
		}
	}
	current := series.Games[gameIdx]
	if len(current.Teams) < 2 {
		return nil, nil
	}

	return &domain.GameState{
		MatchID:         matchID,
		Game:            c.gameFor(matchID),
		Team1:           series.Teams[0].domain(),
		Team2:           series.Teams[1].domain(),
		GameNumber:      gameIdx + 1,
		GameTimeSeconds: current.Clock.CurrentSeconds,
		Team1Kills:      current.Teams[0].Score.Kills,
		Team2Kills:      current.Teams[1].Score.Kills,
		Team1Gold:       current.Teams[0].Score.Gold,
		Team2Gold:       current.Teams[1].Score.Gold,
		Team1Towers:     current.Teams[0].Score.Towers,
		Team2Towers:     current.Teams[1].Score.Towers,
		UpdatedAt:       time.Now(),
	}, nil
}

// Close drops every live-feed connection and rejects new subscriptions.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conns := make([]*websocket.Conn, 0, len(c.conns))
	for conn := range c.conns {
		conns = append(conns, conn)
	}
	c.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
	c.httpClient.CloseIdleConnections()
	return nil
}

// gameFor returns the title recorded for a series at discovery time.
// An unseen series defaults to LoL.
func (c *Client) gameFor(matchID string) domain.Game {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.games[matchID]; ok {
		return g
	}
	return domain.GameLoL
}

// classifyTitle maps a GRID game name onto a supported title.
func classifyTitle(name string) (domain.Game, bool) {
	name = strings.ToLower(name)
	switch {
	case strings.Contains(name, "league"), strings.Contains(name, "lol"):
		return domain.GameLoL, true
	case strings.Contains(name, "dota"):
		return domain.GameDota2, true
	default:
		return "", false
	}
}

// wireTeam is the GraphQL shape of a series team.
type wireTeam struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"shortName"`
}

func (t wireTeam) domain() domain.Team {
	return domain.Team{ID: t.ID, Name: t.Name, ShortName: t.ShortName}
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// doQuery executes a GraphQL query and returns the raw "data" field. The
// central-data endpoint takes the query as a GET parameter.
func (c *Client) doQuery(ctx context.Context, query string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("query", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.graphqlURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
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

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}
	return gqlResp.Data, nil
}

// Compile-time interface check.
var _ domain.GameFeed = (*Client)(nil)
