package polymarket

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// GammaClient is the REST client for the venue's Gamma API, which provides
// market discovery and metadata. Discovery is unauthenticated.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// EsportsEvents returns the currently open esports events, highest volume
// first.
func (g *GammaClient) EsportsEvents(ctx context.Context) ([]APIEvent, error) {
	params := url.Values{}
	params.Set("limit", "100")
	params.Set("active", "true")
	params.Set("archived", "false")
	params.Set("tag_slug", "esports")
	params.Set("closed", "false")
	params.Set("order", "volume")
	params.Set("ascending", "false")

	path := "/events/pagination?" + params.Encode()

	body, err := g.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get esports events: %w", err)
	}

	events, err := decodeEvents(body)
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode esports events: %w", err)
	}

	return events, nil
}

// EsportsMarkets returns the tradable markets across all open esports
// events. game narrows the result to one title; the zero value keeps all
// supported titles. Markets whose text matches no supported title, or that
// are missing venue token IDs, are dropped.
func (g *GammaClient) EsportsMarkets(ctx context.Context, game domain.Game) ([]domain.Market, error) {
	events, err := g.EsportsEvents(ctx)
	if err != nil {
		return nil, err
	}

	var markets []domain.Market
	for i := range events {
		for _, m := range events[i].DomainMarkets() {
			if game != "" && m.Game != game {
				continue
			}
			markets = append(markets, m)
		}
	}

	return markets, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet sends an unauthenticated GET request to the Gamma API.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}
