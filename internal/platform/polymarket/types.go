package polymarket

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma
// API responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat unmarshals from a JSON number or a numeric string, covering the
// Gamma API's habit of quoting prices and volumes.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		*f = flexFloat(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(parsed)
	return nil
}

// flexStrings unmarshals from a JSON array of strings or from a
// JSON-encoded string containing such an array. The pagination endpoint
// sends clobTokenIds and outcomePrices in the second form.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*f = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = nil
		return nil
	}
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return err
	}
	*f = list
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIEvent represents an event from the Gamma pagination endpoint. An
// event groups the markets of one series, titled "Game: A vs B (BO3)".
type APIEvent struct {
	ID      string      `json:"id"`
	Title   string      `json:"title"`
	Slug    string      `json:"slug"`
	Active  flexBool    `json:"active"`
	Closed  bool        `json:"closed"`
	Volume  flexFloat   `json:"volume"`
	Markets []APIMarket `json:"markets"`
}

// APIMarket represents one market inside a Gamma event.
type APIMarket struct {
	ID            string      `json:"id"`
	Question      string      `json:"question"`
	ConditionID   string      `json:"conditionId"`
	Slug          string      `json:"slug"`
	Active        flexBool    `json:"active"`
	Closed        bool        `json:"closed"`
	Volume        flexFloat   `json:"volume"`
	Tokens        []Token     `json:"tokens"`
	ClobTokenIDs  flexStrings `json:"clobTokenIds"`
	OutcomePrices flexStrings `json:"outcomePrices"`
}

// Token is a token entry inside a Gamma market response.
type Token struct {
	TokenID string    `json:"token_id"`
	Outcome string    `json:"outcome"`
	Price   flexFloat `json:"price"`
	Winner  bool      `json:"winner"`
}

// decodeEvents accepts both response shapes of the pagination endpoint:
// a bare array, or an object with the array under "data".
func decodeEvents(body []byte) ([]APIEvent, error) {
	var events []APIEvent
	if err := json.Unmarshal(body, &events); err == nil {
		return events, nil
	}
	var wrapper struct {
		Data []APIEvent `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Data, nil
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// BookLevel is a single price level in a CLOB order book response.
type BookLevel struct {
	Price flexFloat `json:"price"`
	Size  flexFloat `json:"size"`
}

// APIBook is the CLOB /book response for one token.
type APIBook struct {
	AssetID string      `json:"asset_id"`
	Bids    []BookLevel `json:"bids"`
	Asks    []BookLevel `json:"asks"`
}

// Mid returns the midpoint of the best bid and ask. An empty bid side
// counts as 0, an empty ask side as 1, so a book with no depth prices at
// even odds.
func (b *APIBook) Mid() float64 {
	return midpoint(b.Bids, b.Asks)
}

func midpoint(bids, asks []BookLevel) float64 {
	bestBid, bestAsk := 0.0, 1.0
	if len(bids) > 0 {
		bestBid = float64(bids[0].Price)
	}
	if len(asks) > 0 {
		bestAsk = float64(asks[0].Price)
	}
	return (bestBid + bestAsk) / 2
}

// APIOrderResult is the CLOB response to placing an order.
type APIOrderResult struct {
	Success     bool   `json:"success"`
	ErrorMsg    string `json:"errorMsg"`
	OrderID     string `json:"orderID"`
	Status      string `json:"status"`
	ShouldRetry bool   `json:"shouldRetry"`
}

// --------------------------------------------------------------------------
// WebSocket messages
// --------------------------------------------------------------------------

// WSCommand is the JSON payload sent to the WebSocket to subscribe or
// unsubscribe.
type WSCommand struct {
	Type    string   `json:"type"`
	Channel string   `json:"channel,omitempty"`
	Assets  []string `json:"assets_ids,omitempty"`
}

// BookMessage is a full order book snapshot delivered on the market
// channel.
type BookMessage struct {
	EventType string      `json:"event_type"`
	AssetID   string      `json:"asset_id"`
	Market    string      `json:"market"`
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
	Timestamp string      `json:"timestamp"`
	Hash      string      `json:"hash"`
}

// Mid returns the midpoint of the snapshot's best bid and ask.
func (m *BookMessage) Mid() float64 {
	return midpoint(m.Bids, m.Asks)
}

// Time returns the venue timestamp of the snapshot, falling back to the
// local clock when the message carries none.
func (m *BookMessage) Time() time.Time {
	if ms, err := strconv.ParseInt(m.Timestamp, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms)
	}
	return time.Now()
}

// --------------------------------------------------------------------------
// Conversion helpers: API types -> domain types
// --------------------------------------------------------------------------

var (
	lolKeywords  = []string{"league", "lol:", "lol ", "worlds", "lck", "lec", "lpl"}
	dotaKeywords = []string{"dota", "ti ", "the international", "dpc"}
)

// classifyGame recognizes the esports title from market text. The second
// return is false for markets outside the supported titles.
func classifyGame(text string) (domain.Game, bool) {
	t := strings.ToLower(text)
	for _, kw := range lolKeywords {
		if strings.Contains(t, kw) {
			return domain.GameLoL, true
		}
	}
	for _, kw := range dotaKeywords {
		if strings.Contains(t, kw) {
			return domain.GameDota2, true
		}
	}
	return "", false
}

var versusPattern = regexp.MustCompile(`(?i)\s+vs\.?\s+`)

// parseTeams extracts team names from an event title like
// "LoL: HLE vs T1 (BO3)", stripping the game prefix and the series-format
// suffix. Titles without a versus separator yield placeholder names the
// matcher treats as unresolved.
func parseTeams(title string) (team1, team2 string) {
	team1, team2 = "Team 1", "Team 2"

	loc := versusPattern.FindStringIndex(title)
	if loc == nil {
		return team1, team2
	}

	left := title[:loc[0]]
	right := title[loc[1]:]

	if c := strings.LastIndex(left, ":"); c >= 0 {
		left = left[c+1:]
	}
	if p := strings.Index(right, "("); p >= 0 {
		right = right[:p]
	}

	if l := strings.TrimSpace(left); l != "" {
		team1 = l
	}
	if r := strings.TrimSpace(right); r != "" {
		team2 = r
	}
	return team1, team2
}

// DomainMarkets converts the event's markets, skipping ones that are not
// recognizably esports or are missing venue token IDs.
func (e *APIEvent) DomainMarkets() []domain.Market {
	out := make([]domain.Market, 0, len(e.Markets))
	for i := range e.Markets {
		if m, ok := e.Markets[i].toDomainMarket(e); ok {
			out = append(out, m)
		}
	}
	return out
}

// toDomainMarket builds a domain.Market from one Gamma market plus its
// enclosing event. The bool is false when the market should be skipped.
func (m *APIMarket) toDomainMarket(event *APIEvent) (domain.Market, bool) {
	game, ok := classifyGame(event.Title + " " + m.Question)
	if !ok {
		return domain.Market{}, false
	}

	dm := domain.Market{
		MarketID:    m.ID,
		ConditionID: m.ConditionID,
		Question:    m.Question,
		Game:        game,
		IsActive:    !m.Closed,
		YesPrice:    0.5,
		NoPrice:     0.5,
		Volume:      float64(m.Volume),
		UpdatedAt:   time.Now(),
	}
	if dm.Question == "" {
		dm.Question = event.Title
	}

	dm.Team1Name, dm.Team2Name = parseTeams(event.Title)

	// Token IDs: outcome-labelled tokens first, then positional order,
	// then the clobTokenIds list.
	var yesTok, noTok *Token
	for i := range m.Tokens {
		switch m.Tokens[i].Outcome {
		case "Yes":
			yesTok = &m.Tokens[i]
		case "No":
			noTok = &m.Tokens[i]
		}
	}
	if yesTok == nil && len(m.Tokens) > 0 {
		yesTok = &m.Tokens[0]
		if len(m.Tokens) > 1 {
			noTok = &m.Tokens[1]
		}
	}

	if yesTok != nil {
		dm.TokenIDYes = yesTok.TokenID
		dm.YesPrice = float64(yesTok.Price)
	}
	if noTok != nil {
		dm.TokenIDNo = noTok.TokenID
		dm.NoPrice = float64(noTok.Price)
	}
	if dm.TokenIDYes == "" && len(m.ClobTokenIDs) > 0 {
		dm.TokenIDYes = m.ClobTokenIDs[0]
	}
	if dm.TokenIDNo == "" && len(m.ClobTokenIDs) > 1 {
		dm.TokenIDNo = m.ClobTokenIDs[1]
	}

	// Quoted outcome prices take precedence over token prices.
	if len(m.OutcomePrices) >= 2 {
		if yes, err := strconv.ParseFloat(m.OutcomePrices[0], 64); err == nil {
			dm.YesPrice = yes
		}
		if no, err := strconv.ParseFloat(m.OutcomePrices[1], 64); err == nil {
			dm.NoPrice = no
		}
	}

	// A market we cannot trade is not worth carrying.
	if dm.TokenIDYes == "" || dm.TokenIDNo == "" {
		return domain.Market{}, false
	}

	return dm, true
}
