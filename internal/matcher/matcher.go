// Package matcher binds a live esports match to the prediction market that
// trades it, using alias normalization and fuzzy question-text scoring.
package matcher

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// minMatchScore is the floor below which a candidate market is rejected.
const minMatchScore = 0.6

// teamAliases maps a canonical team key to its known market-text spellings.
var teamAliases = map[string][]string{
	// LoL teams
	"t1":          {"skt", "sk telecom", "skt t1", "t1"},
	"geng":        {"gen.g", "gen g", "geng", "samsung galaxy"},
	"dwg":         {"damwon", "dwg kia", "dk", "damwon gaming"},
	"fnatic":      {"fnc", "fnatic"},
	"g2":          {"g2 esports", "g2"},
	"cloud9":      {"c9", "cloud 9", "cloud9"},
	"team liquid": {"tl", "liquid", "team liquid"},
	"jdg":         {"jd gaming", "jdg", "jd"},
	"weibo":       {"weibo gaming", "wbg"},
	"bilibili":    {"bilibili gaming", "blg", "bilibili"},

	// Dota teams
	"og":                {"og", "og esports"},
	"team spirit":       {"spirit", "team spirit", "ts"},
	"lgd":               {"lgd gaming", "psg.lgd", "lgd"},
	"evil geniuses":     {"eg", "evil geniuses"},
	"team secret":       {"secret", "team secret"},
	"nigma":             {"nigma galaxy", "nigma", "team nigma"},
	"tundra":            {"tundra esports", "tundra"},
	"gaimin gladiators": {"gg", "gaimin", "gladiators"},
}

// aliasEntry is one reverse-lookup row; kept in a slice so partial-match
// scans are deterministic.
type aliasEntry struct {
	alias     string
	canonical string
}

var wordPattern = regexp.MustCompile(`\b\w+\b`)

// Matcher scores candidate markets against live team names.
type Matcher struct {
	aliasLookup map[string]string
	aliasOrder  []aliasEntry
	logger      *slog.Logger
}

// New builds a Matcher with the shipped alias table.
func New(logger *slog.Logger) *Matcher {
	m := &Matcher{
		aliasLookup: make(map[string]string),
		logger:      logger.With(slog.String("component", "matcher")),
	}
	// Canonical keys sorted so the partial-match scan order never depends
	// on map iteration.
	canonicals := make([]string, 0, len(teamAliases))
	for c := range teamAliases {
		canonicals = append(canonicals, c)
	}
	sort.Strings(canonicals)
	for _, canonical := range canonicals {
		for _, alias := range teamAliases[canonical] {
			a := strings.ToLower(alias)
			if _, dup := m.aliasLookup[a]; !dup {
				m.aliasLookup[a] = canonical
				m.aliasOrder = append(m.aliasOrder, aliasEntry{alias: a, canonical: canonical})
			}
		}
	}
	return m
}

// Match returns the best-scoring active market of the same game, or nil when
// no candidate reaches the minimum score. Ties keep the first-seen market.
func (m *Matcher) Match(markets []domain.Market, state *domain.GameState) *domain.Market {
	team1 := strings.ToLower(state.Team1.Name)
	team2 := strings.ToLower(state.Team2.Name)

	var best *domain.Market
	bestScore := 0.0

	for i := range markets {
		mk := &markets[i]
		if !mk.IsActive {
			continue
		}
		if mk.Game != state.Game {
			continue
		}

		score := m.Score(mk.Question, team1, team2)
		if score > bestScore && score >= minMatchScore {
			bestScore = score
			best = mk
		}
	}

	if best != nil {
		m.logger.Debug("market matched",
			slog.String("match_id", state.MatchID),
			slog.String("market_id", best.MarketID),
			slog.Float64("score", bestScore),
		)
	}

	return best
}

// Score rates how well a market question names the two teams, in [0, 1]:
// 1.0 when both appear, 0.7 when exactly one does, otherwise the mean of
// each team's best per-word similarity against the question tokens.
func (m *Matcher) Score(question, team1, team2 string) float64 {
	q := strings.ToLower(question)

	c1 := m.normalize(team1)
	c2 := m.normalize(team2)

	found1 := m.teamInText(c1, q)
	found2 := m.teamInText(c2, q)

	if found1 && found2 {
		return 1.0
	}
	if found1 || found2 {
		return 0.7
	}

	words := wordPattern.FindAllString(q, -1)
	if len(words) == 0 {
		return 0
	}

	return (bestWordSimilarity(c1, words) + bestWordSimilarity(c2, words)) / 2
}

// normalize maps a team name to its canonical alias-table key: exact alias
// hit first, then substring containment either way, else the lowercased
// input.
func (m *Matcher) normalize(name string) string {
	n := strings.TrimSpace(strings.ToLower(name))

	if canonical, ok := m.aliasLookup[n]; ok {
		return canonical
	}

	for _, e := range m.aliasOrder {
		if strings.Contains(n, e.alias) || strings.Contains(e.alias, n) {
			return e.canonical
		}
	}

	return n
}

// teamInText reports whether a canonical team (or any of its aliases)
// appears as a substring of the text.
func (m *Matcher) teamInText(team, text string) bool {
	if strings.Contains(text, team) {
		return true
	}
	for _, alias := range teamAliases[team] {
		if strings.Contains(text, alias) {
			return true
		}
	}
	return false
}

// bestWordSimilarity returns the highest similarity ratio between the team
// name and any question token.
func bestWordSimilarity(team string, words []string) float64 {
	best := 0.0
	for _, w := range words {
		if r := similarity(team, w); r > best {
			best = r
		}
	}
	return best
}
