package matcher

import (
	"regexp"
	"strings"
)

// Question patterns seen on esports winner markets:
//
//	"Will Team A beat Team B?"
//	"Team A vs Team B - who will win?"
//	"Team A to win against Team B"
var questionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`will\s+(.+?)\s+(?:beat|defeat|win against)\s+(.+?)[?.]`),
	regexp.MustCompile(`(.+?)\s+vs\.?\s+(.+?)(?:\s*[-–—]\s*|\s+)`),
	regexp.MustCompile(`(.+?)\s+to\s+win\s+(?:against|vs\.?)\s+(.+?)[?.]`),
}

// extraction leftovers stripped from captured team names
var teamSuffixes = []string{"?", ".", "to win", "winner"}

// ExtractTeams guesses the two team names from a market question. It is
// best-effort: ("", "") means no pattern matched, which callers treat as
// "no structured team data", never as an error.
func ExtractTeams(question string) (string, string) {
	q := strings.ToLower(question)

	for _, pattern := range questionPatterns {
		groups := pattern.FindStringSubmatch(q)
		if groups == nil {
			continue
		}
		team1 := strings.TrimSpace(groups[1])
		team2 := strings.TrimSpace(groups[2])

		for _, suffix := range teamSuffixes {
			team1 = strings.TrimSpace(strings.ReplaceAll(team1, suffix, ""))
			team2 = strings.TrimSpace(strings.ReplaceAll(team2, suffix, ""))
		}

		if team1 != "" && team2 != "" {
			return team1, team2
		}
	}

	return "", ""
}
