// Package intent classifies free-text chat messages into the fixed set of
// supported query intents. Unmatched text falls through to the generative path.
package intent

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type Kind int

const (
	// SprintStatus asks for the overall progress of the active sprint.
	SprintStatus Kind = iota
	// IndividualStatus asks for the full per-assignee breakdown.
	IndividualStatus
	// MemberStatus asks about one or more named team members.
	MemberStatus
	// GenericQuery is everything else; it is delegated to the AI backend.
	GenericQuery
)

// Match is the routing result. Names is set for MemberStatus, Text for
// GenericQuery.
type Match struct {
	Kind  Kind
	Names []string
	Text  string
}

var (
	memberRe = regexp.MustCompile(`status of\s+(.+)`)
	nameSep  = regexp.MustCompile(`\s*(?:,|\band\b|\bor\b)\s*`)

	sprintPhrases     = []string{"sprint status", "status of the sprint", "current sprint status"}
	individualPhrases = []string{"individual status", "team status", "member status", "who is doing what"}

	titleCaser = cases.Title(language.English)
)

// Route classifies a message. It is total: any input yields a Match, and
// unmatched text becomes a GenericQuery carrying the original message.
// Matching is ordered; the member pattern runs first because "status of X"
// is a specialization of the generic status intents.
func Route(raw string) Match {
	text := strings.ToLower(strings.TrimSpace(raw))

	if m := memberRe.FindStringSubmatch(text); m != nil {
		if names := memberNames(m[1]); len(names) > 0 {
			return Match{Kind: MemberStatus, Names: names}
		}
	}
	for _, p := range sprintPhrases {
		if strings.Contains(text, p) {
			return Match{Kind: SprintStatus}
		}
	}
	for _, p := range individualPhrases {
		if strings.Contains(text, p) {
			return Match{Kind: IndividualStatus}
		}
	}
	return Match{Kind: GenericQuery, Text: raw}
}

// memberNames splits the capture after "status of" into normalized display
// names. A remainder that refers to the sprint itself is skipped so the
// "status of the sprint" phrase can reach the sprint-status step.
func memberNames(rest string) []string {
	rest = strings.TrimSpace(strings.TrimRight(rest, "?!. "))
	if rest == "" || rest == "sprint" || strings.HasPrefix(rest, "the sprint") || strings.HasPrefix(rest, "sprint ") {
		return nil
	}
	parts := nameSep.Split(rest, -1)
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		names = append(names, titleCaser.String(p))
	}
	return names
}
