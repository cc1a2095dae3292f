// Package search implements the student lookup spec.md §4.7 describes:
// match on exact id first, then rank the rest by fuzzy name distance.
// Grounded on the pulumi-pulumi example's use of
// texttheater/golang-levenshtein for fuzzy account matching.
package search

import (
	"sort"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/coursekit/rudaux/internal/domain"
)

// Match is one candidate in a search result, carrying the distance it was
// ranked by so callers can display or log it.
type Match struct {
	Person   domain.Person
	Distance int
	ExactID  bool
}

// Find returns up to maxReturn candidates for query, matched against each
// person's LMS id, SIS id, and sortable name, ordered per §4.7: exact id
// matches first, then ascending fuzzy distance.
func Find(people []domain.Person, query string, maxReturn int) []Match {
	normQuery := normalize(query)

	matches := make([]Match, 0, len(people))
	for _, p := range people {
		if p.ID == query || p.SISID == query {
			matches = append(matches, Match{Person: p, Distance: 0, ExactID: true})
			continue
		}
		matches = append(matches, Match{Person: p, Distance: nameDistance(p.SortableName, normQuery)})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].ExactID != matches[j].ExactID {
			return matches[i].ExactID
		}
		return matches[i].Distance < matches[j].Distance
	})

	if maxReturn > 0 && len(matches) > maxReturn {
		matches = matches[:maxReturn]
	}
	return matches
}

// nameDistance takes the minimum Levenshtein distance between the query and
// a sortable name interpreted in both "Last, First" and "First Last"
// orientations (§4.7), since a query may arrive in either order.
func nameDistance(sortableName, normQuery string) int {
	lastFirst := normalize(sortableName)
	firstLast := normalize(flipSortableName(sortableName))

	d1 := levenshtein.DistanceForStrings([]rune(normQuery), []rune(lastFirst), levenshtein.DefaultOptions)
	d2 := levenshtein.DistanceForStrings([]rune(normQuery), []rune(firstLast), levenshtein.DefaultOptions)
	if d2 < d1 {
		return d2
	}
	return d1
}

// flipSortableName turns "Last, First" into "First Last"; names without a
// comma are returned unchanged (already in "First Last" order).
func flipSortableName(name string) string {
	parts := strings.SplitN(name, ",", 2)
	if len(parts) != 2 {
		return name
	}
	last := strings.TrimSpace(parts[0])
	first := strings.TrimSpace(parts[1])
	return first + " " + last
}

// normalize lowercases and strips everything but letters and digits, so
// punctuation and spacing differences don't inflate edit distance.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
