package invoicing

import (
	"strings"

	"golang.org/x/text/cases"
)

// fold returns a caseless form of s. A Caser keeps state, so one is built per call.
func fold(s string) string {
	return cases.Fold().String(s)
}

func nameMatches(name, query string) bool {
	return strings.Contains(fold(name), fold(query))
}

// FilterCounterparties returns the counterparties whose name contains query,
// ignoring case.
func FilterCounterparties(list []Counterparty, query string) []Counterparty {
	out := make([]Counterparty, 0, len(list))
	for _, c := range list {
		if nameMatches(c.Name, query) {
			out = append(out, c)
		}
	}
	return out
}

// FilterProducts returns the products whose name contains query, ignoring case.
func FilterProducts(list []Product, query string) []Product {
	out := make([]Product, 0, len(list))
	for _, p := range list {
		if nameMatches(p.Name, query) {
			out = append(out, p)
		}
	}
	return out
}

// SuggestionsVisible decides whether a suggestion panel is shown. There is no
// "no results" state: blank text or an empty result set both hide the panel.
func SuggestionsVisible(query string, results int) bool {
	return strings.TrimSpace(query) != "" && results > 0
}
