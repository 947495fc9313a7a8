// Package patterns holds the deterministic rules that score intents and
// extract entity values from a travel query. Every match carries a weight that
// the router turns into a confidence.
package patterns

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s, strips diacritics and collapses whitespace, so
// "  Zürich " and "zurich" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// words reduces s to folded alphanumeric words separated by single spaces and
// padded with one space on each side, for whole-word containment checks.
func words(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			return r
		}
		return ' '
	}, Fold(s))
	return " " + strings.Join(strings.Fields(mapped), " ") + " "
}

// containsWord reports whether phrase occurs in the padded word string hay.
func containsWord(hay, phrase string) bool {
	p := strings.TrimSpace(words(phrase))
	if p == "" {
		return false
	}
	return strings.Contains(hay, " "+p+" ")
}
