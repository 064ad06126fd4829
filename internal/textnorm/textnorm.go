// Package textnorm holds the diacritic-insensitive text folding shared by
// header canonicalization and reference-dimension matching.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var whitespaceRe = regexp.MustCompile(`[\s-]+`)

// Key builds the comparison key used for fuzzy matching: lower-cased,
// de-accented, apostrophes removed, whitespace and hyphens collapsed to
// single spaces. Never used for display.
func Key(s string) string {
	s = StripDiacritics(strings.ToLower(strings.TrimSpace(s)))
	s = strings.ReplaceAll(s, "'", "")
	s = strings.ReplaceAll(s, "’", "")
	return whitespaceRe.ReplaceAllString(s, " ")
}

// StripDiacritics removes accents by NFD decomposition followed by dropping
// combining marks (unicode Mn category).
func StripDiacritics(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
