package ingestion

import (
	"strings"

	"github.com/scolaris/billing/internal/textnorm"
)

// CanonicalizeHeaders maps a raw spreadsheet header row to canonical keys,
// aligned 1:1 with the input positions. A leading byte-order-mark is stripped
// from the first header only. Canonicalization never fails; unknown headers
// simply produce keys no downstream lookup recognizes.
func CanonicalizeHeaders(raw []string) []string {
	keys := make([]string, len(raw))
	for i, h := range raw {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		keys[i] = canonicalKey(h)
	}
	return keys
}

// canonicalKey lower-cases, strips diacritics, then drops every character
// that is not an ASCII letter or digit. "N° Étudiant" -> "netudiant".
func canonicalKey(h string) string {
	s := textnorm.StripDiacritics(strings.ToLower(h))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
