package ingestion

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/scolaris/billing/internal/textnorm"
)

var (
	amountNoiseReplacer = strings.NewReplacer(
		" ", "",
		" ", "", // non-breaking space
		" ", "", // narrow non-breaking space
		" ", "", // figure space
		"€", "",
		"$", "",
		",", ".",
	)
	amountCurrencyWordRe = regexp.MustCompile(`(?i)(eur|euros?)$`)
)

// NormalizeAmount turns raw monetary text into a decimal. Spaces in all their
// spreadsheet variants and currency glyphs are stripped, comma decimal
// separators become dots. Unparsable or empty input yields zero, never an
// error.
func NormalizeAmount(raw string) decimal.Decimal {
	s := amountNoiseReplacer.Replace(strings.TrimSpace(raw))
	s = amountCurrencyWordRe.ReplaceAllString(s, "")
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// notADateMarkers are source tokens that mean "no date here" rather than a
// malformed one: unpaid/pending/none markers, lone X or dash. Compared after
// lower-casing and diacritic stripping.
var notADateMarkers = map[string]bool{
	"impaye":     true,
	"attente":    true,
	"en attente": true,
	"aucun":      true,
	"aucune":     true,
	"neant":      true,
	"x":          true,
	"-":          true,
	"n/a":        true,
	"na":         true,
	"?":          true,
}

// ParsedDate is the tagged outcome of date normalization: either a trusted
// calendar date, or today's date with Invalid set and the offending source
// text preserved. Callers must never treat a defaulted date as trustworthy.
type ParsedDate struct {
	Value    time.Time
	Invalid  bool
	Original string
}

// NormalizeDate parses DD/MM/YYYY, DD/MM (current year) and YYYY-MM-DD.
// Anything else (empty input, known not-a-date markers, out-of-range or
// impossible calendar dates) is flagged invalid and defaulted to today.
// It never fails: the result is always a usable date plus a validity signal.
func NormalizeDate(raw string, today time.Time) ParsedDate {
	s := strings.TrimSpace(raw)
	if s == "" || notADateMarkers[textnorm.StripDiacritics(strings.ToLower(s))] {
		return ParsedDate{Value: today, Invalid: true, Original: raw}
	}

	var year, month, day int
	var ok bool
	switch {
	case strings.Contains(s, "/"):
		parts := strings.Split(s, "/")
		switch len(parts) {
		case 3:
			day, month, year, ok = atoiTriple(parts[0], parts[1], parts[2])
		case 2:
			var monthOK bool
			day, ok = atoiStrict(parts[0])
			month, monthOK = atoiStrict(parts[1])
			ok = ok && monthOK
			year = today.Year()
		}
	case strings.Contains(s, "-"):
		parts := strings.Split(s, "-")
		if len(parts) == 3 {
			year, month, day, ok = atoiTriple(parts[0], parts[1], parts[2])
		}
	}

	if !ok || month < 1 || month > 12 || day < 1 || day > 31 || year < 1000 {
		return ParsedDate{Value: today, Invalid: true, Original: raw}
	}

	// time.Date normalizes overflow (Feb 31 -> Mar 2), so round-trip the
	// triple to reject calendar-impossible dates.
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Year() != year || d.Month() != time.Month(month) || d.Day() != day {
		return ParsedDate{Value: today, Invalid: true, Original: raw}
	}
	return ParsedDate{Value: d}
}

func atoiStrict(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

func atoiTriple(a, b, c string) (int, int, int, bool) {
	x, ok1 := atoiStrict(a)
	y, ok2 := atoiStrict(b)
	z, ok3 := atoiStrict(c)
	return x, y, z, ok1 && ok2 && ok3
}
