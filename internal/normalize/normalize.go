// Package normalize canonicalizes join-key strings (listing and customer
// names) so that the same property spelled slightly differently in different
// source exports still joins. Join failures are the dominant data-quality
// failure mode, so every key column of every source table goes through Key
// before any lookup.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"rental-invoice-engine/internal/models"
)

// Characters outside this set are treated as separators and collapsed to a
// single space.
var separatorRuns = regexp.MustCompile(`[^A-Za-z0-9_ \-:&]+`)

// asciiFold decomposes accented characters and strips the combining marks,
// transliterating to the closest ASCII form.
var asciiFold = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Key canonicalizes a join-key string. Blank input (and input reduced to
// blank by cleaning) becomes the NULL sentinel so that missing keys compare
// equal to other missing keys. Key is idempotent.
func Key(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.NullSentinel
	}

	if folded, _, err := transform.String(asciiFold, s); err == nil {
		s = folded
	}
	// Drop anything the fold could not reduce to ASCII.
	s = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, s)

	s = separatorRuns.ReplaceAllString(s, " ")
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return models.NullSentinel
	}
	return s
}

// IsNull reports whether a normalized key is the missing-value sentinel.
func IsNull(key string) bool {
	return key == models.NullSentinel || key == ""
}
