package classifier

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// normalizeText applies NFKC normalization, trims surrounding whitespace and
// strips control characters other than newlines and tabs. Model inputs are
// normalized so cache keys stay stable across cosmetic variations.
func normalizeText(text string) string {
	normed := norm.NFKC.String(text)
	normed = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, normed)
	return strings.TrimSpace(normed)
}
