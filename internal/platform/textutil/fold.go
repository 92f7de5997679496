package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldChain = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases the input and strips diacritical marks so prefix searches
// match accent-insensitively.
func Fold(s string) string {
	lowered := strings.ToLower(strings.TrimSpace(s))
	folded, _, err := transform.String(foldChain, lowered)
	if err != nil {
		return lowered
	}
	return folded
}

// Slugify converts a display name into a URL-safe slug.
func Slugify(s string) string {
	folded := Fold(s)
	var b strings.Builder
	b.Grow(len(folded))
	lastDash := true
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
