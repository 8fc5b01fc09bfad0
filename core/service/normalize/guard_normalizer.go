// Package normalize canonicalizes raw text for classification and caching.
package normalize

import (
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// CacheKeyLength is the rune prefix used as the result cache key.
	CacheKeyLength = 500
	// TransportLength caps the text sent to a remote classifier.
	TransportLength = 10000
	// MinLength is the shortest text worth classifying.
	MinLength = 3
)

var zeroWidth = runes.Predicate(func(r rune) bool {
	switch r {
	case '\u200B', '\u200C', '\u200D', '\u2060', '\uFEFF':
		return true
	}
	return false
})

// Normalize strips zero-width characters, composes to NFC, collapses
// whitespace runs to one space and trims. Whitespace-only input yields "".
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	// Chains carry state, so each call builds its own.
	t := transform.Chain(runes.Remove(zeroWidth), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(out), " ")
}

// Valid reports whether normalized text is long enough to classify.
func Valid(normalized string) bool {
	return runeLen(normalized, MinLength) >= MinLength
}

// CacheKey returns the cache key for normalized text.
func CacheKey(normalized string) string {
	return Truncate(normalized, CacheKeyLength)
}

// TransportText returns normalized text capped for remote calls.
func TransportText(normalized string) string {
	return Truncate(normalized, TransportLength)
}

// Truncate keeps at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// runeLen counts runes up to limit.
func runeLen(s string, limit int) int {
	count := 0
	for range s {
		count++
		if count >= limit {
			return count
		}
	}
	return count
}
