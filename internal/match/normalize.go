// Package match provides the pure string normalization and weighted
// similarity scoring used to pair library entities with provider records.
// Everything here is deterministic, synchronous computation with no hidden
// state.
package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Leading title tokens stripped during normalization. Matching is at word
// boundaries only.
var leadingTokens = []string{
	"dj", "the", "mc", "dr", "lil", "big", "young", "old",
	"king", "queen", "sir", "lady", "miss", "mr", "mrs", "ms",
}

// Trailing ensemble tokens stripped during normalization.
var trailingTokens = []string{
	"band", "orchestra", "trio",
}

// Exact compilation aliases, compared case-insensitively after whitespace
// collapsing. No substring matching: artist names merely containing one of
// these must not be flagged.
var compilationMarkers = []string{
	"various artists", "va", "v.a.", "v/a",
	"diverse", "verschiedene", "verschiedene künstler", "varios artistas",
	"soundtrack", "ost", "sampler", "compilation",
}

// foldDiacritics removes combining marks so accented and plain spellings
// compare equal.
var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize produces the lowercase comparison basis for a name: diacritics
// folded, whitespace collapsed, configured leading and trailing tokens
// stripped at word boundaries. The result is a fixed point, so
// Normalize(Normalize(x)) == Normalize(x) for every input, and a name is
// never stripped down to the empty string.
func Normalize(name string) string {
	folded, _, err := transform.String(foldDiacritics, name)
	if err != nil {
		folded = name
	}

	words := strings.Fields(strings.ToLower(folded))
	for changed := true; changed; {
		changed = false
		if len(words) > 1 && containsToken(leadingTokens, words[0]) {
			words = words[1:]
			changed = true
		}
		if len(words) > 1 && containsToken(trailingTokens, words[len(words)-1]) {
			words = words[:len(words)-1]
			changed = true
		}
	}
	return strings.Join(words, " ")
}

// IsCompilationMarker reports whether a name is one of the configured
// various-artists aliases. Comparison is exact (case-insensitive,
// whitespace-collapsed, diacritics folded), never substring-based.
func IsCompilationMarker(name string) bool {
	folded, _, err := transform.String(foldDiacritics, name)
	if err != nil {
		folded = name
	}
	candidate := strings.Join(strings.Fields(strings.ToLower(folded)), " ")
	if candidate == "" {
		return false
	}

	for _, marker := range compilationMarkers {
		m, _, err := transform.String(foldDiacritics, marker)
		if err != nil {
			m = marker
		}
		if candidate == m {
			return true
		}
	}
	return false
}

func containsToken(tokens []string, word string) bool {
	for _, t := range tokens {
		if t == word {
			return true
		}
	}
	return false
}
