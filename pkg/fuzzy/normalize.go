// Package fuzzy provides text normalization and album matching for linking
// catalog releases to Spotify search results.
package fuzzy

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	editionRegex    = regexp.MustCompile(`(?i)\s*[\(\[][^\)\]]*(remaster|deluxe|expanded|anniversary|bonus|special|legacy|collector|edition|version)[^\)\]]*[\)\]]\s*`)
	featRegex       = regexp.MustCompile(`(?i)\s*[\(\[]?\s*(?:feat\.?|ft\.?|featuring)\s+[^\)\]]*[\)\]]?\s*`)
	punctRegex      = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize lowercases, folds diacritics, rewrites ampersands to "and",
// strips punctuation and collapses whitespace. This is the loose tier used
// for exact-match and substring comparisons.
func (n *Normalizer) Normalize(text string) string {
	text = norm.NFKD.String(text)

	var result strings.Builder
	for _, r := range text {
		if !unicode.IsMark(r) {
			result.WriteRune(r)
		}
	}
	text = result.String()

	text = strings.ReplaceAll(text, "&", " and ")
	text = strings.ReplaceAll(text, "+", " and ")

	text = punctRegex.ReplaceAllString(text, " ")
	text = whitespaceRegex.ReplaceAllString(text, " ")

	text = strings.ToLower(text)
	return strings.TrimSpace(text)
}

// NormalizeStrict additionally strips edition suffixes and featured-artist
// credits before the loose normalization, so "Album (2011 Remaster)" and
// "Album" compare equal at this tier.
func (n *Normalizer) NormalizeStrict(text string) string {
	text = editionRegex.ReplaceAllString(text, " ")
	text = featRegex.ReplaceAllString(text, " ")
	text = strings.TrimPrefix(strings.ToLower(text), "the ")

	return n.Normalize(text)
}
