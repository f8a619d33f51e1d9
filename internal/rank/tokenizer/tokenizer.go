// Package tokenizer provides text tokenisation for the retrieval engine.
// It lower-cases input and splits on non-word boundaries. There is no
// stemming or stop-word removal: scoring must stay fully deterministic
// without a language model or external NLP resource.
package tokenizer

import (
	"strings"
	"unicode"
)

// Tokenize breaks text into an ordered slice of lowercase tokens. A token
// is a maximal run of Unicode letters, digits, or underscores. Empty or
// whitespace-only input yields an empty slice.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// TermCounts returns the frequency of each token in text. Callers that
// aggregate over the returned map must iterate its keys in sorted order.
func TermCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, tok := range Tokenize(text) {
		counts[tok]++
	}
	return counts
}

// TermSet returns the set of distinct tokens in text.
func TermSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokenize(text) {
		set[tok] = struct{}{}
	}
	return set
}
