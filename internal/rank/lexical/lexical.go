// Package lexical implements the two term-statistics scorers (TF-IDF and
// Okapi BM25). Both follow the fit-once/immutable-model idiom: Fit consumes
// an ordered corpus snapshot and returns a read-only model whose Score and
// Rank methods are safe for concurrent use.
package lexical

import (
	"sort"

	"github.com/esglens/retrieval-engine/internal/rank/tokenizer"
	"github.com/esglens/retrieval-engine/pkg/errors"
)

// corpusStats holds the term statistics both scorers derive from a corpus
// snapshot during Fit.
type corpusStats struct {
	df        map[string]int
	totalDocs int
	avgDocLen float64
}

func fitStats(corpus []string) (*corpusStats, error) {
	if len(corpus) == 0 {
		return nil, errors.New(errors.ErrValidation, "empty corpus")
	}
	stats := &corpusStats{
		df:        make(map[string]int),
		totalDocs: len(corpus),
	}
	totalTokens := 0
	for _, text := range corpus {
		tokens := tokenizer.Tokenize(text)
		totalTokens += len(tokens)
		seen := make(map[string]struct{}, len(tokens))
		for _, tok := range tokens {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			stats.df[tok]++
		}
	}
	stats.avgDocLen = float64(totalTokens) / float64(stats.totalDocs)
	return stats, nil
}

// sortedTerms returns the map's keys in lexicographic order so every
// aggregation over it is deterministic regardless of map iteration order.
func sortedTerms[V any](m map[string]V) []string {
	terms := make([]string, 0, len(m))
	for t := range m {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// rankByScore returns candidate indices ordered by (-score, index). The
// index tie-break keeps the ordering a total order under equal scores.
func rankByScore(scores []float64) []int {
	indices := make([]int, len(scores))
	for i := range indices {
		indices[i] = i
	}
	sort.Slice(indices, func(a, b int) bool {
		i, j := indices[a], indices[b]
		if scores[i] != scores[j] {
			return scores[i] > scores[j]
		}
		return i < j
	})
	return indices
}
